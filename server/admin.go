package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IamMikeHelsel/2DG-sub000/identity"
	"github.com/IamMikeHelsel/2DG-sub000/moderation"
)

// AuditHistory 可回查的审计存储（内存环形缓冲之外的完整历史）
type AuditHistory interface {
	Recent(ctx context.Context, n int) ([]moderation.Action, error)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// HandleAdminConfig 读取与热更新运行参数（作用于全部房间）
// GET  /admin/config  返回当前参数
// POST /admin/config  以 JSON 载荷更新部分字段，未给出的字段保持不变
func (m *RoomManager) HandleAdminConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, m.Tunables())
	case http.MethodPost:
		t := m.Tunables()
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := m.ApplyTunables(t); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		Log.Infow("config updated via admin endpoint", "tunables", t)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "tunables": t})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleRoomsDebug 输出全部房间的运行指标
// GET /debug/rooms
func (m *RoomManager) HandleRoomsDebug(w http.ResponseWriter, r *http.Request) {
	rooms := m.Rooms()
	out := make([]map[string]any, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, room.debugInfo())
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": out})
}

// HandleAudit 最近的管理操作记录
// GET /admin/audit?room=room-1&n=50；省略 room 时读取持久化的全量历史
func (m *RoomManager) HandleAudit(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.URL.Query().Get("n"))
	if err != nil || n <= 0 {
		n = 50
	}
	id := r.URL.Query().Get("room")
	if id == "" {
		// 不指定房间：从持久化审计库读取全部房间的历史
		m.mu.RLock()
		history, ok := m.base.AuditSink.(AuditHistory)
		m.mu.RUnlock()
		if !ok {
			http.Error(w, "no audit history configured", http.StatusNotFound)
			return
		}
		actions, err := history.Recent(r.Context(), n)
		if err != nil {
			Log.Errorw("read audit history failed", "err", err)
			http.Error(w, "could not read audit history", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
		return
	}
	room, ok := m.Room(id)
	if !ok {
		http.Error(w, "unknown room", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room": room.ID, "actions": room.AuditEntries(n)})
}

// MetricsHandler Prometheus 指标
func (m *RoomManager) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// GuestTokenHandler 签发访客令牌：POST /auth/guest
func GuestTokenHandler(svc *identity.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		token, name, err := svc.IssueGuest()
		if err != nil {
			Log.Errorw("issue guest token failed", "err", err)
			http.Error(w, "could not issue token", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": token, "name": name})
	}
}

func (r *Room) debugInfo() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return map[string]any{
		"room":     r.ID,
		"tick":     r.tickSeq,
		"players":  len(r.players),
		"mobs":     len(r.mobs),
		"parties":  r.parties.Count(),
		"timers":   r.timers.Len(),
		"bans":     len(r.bans.Active(r.now())),
		"chatters": r.chatLimit.Tracked(),
		"metrics":  r.metrics.Snapshot(),
	}
}
