package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/IamMikeHelsel/2DG-sub000/config"
	"github.com/IamMikeHelsel/2DG-sub000/identity"
	"github.com/IamMikeHelsel/2DG-sub000/moderation"
)

func newTestManager(t *testing.T) (*RoomManager, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	m := NewRoomManager(ctx, RoomOptions{}, nil)
	t.Cleanup(func() {
		m.Close()
		cancel()
	})
	return m, cancel
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestManagerRoomLifecycle(t *testing.T) {
	m, _ := newTestManager(t)
	a, err := m.GetOrCreateRoom("a")
	if err != nil {
		t.Fatal(err)
	}
	if again, _ := m.GetOrCreateRoom("a"); again != a {
		t.Fatal("second lookup created a new room")
	}
	b, _ := m.GetOrCreateRoom("b")
	if rooms := m.Rooms(); len(rooms) != 2 || rooms[0] != a || rooms[1] != b {
		t.Fatalf("rooms = %v", rooms)
	}
	if _, err := m.GetOrCreateRoom("  "); err == nil {
		t.Fatal("blank room id accepted")
	}

	// 加入序号跨房间共享
	pa, _ := a.Join("alice", &fakeSession{})
	pb, _ := b.Join("bob", &fakeSession{})
	if pa.JoinOrder != 1 || pb.JoinOrder != 2 {
		t.Fatalf("join orders %d %d", pa.JoinOrder, pb.JoinOrder)
	}

	a.Close()
	waitFor(t, "room a removal", func() bool { _, ok := m.Room("a"); return !ok })
	waitFor(t, "ticks in room b", func() bool { return b.debugInfo()["tick"].(uint64) > 0 })

	m.Close()
	if _, err := m.GetOrCreateRoom("c"); !errors.Is(err, ErrManagerClosed) {
		t.Fatalf("create after close: %v", err)
	}
}

func TestManagerContextCancelClosesRooms(t *testing.T) {
	m, cancel := newTestManager(t)
	r, _ := m.GetOrCreateRoom("a")
	_, s := join(t, r, "alice")
	cancel()
	waitFor(t, "room removal", func() bool { return len(m.Rooms()) == 0 })
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		t.Fatal("player not disconnected on shutdown")
	}
}

func TestApplyTunables(t *testing.T) {
	m, _ := newTestManager(t)
	r, _ := m.GetOrCreateRoom("a")
	tun := config.DefaultTunables()
	tun.MoveSpeed = 8
	if err := m.ApplyTunables(tun); err != nil {
		t.Fatal(err)
	}
	if r.Tunables().MoveSpeed != 8 {
		t.Fatal("existing room not updated")
	}
	r2, _ := m.GetOrCreateRoom("b")
	if r2.Tunables().MoveSpeed != 8 {
		t.Fatal("new room ignores applied tunables")
	}
	tun.BroadcastEvery = 0
	if err := m.ApplyTunables(tun); err == nil {
		t.Fatal("invalid tunables accepted")
	}
}

func TestAdminConfigHandler(t *testing.T) {
	m, _ := newTestManager(t)
	r, _ := m.GetOrCreateRoom("a")

	rec := httptest.NewRecorder()
	m.HandleAdminConfig(rec, httptest.NewRequest(http.MethodGet, "/admin/config", nil))
	var got config.Tunables
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got != config.DefaultTunables() {
		t.Fatalf("GET = %+v", got)
	}

	cases := []struct {
		method string
		body   string
		status int
	}{
		{http.MethodPost, `{"moveSpeed": 7.5}`, http.StatusOK},
		{http.MethodPost, `{"moveSpeed": -1}`, http.StatusBadRequest},
		{http.MethodPost, `not json`, http.StatusBadRequest},
		{http.MethodPut, `{}`, http.StatusMethodNotAllowed},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		m.HandleAdminConfig(rec, httptest.NewRequest(c.method, "/admin/config", strings.NewReader(c.body)))
		if rec.Code != c.status {
			t.Errorf("%s %s: status %d, want %d", c.method, c.body, rec.Code, c.status)
		}
	}
	tun := r.Tunables()
	if tun.MoveSpeed != 7.5 || tun.ChatRateLimit != config.DefaultTunables().ChatRateLimit {
		t.Fatalf("tunables after patch = %+v", tun)
	}
}

func TestDebugAndMetricsHandlers(t *testing.T) {
	m, _ := newTestManager(t)
	r, _ := m.GetOrCreateRoom("arena")
	join(t, r, "alice")

	rec := httptest.NewRecorder()
	m.HandleRoomsDebug(rec, httptest.NewRequest(http.MethodGet, "/debug/rooms", nil))
	var dbg struct {
		Rooms []struct {
			Room    string         `json:"room"`
			Players int            `json:"players"`
			Metrics map[string]any `json:"metrics"`
		} `json:"rooms"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&dbg); err != nil {
		t.Fatal(err)
	}
	if len(dbg.Rooms) != 1 || dbg.Rooms[0].Room != "arena" || dbg.Rooms[0].Players != 1 || dbg.Rooms[0].Metrics == nil {
		t.Fatalf("debug = %+v", dbg)
	}

	rec = httptest.NewRecorder()
	m.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `room_players{room="arena"} 1`) {
		t.Fatalf("metrics missing player gauge:\n%s", body)
	}

	rec = httptest.NewRecorder()
	m.HandleAudit(rec, httptest.NewRequest(http.MethodGet, "/admin/audit?room=nowhere", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("audit unknown room: %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	m.HandleAudit(rec, httptest.NewRequest(http.MethodGet, "/admin/audit?room=arena", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("audit: %d", rec.Code)
	}
}

type memAudit struct {
	mu      sync.Mutex
	actions []moderation.Action
}

func (a *memAudit) RecordAction(act moderation.Action) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, act)
	return nil
}

func (a *memAudit) Recent(_ context.Context, n int) ([]moderation.Action, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := slices.Clone(a.actions)
	slices.Reverse(out)
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func TestAuditHistoryWithoutRoom(t *testing.T) {
	m, _ := newTestManager(t)
	rec := httptest.NewRecorder()
	m.HandleAudit(rec, httptest.NewRequest(http.MethodGet, "/admin/audit", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("history without sink: %d", rec.Code)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &memAudit{}
	m = NewRoomManager(ctx, RoomOptions{
		AuditSink: sink,
		Roles:     map[string]moderation.Role{"admin": moderation.RoleAdmin},
	}, nil)
	defer m.Close()
	r, err := m.GetOrCreateRoom("arena")
	if err != nil {
		t.Fatal(err)
	}
	admin, _ := join(t, r, "admin")
	say(r, admin, "/broadcast first")
	say(r, admin, "/broadcast second")

	rec = httptest.NewRecorder()
	m.HandleAudit(rec, httptest.NewRequest(http.MethodGet, "/admin/audit?n=1", nil))
	var out struct {
		Actions []moderation.Action `json:"actions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || len(out.Actions) != 1 || out.Actions[0].Type != moderation.CmdBroadcast {
		t.Fatalf("history = %d %+v", rec.Code, out.Actions)
	}
}

func TestGuestTokenHandler(t *testing.T) {
	svc := identity.New("test-secret", time.Hour)
	h := GuestTokenHandler(svc)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/auth/guest", nil))
	var out struct{ Token, Name string }
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	name, err := svc.Verify(out.Token)
	if err != nil || name != out.Name || !strings.HasPrefix(name, "Guest-") {
		t.Fatalf("token for %q verified as %q: %v", out.Name, name, err)
	}

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/auth/guest", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status %d", rec.Code)
	}
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
}

// readUntil 读取直到满足条件的 JSON 消息
func readUntil(t *testing.T, ws *websocket.Conn, match func(envelope) bool) envelope {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("bad frame %q: %v", data, err)
		}
		if match(env) {
			return env
		}
	}
}

func ofType(kind string) func(envelope) bool {
	return func(e envelope) bool { return e.Type == kind }
}

func TestWebSocketSession(t *testing.T) {
	m, _ := newTestManager(t)
	srv := httptest.NewServer(&WSHandler{Manager: m, DefaultRoom: "lobby"})
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "name=alice"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()
	welcome := readUntil(t, ws, ofType("welcome"))
	var w struct {
		SelfID string `json:"selfId"`
		Room   string `json:"room"`
	}
	_ = json.Unmarshal(welcome.Data, &w)
	if w.SelfID == "" || w.Room != "lobby" {
		t.Fatalf("welcome = %s", welcome.Data)
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"chat","data":{"text":"hi all"}}`)); err != nil {
		t.Fatal(err)
	}
	readUntil(t, ws, func(e envelope) bool {
		return e.Type == "chat" && strings.Contains(string(e.Data), `"text":"hi all"`)
	})

	// 重名连接收到 kicked 后被关闭
	dup, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "name=ALICE"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer dup.Close()
	readUntil(t, dup, ofType("kicked"))
	if _, _, err := dup.ReadMessage(); err == nil {
		t.Fatal("duplicate connection left open")
	}

	room, _ := m.Room("lobby")
	ws.Close()
	waitFor(t, "disconnect cleanup", func() bool { return room.PlayerCount() == 0 })
}

func TestWebSocketRejectsBadNames(t *testing.T) {
	m, _ := newTestManager(t)
	srv := httptest.NewServer(&WSHandler{Manager: m, DefaultRoom: "lobby"})
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "name=no%20spaces"), nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad name: err=%v resp=%v", err, resp)
	}
}

func TestWebSocketTokenAndMsgpack(t *testing.T) {
	m, _ := newTestManager(t)
	ids := identity.New("test-secret", time.Hour)
	srv := httptest.NewServer(&WSHandler{Manager: m, DefaultRoom: "lobby", Verifier: ids, RequireToken: true})
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "name=alice"), nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token: err=%v resp=%v", err, resp)
	}

	token, err := ids.Issue("bob")
	if err != nil {
		t.Fatal(err)
	}
	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "codec=msgpack&token="+token), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	kind, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if kind != websocket.BinaryMessage {
		t.Fatalf("frame type %d, want binary", kind)
	}
	var env map[string]any
	if err := msgpack.Unmarshal(data, &env); err != nil {
		t.Fatal(err)
	}
	if env["type"] != "welcome" {
		t.Fatalf("first message = %v", env["type"])
	}
	room, _ := m.Room("lobby")
	room.mu.Lock()
	_, ok := room.findByName("bob")
	room.mu.Unlock()
	if !ok {
		t.Fatal("token name not used")
	}
}
