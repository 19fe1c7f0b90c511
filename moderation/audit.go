package moderation

import (
	"time"

	"github.com/google/uuid"
)

// DefaultAuditCap 审计日志保留条数
const DefaultAuditCap = 1000

// Action 审计记录（只追加）
type Action struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	ActorID  string         `json:"actorId"`
	TargetID string         `json:"targetId,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
	Time     time.Time      `json:"time"`
	Reason   string         `json:"reason,omitempty"`
}

// AuditSink 审计记录的外部镜像（例如 SQLite）
type AuditSink interface {
	RecordAction(a Action) error
}

// AuditLog 固定容量环形缓冲，超出时淘汰最旧记录
type AuditLog struct {
	buf   []Action
	start int
	size  int
	sink  AuditSink
}

// NewAuditLog sink 可为 nil
func NewAuditLog(capacity int, sink AuditSink) *AuditLog {
	if capacity <= 0 {
		capacity = DefaultAuditCap
	}
	return &AuditLog{buf: make([]Action, capacity), sink: sink}
}

// Append 追加一条记录，自动补齐 ID；镜像失败只返回错误，不影响内存日志
func (l *AuditLog) Append(a Action) (Action, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	idx := (l.start + l.size) % len(l.buf)
	l.buf[idx] = a
	if l.size < len(l.buf) {
		l.size++
	} else {
		l.start = (l.start + 1) % len(l.buf)
	}
	if l.sink != nil {
		if err := l.sink.RecordAction(a); err != nil {
			return a, err
		}
	}
	return a, nil
}

// Len 当前条数
func (l *AuditLog) Len() int { return l.size }

// Entries 按时间顺序（旧 → 新）返回全部记录
func (l *AuditLog) Entries() []Action {
	out := make([]Action, l.size)
	for i := 0; i < l.size; i++ {
		out[i] = l.buf[(l.start+i)%len(l.buf)]
	}
	return out
}

// Recent 最近 n 条，旧 → 新
func (l *AuditLog) Recent(n int) []Action {
	all := l.Entries()
	if n >= len(all) || n <= 0 {
		return all
	}
	return all[len(all)-n:]
}
