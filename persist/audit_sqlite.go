package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/IamMikeHelsel/2DG-sub000/moderation"
)

const auditSchema = `CREATE TABLE IF NOT EXISTS admin_actions (
	id        TEXT PRIMARY KEY,
	type      TEXT NOT NULL,
	actor_id  TEXT NOT NULL,
	target_id TEXT,
	payload   TEXT,
	reason    TEXT,
	at        INTEGER NOT NULL
)`

// SQLiteAudit 审计记录镜像（实现 moderation.AuditSink），WAL 模式
type SQLiteAudit struct {
	db      *sql.DB
	mu      sync.Mutex
	timeout time.Duration
}

// OpenSQLiteAudit 打开数据库、设置 WAL 与 busy timeout 并建表
func OpenSQLiteAudit(path string, timeout time.Duration) (*SQLiteAudit, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", timeout.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(auditSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating admin_actions: %w", err)
	}
	return &SQLiteAudit{db: db, timeout: timeout}, nil
}

// Close 关闭连接
func (s *SQLiteAudit) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordAction 写入一条记录
func (s *SQLiteAudit) RecordAction(a moderation.Action) error {
	payload, err := json.Marshal(a.Payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO admin_actions (id, type, actor_id, target_id, payload, reason, at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Type, a.ActorID, a.TargetID, string(payload), a.Reason, a.Time.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert admin action %s: %w", a.ID, err)
	}
	return nil
}

// Recent 最近 n 条，按时间倒序
func (s *SQLiteAudit) Recent(ctx context.Context, n int) ([]moderation.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, actor_id, target_id, payload, reason, at FROM admin_actions ORDER BY at DESC, rowid DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query admin actions: %w", err)
	}
	defer rows.Close()

	var out []moderation.Action
	for rows.Next() {
		var (
			a              moderation.Action
			target, reason sql.NullString
			payload        sql.NullString
			at             int64
		)
		if err := rows.Scan(&a.ID, &a.Type, &a.ActorID, &target, &payload, &reason, &at); err != nil {
			return nil, err
		}
		a.TargetID = target.String
		a.Reason = reason.String
		a.Time = time.UnixMilli(at)
		if payload.Valid && payload.String != "" && payload.String != "null" {
			if err := json.Unmarshal([]byte(payload.String), &a.Payload); err != nil {
				return nil, fmt.Errorf("decode payload %s: %w", a.ID, err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
