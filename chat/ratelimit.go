package chat

import "time"

// RateLimiter 每个玩家一个时间戳滑动窗口；每次检查时先裁剪过期时间戳。
// 被拒绝的消息不记录时间戳，窗口内最多保留 limit 个。
type RateLimiter struct {
	limit  int
	window time.Duration
	sent   map[string][]time.Time
}

// NewRateLimiter 创建限流器
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{limit: limit, window: window, sent: make(map[string][]time.Time)}
}

// Allow 判断并记录一条消息
func (l *RateLimiter) Allow(id string, now time.Time) bool {
	stamps := l.prune(id, now)
	if len(stamps) >= l.limit {
		return false
	}
	l.sent[id] = append(stamps, now)
	return true
}

// Forget 玩家断开时清理
func (l *RateLimiter) Forget(id string) {
	delete(l.sent, id)
}

// Configure 热更新阈值；已记录的时间戳保留
func (l *RateLimiter) Configure(limit int, window time.Duration) {
	if limit > 0 {
		l.limit = limit
	}
	if window > 0 {
		l.window = window
	}
}

// Tracked 当前被跟踪的玩家数
func (l *RateLimiter) Tracked() int { return len(l.sent) }

func (l *RateLimiter) prune(id string, now time.Time) []time.Time {
	stamps := l.sent[id]
	cut := 0
	for cut < len(stamps) && now.Sub(stamps[cut]) >= l.window {
		cut++
	}
	if cut > 0 {
		stamps = append(stamps[:0], stamps[cut:]...)
		if len(stamps) == 0 {
			delete(l.sent, id)
			return nil
		}
		l.sent[id] = stamps
	}
	return stamps
}
