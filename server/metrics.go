package server

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// RoomMetrics 记录房间运行期的关键指标（用于 /debug/rooms 调试输出）
type RoomMetrics struct {
	TickCount       int64 // 统计的 Tick 次数
	InputsAccepted  int64 // 被接受的移动输入数
	OldSeqIgnored   int64 // 因旧序列被忽略的输入数
	MovesBlocked    int64 // 因不可行走被拒绝的移动
	AttacksThrottle int64 // 冷却内被忽略的攻击
	ChatRejected    int64 // 限流或校验失败的聊天
	FloodDropped    int64 // 连接层洪泛限制丢弃的帧
	SendDropped     int64 // 因发送队列满被丢弃的出站消息
	SavesDropped    int64 // 因存档队列满被丢弃的存档
	TotalTickNs     int64 // Tick 累计耗时（纳秒）
}

func (m *RoomMetrics) IncAccepted()        { atomic.AddInt64(&m.InputsAccepted, 1) }
func (m *RoomMetrics) IncOldSeqIgnored()   { atomic.AddInt64(&m.OldSeqIgnored, 1) }
func (m *RoomMetrics) IncMovesBlocked()    { atomic.AddInt64(&m.MovesBlocked, 1) }
func (m *RoomMetrics) IncAttackThrottled() { atomic.AddInt64(&m.AttacksThrottle, 1) }
func (m *RoomMetrics) IncChatRejected()    { atomic.AddInt64(&m.ChatRejected, 1) }
func (m *RoomMetrics) IncFloodDropped()    { atomic.AddInt64(&m.FloodDropped, 1) }
func (m *RoomMetrics) IncSendDropped()     { atomic.AddInt64(&m.SendDropped, 1) }
func (m *RoomMetrics) IncSavesDropped()    { atomic.AddInt64(&m.SavesDropped, 1) }
func (m *RoomMetrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *RoomMetrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":        tick,
		"inputs_accepted":   atomic.LoadInt64(&m.InputsAccepted),
		"old_seq_ignored":   atomic.LoadInt64(&m.OldSeqIgnored),
		"moves_blocked":     atomic.LoadInt64(&m.MovesBlocked),
		"attacks_throttled": atomic.LoadInt64(&m.AttacksThrottle),
		"chat_rejected":     atomic.LoadInt64(&m.ChatRejected),
		"flood_dropped":     atomic.LoadInt64(&m.FloodDropped),
		"send_dropped":      atomic.LoadInt64(&m.SendDropped),
		"saves_dropped":     atomic.LoadInt64(&m.SavesDropped),
		"avg_tick_ms":       avgMs,
	}
}

// Collectors Prometheus 指标，按房间打标签；由 Manager 注册到自己的 registry
type Collectors struct {
	Players      *prometheus.GaugeVec
	Ticks        *prometheus.CounterVec
	TickSeconds  *prometheus.HistogramVec
	ChatMessages *prometheus.CounterVec
	AdminActions *prometheus.CounterVec
	Kills        *prometheus.CounterVec
}

// NewCollectors 创建指标；reg 为 nil 时不注册（测试用）
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		Players: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "room_players",
			Help: "Connected players per room.",
		}, []string{"room"}),
		Ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "room_ticks_total",
			Help: "Simulation ticks executed.",
		}, []string{"room"}),
		TickSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "room_tick_duration_seconds",
			Help:    "Wall time spent in one simulation tick.",
			Buckets: []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05},
		}, []string{"room"}),
		ChatMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "room_chat_messages_total",
			Help: "Chat messages routed, by channel.",
		}, []string{"room", "channel"}),
		AdminActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "room_admin_actions_total",
			Help: "Successful admin commands, by command.",
		}, []string{"room", "command"}),
		Kills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "room_kills_total",
			Help: "Entities reduced to zero health, by victim kind.",
		}, []string{"room", "victim"}),
	}
	if reg != nil {
		reg.MustRegister(c.Players, c.Ticks, c.TickSeconds, c.ChatMessages, c.AdminActions, c.Kills)
	}
	return c
}
