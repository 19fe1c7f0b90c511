package server

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/IamMikeHelsel/2DG-sub000/config"
)

// ErrManagerClosed 关闭后不再创建房间
var ErrManagerClosed = errors.New("room manager is closed")

// RoomManager 管理多个房间的生命周期；房间表是唯一的跨房间结构
type RoomManager struct {
	ctx      context.Context
	registry *prometheus.Registry

	mu     sync.RWMutex
	rooms  map[string]*Room
	base   RoomOptions
	closed bool
}

// NewRoomManager base 为新房间的默认参数；registry 为 nil 时新建一个
func NewRoomManager(ctx context.Context, base RoomOptions, registry *prometheus.Registry) *RoomManager {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	if base.Collectors == nil {
		base.Collectors = NewCollectors(registry)
	}
	if base.NextJoinOrder == nil {
		base.NextJoinOrder = counterFrom(base.JoinOrderBase)
	}
	return &RoomManager{
		ctx:      ctx,
		registry: registry,
		rooms:    make(map[string]*Room),
		base:     base,
	}
}

// GetOrCreateRoom 获取或创建房间，并确保开始 Tick
func (m *RoomManager) GetOrCreateRoom(id string) (*Room, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("room id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	if r, ok := m.rooms[id]; ok {
		return r, nil
	}
	r, err := NewRoom(id, m.base)
	if err != nil {
		return nil, err
	}
	r.onClose = m.remove
	m.rooms[id] = r
	r.StartTicker(m.ctx)
	Log.Infow("room created", "room", id, "rooms", len(m.rooms))
	return r, nil
}

// Room 查找已存在的房间
func (m *RoomManager) Room(id string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

// Rooms 按 ID 排序的房间副本，调用方可在不持有管理器锁的情况下访问房间
func (m *RoomManager) Rooms() []*Room {
	m.mu.RLock()
	out := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Room) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Tunables 新房间使用的运行参数
func (m *RoomManager) Tunables() config.Tunables {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.base.Tunables == (config.Tunables{}) {
		return config.DefaultTunables()
	}
	return m.base.Tunables
}

// ApplyTunables 热更新：已存在的房间立即生效，新房间沿用
func (m *RoomManager) ApplyTunables(t config.Tunables) error {
	if err := t.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.base.Tunables = t
	m.mu.Unlock()
	for _, r := range m.Rooms() {
		r.SetTunables(t)
	}
	return nil
}

// Registry Prometheus 指标注册表（/metrics 使用）
func (m *RoomManager) Registry() *prometheus.Registry { return m.registry }

// Close 关闭全部房间：踢出玩家并写完存档
func (m *RoomManager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	for _, r := range m.Rooms() {
		r.Close()
	}
}

// remove 房间关闭回调（在房间 Tick 协程、房间锁之外调用）
func (m *RoomManager) remove(r *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.rooms[r.ID]; ok && cur == r {
		delete(m.rooms, r.ID)
		Log.Infow("room removed", "room", r.ID, "rooms", len(m.rooms))
	}
}
