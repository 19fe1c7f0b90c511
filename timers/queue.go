// Package timers 房间自有的一次性延迟事件队列（最小堆），每个 Tick 开始时取出到期事件。
package timers

import (
	"container/heap"
	"time"
)

// Kind 事件类型
type Kind int

const (
	MobRespawn Kind = iota + 1
	PlayerRespawn
	Shutdown
)

func (k Kind) String() string {
	switch k {
	case MobRespawn:
		return "mob_respawn"
	case PlayerRespawn:
		return "player_respawn"
	case Shutdown:
		return "shutdown"
	}
	return "unknown"
}

// Event 纯数据事件，不携带闭包；Target 为关联实体 ID（房间级事件为空）
type Event struct {
	ID     uint64
	Kind   Kind
	Target string
	At     time.Time
	Reason string
}

// Queue 按到期时间排序；同一时间按调度顺序
type Queue struct {
	items  eventHeap
	nextID uint64
}

// New 创建空队列
func New() *Queue {
	return &Queue{}
}

// Schedule 加入事件并返回其 ID
func (q *Queue) Schedule(kind Kind, target string, at time.Time, reason string) uint64 {
	q.nextID++
	heap.Push(&q.items, &Event{ID: q.nextID, Kind: kind, Target: target, At: at, Reason: reason})
	return q.nextID
}

// Due 弹出所有 At <= now 的事件
func (q *Queue) Due(now time.Time) []Event {
	var out []Event
	for q.items.Len() > 0 && !q.items[0].At.After(now) {
		ev := heap.Pop(&q.items).(*Event)
		out = append(out, *ev)
	}
	return out
}

// CancelTarget 取消某实体的全部事件（实体被移除时调用）
func (q *Queue) CancelTarget(target string) int {
	return q.cancelWhere(func(ev *Event) bool { return ev.Target == target })
}

// CancelKind 取消某类事件
func (q *Queue) CancelKind(kind Kind) int {
	return q.cancelWhere(func(ev *Event) bool { return ev.Kind == kind })
}

// Pending 查找某类、某实体的待触发事件
func (q *Queue) Pending(kind Kind, target string) (Event, bool) {
	for _, ev := range q.items {
		if ev.Kind == kind && ev.Target == target {
			return *ev, true
		}
	}
	return Event{}, false
}

// Len 队列长度
func (q *Queue) Len() int { return q.items.Len() }

func (q *Queue) cancelWhere(match func(*Event) bool) int {
	kept := q.items[:0]
	n := 0
	for _, ev := range q.items {
		if match(ev) {
			n++
			continue
		}
		kept = append(kept, ev)
	}
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = nil
	}
	q.items = kept
	if n > 0 {
		heap.Init(&q.items)
	}
	return n
}

type eventHeap []*Event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].At.Equal(h[j].At) {
		return h[i].ID < h[j].ID
	}
	return h[i].At.Before(h[j].At)
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any) { *h = append(*h, x.(*Event)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return ev
}
