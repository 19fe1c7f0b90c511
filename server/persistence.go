package server

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/IamMikeHelsel/2DG-sub000/persist"
)

const saveQueueSize = 256

// saveWriter 后台写存档，Tick 与消息处理只负责非阻塞入队；nil 表示未配置存储
type saveWriter struct {
	store   CharacterStore
	log     *zap.SugaredLogger
	metrics *RoomMetrics

	mu     sync.Mutex
	queue  chan persist.Character
	closed bool
	wg     sync.WaitGroup
}

func newSaveWriter(store CharacterStore, log *zap.SugaredLogger, metrics *RoomMetrics) *saveWriter {
	w := &saveWriter{
		store:   store,
		log:     log,
		metrics: metrics,
		queue:   make(chan persist.Character, saveQueueSize),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *saveWriter) run() {
	defer w.wg.Done()
	for c := range w.queue {
		if err := w.store.SaveCharacter(c); err != nil {
			w.log.Warnw("save character failed", "name", c.Name, "err", err)
		}
	}
}

// Enqueue 队列满时丢弃（下一次周期保存会补上）
func (w *saveWriter) Enqueue(c persist.Character) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.queue <- c:
	default:
		w.metrics.IncSavesDropped()
		w.log.Warnw("save queue full, dropping", "name", c.Name)
	}
}

// Close 写完队列中剩余的存档后返回；可重复调用
func (w *saveWriter) Close() {
	if w == nil {
		return
	}
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

// saveAll 周期保存全部在线玩家
func (r *Room) saveAll(now time.Time) {
	if r.writer == nil {
		return
	}
	r.eachPlayer(func(p *Player) { r.writer.Enqueue(p.character(now)) })
	r.lastSave = now
}
