package server

import (
	"context"
	"time"

	"github.com/IamMikeHelsel/2DG-sub000/timers"
)

const (
	// TicksPerSecond 世界推进频率（20 TPS）
	TicksPerSecond = 20
)

var tickInterval = time.Duration(1000/TicksPerSecond) * time.Millisecond // 50ms

// StartTicker 启动房间的 Tick 循环（单线程推进世界）；ctx 取消或房间关闭时退出
func (r *Room) StartTicker(ctx context.Context) {
	r.mu.Lock()
	if r.tickerStarted {
		r.mu.Unlock()
		return
	}
	r.tickerStarted = true
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				r.Close()
			case <-r.done:
				// 回调在房间锁之外执行
				r.writer.Close()
				if r.onClose != nil {
					r.onClose(r)
				}
				return
			case <-ticker.C:
				r.Step(r.now())
			}
		}
	}()
}

// Step 推进一个 Tick：到期事件 → 移动 → 广播 → 周期保存
func (r *Room) Step(now time.Time) {
	start := time.Now()
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.tickSeq++
	r.runTimers(now)
	if !r.closed {
		r.processInputs(1.0 / TicksPerSecond)
		if every := uint64(max(r.tun.BroadcastEvery, 1)); r.tickSeq%every == 0 {
			r.broadcast(now)
		}
		if r.tun.SaveInterval > 0 && now.Sub(r.lastSave) >= r.tun.SaveInterval {
			r.saveAll(now)
		}
	}
	r.mu.Unlock()

	elapsed := time.Since(start)
	r.metrics.AddTick(elapsed.Nanoseconds())
	r.collectors.Ticks.WithLabelValues(r.ID).Inc()
	r.collectors.TickSeconds.WithLabelValues(r.ID).Observe(elapsed.Seconds())
}

func (r *Room) runTimers(now time.Time) {
	for _, ev := range r.timers.Due(now) {
		switch ev.Kind {
		case timers.MobRespawn:
			r.respawnMob(ev.Target)
		case timers.PlayerRespawn:
			r.respawnPlayer(ev.Target)
		case timers.Shutdown:
			r.shutdownLocked("Server shutdown: " + ev.Reason)
			return
		}
	}
}
