package server

import (
	"time"

	"github.com/IamMikeHelsel/2DG-sub000/protocol"
)

// fullSnapshot 房间全部实体（加入时与关键帧使用）
func (r *Room) fullSnapshot(now time.Time) protocol.Snapshot {
	s := protocol.Snapshot{
		Full:       true,
		Tick:       r.tickSeq,
		ServerTime: now.UnixMilli(),
		Players:    make([]protocol.PlayerState, 0, len(r.order)),
		Mobs:       make([]protocol.MobState, 0, len(r.mobs)),
	}
	r.eachPlayer(func(p *Player) { s.Players = append(s.Players, p.state()) })
	for _, m := range r.mobs {
		s.Mobs = append(s.Mobs, m.state())
	}
	return s
}

// broadcast 每 KeyframeEvery 次广播发送一次全量，其余只发送相对上次广播变化的实体
func (r *Room) broadcast(now time.Time) {
	r.broadcasts++
	keyframe := r.tun.KeyframeEvery > 0 && r.broadcasts%uint64(r.tun.KeyframeEvery) == 0

	var snap protocol.Snapshot
	if keyframe {
		snap = r.fullSnapshot(now)
	} else {
		snap = r.deltaSnapshot(now)
	}
	r.rebaseline()

	if !keyframe && len(snap.Players) == 0 && len(snap.Mobs) == 0 && len(snap.Removed) == 0 {
		return
	}
	r.eachPlayer(func(p *Player) { p.send(snap) })
}

func (r *Room) deltaSnapshot(now time.Time) protocol.Snapshot {
	s := protocol.Snapshot{Tick: r.tickSeq, ServerTime: now.UnixMilli()}
	r.eachPlayer(func(p *Player) {
		st := p.state()
		if prev, ok := r.lastPlayers[p.ID]; !ok || prev != st {
			s.Players = append(s.Players, st)
		}
	})
	for _, m := range r.mobs {
		st := m.state()
		if prev, ok := r.lastMobs[m.ID]; !ok || prev != st {
			s.Mobs = append(s.Mobs, st)
		}
	}
	for _, id := range r.removed {
		if _, back := r.players[id]; !back {
			s.Removed = append(s.Removed, id)
		}
	}
	return s
}

// rebaseline 以当前状态作为下一次差量的基准
func (r *Room) rebaseline() {
	clear(r.lastPlayers)
	r.eachPlayer(func(p *Player) { r.lastPlayers[p.ID] = p.state() })
	clear(r.lastMobs)
	for _, m := range r.mobs {
		r.lastMobs[m.ID] = m.state()
	}
	r.removed = r.removed[:0]
}
