package server

import "github.com/IamMikeHelsel/2DG-sub000/protocol"

// bufferInput 记录最新的移动意图（不立即改变位置），等下一次 Tick 处理。
// 序列号不大于已处理或已缓冲的输入被丢弃，因此同一序列号重复提交不会重复积分。
func (r *Room) bufferInput(p *Player, in protocol.Input) {
	if in.Seq <= p.LastSeq {
		r.metrics.IncOldSeqIgnored()
		return
	}
	if cur, ok := r.inputs[p.ID]; ok && in.Seq <= cur.Seq {
		r.metrics.IncOldSeqIgnored()
		return
	}
	r.inputs[p.ID] = in
	r.metrics.IncAccepted()
}

// processInputs 每个玩家每 Tick 至多消费一条输入
func (r *Room) processInputs(dt float64) {
	for _, id := range r.order {
		in, ok := r.inputs[id]
		if !ok {
			continue
		}
		delete(r.inputs, id)
		p := r.players[id]
		if in.Seq <= p.LastSeq {
			r.metrics.IncOldSeqIgnored()
			continue
		}
		r.applyMovement(p, in, dt)
	}
}
