package server

import (
	"math"

	"github.com/IamMikeHelsel/2DG-sub000/gamemap"
	"github.com/IamMikeHelsel/2DG-sub000/protocol"
)

// applyMovement 由输入计算单位速度，积分后检查目标格是否可行走。
// 斜向移动检查合成后的目标格，撞墙时整体拒绝（不沿未受阻的轴滑动）。
// LastSeq 无论移动是否成功都会更新，客户端据此校正预测。
func (r *Room) applyMovement(p *Player, in protocol.Input, dt float64) {
	p.LastSeq = in.Seq
	if !p.Alive() {
		return
	}
	vx, vy := axis(in.Left, in.Right), axis(in.Up, in.Down)
	if vx == 0 && vy == 0 {
		return
	}
	p.Dir = facing(vx, vy)
	if vx != 0 && vy != 0 {
		vx, vy = vx/math.Sqrt2, vy/math.Sqrt2
	}
	step := r.tun.MoveSpeed * dt
	nx, ny := p.X+vx*step, p.Y+vy*step
	if !r.inWorld(nx, ny) || !gamemap.IsWalkable(r.world.Grid, roundTile(nx), roundTile(ny)) {
		r.metrics.IncMovesBlocked()
		return
	}
	p.X, p.Y = nx, ny
}

// axis 相反方向同时按下时互相抵消
func axis(neg, pos bool) float64 {
	switch {
	case neg && !pos:
		return -1
	case pos && !neg:
		return 1
	}
	return 0
}

// facing 竖直方向优先于水平方向
func facing(vx, vy float64) Direction {
	switch {
	case vy > 0:
		return DirDown
	case vy < 0:
		return DirUp
	case vx < 0:
		return DirLeft
	}
	return DirRight
}
