package server

import (
	"fmt"

	"github.com/IamMikeHelsel/2DG-sub000/protocol"
)

const (
	MobKindSlime = "slime"
	MobKindBoss  = "boss"
	MobKindDummy = "training_dummy"
)

var mobMaxHP = map[string]int{
	MobKindSlime: 60,
	MobKindBoss:  300,
	MobKindDummy: 60,
}

// Mob 怪物；死亡后原地等待复活（hp 归满），不会被销毁
type Mob struct {
	ID    string
	Kind  string
	X     float64
	Y     float64
	HP    int
	MaxHP int
	HomeX float64
	HomeY float64
}

func (m *Mob) Alive() bool { return m.HP > 0 }

func (m *Mob) Tile() (int, int) { return roundTile(m.X), roundTile(m.Y) }

func (m *Mob) state() protocol.MobState {
	return protocol.MobState{ID: m.ID, Kind: m.Kind, X: m.X, Y: m.Y, HP: m.HP, MaxHP: m.MaxHP}
}

// spawnMob 追加怪物；迭代顺序即创建顺序
func (r *Room) spawnMob(kind string, x, y int) *Mob {
	hp, ok := mobMaxHP[kind]
	if !ok {
		hp = mobMaxHP[MobKindSlime]
	}
	r.mobSeq++
	m := &Mob{
		ID:    fmt.Sprintf("mob-%d", r.mobSeq),
		Kind:  kind,
		X:     float64(x),
		Y:     float64(y),
		HP:    hp,
		MaxHP: hp,
		HomeX: float64(x),
		HomeY: float64(y),
	}
	r.mobs = append(r.mobs, m)
	r.mobIndex[m.ID] = m
	return m
}

// respawnMob 定时事件回调；怪物已不存在时为空操作
func (r *Room) respawnMob(id string) {
	m, ok := r.mobIndex[id]
	if !ok {
		return
	}
	m.HP = m.MaxHP
	m.X, m.Y = m.HomeX, m.HomeY
}
