package server

import (
	"time"

	"github.com/IamMikeHelsel/2DG-sub000/gamemap"
	"github.com/IamMikeHelsel/2DG-sub000/timers"
)

const (
	MobHitDamage       = 30
	PlayerHitDamage    = 10
	KillRewardHP       = 10
	KillRewardGold     = 10
	MobRespawnDelay    = 5 * time.Second
	PlayerRespawnDelay = 3 * time.Second
)

// attack 近战攻击面前一格：先判定怪物，命中则不再判定玩家。冷却内的攻击静默忽略。
func (r *Room) attack(p *Player, now time.Time) {
	if !p.Alive() {
		return
	}
	if !p.lastAttack.IsZero() && now.Sub(p.lastAttack) < r.tun.AttackCooldown {
		r.metrics.IncAttackThrottled()
		return
	}
	p.lastAttack = now

	px, py := p.Tile()
	dx, dy := p.Dir.Vector()
	tx, ty := px+dx, py+dy

	for _, m := range r.mobs {
		if !m.Alive() {
			continue
		}
		if mx, my := m.Tile(); mx != tx || my != ty {
			continue
		}
		m.HP = clamp(m.HP-MobHitDamage, 0, m.MaxHP)
		if m.HP == 0 {
			p.heal(KillRewardHP)
			p.addGold(KillRewardGold)
			r.timers.Schedule(timers.MobRespawn, m.ID, now.Add(MobRespawnDelay), "")
			r.collectors.Kills.WithLabelValues(r.ID, "mob").Inc()
			r.log.Debugw("mob killed", "mob", m.ID, "by", p.ID)
		}
		return
	}

	for _, id := range r.order {
		victim := r.players[id]
		if victim == p || !victim.Alive() {
			continue
		}
		if vx, vy := victim.Tile(); vx != tx || vy != ty {
			continue
		}
		victim.heal(-PlayerHitDamage)
		if !victim.Alive() {
			r.timers.Schedule(timers.PlayerRespawn, victim.ID, now.Add(PlayerRespawnDelay), "")
			r.collectors.Kills.WithLabelValues(r.ID, "player").Inc()
			r.systemTo(victim, "You were defeated by "+p.Name+". Respawning in town...")
			r.log.Debugw("player killed", "victim", victim.ID, "by", p.ID)
		}
		return
	}
}

// respawnPlayer 定时事件回调：回到城镇中心并回满生命；玩家已离开时为空操作
func (r *Room) respawnPlayer(id string) {
	p, ok := r.players[id]
	if !ok || p.Alive() {
		return
	}
	spawn := r.townSpawn()
	p.X, p.Y = float64(spawn.X), float64(spawn.Y)
	p.HP = p.MaxHP
	delete(r.inputs, p.ID)
}

// townSpawn 城镇中心；地图没有可行走的城镇时退回出生点
func (r *Room) townSpawn() gamemap.Point {
	if town, ok := r.world.Areas[gamemap.AreaTownCenter]; ok && gamemap.IsWalkable(r.world.Grid, town.Center.X, town.Center.Y) {
		return town.Center
	}
	return r.world.Spawns.Player
}
