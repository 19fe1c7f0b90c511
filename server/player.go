package server

import (
	"math"
	"time"

	"github.com/IamMikeHelsel/2DG-sub000/chat"
	"github.com/IamMikeHelsel/2DG-sub000/founder"
	"github.com/IamMikeHelsel/2DG-sub000/moderation"
	"github.com/IamMikeHelsel/2DG-sub000/persist"
	"github.com/IamMikeHelsel/2DG-sub000/protocol"
)

const (
	DefaultMaxHP = 100
	StartGold    = 20
	MaxGold      = 999_999
	MaxPotions   = 99
)

// Direction 朝向（服务端权威解释客户端“意图”）
type Direction int

const (
	DirDown Direction = iota
	DirUp
	DirLeft
	DirRight
)

func (d Direction) String() string {
	switch d {
	case DirUp:
		return "up"
	case DirLeft:
		return "left"
	case DirRight:
		return "right"
	}
	return "down"
}

// Vector 朝向对应的单位格偏移
func (d Direction) Vector() (dx, dy int) {
	switch d {
	case DirUp:
		return 0, -1
	case DirLeft:
		return -1, 0
	case DirRight:
		return 1, 0
	}
	return 0, 1
}

// Player 房间内的玩家实体（服务端权威状态）
type Player struct {
	ID      string
	Name    string
	X       float64
	Y       float64
	Dir     Direction
	LastSeq uint32

	HP      int
	MaxHP   int
	Gold    int
	Potions int
	PartyID string

	Role       moderation.Role
	Banned     bool
	BanExpires time.Time
	BanReason  string

	Rewards   founder.Rewards
	JoinedAt  time.Time
	JoinOrder int
	Channel   chat.Channel

	lastAttack time.Time
	session    Session // 网络连接的发送端
}

// Alive hp > 0
func (p *Player) Alive() bool { return p.HP > 0 }

// Tile 连续坐标四舍五入到格子
func (p *Player) Tile() (int, int) { return roundTile(p.X), roundTile(p.Y) }

func roundTile(v float64) int { return int(math.Round(v)) }

func (p *Player) send(msg protocol.Outbound) {
	if p.session != nil {
		p.session.Send(msg)
	}
}

// heal 增加生命并保持 0 ≤ hp ≤ maxHp
func (p *Player) heal(n int) { p.HP = clamp(p.HP+n, 0, p.MaxHP) }

// addGold 增减金币并保持 0 ≤ gold ≤ MaxGold
func (p *Player) addGold(n int) { p.Gold = clamp(p.Gold+n, 0, MaxGold) }

func (p *Player) addPotions(n int) { p.Potions = clamp(p.Potions+n, 0, MaxPotions) }

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// state 同步字段（显式列表，见 protocol.PlayerState）
func (p *Player) state() protocol.PlayerState {
	tier := ""
	if p.Rewards.Tier != founder.TierNone {
		tier = string(p.Rewards.Tier)
	}
	return protocol.PlayerState{
		ID:        p.ID,
		Name:      p.Name,
		X:         p.X,
		Y:         p.Y,
		Dir:       int(p.Dir),
		Seq:       p.LastSeq,
		HP:        p.HP,
		MaxHP:     p.MaxHP,
		Gold:      p.Gold,
		Potions:   p.Potions,
		PartyID:   p.PartyID,
		Title:     p.Rewards.Title,
		ChatColor: p.Rewards.ChatColor,
		Tier:      tier,
	}
}

// character 存档快照
func (p *Player) character(now time.Time) persist.Character {
	x, y, gold, potions := p.X, p.Y, p.Gold, p.Potions
	rewards := p.Rewards.Clone()
	return persist.Character{
		Name:      p.Name,
		X:         &x,
		Y:         &y,
		Gold:      &gold,
		Potions:   &potions,
		JoinOrder: p.JoinOrder,
		FirstSeen: p.JoinedAt,
		Rewards:   &rewards,
		SavedAt:   now,
	}
}
