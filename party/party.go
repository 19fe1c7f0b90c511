// Package party 组队状态机：邀请 / 接受 / 离开、队长移交与人数上限。
package party

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

const (
	// DefaultMaxMembers 每队人数上限
	DefaultMaxMembers = 4
	// DefaultInviteTTL 邀请有效期
	DefaultInviteTTL = 60 * time.Second
)

var (
	ErrSelfInvite     = errors.New("you cannot invite yourself")
	ErrNotLeader      = errors.New("only the party leader can invite")
	ErrFull           = errors.New("party is full")
	ErrAlreadyInParty = errors.New("player is already in a party")
	ErrNoInvite       = errors.New("no pending invite for that party")
	ErrNotInParty     = errors.New("you are not in a party")
	ErrPartyGone      = errors.New("that party no longer exists")
)

// Party 队伍快照；Members 保持加入顺序，队长始终在其中
type Party struct {
	ID         string   `json:"id"`
	LeaderID   string   `json:"leaderId"`
	Members    []string `json:"members"`
	MaxMembers int      `json:"maxMembers"`
}

func (p *Party) clone() *Party {
	c := *p
	c.Members = slices.Clone(p.Members)
	return &c
}

// Has 是否为成员
func (p *Party) Has(id string) bool { return slices.Contains(p.Members, id) }

// Invite 待处理邀请
type Invite struct {
	PartyID   string
	InviterID string
	TargetID  string
	Expires   time.Time
}

// LeaveResult 离队结果；Party 为剩余成员快照，解散时为 nil
type LeaveResult struct {
	PartyID   string
	Party     *Party
	Disbanded bool
	NewLeader string
}

// Manager 单房间内的队伍表（不加锁，由房间串行调用）
type Manager struct {
	maxMembers int
	inviteTTL  time.Duration
	parties    map[string]*Party
	byMember   map[string]string
	pending    map[string]string // 未成队的邀请者 -> 预分配队伍 ID
	invites    map[string][]Invite
	seq        int
}

// NewManager 创建队伍管理器
func NewManager(maxMembers int, inviteTTL time.Duration) *Manager {
	if maxMembers < 2 {
		maxMembers = DefaultMaxMembers
	}
	if inviteTTL <= 0 {
		inviteTTL = DefaultInviteTTL
	}
	return &Manager{
		maxMembers: maxMembers,
		inviteTTL:  inviteTTL,
		parties:    make(map[string]*Party),
		byMember:   make(map[string]string),
		pending:    make(map[string]string),
		invites:    make(map[string][]Invite),
	}
}

// Invite 发送邀请：只记录邀请，不改变任何队伍
func (m *Manager) Invite(inviterID, targetID string, now time.Time) (Invite, error) {
	if inviterID == targetID {
		return Invite{}, ErrSelfInvite
	}
	var partyID string
	if pid, ok := m.byMember[inviterID]; ok {
		p := m.parties[pid]
		if p.LeaderID != inviterID {
			return Invite{}, ErrNotLeader
		}
		if len(p.Members) >= m.maxMembers {
			return Invite{}, ErrFull
		}
		partyID = pid
	}
	if _, ok := m.byMember[targetID]; ok {
		return Invite{}, ErrAlreadyInParty
	}
	if partyID == "" {
		partyID = m.pending[inviterID]
		if partyID == "" {
			m.seq++
			partyID = fmt.Sprintf("party-%d", m.seq)
			m.pending[inviterID] = partyID
		}
	}
	inv := Invite{PartyID: partyID, InviterID: inviterID, TargetID: targetID, Expires: now.Add(m.inviteTTL)}
	list := slices.DeleteFunc(m.invites[targetID], func(i Invite) bool { return i.PartyID == partyID })
	m.invites[targetID] = append(list, inv)
	return inv, nil
}

// Accept 接受邀请；首个接受者触发建队
func (m *Manager) Accept(targetID, partyID string, now time.Time) (*Party, error) {
	if _, ok := m.byMember[targetID]; ok {
		return nil, ErrAlreadyInParty
	}
	inv, ok := m.findInvite(targetID, partyID, now)
	if !ok {
		return nil, ErrNoInvite
	}
	p, exists := m.parties[partyID]
	if exists {
		if len(p.Members) >= m.maxMembers {
			return nil, ErrFull
		}
		p.Members = append(p.Members, targetID)
	} else {
		if m.pending[inv.InviterID] != partyID {
			return nil, ErrPartyGone
		}
		if _, busy := m.byMember[inv.InviterID]; busy {
			return nil, ErrPartyGone
		}
		p = &Party{ID: partyID, LeaderID: inv.InviterID, Members: []string{inv.InviterID, targetID}, MaxMembers: m.maxMembers}
		m.parties[partyID] = p
		m.byMember[inv.InviterID] = partyID
		delete(m.pending, inv.InviterID)
	}
	m.byMember[targetID] = partyID
	m.dropInvite(targetID, partyID)
	if stale, ok := m.pending[targetID]; ok {
		delete(m.pending, targetID)
		m.purgeInvites(stale)
	}
	return p.clone(), nil
}

// Leave 主动离队；空队解散，队长离开时由 Members[0] 接任
func (m *Manager) Leave(memberID string) (LeaveResult, error) {
	pid, ok := m.byMember[memberID]
	if !ok {
		return LeaveResult{}, ErrNotInParty
	}
	p := m.parties[pid]
	p.Members = slices.DeleteFunc(p.Members, func(id string) bool { return id == memberID })
	delete(m.byMember, memberID)

	res := LeaveResult{PartyID: pid}
	if len(p.Members) == 0 {
		delete(m.parties, pid)
		m.purgeInvites(pid)
		res.Disbanded = true
		return res, nil
	}
	if p.LeaderID == memberID {
		p.LeaderID = p.Members[0]
		res.NewLeader = p.LeaderID
	}
	res.Party = p.clone()
	return res, nil
}

// Remove 断线清理：离队并丢弃与该玩家相关的全部邀请
func (m *Manager) Remove(memberID string) (LeaveResult, bool) {
	delete(m.invites, memberID)
	if pid, ok := m.pending[memberID]; ok {
		delete(m.pending, memberID)
		m.purgeInvites(pid)
	}
	res, err := m.Leave(memberID)
	return res, err == nil
}

// Get 队伍快照
func (m *Manager) Get(partyID string) (*Party, bool) {
	p, ok := m.parties[partyID]
	if !ok {
		return nil, false
	}
	return p.clone(), true
}

// Count 当前队伍数
func (m *Manager) Count() int { return len(m.parties) }

// PendingInvites 某玩家收到的未过期邀请
func (m *Manager) PendingInvites(targetID string, now time.Time) []Invite {
	var out []Invite
	for _, inv := range m.invites[targetID] {
		if now.Before(inv.Expires) {
			out = append(out, inv)
		}
	}
	return out
}

func (m *Manager) findInvite(targetID, partyID string, now time.Time) (Invite, bool) {
	for _, inv := range m.invites[targetID] {
		if inv.PartyID == partyID && now.Before(inv.Expires) {
			return inv, true
		}
	}
	return Invite{}, false
}

func (m *Manager) dropInvite(targetID, partyID string) {
	list := slices.DeleteFunc(m.invites[targetID], func(i Invite) bool { return i.PartyID == partyID })
	if len(list) == 0 {
		delete(m.invites, targetID)
		return
	}
	m.invites[targetID] = list
}

func (m *Manager) purgeInvites(partyID string) {
	for target := range m.invites {
		m.dropInvite(target, partyID)
	}
}
