package server

import (
	"fmt"
	"time"

	"github.com/IamMikeHelsel/2DG-sub000/chat"
	"github.com/IamMikeHelsel/2DG-sub000/party"
	"github.com/IamMikeHelsel/2DG-sub000/protocol"
)

// inviteToParty 只通知被邀请者，不改变任何队伍
func (r *Room) inviteToParty(p *Player, targetID string, now time.Time) error {
	target, ok := r.players[targetID]
	if !ok {
		return fmt.Errorf("%w: %s", chat.ErrPlayerAbsent, targetID)
	}
	inv, err := r.parties.Invite(p.ID, target.ID, now)
	if err != nil {
		return err
	}
	target.send(protocol.PartyInviteNotice{PartyID: inv.PartyID, InviterID: p.ID, InviterName: p.Name})
	r.systemTo(target, fmt.Sprintf("%s invited you to a party. Type /join %s to accept.", p.Name, inv.PartyID))
	r.systemTo(p, "Invited "+target.Name+" to your party.")
	return nil
}

// acceptParty 首次接受时以邀请者为队长建队；partyID 为空时接受最近一条邀请
func (r *Room) acceptParty(p *Player, partyID string, now time.Time) error {
	if partyID == "" {
		pending := r.parties.PendingInvites(p.ID, now)
		if len(pending) == 0 {
			return party.ErrNoInvite
		}
		partyID = pending[len(pending)-1].PartyID
	}
	pt, err := r.parties.Accept(p.ID, partyID, now)
	if err != nil {
		return err
	}
	for _, id := range pt.Members {
		if m, ok := r.players[id]; ok {
			m.PartyID = pt.ID
		}
	}
	r.notifyParty(pt, p.Name+" joined the party.")
	return nil
}

func (r *Room) leaveParty(p *Player) error {
	res, err := r.parties.Leave(p.ID)
	if err != nil {
		return err
	}
	r.afterPartyLeave(p, res, "left")
	return nil
}

// afterPartyLeave 通知离队者与剩余队员（主动离队与断线共用）
func (r *Room) afterPartyLeave(p *Player, res party.LeaveResult, verb string) {
	p.PartyID = ""
	p.send(protocol.PartyUpdated{PartyID: res.PartyID, Members: []protocol.PartyMember{}, Disbanded: res.Disbanded})
	if res.Party == nil {
		return
	}
	text := fmt.Sprintf("%s %s the party.", p.Name, verb)
	if res.NewLeader != "" {
		if leader, ok := r.players[res.NewLeader]; ok {
			text += " " + leader.Name + " is now the leader."
		}
	}
	r.notifyParty(res.Party, text)
}

// notifyParty 系统消息 + 完整队伍快照发给全部队员
func (r *Room) notifyParty(pt *party.Party, text string) {
	msg := r.systemMessage(text, r.now())
	msg.Channel = string(chat.Party)
	update := r.partySnapshot(pt)
	for _, id := range pt.Members {
		if m, ok := r.players[id]; ok {
			m.send(msg)
			m.send(update)
		}
	}
}

func (r *Room) sendParty(partyID string, msg protocol.Outbound) {
	pt, ok := r.parties.Get(partyID)
	if !ok {
		return
	}
	for _, id := range pt.Members {
		if m, ok := r.players[id]; ok {
			m.send(msg)
		}
	}
}

func (r *Room) partySnapshot(pt *party.Party) protocol.PartyUpdated {
	members := make([]protocol.PartyMember, 0, len(pt.Members))
	for _, id := range pt.Members {
		pm := protocol.PartyMember{ID: id}
		if m, ok := r.players[id]; ok {
			pm.Name, pm.HP = m.Name, m.HP
		}
		members = append(members, pm)
	}
	return protocol.PartyUpdated{
		PartyID:    pt.ID,
		LeaderID:   pt.LeaderID,
		Members:    members,
		MaxMembers: pt.MaxMembers,
	}
}
