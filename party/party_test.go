package party

import (
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"
)

var t0 = time.Unix(10_000, 0)

func checkInvariant(t *testing.T, m *Manager) {
	t.Helper()
	for id, p := range m.parties {
		if !slices.Contains(p.Members, p.LeaderID) {
			t.Fatalf("party %s: leader %s not a member %v", id, p.LeaderID, p.Members)
		}
		if len(p.Members) > m.maxMembers {
			t.Fatalf("party %s: %d members > max %d", id, len(p.Members), m.maxMembers)
		}
		for _, mem := range p.Members {
			if m.byMember[mem] != id {
				t.Fatalf("index for %s = %q, want %q", mem, m.byMember[mem], id)
			}
		}
	}
}

func TestInviteAcceptCreatesParty(t *testing.T) {
	m := NewManager(4, time.Minute)
	inv, err := m.Invite("a", "b", t0)
	if err != nil {
		t.Fatal(err)
	}
	if m.Count() != 0 {
		t.Fatal("invite must not create a party")
	}
	p, err := m.Accept("b", inv.PartyID, t0.Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if p.LeaderID != "a" || !slices.Equal(p.Members, []string{"a", "b"}) {
		t.Fatalf("unexpected party %+v", p)
	}
	checkInvariant(t, m)
}

func TestInviteRules(t *testing.T) {
	m := NewManager(2, time.Minute)
	if _, err := m.Invite("a", "a", t0); !errors.Is(err, ErrSelfInvite) {
		t.Fatalf("self invite: %v", err)
	}
	inv, _ := m.Invite("a", "b", t0)
	if _, err := m.Accept("b", inv.PartyID, t0); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Invite("b", "c", t0); !errors.Is(err, ErrNotLeader) {
		t.Fatalf("non-leader invite: %v", err)
	}
	if _, err := m.Invite("a", "c", t0); !errors.Is(err, ErrFull) {
		t.Fatalf("full party invite: %v", err)
	}
	if _, err := m.Invite("c", "a", t0); !errors.Is(err, ErrAlreadyInParty) {
		t.Fatalf("partied target: %v", err)
	}
}

func TestAcceptRequiresLiveInvite(t *testing.T) {
	m := NewManager(4, 10*time.Second)
	inv, _ := m.Invite("a", "b", t0)
	if _, err := m.Accept("b", "party-999", t0); !errors.Is(err, ErrNoInvite) {
		t.Fatalf("wrong party: %v", err)
	}
	if _, err := m.Accept("b", inv.PartyID, t0.Add(11*time.Second)); !errors.Is(err, ErrNoInvite) {
		t.Fatalf("expired invite: %v", err)
	}
	if m.Count() != 0 {
		t.Fatal("failed accept must not mutate")
	}
}

func TestAcceptFailsWhenPartyFilled(t *testing.T) {
	m := NewManager(2, time.Minute)
	inv1, _ := m.Invite("a", "b", t0)
	inv2, _ := m.Invite("a", "c", t0)
	if inv1.PartyID != inv2.PartyID {
		t.Fatal("pending invites from one inviter share a party id")
	}
	if _, err := m.Accept("b", inv1.PartyID, t0); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Accept("c", inv2.PartyID, t0); !errors.Is(err, ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}
	if _, ok := m.byMember["c"]; ok {
		t.Fatal("c must not be partied")
	}
	checkInvariant(t, m)
}

func TestLeaderLeavePromotesFirstMember(t *testing.T) {
	m := NewManager(4, time.Minute)
	var pid string
	for _, who := range []string{"b", "c", "d"} {
		inv, err := m.Invite("a", who, t0)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := m.Accept(who, inv.PartyID, t0); err != nil {
			t.Fatal(err)
		}
		pid = inv.PartyID
	}
	res, err := m.Leave("a")
	if err != nil {
		t.Fatal(err)
	}
	if res.NewLeader != "b" || res.Party.LeaderID != "b" {
		t.Fatalf("expected b to lead, got %+v", res)
	}
	checkInvariant(t, m)

	// 非队长离开不改变队长
	res, _ = m.Leave("c")
	if res.NewLeader != "" || res.Party.LeaderID != "b" {
		t.Fatalf("leader changed unexpectedly: %+v", res)
	}
	m.Leave("b")
	res, _ = m.Leave("d")
	if !res.Disbanded || res.Party != nil {
		t.Fatalf("expected disband, got %+v", res)
	}
	if _, ok := m.Get(pid); ok {
		t.Fatal("empty party must be destroyed")
	}
	if _, err := m.Leave("d"); !errors.Is(err, ErrNotInParty) {
		t.Fatalf("leave twice: %v", err)
	}
}

func TestRemoveDropsInvitesFromDisconnectedInviter(t *testing.T) {
	m := NewManager(4, time.Minute)
	inv, _ := m.Invite("a", "b", t0)
	m.Remove("a")
	if _, err := m.Accept("b", inv.PartyID, t0); !errors.Is(err, ErrNoInvite) {
		t.Fatalf("expected ErrNoInvite after inviter left, got %v", err)
	}
	if len(m.PendingInvites("b", t0)) != 0 {
		t.Fatal("invites must be purged")
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	m := NewManager(4, time.Minute)
	inv, _ := m.Invite("a", "b", t0)
	p, _ := m.Accept("b", inv.PartyID, t0)
	p.Members[0] = "zzz"
	got, _ := m.Get(inv.PartyID)
	if got.Members[0] != "a" {
		t.Fatal("snapshot aliases internal state")
	}
}

func TestRandomOperationsKeepInvariant(t *testing.T) {
	m := NewManager(3, time.Minute)
	players := make([]string, 8)
	for i := range players {
		players[i] = fmt.Sprintf("p%d", i)
	}
	// 简单的确定性伪随机序列
	x := uint32(7)
	next := func(n int) int {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		return int(x % uint32(n))
	}
	for step := 0; step < 2000; step++ {
		a, b := players[next(len(players))], players[next(len(players))]
		switch next(4) {
		case 0:
			if inv, err := m.Invite(a, b, t0); err == nil && next(2) == 0 {
				m.Accept(b, inv.PartyID, t0)
			}
		case 1:
			for _, inv := range m.PendingInvites(a, t0) {
				m.Accept(a, inv.PartyID, t0)
			}
		case 2:
			if res, err := m.Leave(a); err == nil && res.Party != nil && res.NewLeader != "" && res.Party.Members[0] != res.NewLeader {
				t.Fatalf("new leader %s is not members[0] %v", res.NewLeader, res.Party.Members)
			}
		case 3:
			m.Remove(a)
		}
		checkInvariant(t, m)
	}
}
