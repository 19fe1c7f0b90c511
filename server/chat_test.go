package server

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/IamMikeHelsel/2DG-sub000/chat"
	"github.com/IamMikeHelsel/2DG-sub000/moderation"
	"github.com/IamMikeHelsel/2DG-sub000/protocol"
)

func say(r *Room, p *Player, text string) {
	r.Dispatch(p.ID, &protocol.Chat{Text: text})
}

func chatsFrom(s *fakeSession, sender string) []protocol.ChatMessage {
	var out []protocol.ChatMessage
	for _, m := range received[protocol.ChatMessage](s) {
		if m.Sender == sender {
			out = append(out, m)
		}
	}
	return out
}

func TestChatRateLimit(t *testing.T) {
	r, clk := newTestRoom(t, nil)
	p, s := join(t, r, "chatty")
	for i := 0; i < 11; i++ {
		say(r, p, "hello")
	}
	if got := len(chatsFrom(s, "chatty")); got != 10 {
		t.Fatalf("delivered %d messages, want 10", got)
	}
	if errs := chatErrors(s); len(errs) != 1 || errs[0] != chat.ErrRateLimited.Error() {
		t.Fatalf("errors = %v", errs)
	}

	clk.advance(61 * time.Second)
	say(r, p, "back again")
	if got := len(chatsFrom(s, "chatty")); got != 11 {
		t.Fatalf("message after window rejected, delivered %d", got)
	}
}

func TestChatSanitizeAndEmpty(t *testing.T) {
	r, _ := newTestRoom(t, nil)
	p, s := join(t, r, "alice")
	say(r, p, "   ")
	say(r, p, "  hi \t  there  ")
	if errs := chatErrors(s); len(errs) != 1 || errs[0] != chat.ErrEmpty.Error() {
		t.Fatalf("errors = %v", errs)
	}
	got := chatsFrom(s, "alice")
	if len(got) != 1 || got[0].Text != "hi there" || got[0].Channel != string(chat.Global) {
		t.Fatalf("chat = %+v", got)
	}
	if got[0].Title == "" {
		t.Fatal("founder title missing from chat message")
	}
}

func TestLocalChatRange(t *testing.T) {
	r, _ := newTestRoom(t, nil)
	a, _ := join(t, r, "a")
	_, near := join(t, r, "near")
	far, farS := join(t, r, "far")
	far.X += float64(r.tun.LocalChatRange + 1)

	r.Dispatch(a.ID, &protocol.Chat{Text: "psst", Channel: "local"})
	if len(chatsFrom(near, "a")) != 1 {
		t.Fatal("nearby player missed local chat")
	}
	if len(chatsFrom(farS, "a")) != 0 {
		t.Fatal("far player received local chat")
	}

	r.Dispatch(a.ID, &protocol.Chat{Text: "x", Channel: "shout"})
	if len(received[protocol.ChatError](near)) != 0 {
		t.Fatal("error leaked to other players")
	}
}

func TestWhisper(t *testing.T) {
	r, _ := newTestRoom(t, nil)
	a, as := join(t, r, "alice")
	_, bs := join(t, r, "Bob")
	_, cs := join(t, r, "carol")

	say(r, a, "/w bob meet at the bridge")
	got := chatsFrom(bs, "alice")
	if len(got) != 1 || got[0].Channel != string(chat.Whisper) || got[0].Text != "meet at the bridge" || got[0].Target != "Bob" {
		t.Fatalf("bob got %+v", got)
	}
	if len(chatsFrom(as, "alice")) != 1 {
		t.Fatal("whisper not echoed to sender")
	}
	if len(chatsFrom(cs, "alice")) != 0 {
		t.Fatal("whisper leaked")
	}

	say(r, a, "/w nobody hi")
	say(r, a, "/w bob")
	if errs := chatErrors(as); len(errs) != 2 || !strings.Contains(errs[0], "not found") {
		t.Fatalf("errors = %v", errs)
	}
}

func TestChannelSwitch(t *testing.T) {
	r, _ := newTestRoom(t, nil)
	a, as := join(t, r, "alice")
	r.Dispatch(a.ID, &protocol.ChatChannel{Channel: "local"})
	if a.Channel != chat.Local {
		t.Fatalf("channel = %s", a.Channel)
	}
	say(r, a, "/channel whisper")
	if a.Channel != chat.Local || len(chatErrors(as)) != 1 {
		t.Fatalf("whisper accepted as default: %s %v", a.Channel, chatErrors(as))
	}
	say(r, a, "hello")
	if got := chatsFrom(as, "alice"); len(got) != 1 || got[0].Channel != string(chat.Local) {
		t.Fatalf("chat = %+v", got)
	}
}

func TestUnknownCommandAndHelp(t *testing.T) {
	r, _ := newTestRoom(t, func(o *RoomOptions) {
		o.Roles = map[string]moderation.Role{"mod": moderation.RoleModerator}
	})
	p, s := join(t, r, "player")
	m, ms := join(t, r, "mod")
	say(r, p, "/dance")
	if errs := chatErrors(s); len(errs) != 1 || !strings.Contains(errs[0], "unknown command") {
		t.Fatalf("errors = %v", errs)
	}

	s.reset()
	say(r, p, "/help")
	say(r, m, "/help")
	helpText := func(s *fakeSession) string {
		msgs := chatsFrom(s, "System")
		return msgs[len(msgs)-1].Text
	}
	if strings.Contains(helpText(s), "/kick") {
		t.Fatal("player help lists moderator commands")
	}
	if !strings.Contains(helpText(ms), "/kick") || strings.Contains(helpText(ms), "/ban") {
		t.Fatalf("moderator help = %q", helpText(ms))
	}
}

func TestPartyFlow(t *testing.T) {
	r, _ := newTestRoom(t, nil)
	a, as := join(t, r, "alice")
	b, bs := join(t, r, "bob")
	c, cs := join(t, r, "carol")

	say(r, a, "/invite bob")
	invites := received[protocol.PartyInviteNotice](bs)
	if len(invites) != 1 || invites[0].InviterID != a.ID {
		t.Fatalf("invites = %+v", invites)
	}
	if r.parties.Count() != 0 {
		t.Fatal("invite created a party")
	}
	r.Dispatch(b.ID, &protocol.PartyAccept{PartyID: invites[0].PartyID})
	if a.PartyID == "" || a.PartyID != b.PartyID {
		t.Fatalf("party ids %q %q", a.PartyID, b.PartyID)
	}

	r.Dispatch(a.ID, &protocol.PartyInvite{TargetID: c.ID})
	say(r, c, "/join "+received[protocol.PartyInviteNotice](cs)[0].PartyID)
	pt, _ := r.parties.Get(a.PartyID)
	if !slices.Equal(pt.Members, []string{a.ID, b.ID, c.ID}) || pt.LeaderID != a.ID {
		t.Fatalf("party = %+v", pt)
	}

	say(r, b, "/p hello team")
	for _, s := range []*fakeSession{as, bs, cs} {
		if got := chatsFrom(s, "bob"); len(got) != 1 || got[0].Channel != string(chat.Party) {
			t.Fatalf("party chat = %+v", got)
		}
	}

	// 队长断线：队长转给剩余成员中的第一个
	r.Leave(a.ID)
	pt, ok := r.parties.Get(b.PartyID)
	if !ok || pt.LeaderID != b.ID || len(pt.Members) != 2 {
		t.Fatalf("after leader left: %+v %v", pt, ok)
	}
	updates := received[protocol.PartyUpdated](cs)
	last := updates[len(updates)-1]
	if last.LeaderID != b.ID || len(last.Members) != 2 {
		t.Fatalf("carol update = %+v", last)
	}

	r.Dispatch(c.ID, &protocol.PartyLeave{})
	r.Dispatch(b.ID, &protocol.PartyLeave{})
	if r.parties.Count() != 0 || b.PartyID != "" || c.PartyID != "" {
		t.Fatalf("parties=%d b=%q c=%q", r.parties.Count(), b.PartyID, c.PartyID)
	}
	say(r, b, "/p anyone?")
	if errs := chatErrors(bs); len(errs) == 0 || errs[len(errs)-1] != chat.ErrNotInParty.Error() {
		t.Fatalf("errors = %v", errs)
	}
}

func TestJoinWithoutIDAcceptsLatestInvite(t *testing.T) {
	r, _ := newTestRoom(t, nil)
	a, _ := join(t, r, "alice")
	b, _ := join(t, r, "bob")
	c, cs := join(t, r, "carol")

	say(r, c, "/join")
	if errs := chatErrors(cs); len(errs) != 1 || !strings.Contains(errs[0], "no pending invite") {
		t.Fatalf("errors = %v", errs)
	}
	say(r, a, "/invite carol")
	say(r, b, "/invite carol")
	say(r, c, "/join")
	if c.PartyID == "" || c.PartyID != b.PartyID || a.PartyID != "" {
		t.Fatalf("party ids alice=%q bob=%q carol=%q", a.PartyID, b.PartyID, c.PartyID)
	}
}

func TestPartyChatWithoutPartyIsDropped(t *testing.T) {
	r, _ := newTestRoom(t, nil)
	a, as := join(t, r, "alice")
	_, bs := join(t, r, "bob")
	r.Dispatch(a.ID, &protocol.Chat{Text: "hello?", Channel: "party"})
	if len(chatsFrom(as, "alice")) != 0 || len(chatsFrom(bs, "alice")) != 0 || len(chatErrors(as)) != 0 {
		t.Fatal("party chat without a party should be a silent no-op")
	}
}

func adminRoom(t *testing.T) (*Room, *testClock) {
	return newTestRoom(t, func(o *RoomOptions) {
		o.Roles = map[string]moderation.Role{
			"mod":   moderation.RoleModerator,
			"admin": moderation.RoleAdmin,
			"root":  moderation.RoleSuperAdmin,
		}
	})
}

func TestModeratorCannotBanAdmin(t *testing.T) {
	r, _ := adminRoom(t)
	mod, ms := join(t, r, "mod")
	_, as := join(t, r, "admin")

	say(r, mod, "/ban admin 1h abuse")
	errs := chatErrors(ms)
	if len(errs) != 1 || !strings.Contains(errs[0], "insufficient rank") {
		t.Fatalf("errors = %v", errs)
	}
	if _, banned := r.bans.IsBannedName("admin", r.now()); banned || as.closed {
		t.Fatal("admin was banned")
	}
	if r.audit.Len() != 0 {
		t.Fatal("rejected command was audited")
	}
}

func TestAdminCommandPermissions(t *testing.T) {
	r, _ := adminRoom(t)
	mod, ms := join(t, r, "mod")
	join(t, r, "target")

	say(r, mod, "/spawn gold 10 target")
	if errs := chatErrors(ms); len(errs) != 1 || !strings.Contains(errs[0], "insufficient permission") {
		t.Fatalf("errors = %v", errs)
	}
	say(r, mod, "/kick ghost")
	if errs := chatErrors(ms); len(errs) != 2 || !strings.Contains(errs[1], "not found") {
		t.Fatalf("errors = %v", errs)
	}
}

func TestKickAndAudit(t *testing.T) {
	r, _ := adminRoom(t)
	mod, _ := join(t, r, "mod")
	tg, ts := join(t, r, "target")

	say(r, mod, "/kick TARGET spamming chat")
	if !ts.closed || !strings.Contains(ts.reason, "spamming chat") {
		t.Fatalf("kick reason = %q", ts.reason)
	}
	if r.PlayerCount() != 1 {
		t.Fatalf("players = %d", r.PlayerCount())
	}
	entries := r.AuditEntries(10)
	if len(entries) != 1 || entries[0].Type != moderation.CmdKick || entries[0].TargetID != tg.ID || entries[0].ActorID != mod.ID {
		t.Fatalf("audit = %+v", entries)
	}
}

func TestBanDurations(t *testing.T) {
	r, clk := adminRoom(t)
	admin, as := join(t, r, "admin")
	_, ts := join(t, r, "target")

	say(r, admin, "/ban target 5x nope")
	if ts.closed || len(chatErrors(as)) != 1 {
		t.Fatalf("bad duration had side effects: closed=%v errors=%v", ts.closed, chatErrors(as))
	}
	say(r, admin, "/ban target 30m cheating")
	if !ts.closed {
		t.Fatal("target not disconnected")
	}
	b, ok := r.bans.IsBannedName("target", clk.t)
	if !ok || !b.Expires.Equal(t0.Add(30*time.Minute)) || b.Reason != "cheating" || b.IssuedBy != admin.ID {
		t.Fatalf("ban = %+v %v", b, ok)
	}
	clk.advance(31 * time.Minute)
	if _, err := r.Join("target", &fakeSession{}); err != nil {
		t.Fatalf("expired ban still active: %v", err)
	}
}

func TestUnbanAndPermanentBan(t *testing.T) {
	r, clk := adminRoom(t)
	admin, _ := join(t, r, "admin")
	join(t, r, "target")

	say(r, admin, "/ban target")
	clk.advance(365 * 24 * time.Hour)
	if _, ok := r.bans.IsBannedName("target", clk.t); !ok {
		t.Fatal("ban without duration should be permanent")
	}
	say(r, admin, "/unban target")
	if _, err := r.Join("target", &fakeSession{}); err != nil {
		t.Fatalf("join after unban: %v", err)
	}
}

type flakyBans struct {
	deleteErr error
}

func (f *flakyBans) PutBan(moderation.Ban) error         { return nil }
func (f *flakyBans) DeleteBan(string) error              { return f.deleteErr }
func (f *flakyBans) LoadBans() ([]moderation.Ban, error) { return nil, nil }

func TestUnbanFailsWhenStoreDeleteFails(t *testing.T) {
	bans := &flakyBans{}
	r, clk := newTestRoom(t, func(o *RoomOptions) {
		o.Roles = map[string]moderation.Role{"admin": moderation.RoleAdmin}
		o.Bans = bans
	})
	admin, as := join(t, r, "admin")
	join(t, r, "target")
	say(r, admin, "/ban target")
	audited := r.audit.Len()

	bans.deleteErr = errors.New("disk full")
	as.reset()
	say(r, admin, "/unban target")
	if errs := chatErrors(as); len(errs) != 1 || !strings.Contains(errs[0], "disk full") {
		t.Fatalf("errors = %v", errs)
	}
	if _, ok := r.bans.IsBannedName("target", clk.t); !ok {
		t.Fatal("ban lifted in memory although the store kept it")
	}
	if n := r.debugInfo()["bans"]; n != 1 {
		t.Fatalf("debug bans = %v", n)
	}
	if r.audit.Len() != audited {
		t.Fatal("failed unban was audited")
	}

	bans.deleteErr = nil
	say(r, admin, "/unban target")
	if _, ok := r.bans.IsBannedName("target", clk.t); ok || r.audit.Len() != audited+1 {
		t.Fatalf("unban retry: audit=%d", r.audit.Len())
	}
}

func TestSpawnTeleportPromote(t *testing.T) {
	r, _ := adminRoom(t)
	root, rs := join(t, r, "root")
	p, _ := join(t, r, "player")

	say(r, root, "/spawn gold 5000000 player")
	say(r, root, "/spawn gold 10000 player")
	if p.Gold != StartGold+10000 || len(chatErrors(rs)) != 1 {
		t.Fatalf("gold=%d errors=%v", p.Gold, chatErrors(rs))
	}
	say(r, root, "/spawn potion 500 player")
	if p.Potions != MaxPotions {
		t.Fatalf("potions = %d", p.Potions)
	}

	say(r, root, "/tp player 50 50")
	if p.X != 50 || p.Y != 50 {
		t.Fatalf("teleport = (%v,%v)", p.X, p.Y)
	}
	say(r, root, "/tp player 0 0")
	if p.X != 50 || len(chatErrors(rs)) != 2 {
		t.Fatal("teleport into water accepted")
	}

	say(r, root, "/promote player admin")
	if p.Role != moderation.RoleAdmin {
		t.Fatalf("role = %s", p.Role)
	}
	say(r, root, "/demote player")
	if p.Role != moderation.RoleModerator {
		t.Fatalf("role after demote = %s", p.Role)
	}
	if r.audit.Len() != 5 {
		t.Fatalf("audit len = %d", r.audit.Len())
	}
}

func TestScheduledShutdown(t *testing.T) {
	r, clk := adminRoom(t)
	root, _ := join(t, r, "root")
	_, ps := join(t, r, "player")

	say(r, root, "/shutdown 10s patch")
	say(r, root, "/shutdown cancel")
	r.Step(clk.advance(11 * time.Second))
	if ps.closed {
		t.Fatal("cancelled shutdown fired")
	}

	say(r, root, "/shutdown 1m patch")
	r.Step(clk.advance(59 * time.Second))
	if ps.closed {
		t.Fatal("shutdown fired early")
	}
	r.Step(clk.advance(time.Second))
	if !ps.closed || !strings.Contains(ps.reason, "patch") {
		t.Fatalf("player closed=%v reason=%q", ps.closed, ps.reason)
	}
	select {
	case <-r.Done():
	default:
		t.Fatal("room not closed")
	}
	if _, err := r.Join("late", &fakeSession{}); !errors.Is(err, ErrRoomClosed) {
		t.Fatalf("join closed room: %v", err)
	}
}
