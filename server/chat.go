package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/IamMikeHelsel/2DG-sub000/chat"
	"github.com/IamMikeHelsel/2DG-sub000/moderation"
	"github.com/IamMikeHelsel/2DG-sub000/protocol"
)

var playerCommands = []string{
	"/w <name> <text> - whisper (also /whisper, /tell)",
	"/p <text> - party chat (also /party)",
	"/invite <name> - invite to your party",
	"/join [partyId] - accept a party invite (latest if omitted)",
	"/leave - leave your party",
	"/channel <global|local|party> - default chat channel",
}

// handleChat 清洗 → 限流 → 命令分发或按频道路由
func (r *Room) handleChat(p *Player, raw, channel string, now time.Time) {
	text, err := chat.Sanitize(raw, chat.DefaultMaxLength)
	if err != nil {
		r.chatError(p, err)
		return
	}
	if !r.chatLimit.Allow(p.ID, now) {
		r.chatError(p, chat.ErrRateLimited)
		return
	}
	if cmd, ok := chat.ParseCommand(text); ok {
		r.reply(p, r.runCommand(p, cmd, now))
		return
	}
	ch := p.Channel
	if channel != "" {
		if ch, err = chat.ParseChannel(channel); err != nil {
			r.chatError(p, err)
			return
		}
	}
	if ch == chat.Whisper {
		r.chatError(p, chat.ErrNoTarget)
		return
	}
	r.route(p, ch, text, now)
}

// reply 出错时向发送者返回 chat_error
func (r *Room) reply(p *Player, err error) {
	if err != nil {
		r.chatError(p, err)
	}
}

func (r *Room) stamp(p *Player, ch chat.Channel, text string, now time.Time) protocol.ChatMessage {
	return protocol.ChatMessage{
		ID:       uuid.NewString(),
		SenderID: p.ID,
		Sender:   p.Name,
		Text:     text,
		Channel:  string(ch),
		Time:     now.UnixMilli(),
		Title:    p.Rewards.Title,
		Color:    p.Rewards.ChatColor,
	}
}

// route 全局：所有人；本地：切比雪夫距离内；队伍：队员（未组队时不发送）
func (r *Room) route(p *Player, ch chat.Channel, text string, now time.Time) {
	msg := r.stamp(p, ch, text, now)
	switch ch {
	case chat.Global:
		r.eachPlayer(func(q *Player) { q.send(msg) })
	case chat.Local:
		dist := float64(r.tun.LocalChatRange)
		r.eachPlayer(func(q *Player) {
			if chat.WithinRange(p.X, p.Y, q.X, q.Y, dist) {
				q.send(msg)
			}
		})
	case chat.Party:
		if p.PartyID == "" {
			return
		}
		r.sendParty(p.PartyID, msg)
	}
	r.collectors.ChatMessages.WithLabelValues(r.ID, string(ch)).Inc()
}

// whisper 发给指定名称（大小写不敏感）并回显给发送者
func (r *Room) whisper(p *Player, name, text string, now time.Time) error {
	target, ok := r.findByName(name)
	if !ok {
		return fmt.Errorf("%w: %s", chat.ErrPlayerAbsent, name)
	}
	msg := r.stamp(p, chat.Whisper, text, now)
	msg.Target = target.Name
	target.send(msg)
	if target != p {
		p.send(msg)
	}
	r.collectors.ChatMessages.WithLabelValues(r.ID, string(chat.Whisper)).Inc()
	return nil
}

// runCommand 玩家命令表；管理命令转交给管理系统
func (r *Room) runCommand(p *Player, cmd chat.Command, now time.Time) error {
	switch cmd.Name {
	case "w", "whisper", "tell":
		if len(cmd.Args) < 2 {
			return fmt.Errorf("%w (usage: /w <name> <text>)", chat.ErrNoTarget)
		}
		return r.whisper(p, cmd.Args[0], cmd.Rest(1), now)
	case "p", "party":
		text := cmd.Rest(0)
		if text == "" {
			return chat.ErrEmpty
		}
		if p.PartyID == "" {
			return chat.ErrNotInParty
		}
		r.route(p, chat.Party, text, now)
		return nil
	case "invite":
		if len(cmd.Args) < 1 {
			return errors.New("usage: /invite <name>")
		}
		target, ok := r.findByName(cmd.Args[0])
		if !ok {
			return fmt.Errorf("%w: %s", chat.ErrPlayerAbsent, cmd.Args[0])
		}
		return r.inviteToParty(p, target.ID, now)
	case "join":
		partyID := ""
		if len(cmd.Args) > 0 {
			partyID = cmd.Args[0]
		}
		return r.acceptParty(p, partyID, now)
	case "leave":
		return r.leaveParty(p)
	case "channel":
		if len(cmd.Args) < 1 {
			return errors.New("usage: /channel <global|local|party>")
		}
		return r.switchChannel(p, cmd.Args[0])
	case "help":
		r.help(p)
		return nil
	}
	if _, ok := moderation.Lookup(cmd.Name); ok {
		return r.runAdmin(p, cmd, now)
	}
	return fmt.Errorf("%w: /%s", chat.ErrUnknownCmd, cmd.Name)
}

// switchChannel 修改默认频道（私聊不能作为默认）
func (r *Room) switchChannel(p *Player, name string) error {
	ch, err := chat.ParseChannel(name)
	if err != nil {
		return err
	}
	if !ch.Selectable() {
		return fmt.Errorf("%w: %s cannot be the default channel", chat.ErrUnknownChan, ch)
	}
	p.Channel = ch
	r.systemTo(p, "Chat channel set to "+string(ch)+".")
	return nil
}

func (r *Room) help(p *Player) {
	lines := append([]string{"Commands:"}, playerCommands...)
	for _, spec := range moderation.Available(p.Role) {
		lines = append(lines, spec.Usage)
	}
	r.systemTo(p, strings.Join(lines, "\n"))
}
