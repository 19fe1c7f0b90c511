package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/IamMikeHelsel/2DG-sub000/chat"
	"github.com/IamMikeHelsel/2DG-sub000/gamemap"
	"github.com/IamMikeHelsel/2DG-sub000/moderation"
	"github.com/IamMikeHelsel/2DG-sub000/protocol"
	"github.com/IamMikeHelsel/2DG-sub000/timers"
)

const maxSpawnQty = 10_000

var errNoShutdown = errors.New("no shutdown is scheduled")

var rankProtected = map[string]bool{moderation.CmdKick: true, moderation.CmdBan: true}

// runAdmin 权限检查 → 执行 → 成功后写一条审计记录；拒绝不记审计
func (r *Room) runAdmin(actor *Player, cmd chat.Command, now time.Time) error {
	// 踢人/封禁的等级保护先于命令权限判定：目标等级不低于执行者时一律报等级不足
	if rankProtected[cmd.Name] && actor.Role > moderation.RoleNone && len(cmd.Args) > 0 {
		if t, ok := r.findByName(cmd.Args[0]); ok {
			if err := moderation.CheckRank(actor.Role, t.Role); err != nil {
				return err
			}
		}
	}
	spec, err := moderation.Authorize(actor.Role, cmd.Name)
	if err != nil {
		return err
	}
	var act moderation.Action
	switch spec.Name {
	case moderation.CmdBroadcast:
		act, err = r.cmdBroadcast(actor, cmd, now)
	case moderation.CmdKick:
		act, err = r.cmdKick(actor, cmd)
	case moderation.CmdTeleport:
		act, err = r.cmdTeleport(actor, cmd)
	case moderation.CmdBan:
		act, err = r.cmdBan(actor, cmd, now)
	case moderation.CmdUnban:
		act, err = r.cmdUnban(cmd)
	case moderation.CmdSpawn:
		act, err = r.cmdSpawn(actor, cmd)
	case moderation.CmdPromote:
		act, err = r.cmdPromote(actor, cmd)
	case moderation.CmdDemote:
		act, err = r.cmdDemote(actor, cmd)
	case moderation.CmdShutdown:
		act, err = r.cmdShutdown(cmd, now)
	}
	if err != nil {
		return err
	}

	act.Type = spec.Name
	act.ActorID = actor.ID
	act.Time = now
	if _, err := r.audit.Append(act); err != nil {
		r.log.Warnw("audit sink failed", "action", act.Type, "err", err)
	}
	r.collectors.AdminActions.WithLabelValues(r.ID, spec.Name).Inc()
	r.log.Infow("admin command", "actor", actor.Name, "command", spec.Name, "target", act.TargetID, "reason", act.Reason)
	return nil
}

// AuditEntries 最近 n 条审计记录
func (r *Room) AuditEntries(n int) []moderation.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.audit.Recent(n)
}

func usage(cmd string) error {
	spec, _ := moderation.Lookup(cmd)
	return fmt.Errorf("usage: %s", spec.Usage)
}

func (r *Room) target(name string) (*Player, error) {
	p, ok := r.findByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", chat.ErrPlayerAbsent, name)
	}
	return p, nil
}

func (r *Room) cmdBroadcast(actor *Player, cmd chat.Command, now time.Time) (moderation.Action, error) {
	text := cmd.Rest(0)
	if text == "" {
		return moderation.Action{}, usage(cmd.Name)
	}
	msg := r.systemMessage("[Broadcast] "+text, now)
	msg.Sender = actor.Name
	r.eachPlayer(func(q *Player) { q.send(msg) })
	return moderation.Action{Payload: map[string]any{"text": text}}, nil
}

func (r *Room) cmdKick(actor *Player, cmd chat.Command) (moderation.Action, error) {
	if len(cmd.Args) < 1 {
		return moderation.Action{}, usage(cmd.Name)
	}
	t, err := r.target(cmd.Args[0])
	if err != nil {
		return moderation.Action{}, err
	}
	if err := moderation.CheckRank(actor.Role, t.Role); err != nil {
		return moderation.Action{}, err
	}
	reason := cmd.Rest(1)
	msg := "You have been kicked"
	if reason != "" {
		msg += ": " + reason
	}
	r.removePlayer(t.ID, msg)
	r.systemTo(actor, "Kicked "+t.Name+".")
	return moderation.Action{TargetID: t.ID, Reason: reason, Payload: map[string]any{"name": t.Name}}, nil
}

// cmdBan /ban <name> [duration|permanent] [reason]；时长无效时不产生任何副作用
func (r *Room) cmdBan(actor *Player, cmd chat.Command, now time.Time) (moderation.Action, error) {
	if len(cmd.Args) < 1 {
		return moderation.Action{}, usage(cmd.Name)
	}
	t, err := r.target(cmd.Args[0])
	if err != nil {
		return moderation.Action{}, err
	}
	if err := moderation.CheckRank(actor.Role, t.Role); err != nil {
		return moderation.Action{}, err
	}
	var (
		dur       time.Duration
		permanent = true
		reasonAt  = 1
	)
	if len(cmd.Args) > 1 && moderation.IsDurationToken(cmd.Args[1]) {
		if dur, permanent, err = moderation.ParseDuration(cmd.Args[1]); err != nil {
			return moderation.Action{}, err
		}
		reasonAt = 2
	}
	reason := cmd.Rest(reasonAt)
	if reason == "" {
		reason = "no reason given"
	}
	ban := moderation.Ban{PlayerID: t.ID, Name: t.Name, Reason: reason, IssuedBy: actor.ID, IssuedAt: now}
	if !permanent {
		ban.Expires = now.Add(dur)
	}
	if err := r.bans.Add(ban); err != nil {
		return moderation.Action{}, fmt.Errorf("could not record ban: %w", err)
	}
	t.Banned, t.BanExpires, t.BanReason = true, ban.Expires, reason

	length := "permanently"
	if !permanent {
		length = "for " + cmd.Args[1]
	}
	r.removePlayer(t.ID, fmt.Sprintf("You have been banned %s: %s", length, reason))
	r.systemTo(actor, fmt.Sprintf("Banned %s %s.", t.Name, length))
	return moderation.Action{
		TargetID: t.ID,
		Reason:   reason,
		Payload:  map[string]any{"name": t.Name, "permanent": permanent, "expires": ban.Expires},
	}, nil
}

func (r *Room) cmdUnban(cmd chat.Command) (moderation.Action, error) {
	if len(cmd.Args) < 1 {
		return moderation.Action{}, usage(cmd.Name)
	}
	b, ok, err := r.bans.Remove(cmd.Args[0])
	if err != nil {
		return moderation.Action{}, fmt.Errorf("could not remove ban: %w", err)
	}
	if !ok {
		return moderation.Action{}, fmt.Errorf("%s is not banned", cmd.Args[0])
	}
	return moderation.Action{TargetID: b.PlayerID, Payload: map[string]any{"name": b.Name}}, nil
}

// cmdSpawn /spawn <gold|potion|hp> <qty> [name]，结果按不变量截断
func (r *Room) cmdSpawn(actor *Player, cmd chat.Command) (moderation.Action, error) {
	if len(cmd.Args) < 2 {
		return moderation.Action{}, usage(cmd.Name)
	}
	qty, err := strconv.Atoi(cmd.Args[1])
	if err != nil || qty <= 0 || qty > maxSpawnQty {
		return moderation.Action{}, fmt.Errorf("quantity must be between 1 and %d", maxSpawnQty)
	}
	t := actor
	if len(cmd.Args) > 2 {
		if t, err = r.target(cmd.Args[2]); err != nil {
			return moderation.Action{}, err
		}
	}
	item := strings.ToLower(cmd.Args[0])
	switch item {
	case "gold":
		t.addGold(qty)
	case "potion", "potions":
		item = "potion"
		t.addPotions(qty)
	case "hp":
		if !t.Alive() {
			return moderation.Action{}, fmt.Errorf("%s is dead", t.Name)
		}
		t.heal(qty)
	default:
		return moderation.Action{}, usage(cmd.Name)
	}
	r.systemTo(actor, fmt.Sprintf("Gave %d %s to %s.", qty, item, t.Name))
	if t != actor {
		r.systemTo(t, fmt.Sprintf("An admin gave you %d %s.", qty, item))
	}
	return moderation.Action{TargetID: t.ID, Payload: map[string]any{"item": item, "qty": qty}}, nil
}

// cmdTeleport 目标坐标必须在地图内且可行走
func (r *Room) cmdTeleport(actor *Player, cmd chat.Command) (moderation.Action, error) {
	if len(cmd.Args) < 3 {
		return moderation.Action{}, usage(cmd.Name)
	}
	t, err := r.target(cmd.Args[0])
	if err != nil {
		return moderation.Action{}, err
	}
	x, errX := strconv.Atoi(cmd.Args[1])
	y, errY := strconv.Atoi(cmd.Args[2])
	if errX != nil || errY != nil {
		return moderation.Action{}, errors.New("coordinates must be integers")
	}
	if !gamemap.IsWalkable(r.world.Grid, x, y) {
		return moderation.Action{}, fmt.Errorf("tile (%d, %d) is not walkable", x, y)
	}
	t.X, t.Y = float64(x), float64(y)
	delete(r.inputs, t.ID)
	r.systemTo(actor, fmt.Sprintf("Teleported %s to (%d, %d).", t.Name, x, y))
	return moderation.Action{TargetID: t.ID, Payload: map[string]any{"x": x, "y": y}}, nil
}

// cmdPromote 目标必须低于执行者，新角色不能高于执行者
func (r *Room) cmdPromote(actor *Player, cmd chat.Command) (moderation.Action, error) {
	if len(cmd.Args) < 2 {
		return moderation.Action{}, usage(cmd.Name)
	}
	t, err := r.target(cmd.Args[0])
	if err != nil {
		return moderation.Action{}, err
	}
	role, err := moderation.ParseRole(cmd.Args[1])
	if err != nil {
		return moderation.Action{}, err
	}
	if err := moderation.CheckRank(actor.Role, t.Role); err != nil {
		return moderation.Action{}, err
	}
	if role <= t.Role {
		return moderation.Action{}, fmt.Errorf("%s is already %s or higher", t.Name, t.Role)
	}
	if role > actor.Role {
		return moderation.Action{}, fmt.Errorf("%w: cannot grant a role above your own", moderation.ErrPermission)
	}
	return r.setRole(actor, t, role), nil
}

// cmdDemote 降一级
func (r *Room) cmdDemote(actor *Player, cmd chat.Command) (moderation.Action, error) {
	if len(cmd.Args) < 1 {
		return moderation.Action{}, usage(cmd.Name)
	}
	t, err := r.target(cmd.Args[0])
	if err != nil {
		return moderation.Action{}, err
	}
	if err := moderation.CheckRank(actor.Role, t.Role); err != nil {
		return moderation.Action{}, err
	}
	if t.Role == moderation.RoleNone {
		return moderation.Action{}, fmt.Errorf("%s has no role to remove", t.Name)
	}
	return r.setRole(actor, t, t.Role-1), nil
}

func (r *Room) setRole(actor, t *Player, role moderation.Role) moderation.Action {
	from := t.Role
	t.Role = role
	r.roles[strings.ToLower(t.Name)] = role
	r.systemTo(t, "Your role is now "+role.String()+".")
	r.systemTo(actor, fmt.Sprintf("%s is now %s.", t.Name, role))
	return moderation.Action{TargetID: t.ID, Payload: map[string]any{"from": from.String(), "to": role.String()}}
}

// cmdShutdown 在房间定时队列中安排关闭；/shutdown cancel 取消
func (r *Room) cmdShutdown(cmd chat.Command, now time.Time) (moderation.Action, error) {
	if len(cmd.Args) < 1 {
		return moderation.Action{}, usage(cmd.Name)
	}
	if strings.EqualFold(cmd.Args[0], "cancel") {
		if r.timers.CancelKind(timers.Shutdown) == 0 {
			return moderation.Action{}, errNoShutdown
		}
		r.broadcastSystem("Scheduled shutdown has been cancelled.", now)
		return moderation.Action{Payload: map[string]any{"cancelled": true}}, nil
	}
	dur, permanent, err := moderation.ParseDuration(cmd.Args[0])
	if err != nil {
		return moderation.Action{}, err
	}
	if permanent {
		return moderation.Action{}, fmt.Errorf("%w: shutdown needs a finite delay", moderation.ErrBadDuration)
	}
	reason := cmd.Rest(1)
	if reason == "" {
		reason = "scheduled maintenance"
	}
	r.timers.CancelKind(timers.Shutdown)
	at := now.Add(dur)
	r.timers.Schedule(timers.Shutdown, "", at, reason)
	r.broadcastSystem(fmt.Sprintf("Server shutting down in %s: %s", cmd.Args[0], reason), now)
	return moderation.Action{Reason: reason, Payload: map[string]any{"at": at}}, nil
}

func (r *Room) broadcastSystem(text string, now time.Time) {
	msg := r.systemMessage(text, now)
	r.eachPlayer(func(q *Player) { q.send(msg) })
}

// kickedNotice 踢出前的出站通知（Session.Close 的实现会发送）
func kickedNotice(reason string) protocol.Kicked { return protocol.Kicked{Reason: reason} }
