// Package moderation 管理员角色层级、权限判定、时长解析、封禁表与审计日志。
package moderation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrPermission    = errors.New("insufficient permission")
	ErrRankProtected = errors.New("insufficient rank: target has equal or higher rank")
	ErrBadDuration   = errors.New("invalid duration")
	ErrUnknownRole   = errors.New("unknown role")
)

// Role 管理角色，数值即等级，高等级包含低等级全部权限
type Role int

const (
	RoleNone Role = iota
	RoleModerator
	RoleAdmin
	RoleSuperAdmin
)

func (r Role) String() string {
	switch r {
	case RoleModerator:
		return "moderator"
	case RoleAdmin:
		return "admin"
	case RoleSuperAdmin:
		return "superadmin"
	}
	return "none"
}

// MarshalText 以名称序列化（YAML/JSON 配置中使用）
func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// UnmarshalText 解析角色名称
func (r *Role) UnmarshalText(b []byte) error {
	v, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// ParseRole 大小写不敏感，接受 super-admin / super_admin 写法
func ParseRole(s string) (Role, error) {
	k := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case "none", "":
		return RoleNone, nil
	case "moderator", "mod":
		return RoleModerator, nil
	case "admin":
		return RoleAdmin, nil
	case "superadmin":
		return RoleSuperAdmin, nil
	}
	return RoleNone, fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// HasPermission 比较等级
func HasPermission(have, required Role) bool { return have >= required }

// CheckRank 等级保护：目标等级 >= 执行者等级时拒绝
func CheckRank(actor, target Role) error {
	if target >= actor {
		return fmt.Errorf("%w (%s vs %s)", ErrRankProtected, actor, target)
	}
	return nil
}

// 管理命令名
const (
	CmdBroadcast = "broadcast"
	CmdKick      = "kick"
	CmdTeleport  = "teleport"
	CmdBan       = "ban"
	CmdUnban     = "unban"
	CmdSpawn     = "spawn"
	CmdPromote   = "promote"
	CmdDemote    = "demote"
	CmdShutdown  = "shutdown"
)

// CommandSpec 命令所需最低角色与用法
type CommandSpec struct {
	Name    string
	MinRole Role
	Usage   string
}

var commands = map[string]CommandSpec{
	CmdBroadcast: {CmdBroadcast, RoleModerator, "/broadcast <text>"},
	CmdKick:      {CmdKick, RoleModerator, "/kick <name> [reason]"},
	CmdTeleport:  {CmdTeleport, RoleModerator, "/teleport <name> <x> <y>"},
	CmdBan:       {CmdBan, RoleAdmin, "/ban <name> [duration|permanent] [reason]"},
	CmdUnban:     {CmdUnban, RoleAdmin, "/unban <name>"},
	CmdSpawn:     {CmdSpawn, RoleAdmin, "/spawn <gold|potion|hp> <qty> [name]"},
	CmdPromote:   {CmdPromote, RoleSuperAdmin, "/promote <name> <role>"},
	CmdDemote:    {CmdDemote, RoleSuperAdmin, "/demote <name>"},
	CmdShutdown:  {CmdShutdown, RoleSuperAdmin, "/shutdown <duration|cancel> [reason]"},
}

var aliases = map[string]string{"tp": CmdTeleport}

// Lookup 查找管理命令（支持别名）
func Lookup(name string) (CommandSpec, bool) {
	name = strings.ToLower(name)
	if full, ok := aliases[name]; ok {
		name = full
	}
	spec, ok := commands[name]
	return spec, ok
}

// Authorize 角色是否可执行命令
func Authorize(role Role, name string) (CommandSpec, error) {
	spec, ok := Lookup(name)
	if !ok {
		return CommandSpec{}, fmt.Errorf("unknown admin command %q", name)
	}
	if !HasPermission(role, spec.MinRole) {
		return spec, fmt.Errorf("%w: /%s requires %s", ErrPermission, spec.Name, spec.MinRole)
	}
	return spec, nil
}

// Available 角色可用的命令（用于 /help）
func Available(role Role) []CommandSpec {
	var out []CommandSpec
	for _, name := range []string{CmdBroadcast, CmdKick, CmdTeleport, CmdBan, CmdUnban, CmdSpawn, CmdPromote, CmdDemote, CmdShutdown} {
		if spec := commands[name]; HasPermission(role, spec.MinRole) {
			out = append(out, spec)
		}
	}
	return out
}

// Permanent 永久时长的字面量
const Permanent = "permanent"

// ParseDuration 解析 <整数><s|m|h|d> 或 "permanent"；permanent 返回 (0, true)
func ParseDuration(s string) (time.Duration, bool, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == Permanent {
		return 0, true, nil
	}
	if len(s) < 2 {
		return 0, false, fmt.Errorf("%w: %q", ErrBadDuration, s)
	}
	var unit time.Duration
	switch s[len(s)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	default:
		return 0, false, fmt.Errorf("%w: %q", ErrBadDuration, s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 || int64(n) > int64(maxDuration/unit) {
		return 0, false, fmt.Errorf("%w: %q", ErrBadDuration, s)
	}
	return time.Duration(n) * unit, false, nil
}

const maxDuration = 3650 * 24 * time.Hour

// IsDurationToken 判断 /ban 的第二个参数是否意图作为时长（数字开头或 permanent），
// 是则必须能解析，否则视为原因文本
func IsDurationToken(s string) bool {
	s = strings.ToLower(s)
	return s == Permanent || (s != "" && s[0] >= '0' && s[0] <= '9')
}
