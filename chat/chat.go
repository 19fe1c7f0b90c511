// Package chat 聊天文本清洗、命令解析、频道与滑动窗口限流。
package chat

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// CommandPrefix 斜杠命令前缀
	CommandPrefix = "/"
	// DefaultMaxLength 单条消息最大字符数
	DefaultMaxLength = 200
	// DefaultLocalRange 本地频道切比雪夫距离（格）
	DefaultLocalRange = 12
	// DefaultRateLimit 每个窗口允许的最大消息数
	DefaultRateLimit = 10
	// DefaultRateWindow 滑动窗口长度
	DefaultRateWindow = 60 * time.Second
)

var (
	ErrEmpty        = errors.New("message is empty")
	ErrRateLimited  = errors.New("you are sending messages too quickly, please wait")
	ErrUnknownChan  = errors.New("unknown chat channel")
	ErrNotInParty   = errors.New("you are not in a party")
	ErrNoTarget     = errors.New("whisper needs a target name")
	ErrUnknownCmd   = errors.New("unknown command")
	ErrPlayerAbsent = errors.New("player not found")
)

// Channel 聊天路由范围
type Channel string

const (
	Global  Channel = "global"
	Local   Channel = "local"
	Party   Channel = "party"
	Whisper Channel = "whisper"
	System  Channel = "system"
)

// ParseChannel 解析客户端传入的频道名（大小写不敏感）
func ParseChannel(s string) (Channel, error) {
	switch Channel(strings.ToLower(strings.TrimSpace(s))) {
	case Global:
		return Global, nil
	case Local:
		return Local, nil
	case Party:
		return Party, nil
	case Whisper:
		return Whisper, nil
	}
	return "", ErrUnknownChan
}

// Selectable 可作为玩家默认频道的频道（私聊需要目标，不能作为默认）
func (c Channel) Selectable() bool {
	return c == Global || c == Local || c == Party
}

// Sanitize 折叠空白、去首尾空格、按字符截断；空消息返回 ErrEmpty
func Sanitize(raw string, maxLen int) (string, error) {
	s := strings.Join(strings.Fields(raw), " ")
	if s == "" {
		return "", ErrEmpty
	}
	if maxLen > 0 && utf8.RuneCountInString(s) > maxLen {
		r := []rune(s)
		s = strings.TrimSpace(string(r[:maxLen]))
	}
	return s, nil
}

// Command 解析后的斜杠命令
type Command struct {
	Name string
	Args []string
}

// Rest 返回从第 i 个参数开始拼接的文本
func (c Command) Rest(i int) string {
	if i >= len(c.Args) {
		return ""
	}
	return strings.Join(c.Args[i:], " ")
}

// ParseCommand 文本以前缀开头时解析为命令；命令名统一小写
func ParseCommand(text string) (Command, bool) {
	if !strings.HasPrefix(text, CommandPrefix) {
		return Command{}, false
	}
	fields := strings.Fields(strings.TrimPrefix(text, CommandPrefix))
	if len(fields) == 0 {
		return Command{}, false
	}
	return Command{Name: strings.ToLower(fields[0]), Args: fields[1:]}, true
}

// WithinRange 切比雪夫（最大轴）距离判定
func WithinRange(ax, ay, bx, by, dist float64) bool {
	dx := ax - bx
	if dx < 0 {
		dx = -dx
	}
	dy := ay - by
	if dy < 0 {
		dy = -dy
	}
	return max(dx, dy) <= dist
}
