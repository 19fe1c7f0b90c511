// Package config 服务配置：默认值 → YAML 文件 → 环境变量，逐层覆盖。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/IamMikeHelsel/2DG-sub000/gamemap"
	"github.com/IamMikeHelsel/2DG-sub000/moderation"
)

// Tunables 房间运行参数，可热更新（配置文件变更或 /admin/config）
type Tunables struct {
	MoveSpeed      float64       `yaml:"move_speed" json:"moveSpeed" env:"MOVE_SPEED"`
	AttackCooldown time.Duration `yaml:"attack_cooldown" json:"attackCooldown" env:"ATTACK_COOLDOWN"`
	ChatRateLimit  int           `yaml:"chat_rate_limit" json:"chatRateLimit" env:"CHAT_RATE_LIMIT"`
	ChatRateWindow time.Duration `yaml:"chat_rate_window" json:"chatRateWindow" env:"CHAT_RATE_WINDOW"`
	LocalChatRange int           `yaml:"local_chat_range" json:"localChatRange" env:"LOCAL_CHAT_RANGE"`
	BroadcastEvery int           `yaml:"broadcast_every" json:"broadcastEvery" env:"BROADCAST_EVERY"`
	KeyframeEvery  int           `yaml:"keyframe_every" json:"keyframeEvery" env:"KEYFRAME_EVERY"`
	SaveInterval   time.Duration `yaml:"save_interval" json:"saveInterval" env:"SAVE_INTERVAL"`
	FloodRate      float64       `yaml:"flood_rate" json:"floodRate" env:"FLOOD_RATE"`
	FloodBurst     int           `yaml:"flood_burst" json:"floodBurst" env:"FLOOD_BURST"`
	ShopBurst      int           `yaml:"shop_burst" json:"shopBurst" env:"SHOP_BURST"`
	ShopWindow     time.Duration `yaml:"shop_window" json:"shopWindow" env:"SHOP_WINDOW"`
}

// DefaultTunables 默认参数：移动 5 格/秒，攻击冷却 400ms，聊天 60 秒内 10 条
func DefaultTunables() Tunables {
	return Tunables{
		MoveSpeed:      5,
		AttackCooldown: 400 * time.Millisecond,
		ChatRateLimit:  10,
		ChatRateWindow: 60 * time.Second,
		LocalChatRange: 12,
		BroadcastEvery: 2,
		KeyframeEvery:  20,
		SaveInterval:   30 * time.Second,
		FloodRate:      30,
		FloodBurst:     60,
		ShopBurst:      5,
		ShopWindow:     10 * time.Second,
	}
}

// Validate 参数合法性
func (t Tunables) Validate() error {
	switch {
	case t.MoveSpeed <= 0:
		return errors.New("move_speed must be positive")
	case t.AttackCooldown < 0:
		return errors.New("attack_cooldown must not be negative")
	case t.ChatRateLimit <= 0 || t.ChatRateWindow <= 0:
		return errors.New("chat rate limit and window must be positive")
	case t.LocalChatRange < 0:
		return errors.New("local_chat_range must not be negative")
	case t.BroadcastEvery <= 0 || t.KeyframeEvery <= 0:
		return errors.New("broadcast_every and keyframe_every must be positive")
	case t.SaveInterval <= 0:
		return errors.New("save_interval must be positive")
	case t.FloodRate <= 0 || t.FloodBurst <= 0:
		return errors.New("flood limits must be positive")
	case t.ShopBurst <= 0 || t.ShopWindow <= 0:
		return errors.New("shop limits must be positive")
	}
	return nil
}

type LogConfig struct {
	File    string `yaml:"file" env:"FILE"`
	Console bool   `yaml:"console" env:"CONSOLE"`
	Level   string `yaml:"level" env:"LEVEL"`
}

type MapConfig struct {
	Width  int   `yaml:"width" env:"WIDTH"`
	Height int   `yaml:"height" env:"HEIGHT"`
	Seed   int64 `yaml:"seed" env:"SEED"`
}

type StorageConfig struct {
	BoltPath  string `yaml:"bolt_path" env:"BOLT_PATH"`
	AuditPath string `yaml:"audit_path" env:"AUDIT_PATH"`
}

type AuthConfig struct {
	Secret   string        `yaml:"secret" env:"SECRET"`
	TokenTTL time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
	// Required 为 true 时 /ws 只接受带 token 的连接
	Required bool `yaml:"required" env:"REQUIRED"`
}

// Config 服务配置
type Config struct {
	Addr        string            `yaml:"addr" env:"GAME_ADDR"`
	DefaultRoom string            `yaml:"default_room" env:"GAME_DEFAULT_ROOM"`
	Launch      time.Time         `yaml:"launch" env:"GAME_LAUNCH"`
	Admins      map[string]string `yaml:"admins" env:"GAME_ADMINS"`
	Log         LogConfig         `yaml:"log" envPrefix:"GAME_LOG_"`
	Map         MapConfig         `yaml:"map" envPrefix:"GAME_MAP_"`
	Storage     StorageConfig     `yaml:"storage" envPrefix:"GAME_STORAGE_"`
	Auth        AuthConfig        `yaml:"auth" envPrefix:"GAME_AUTH_"`
	Room        Tunables          `yaml:"room" envPrefix:"GAME_ROOM_"`
}

// Default 内置默认配置
func Default() Config {
	return Config{
		Addr:        ":8080",
		DefaultRoom: "room-1",
		Log:         LogConfig{File: "app.log", Level: "debug"},
		Map:         MapConfig{Width: gamemap.DefaultSize, Height: gamemap.DefaultSize},
		Storage:     StorageConfig{BoltPath: "game.db", AuditPath: "audit.db"},
		Auth:        AuthConfig{TokenTTL: 24 * time.Hour},
		Room:        DefaultTunables(),
	}
}

// Load 读取配置；path 为空时只用默认值与环境变量
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ParseEnv 从环境变量覆盖
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate 整体校验
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if c.Map.Width < gamemap.MinSize || c.Map.Height < gamemap.MinSize {
		return fmt.Errorf("map %dx%d: %w", c.Map.Width, c.Map.Height, gamemap.ErrTooSmall)
	}
	if _, err := c.AdminRoles(); err != nil {
		return err
	}
	return c.Room.Validate()
}

// AdminRoles 名称（小写）→ 角色
func (c Config) AdminRoles() (map[string]moderation.Role, error) {
	out := make(map[string]moderation.Role, len(c.Admins))
	for name, role := range c.Admins {
		r, err := moderation.ParseRole(role)
		if err != nil {
			return nil, fmt.Errorf("admin %q: %w", name, err)
		}
		out[strings.ToLower(name)] = r
	}
	return out, nil
}
