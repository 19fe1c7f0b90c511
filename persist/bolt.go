// Package persist 角色与封禁的 bbolt 存储，以及审计记录的 SQLite 镜像。
package persist

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	bbolt "go.etcd.io/bbolt"

	"github.com/IamMikeHelsel/2DG-sub000/founder"
	"github.com/IamMikeHelsel/2DG-sub000/moderation"
)

var (
	bucketCharacters = []byte("characters")
	bucketBans       = []byte("bans")
	bucketMeta       = []byte("meta")

	keyLaunch = []byte("launch")
)

// Character 角色存档；指针字段为 nil 表示未保存过，加载时沿用默认值
type Character struct {
	Name      string           `msgpack:"name"`
	X         *float64         `msgpack:"x"`
	Y         *float64         `msgpack:"y"`
	Gold      *int             `msgpack:"gold"`
	Potions   *int             `msgpack:"potions"`
	JoinOrder int              `msgpack:"join_order"`
	FirstSeen time.Time        `msgpack:"first_seen"`
	Rewards   *founder.Rewards `msgpack:"rewards"`
	SavedAt   time.Time        `msgpack:"saved_at"`
}

// BoltStore 以小写角色名为键的角色存档 + 以玩家 ID 为键的封禁表
type BoltStore struct {
	bolt *bbolt.DB
}

// OpenBolt 打开或创建数据库文件并确保 bucket 存在
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("persist: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketCharacters, bucketBans, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("persist: create buckets: %w", err)
	}
	return &BoltStore{bolt: db}, nil
}

// Close 关闭数据库
func (s *BoltStore) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

func characterKey(name string) []byte { return []byte(strings.ToLower(name)) }

// LoadCharacter 按名称读取存档；不存在时 ok=false
func (s *BoltStore) LoadCharacter(name string) (c Character, ok bool, err error) {
	err = s.bolt.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketCharacters).Get(characterKey(name))
		if data == nil {
			return nil
		}
		ok = true
		return msgpack.Unmarshal(data, &c)
	})
	if err != nil {
		return Character{}, false, fmt.Errorf("persist: load character %q: %w", name, err)
	}
	return c, ok, nil
}

// SaveCharacter 覆盖写入；nil 字段保留已有值
func (s *BoltStore) SaveCharacter(c Character) error {
	if c.Name == "" {
		return errors.New("persist: character without name")
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCharacters)
		key := characterKey(c.Name)
		if prev := b.Get(key); prev != nil {
			var old Character
			if err := msgpack.Unmarshal(prev, &old); err == nil {
				c = merge(old, c)
			}
		}
		data, err := msgpack.Marshal(&c)
		if err != nil {
			return fmt.Errorf("persist: encode character %q: %w", c.Name, err)
		}
		return b.Put(key, data)
	})
}

func merge(old, c Character) Character {
	if c.X == nil {
		c.X = old.X
	}
	if c.Y == nil {
		c.Y = old.Y
	}
	if c.Gold == nil {
		c.Gold = old.Gold
	}
	if c.Potions == nil {
		c.Potions = old.Potions
	}
	if c.JoinOrder == 0 {
		c.JoinOrder = old.JoinOrder
	}
	if c.FirstSeen.IsZero() {
		c.FirstSeen = old.FirstSeen
	}
	if c.Rewards == nil {
		c.Rewards = old.Rewards
	}
	return c
}

// LaunchTime 首次启动时写入的上线时间；之后每次启动读回同一个值，fallback 仅在首次使用
func (s *BoltStore) LaunchTime(fallback time.Time) (time.Time, error) {
	launch := fallback
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if data := b.Get(keyLaunch); data != nil {
			return launch.UnmarshalBinary(data)
		}
		data, err := fallback.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(keyLaunch, data)
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("persist: launch time: %w", err)
	}
	return launch, nil
}

// MaxJoinOrder 已存档角色中最大的加入序号，用于重启后继续编号
func (s *BoltStore) MaxJoinOrder() (int, error) {
	highest := 0
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCharacters).ForEach(func(_, v []byte) error {
			var c Character
			if err := msgpack.Unmarshal(v, &c); err != nil {
				return err
			}
			if c.JoinOrder > highest {
				highest = c.JoinOrder
			}
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("persist: scan characters: %w", err)
	}
	return highest, nil
}

// PutBan 实现 moderation.BanStore
func (s *BoltStore) PutBan(b moderation.Ban) error {
	data, err := msgpack.Marshal(&b)
	if err != nil {
		return fmt.Errorf("persist: encode ban %s: %w", b.PlayerID, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBans).Put([]byte(b.PlayerID), data)
	})
}

// DeleteBan 实现 moderation.BanStore
func (s *BoltStore) DeleteBan(playerID string) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBans).Delete([]byte(playerID))
	})
}

// LoadBans 全部封禁记录（含已过期，由 BanList 惰性清理）
func (s *BoltStore) LoadBans() ([]moderation.Ban, error) {
	var out []moderation.Ban
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBans).ForEach(func(k, v []byte) error {
			var b moderation.Ban
			if err := msgpack.Unmarshal(v, &b); err != nil {
				return fmt.Errorf("decode ban %s: %w", k, err)
			}
			out = append(out, b)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("persist: load bans: %w", err)
	}
	return out, nil
}
