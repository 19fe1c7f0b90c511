package moderation

import (
	"sort"
	"strings"
	"time"
)

// Ban 封禁记录；Expires 为零值表示永久
type Ban struct {
	PlayerID string    `json:"playerId" msgpack:"player_id"`
	Name     string    `json:"name" msgpack:"name"`
	Reason   string    `json:"reason" msgpack:"reason"`
	Expires  time.Time `json:"expires" msgpack:"expires"`
	IssuedBy string    `json:"issuedBy" msgpack:"issued_by"`
	IssuedAt time.Time `json:"issuedAt" msgpack:"issued_at"`
}

// Permanent 是否永久封禁
func (b Ban) Permanent() bool { return b.Expires.IsZero() }

// Expired 是否已过期
func (b Ban) Expired(now time.Time) bool {
	return !b.Permanent() && !now.Before(b.Expires)
}

// BanStore 封禁持久化（可选）
type BanStore interface {
	PutBan(b Ban) error
	DeleteBan(playerID string) error
}

// BanList 以玩家 ID 为键的封禁表，附带名称索引；过期在查询时惰性清理
type BanList struct {
	bans   map[string]Ban
	byName map[string]string
	store  BanStore
}

// NewBanList store 可为 nil
func NewBanList(store BanStore) *BanList {
	return &BanList{bans: make(map[string]Ban), byName: make(map[string]string), store: store}
}

// Load 从持久化结果恢复
func (l *BanList) Load(bans []Ban) {
	for _, b := range bans {
		l.bans[b.PlayerID] = b
		l.byName[strings.ToLower(b.Name)] = b.PlayerID
	}
}

// Add 新增或覆盖封禁
func (l *BanList) Add(b Ban) error {
	if l.store != nil {
		if err := l.store.PutBan(b); err != nil {
			return err
		}
	}
	if old, ok := l.bans[b.PlayerID]; ok {
		delete(l.byName, strings.ToLower(old.Name))
	}
	l.bans[b.PlayerID] = b
	l.byName[strings.ToLower(b.Name)] = b.PlayerID
	return nil
}

// IsBanned 按玩家 ID 查询，过期记录被清除
func (l *BanList) IsBanned(playerID string, now time.Time) (Ban, bool) {
	b, ok := l.bans[playerID]
	if !ok {
		return Ban{}, false
	}
	if b.Expired(now) {
		// 存储删除失败时保留内存记录，下次查询重试；过期记录本身不再生效
		_ = l.drop(b)
		return Ban{}, false
	}
	return b, true
}

// IsBannedName 按名称（大小写不敏感）查询
func (l *BanList) IsBannedName(name string, now time.Time) (Ban, bool) {
	id, ok := l.byName[strings.ToLower(name)]
	if !ok {
		return Ban{}, false
	}
	return l.IsBanned(id, now)
}

// Remove 按名称解除封禁；存储删除失败时内存状态不变
func (l *BanList) Remove(name string) (Ban, bool, error) {
	id, ok := l.byName[strings.ToLower(name)]
	if !ok {
		return Ban{}, false, nil
	}
	b := l.bans[id]
	if err := l.drop(b); err != nil {
		return Ban{}, true, err
	}
	return b, true, nil
}

// Active 当前有效封禁（按名称排序）
func (l *BanList) Active(now time.Time) []Ban {
	out := make([]Ban, 0, len(l.bans))
	for _, b := range l.bans {
		if b.Expired(now) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (l *BanList) drop(b Ban) error {
	if l.store != nil {
		if err := l.store.DeleteBan(b.PlayerID); err != nil {
			return err
		}
	}
	delete(l.bans, b.PlayerID)
	delete(l.byName, strings.ToLower(b.Name))
	return nil
}
