// Package founder 创始玩家等级判定与里程碑奖励。
package founder

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Tier 创始等级，加入时确定后不再回溯变更
type Tier string

const (
	TierNone       Tier = "none"
	TierEarlyBird  Tier = "early_bird"
	TierBetaTester Tier = "beta_tester"
	TierBugHunter  Tier = "bug_hunter"
)

// 里程碑奖励组
const (
	MilestoneReferral = "referral_champion"
)

const (
	DefaultEarlyBirdLimit    = 50
	DefaultBetaWindow        = 30 * 24 * time.Hour
	DefaultBugHunterReports  = 5
	DefaultReferralThreshold = 3
)

var (
	ErrDuplicateReferral = errors.New("player already referred")
	ErrSelfReferral      = errors.New("you cannot refer yourself")
)

// RewardKind 奖励类别；title/color 会立即作用到玩家状态
type RewardKind string

const (
	KindBadge    RewardKind = "badge"
	KindTitle    RewardKind = "title"
	KindColor    RewardKind = "chat_color"
	KindCosmetic RewardKind = "cosmetic"
)

// Reward 奖励定义
type Reward struct {
	ID    string     `json:"id"`
	Kind  RewardKind `json:"kind"`
	Value string     `json:"value,omitempty"`
}

// Catalog 全部奖励
var Catalog = map[string]Reward{
	"founder_badge":      {ID: "founder_badge", Kind: KindBadge},
	"title_founder":      {ID: "title_founder", Kind: KindTitle, Value: "Founder"},
	"chat_gold":          {ID: "chat_gold", Kind: KindColor, Value: "#FFD700"},
	"pet_slime":          {ID: "pet_slime", Kind: KindCosmetic},
	"beta_badge":         {ID: "beta_badge", Kind: KindBadge},
	"title_beta":         {ID: "title_beta", Kind: KindTitle, Value: "Beta Tester"},
	"chat_silver":        {ID: "chat_silver", Kind: KindColor, Value: "#C0C0C0"},
	"bug_hunter_badge":   {ID: "bug_hunter_badge", Kind: KindBadge},
	"title_bug_hunter":   {ID: "title_bug_hunter", Kind: KindTitle, Value: "Bug Hunter"},
	"chat_green":         {ID: "chat_green", Kind: KindColor, Value: "#4CAF50"},
	"referral_badge":     {ID: "referral_badge", Kind: KindBadge},
	"title_ambassador":   {ID: "title_ambassador", Kind: KindTitle, Value: "Ambassador"},
	"anniversary_banner": {ID: "anniversary_banner", Kind: KindCosmetic},
}

// Sets 等级/里程碑 → 奖励 ID 列表
var Sets = map[string][]string{
	string(TierEarlyBird):  {"founder_badge", "title_founder", "chat_gold", "pet_slime"},
	string(TierBetaTester): {"beta_badge", "title_beta", "chat_silver"},
	string(TierBugHunter):  {"bug_hunter_badge", "title_bug_hunter", "chat_green"},
	MilestoneReferral:      {"referral_badge", "title_ambassador"},
}

// Rewards 玩家身上的奖励状态
type Rewards struct {
	Tier       Tier     `json:"tier"`
	Unlocked   []string `json:"unlocked"`
	Title      string   `json:"title,omitempty"`
	ChatColor  string   `json:"chatColor,omitempty"`
	BugReports int      `json:"bugReports"`
	Referrals  int      `json:"referrals"`
	Referred   []string `json:"referred,omitempty"`
}

// Assigned 是否已判定过等级（存档恢复的等级不再重新计算）
func (r *Rewards) Assigned() bool { return r.Tier != "" }

// Clone 深拷贝，供存档快照使用
func (r Rewards) Clone() Rewards {
	r.Unlocked = slices.Clone(r.Unlocked)
	r.Referred = slices.Clone(r.Referred)
	return r
}

// Has 是否已解锁
func (r *Rewards) Has(id string) bool { return slices.Contains(r.Unlocked, id) }

// Tracker 等级判定参数
type Tracker struct {
	Launch            time.Time
	EarlyBirdLimit    int
	BetaWindow        time.Duration
	BugHunterReports  int
	ReferralThreshold int
}

// NewTracker 默认阈值
func NewTracker(launch time.Time) *Tracker {
	return &Tracker{
		Launch:            launch,
		EarlyBirdLimit:    DefaultEarlyBirdLimit,
		BetaWindow:        DefaultBetaWindow,
		BugHunterReports:  DefaultBugHunterReports,
		ReferralThreshold: DefaultReferralThreshold,
	}
}

// DetermineTier 前 N 个加入者获得最高等级；之后在上线窗口内加入获得 beta；其余无
func (t *Tracker) DetermineTier(joinOrder int, joinedAt time.Time) Tier {
	if joinOrder >= 1 && joinOrder <= t.EarlyBirdLimit {
		return TierEarlyBird
	}
	if !joinedAt.Before(t.Launch) && joinedAt.Sub(t.Launch) <= t.BetaWindow {
		return TierBetaTester
	}
	return TierNone
}

// AssignAtJoin 加入时确定等级并发放奖励
func (t *Tracker) AssignAtJoin(r *Rewards, joinOrder int, joinedAt time.Time) []string {
	tier := t.DetermineTier(joinOrder, joinedAt)
	r.Tier = tier
	if tier == TierNone {
		return nil
	}
	return Grant(r, string(tier))
}

// Grant 发放奖励组；已解锁的 ID 不重复追加，返回本次新增的 ID
func Grant(r *Rewards, set string) []string {
	var added []string
	for _, id := range Sets[set] {
		added = append(added, unlock(r, id)...)
	}
	return added
}

func unlock(r *Rewards, id string) []string {
	if r.Has(id) {
		return nil
	}
	r.Unlocked = append(r.Unlocked, id)
	if rw, ok := Catalog[id]; ok {
		switch rw.Kind {
		case KindTitle:
			r.Title = rw.Value
		case KindColor:
			r.ChatColor = rw.Value
		}
	}
	return []string{id}
}

// RecordBugReport 计数；仍为无等级且达到阈值时就地升级为 bug hunter（仅一次）
func (t *Tracker) RecordBugReport(r *Rewards) (upgraded bool, granted []string) {
	r.BugReports++
	if r.Tier != TierNone || r.BugReports < t.BugHunterReports {
		return false, nil
	}
	r.Tier = TierBugHunter
	return true, Grant(r, string(TierBugHunter))
}

// RecordReferral 记录一次不重复的推荐；达到阈值时发放里程碑奖励
func (t *Tracker) RecordReferral(r *Rewards, selfID, referredID string) ([]string, error) {
	if referredID == selfID {
		return nil, ErrSelfReferral
	}
	if slices.Contains(r.Referred, referredID) {
		return nil, ErrDuplicateReferral
	}
	r.Referred = append(r.Referred, referredID)
	r.Referrals++
	if r.Referrals >= t.ReferralThreshold {
		return Grant(r, MilestoneReferral), nil
	}
	return nil, nil
}

// Anniversary 上线周年当天加入时发放一次性纪念奖励
func (t *Tracker) Anniversary(r *Rewards, now time.Time) (string, bool) {
	years := now.Year() - t.Launch.Year()
	if years < 1 || now.Month() != t.Launch.Month() || now.Day() != t.Launch.Day() {
		return "", false
	}
	id := fmt.Sprintf("anniversary_%d", years)
	if r.Has(id) {
		return "", false
	}
	r.Unlocked = append(r.Unlocked, id)
	unlock(r, "anniversary_banner")
	return id, true
}
