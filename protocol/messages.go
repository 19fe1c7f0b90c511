// Package protocol 客户端 ↔ 房间的封闭消息集合（入站/出站各一组）以及编解码。
package protocol

import "github.com/IamMikeHelsel/2DG-sub000/gamemap"

// Inbound 入站消息
type Inbound interface {
	Kind() string
}

// Outbound 出站消息
type Outbound interface {
	Kind() string
}

// 入站消息类型名
const (
	KindInput       = "input"
	KindAttack      = "attack"
	KindChat        = "chat"
	KindChatChannel = "chat_channel"
	KindPartyInvite = "party_invite"
	KindPartyAccept = "party_accept"
	KindPartyLeave  = "party_leave"
	KindShopList    = "shop:list"
	KindShopBuy     = "shop:buy"
	KindBugReport   = "bug_report"
	KindReferral    = "referral"
	KindUsePotion   = "use_potion"
)

// 出站消息类型名
const (
	KindWelcome      = "welcome"
	KindSnapshot     = "snapshot"
	KindChatError    = "chat_error"
	KindPartyUpdated = "party_updated"
	KindShopResult   = "shop:result"
	KindBugResult    = "bug_report:result"
	KindReferralRes  = "referral:result"
	KindAnniversary  = "anniversary:reward"
	KindKicked       = "kicked"
)

// Input 移动输入（意图），下一个 Tick 生效
type Input struct {
	Seq   uint32 `json:"seq"`
	Up    bool   `json:"up"`
	Down  bool   `json:"down"`
	Left  bool   `json:"left"`
	Right bool   `json:"right"`
}

type Attack struct{}

type Chat struct {
	Text    string `json:"text"`
	Channel string `json:"channel,omitempty"`
}

type ChatChannel struct {
	Channel string `json:"channel"`
}

type PartyInvite struct {
	TargetID string `json:"targetId"`
}

type PartyAccept struct {
	PartyID string `json:"partyId"`
}

type PartyLeave struct{}

type ShopList struct{}

type ShopBuy struct {
	ItemID string `json:"itemId"`
	Qty    int    `json:"qty"`
}

type BugReport struct {
	Description string `json:"description"`
}

type Referral struct {
	ReferredPlayerID string `json:"referredPlayerId"`
}

type UsePotion struct{}

func (Input) Kind() string       { return KindInput }
func (Attack) Kind() string      { return KindAttack }
func (Chat) Kind() string        { return KindChat }
func (ChatChannel) Kind() string { return KindChatChannel }
func (PartyInvite) Kind() string { return KindPartyInvite }
func (PartyAccept) Kind() string { return KindPartyAccept }
func (PartyLeave) Kind() string  { return KindPartyLeave }
func (ShopList) Kind() string    { return KindShopList }
func (ShopBuy) Kind() string     { return KindShopBuy }
func (BugReport) Kind() string   { return KindBugReport }
func (Referral) Kind() string    { return KindReferral }
func (UsePotion) Kind() string   { return KindUsePotion }

var inboundTypes = map[string]func() Inbound{
	KindInput:       func() Inbound { return &Input{} },
	KindAttack:      func() Inbound { return &Attack{} },
	KindChat:        func() Inbound { return &Chat{} },
	KindChatChannel: func() Inbound { return &ChatChannel{} },
	KindPartyInvite: func() Inbound { return &PartyInvite{} },
	KindPartyAccept: func() Inbound { return &PartyAccept{} },
	KindPartyLeave:  func() Inbound { return &PartyLeave{} },
	KindShopList:    func() Inbound { return &ShopList{} },
	KindShopBuy:     func() Inbound { return &ShopBuy{} },
	KindBugReport:   func() Inbound { return &BugReport{} },
	KindReferral:    func() Inbound { return &Referral{} },
	KindUsePotion:   func() Inbound { return &UsePotion{} },
}

// PlayerState 同步给客户端的玩家字段（显式字段列表，仅这些字段参与差量）
type PlayerState struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Dir       int     `json:"dir"`
	Seq       uint32  `json:"seq"`
	HP        int     `json:"hp"`
	MaxHP     int     `json:"maxHp"`
	Gold      int     `json:"gold"`
	Potions   int     `json:"potions"`
	PartyID   string  `json:"partyId,omitempty"`
	Title     string  `json:"title,omitempty"`
	ChatColor string  `json:"chatColor,omitempty"`
	Tier      string  `json:"tier,omitempty"`
}

// MobState 同步给客户端的怪物字段
type MobState struct {
	ID    string  `json:"id"`
	Kind  string  `json:"kind"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	HP    int     `json:"hp"`
	MaxHP int     `json:"maxHp"`
}

// Welcome 加入成功后发送一次：自身 ID 与静态地图
type Welcome struct {
	SelfID   string       `json:"selfId"`
	Room     string       `json:"room"`
	TickRate int          `json:"tickRate"`
	Map      *gamemap.Map `json:"map"`
}

// Snapshot 全量（Full）或差量状态；差量只含变化实体与已移除 ID
type Snapshot struct {
	Full       bool          `json:"full"`
	Tick       uint64        `json:"tick"`
	ServerTime int64         `json:"serverTime"`
	Players    []PlayerState `json:"players,omitempty"`
	Mobs       []MobState    `json:"mobs,omitempty"`
	Removed    []string      `json:"removed,omitempty"`
}

// ChatMessage 聊天广播 / 回显
type ChatMessage struct {
	ID       string `json:"id"`
	SenderID string `json:"senderId,omitempty"`
	Sender   string `json:"sender"`
	Text     string `json:"text"`
	Channel  string `json:"channel"`
	Target   string `json:"target,omitempty"`
	Time     int64  `json:"time"`
	Title    string `json:"title,omitempty"`
	Color    string `json:"color,omitempty"`
}

// ChatError 面向发送者的可见错误
type ChatError struct {
	Message string `json:"message"`
}

// PartyInviteNotice 仅发给被邀请者
type PartyInviteNotice struct {
	PartyID     string `json:"partyId"`
	InviterID   string `json:"inviterId"`
	InviterName string `json:"inviterName"`
}

// PartyMember 队伍成员快照
type PartyMember struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	HP   int    `json:"hp"`
}

// PartyUpdated 完整队伍快照；Disbanded 或离队者收到时 Members 为空
type PartyUpdated struct {
	PartyID    string        `json:"partyId"`
	LeaderID   string        `json:"leaderId,omitempty"`
	Members    []PartyMember `json:"members"`
	MaxMembers int           `json:"maxMembers"`
	Disbanded  bool          `json:"disbanded,omitempty"`
}

// ShopItem 商店条目
type ShopItem struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int    `json:"price"`
}

// ShopResult 商店操作结果
type ShopResult struct {
	OK      bool       `json:"ok"`
	Action  string     `json:"action"`
	Message string     `json:"message,omitempty"`
	Items   []ShopItem `json:"items,omitempty"`
	Gold    int        `json:"gold"`
	Potions int        `json:"potions"`
}

// BugReportResult 提交反馈结果
type BugReportResult struct {
	OK       bool     `json:"ok"`
	Message  string   `json:"message,omitempty"`
	Count    int      `json:"count"`
	Upgraded bool     `json:"upgraded,omitempty"`
	Rewards  []string `json:"rewards,omitempty"`
}

// ReferralResult 推荐结果
type ReferralResult struct {
	OK      bool     `json:"ok"`
	Message string   `json:"message,omitempty"`
	Count   int      `json:"count"`
	Rewards []string `json:"rewards,omitempty"`
}

// AnniversaryReward 周年纪念奖励通知
type AnniversaryReward struct {
	RewardID string `json:"rewardId"`
	Message  string `json:"message"`
}

// Kicked 断开前的通知
type Kicked struct {
	Reason string `json:"reason"`
}

func (Welcome) Kind() string           { return KindWelcome }
func (Snapshot) Kind() string          { return KindSnapshot }
func (ChatMessage) Kind() string       { return KindChat }
func (ChatError) Kind() string         { return KindChatError }
func (PartyInviteNotice) Kind() string { return KindPartyInvite }
func (PartyUpdated) Kind() string      { return KindPartyUpdated }
func (ShopResult) Kind() string        { return KindShopResult }
func (BugReportResult) Kind() string   { return KindBugResult }
func (ReferralResult) Kind() string    { return KindReferralRes }
func (AnniversaryReward) Kind() string { return KindAnniversary }
func (Kicked) Kind() string            { return KindKicked }
