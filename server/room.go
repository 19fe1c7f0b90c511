package server

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/IamMikeHelsel/2DG-sub000/chat"
	"github.com/IamMikeHelsel/2DG-sub000/config"
	"github.com/IamMikeHelsel/2DG-sub000/founder"
	"github.com/IamMikeHelsel/2DG-sub000/gamemap"
	"github.com/IamMikeHelsel/2DG-sub000/moderation"
	"github.com/IamMikeHelsel/2DG-sub000/party"
	"github.com/IamMikeHelsel/2DG-sub000/persist"
	"github.com/IamMikeHelsel/2DG-sub000/protocol"
	"github.com/IamMikeHelsel/2DG-sub000/timers"
)

var (
	ErrRoomClosed = errors.New("room is closed")
	ErrNameTaken  = errors.New("a player with that name is already connected")
	ErrBanned     = errors.New("you are banned")
)

// Session 房间向客户端发送消息的出口；实现必须非阻塞
type Session interface {
	Send(msg protocol.Outbound)
	Close(reason string)
}

// CharacterStore 角色存档（外部协作者）
type CharacterStore interface {
	LoadCharacter(name string) (persist.Character, bool, error)
	SaveCharacter(c persist.Character) error
}

// BanStore 封禁持久化（外部协作者）
type BanStore interface {
	moderation.BanStore
	LoadBans() ([]moderation.Ban, error)
}

// RoomOptions 房间依赖与参数；零值字段使用默认
type RoomOptions struct {
	Map           gamemap.Options
	Tunables      config.Tunables
	Launch        time.Time
	Roles         map[string]moderation.Role // 小写名称 → 角色
	Store         CharacterStore
	Bans          BanStore
	AuditSink     moderation.AuditSink
	JoinOrderBase int
	NextJoinOrder func() int // 多房间共享的加入序号；nil 时房间自行计数
	Clock         func() time.Time
	Collectors    *Collectors
}

// Room 房间世界：权威状态维护在内存；消息处理与 Tick 在同一把锁上串行执行
type Room struct {
	ID string

	mu      sync.Mutex
	world   *gamemap.Map
	players map[string]*Player
	order   []string          // 加入顺序，决定遍历与命中顺序
	byName  map[string]string // 小写名称 → 玩家 ID
	mobs    []*Mob
	mobSeq  int
	// mobIndex 怪物 ID 索引
	mobIndex map[string]*Mob

	inputs     map[string]protocol.Input
	timers     *timers.Queue
	chatLimit  *chat.RateLimiter
	shopLimits map[string]*rate.Limiter
	parties    *party.Manager
	bans       *moderation.BanList
	audit      *moderation.AuditLog
	tracker    *founder.Tracker
	roles      map[string]moderation.Role

	tun       config.Tunables
	store     CharacterStore
	writer    *saveWriter
	nextOrder func() int

	tickSeq     uint64
	broadcasts  uint64
	lastPlayers map[string]protocol.PlayerState
	lastMobs    map[string]protocol.MobState
	removed     []string
	lastSave    time.Time

	now        func() time.Time
	log        *zap.SugaredLogger
	metrics    *RoomMetrics
	collectors *Collectors

	closed        bool
	done          chan struct{}
	tickerStarted bool
	onClose       func(*Room)
}

// NewRoom 创建房间：生成地图并放置初始怪物；地图生成失败则房间创建失败
func NewRoom(id string, opts RoomOptions) (*Room, error) {
	if opts.Map.Width == 0 && opts.Map.Height == 0 {
		opts.Map = gamemap.DefaultOptions()
	}
	world, err := gamemap.Generate(opts.Map)
	if err != nil {
		return nil, fmt.Errorf("room %s: %w", id, err)
	}
	if opts.Tunables == (config.Tunables{}) {
		opts.Tunables = config.DefaultTunables()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Collectors == nil {
		opts.Collectors = NewCollectors(nil)
	}
	launch := opts.Launch
	if launch.IsZero() {
		launch = opts.Clock()
	}

	var banStore moderation.BanStore
	if opts.Bans != nil {
		banStore = opts.Bans
	}
	r := &Room{
		ID:          id,
		world:       world,
		players:     make(map[string]*Player),
		byName:      make(map[string]string),
		mobIndex:    make(map[string]*Mob),
		inputs:      make(map[string]protocol.Input),
		timers:      timers.New(),
		chatLimit:   chat.NewRateLimiter(opts.Tunables.ChatRateLimit, opts.Tunables.ChatRateWindow),
		shopLimits:  make(map[string]*rate.Limiter),
		parties:     party.NewManager(party.DefaultMaxMembers, party.DefaultInviteTTL),
		bans:        moderation.NewBanList(banStore),
		audit:       moderation.NewAuditLog(moderation.DefaultAuditCap, opts.AuditSink),
		tracker:     founder.NewTracker(launch),
		roles:       make(map[string]moderation.Role),
		tun:         opts.Tunables,
		store:       opts.Store,
		nextOrder:   opts.NextJoinOrder,
		lastPlayers: make(map[string]protocol.PlayerState),
		lastMobs:    make(map[string]protocol.MobState),
		now:         opts.Clock,
		log:         Log.With("room", id),
		metrics:     &RoomMetrics{},
		collectors:  opts.Collectors,
		done:        make(chan struct{}),
	}
	if r.nextOrder == nil {
		r.nextOrder = counterFrom(opts.JoinOrderBase)
	}
	for name, role := range opts.Roles {
		r.roles[strings.ToLower(name)] = role
	}
	if opts.Bans != nil {
		bans, err := opts.Bans.LoadBans()
		if err != nil {
			return nil, fmt.Errorf("room %s: %w", id, err)
		}
		r.bans.Load(bans)
	}
	if opts.Store != nil {
		r.writer = newSaveWriter(opts.Store, r.log, r.metrics)
	}
	for i, p := range world.Spawns.Mobs {
		kind := MobKindSlime
		if i == len(world.Spawns.Mobs)-1 {
			kind = MobKindBoss
		}
		r.spawnMob(kind, p.X, p.Y)
	}
	r.lastSave = r.now()
	return r, nil
}

func counterFrom(base int) func() int {
	var n atomic.Int64
	n.Store(int64(base))
	return func() int { return int(n.Add(1)) }
}

// Join 将玩家加入房间：读取存档 → 校验封禁与重名 → 分配创始等级 → 发送欢迎与全量快照
func (r *Room) Join(name string, sess Session) (*Player, error) {
	var (
		saved   persist.Character
		restore bool
	)
	if r.store != nil {
		c, ok, err := r.store.LoadCharacter(name)
		if err != nil {
			r.log.Warnw("load character failed, using defaults", "name", name, "err", err)
		} else {
			saved, restore = c, ok
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if r.closed {
		return nil, ErrRoomClosed
	}
	if b, ok := r.bans.IsBannedName(name, now); ok {
		if b.Permanent() {
			return nil, fmt.Errorf("%w: %s", ErrBanned, b.Reason)
		}
		return nil, fmt.Errorf("%w until %s: %s", ErrBanned, b.Expires.UTC().Format(time.RFC3339), b.Reason)
	}
	key := strings.ToLower(name)
	if _, taken := r.byName[key]; taken {
		return nil, ErrNameTaken
	}

	spawn := r.world.Spawns.Player
	p := &Player{
		ID:       uuid.NewString(),
		Name:     name,
		X:        float64(spawn.X),
		Y:        float64(spawn.Y),
		Dir:      DirDown,
		HP:       DefaultMaxHP,
		MaxHP:    DefaultMaxHP,
		Gold:     StartGold,
		Role:     r.roles[key],
		JoinedAt: now,
		Channel:  chat.Global,
		session:  sess,
	}
	if restore {
		r.applyCharacter(p, saved)
	}
	if p.JoinOrder == 0 {
		p.JoinOrder = r.nextOrder()
	}
	if !p.Rewards.Assigned() {
		r.tracker.AssignAtJoin(&p.Rewards, p.JoinOrder, p.JoinedAt)
	}

	r.players[p.ID] = p
	r.order = append(r.order, p.ID)
	r.byName[key] = p.ID
	r.collectors.Players.WithLabelValues(r.ID).Set(float64(len(r.players)))
	r.writer.Enqueue(p.character(now))

	p.send(protocol.Welcome{SelfID: p.ID, Room: r.ID, TickRate: TicksPerSecond, Map: r.world})
	p.send(r.fullSnapshot(now))
	if id, ok := r.tracker.Anniversary(&p.Rewards, now); ok {
		p.send(protocol.AnniversaryReward{RewardID: id, Message: "Happy anniversary! Thanks for playing."})
	}
	r.systemTo(p, fmt.Sprintf("Welcome, %s! Type /help for commands.", p.Name))
	r.log.Infow("player joined", "player", p.ID, "name", p.Name, "order", p.JoinOrder, "tier", p.Rewards.Tier, "role", p.Role)
	return p, nil
}

// applyCharacter 应用存档；缺失字段保留默认值，位置不可行走时回到出生点
func (r *Room) applyCharacter(p *Player, c persist.Character) {
	if c.X != nil && c.Y != nil {
		x, y := *c.X, *c.Y
		if r.inWorld(x, y) && gamemap.IsWalkable(r.world.Grid, roundTile(x), roundTile(y)) {
			p.X, p.Y = x, y
		}
	}
	if c.Gold != nil {
		p.Gold = clamp(*c.Gold, 0, MaxGold)
	}
	if c.Potions != nil {
		p.Potions = clamp(*c.Potions, 0, MaxPotions)
	}
	if c.JoinOrder > 0 {
		p.JoinOrder = c.JoinOrder
	}
	if !c.FirstSeen.IsZero() {
		p.JoinedAt = c.FirstSeen
	}
	if c.Rewards != nil && c.Rewards.Assigned() {
		p.Rewards = c.Rewards.Clone()
	}
}

// Leave 玩家断线或主动离开
func (r *Room) Leave(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removePlayer(playerID, "")
}

// removePlayer 同步清理队伍、限流、输入缓冲、邀请与定时事件；reason 非空时通知客户端并断开
func (r *Room) removePlayer(playerID, reason string) {
	p, ok := r.players[playerID]
	if !ok {
		return
	}
	now := r.now()
	if res, left := r.parties.Remove(p.ID); left {
		r.afterPartyLeave(p, res, "disconnected")
	}
	delete(r.inputs, p.ID)
	delete(r.shopLimits, p.ID)
	r.chatLimit.Forget(p.ID)
	r.timers.CancelTarget(p.ID)

	delete(r.players, p.ID)
	delete(r.byName, strings.ToLower(p.Name))
	for i, id := range r.order {
		if id == p.ID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.removed = append(r.removed, p.ID)
	r.collectors.Players.WithLabelValues(r.ID).Set(float64(len(r.players)))
	r.writer.Enqueue(p.character(now))

	if reason != "" && p.session != nil {
		p.session.Close(reason)
	}
	r.log.Infow("player left", "player", p.ID, "name", p.Name, "reason", reason)
}

// Dispatch 处理一条入站消息；移动输入只缓冲，其余立即作为原子操作执行
func (r *Room) Dispatch(playerID string, msg protocol.Inbound) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[playerID]
	if !ok || r.closed {
		return
	}
	now := r.now()
	switch m := msg.(type) {
	case *protocol.Input:
		r.bufferInput(p, *m)
	case *protocol.Attack:
		r.attack(p, now)
	case *protocol.Chat:
		r.handleChat(p, m.Text, m.Channel, now)
	case *protocol.ChatChannel:
		r.reply(p, r.switchChannel(p, m.Channel))
	case *protocol.PartyInvite:
		r.reply(p, r.inviteToParty(p, m.TargetID, now))
	case *protocol.PartyAccept:
		r.reply(p, r.acceptParty(p, m.PartyID, now))
	case *protocol.PartyLeave:
		r.reply(p, r.leaveParty(p))
	case *protocol.ShopList:
		r.shopList(p)
	case *protocol.ShopBuy:
		r.shopBuy(p, m.ItemID, m.Qty, now)
	case *protocol.UsePotion:
		r.usePotion(p)
	case *protocol.BugReport:
		r.bugReport(p, m.Description)
	case *protocol.Referral:
		r.referral(p, m.ReferredPlayerID)
	default:
		r.log.Debugw("unhandled message", "player", p.ID, "kind", msg.Kind())
	}
}

// PlayerCount 当前在线人数
func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// SetTunables 热更新运行参数
func (r *Room) SetTunables(t config.Tunables) {
	r.mu.Lock()
	defer r.mu.Unlock()
	shopChanged := t.ShopBurst != r.tun.ShopBurst || t.ShopWindow != r.tun.ShopWindow
	r.tun = t
	r.chatLimit.Configure(t.ChatRateLimit, t.ChatRateWindow)
	if shopChanged {
		// 限购参数变化时按新参数重建令牌桶
		clear(r.shopLimits)
	}
	r.log.Infow("tunables updated", "tunables", t)
}

// Tunables 当前运行参数
func (r *Room) Tunables() config.Tunables {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tun
}

// Done 房间关闭后返回的通道会被关闭
func (r *Room) Done() <-chan struct{} { return r.done }

// Close 踢出全部玩家、保存存档并停止房间
func (r *Room) Close() {
	r.mu.Lock()
	r.shutdownLocked("server is shutting down")
	r.mu.Unlock()
	r.writer.Close()
}

func (r *Room) shutdownLocked(reason string) {
	if r.closed {
		return
	}
	for _, id := range append([]string(nil), r.order...) {
		r.removePlayer(id, reason)
	}
	r.closed = true
	close(r.done)
	r.log.Infow("room closed", "reason", reason)
}

// findByName 大小写不敏感精确匹配在线玩家
func (r *Room) findByName(name string) (*Player, bool) {
	id, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	p, ok := r.players[id]
	return p, ok
}

func (r *Room) inWorld(x, y float64) bool {
	g := r.world.Grid
	return x >= 0 && y >= 0 && x <= float64(g.Width-1) && y <= float64(g.Height-1)
}

// eachPlayer 按加入顺序遍历
func (r *Room) eachPlayer(fn func(*Player)) {
	for _, id := range r.order {
		if p, ok := r.players[id]; ok {
			fn(p)
		}
	}
}

func (r *Room) systemMessage(text string, now time.Time) protocol.ChatMessage {
	return protocol.ChatMessage{
		ID:      uuid.NewString(),
		Sender:  "System",
		Text:    text,
		Channel: string(chat.System),
		Time:    now.UnixMilli(),
	}
}

// systemTo 单发系统消息
func (r *Room) systemTo(p *Player, text string) {
	p.send(r.systemMessage(text, r.now()))
}

func (r *Room) chatError(p *Player, err error) {
	r.metrics.IncChatRejected()
	p.send(protocol.ChatError{Message: err.Error()})
}
