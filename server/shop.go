package server

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/IamMikeHelsel/2DG-sub000/chat"
	"github.com/IamMikeHelsel/2DG-sub000/gamemap"
	"github.com/IamMikeHelsel/2DG-sub000/protocol"
)

const (
	ItemPotion        = "potion"
	ItemTrainingDummy = "training_dummy"

	maxBuyQty  = 10
	potionHeal = 30
)

// shopItems 商品目录（顺序即 shop:list 返回顺序）
var shopItems = []protocol.ShopItem{
	{ID: ItemPotion, Name: "Health Potion", Price: 10},
	{ID: ItemTrainingDummy, Name: "Training Dummy", Price: 50},
}

func findItem(id string) (protocol.ShopItem, bool) {
	for _, it := range shopItems {
		if it.ID == id {
			return it, true
		}
	}
	return protocol.ShopItem{}, false
}

// nearShop 玩家是否在任一商店触发器范围内
func (r *Room) nearShop(p *Player) bool {
	for _, t := range r.world.Triggers {
		if t.Kind != "shop" {
			continue
		}
		if chat.WithinRange(p.X, p.Y, float64(t.X), float64(t.Y), float64(t.Radius)) {
			return true
		}
	}
	return false
}

func (r *Room) shopFail(p *Player, action, msg string) {
	p.send(protocol.ShopResult{Action: action, Message: msg, Gold: p.Gold, Potions: p.Potions})
}

func (r *Room) shopList(p *Player) {
	if !r.nearShop(p) {
		r.shopFail(p, "list", "You need to be at the shop.")
		return
	}
	p.send(protocol.ShopResult{OK: true, Action: "list", Items: shopItems, Gold: p.Gold, Potions: p.Potions})
}

// shopLimiter 每个玩家一个令牌桶，参数来自当前运行参数
func (r *Room) shopLimiter(p *Player) *rate.Limiter {
	l, ok := r.shopLimits[p.ID]
	if !ok {
		burst := max(r.tun.ShopBurst, 1)
		l = rate.NewLimiter(rate.Every(r.tun.ShopWindow/time.Duration(burst)), burst)
		r.shopLimits[p.ID] = l
	}
	return l
}

// shopBuy 校验位置、数量、限流与余额后扣款并发放；失败时不产生任何变化
func (r *Room) shopBuy(p *Player, itemID string, qty int, now time.Time) {
	const action = "buy"
	if !r.nearShop(p) {
		r.shopFail(p, action, "You need to be at the shop.")
		return
	}
	item, ok := findItem(itemID)
	if !ok {
		r.shopFail(p, action, "Unknown item: "+itemID)
		return
	}
	if qty == 0 {
		qty = 1
	}
	if qty < 1 || qty > maxBuyQty {
		r.shopFail(p, action, fmt.Sprintf("Quantity must be between 1 and %d.", maxBuyQty))
		return
	}
	if !r.shopLimiter(p).AllowN(now, 1) {
		r.shopFail(p, action, "You are buying too quickly, please wait.")
		return
	}
	cost := item.Price * qty
	if p.Gold < cost {
		r.shopFail(p, action, fmt.Sprintf("Not enough gold (need %d).", cost))
		return
	}

	switch item.ID {
	case ItemPotion:
		if p.Potions+qty > MaxPotions {
			r.shopFail(p, action, fmt.Sprintf("You can carry at most %d potions.", MaxPotions))
			return
		}
		p.addPotions(qty)
	case ItemTrainingDummy:
		x, y := r.dummySpot(p)
		for n := 0; n < qty; n++ {
			r.spawnMob(MobKindDummy, x, y)
		}
	}
	p.addGold(-cost)
	r.log.Debugw("shop purchase", "player", p.ID, "item", item.ID, "qty", qty, "cost", cost)
	p.send(protocol.ShopResult{
		OK:      true,
		Action:  action,
		Message: fmt.Sprintf("Bought %d x %s for %d gold.", qty, item.Name, cost),
		Gold:    p.Gold,
		Potions: p.Potions,
	})
}

// dummySpot 面前一格可行走则放在面前，否则放在玩家脚下
func (r *Room) dummySpot(p *Player) (int, int) {
	px, py := p.Tile()
	dx, dy := p.Dir.Vector()
	if gamemap.IsWalkable(r.world.Grid, px+dx, py+dy) {
		return px + dx, py + dy
	}
	return px, py
}

// usePotion 消耗一瓶药水回复 30 点生命；满血或死亡时不消耗
func (r *Room) usePotion(p *Player) {
	const action = "use_potion"
	switch {
	case !p.Alive():
		r.shopFail(p, action, "You cannot drink while defeated.")
	case p.Potions == 0:
		r.shopFail(p, action, "You have no potions.")
	case p.HP == p.MaxHP:
		r.shopFail(p, action, "You are already at full health.")
	default:
		p.addPotions(-1)
		p.heal(potionHeal)
		p.send(protocol.ShopResult{OK: true, Action: action, Message: "You feel better.", Gold: p.Gold, Potions: p.Potions})
	}
}
