package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/IamMikeHelsel/2DG-sub000/chat"
	"github.com/IamMikeHelsel/2DG-sub000/founder"
	"github.com/IamMikeHelsel/2DG-sub000/protocol"
)

const maxBugReportLength = 1000

// bugReport 记录一次反馈；达到阈值的无等级玩家升级为 bug hunter
func (r *Room) bugReport(p *Player, desc string) {
	text, err := chat.Sanitize(desc, maxBugReportLength)
	if err != nil {
		p.send(protocol.BugReportResult{Message: "Please describe the bug.", Count: p.Rewards.BugReports})
		return
	}
	upgraded, granted := r.tracker.RecordBugReport(&p.Rewards)
	r.log.Infow("bug report", "player", p.ID, "name", p.Name, "count", p.Rewards.BugReports, "text", text)
	msg := "Thanks for the report!"
	if upgraded {
		msg = fmt.Sprintf("Thanks! You are now a %s.", rewardTitle(p))
		r.log.Infow("founder tier upgraded", "player", p.ID, "tier", p.Rewards.Tier)
	}
	p.send(protocol.BugReportResult{
		OK:       true,
		Message:  msg,
		Count:    p.Rewards.BugReports,
		Upgraded: upgraded,
		Rewards:  granted,
	})
}

// referral 记录推荐；重复推荐与自我推荐被拒绝且不计数
func (r *Room) referral(p *Player, referredID string) {
	referredID = strings.TrimSpace(referredID)
	if referredID == "" {
		p.send(protocol.ReferralResult{Message: "Missing referred player.", Count: p.Rewards.Referrals})
		return
	}
	granted, err := r.tracker.RecordReferral(&p.Rewards, p.ID, referredID)
	if err != nil {
		if !errors.Is(err, founder.ErrDuplicateReferral) && !errors.Is(err, founder.ErrSelfReferral) {
			r.log.Warnw("referral failed", "player", p.ID, "err", err)
		}
		p.send(protocol.ReferralResult{Message: err.Error(), Count: p.Rewards.Referrals})
		return
	}
	msg := "Referral recorded."
	if len(granted) > 0 {
		msg = "Referral milestone reached!"
	}
	p.send(protocol.ReferralResult{OK: true, Message: msg, Count: p.Rewards.Referrals, Rewards: granted})
}

func rewardTitle(p *Player) string {
	if p.Rewards.Title != "" {
		return p.Rewards.Title
	}
	return string(p.Rewards.Tier)
}
