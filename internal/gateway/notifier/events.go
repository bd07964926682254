package notifier

import (
	"fmt"
	"time"

	"coinbutler/internal/logger"
)

// Sink wraps a TextNotifier with the event vocabulary the orchestrator emits.
// Every send is fire-and-forget: delivery failures are logged and never fed
// back into control flow.
type Sink struct {
	notifier TextNotifier
}

func NewSink(n TextNotifier) *Sink {
	if n == nil {
		n = Noop{}
	}
	return &Sink{notifier: n}
}

func (s *Sink) NotifyBuy(instrument string, price, invested float64, reason string) {
	s.send(fmt.Sprintf("🟢 *买入成交* %s\n价格: %.4f\n投入: %.2f\n理由: %s\n时间: %s",
		instrument, price, invested, reason, stamp()))
}

func (s *Sink) NotifySell(instrument string, price, proceeds, pnl, pnlRate float64, reason string) {
	icon := "🔵"
	if pnl < 0 {
		icon = "🔻"
	}
	s.send(fmt.Sprintf("%s *卖出成交* %s\n价格: %.4f\n卖出金额: %.2f\n盈亏: %+.2f (%+.2f%%)\n理由: %s\n时间: %s",
		icon, instrument, price, proceeds, pnl, pnlRate*100, reason, stamp()))
}

func (s *Sink) NotifyDailyLimitBreached(dailyPnL, limit float64) {
	s.send(fmt.Sprintf("⛔ *触发日内亏损熔断*\n已实现盈亏: %.2f\n限额: %.2f\n交易已暂停，需手动恢复。\n时间: %s",
		dailyPnL, limit, stamp()))
}

func (s *Sink) NotifyError(context string, err error) {
	if err == nil {
		return
	}
	s.send(fmt.Sprintf("⚠️ *异常* %s\n%v\n时间: %s", context, err, stamp()))
}

func (s *Sink) send(text string) {
	go func() {
		if err := s.notifier.SendText(text); err != nil {
			logger.Warnf("notify failed: %v", err)
		}
	}()
}

func stamp() string {
	return time.Now().Format("2006-01-02 15:04:05 MST")
}
