package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Exchange.validate(); err != nil {
		return err
	}
	if err := c.AI.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Scanner.validate(); err != nil {
		return err
	}
	if err := c.Trading.validate(); err != nil {
		return err
	}
	return nil
}

func (e *ExchangeConfig) validate() error {
	if strings.TrimSpace(e.APIKey) == "" || strings.TrimSpace(e.SecretKey) == "" {
		return fmt.Errorf("exchange credentials missing: set BINANCE_API_KEY / BINANCE_SECRET_KEY or exchange.api_key / exchange.secret_key")
	}
	if e.TimeoutSeconds <= 0 {
		return fmt.Errorf("exchange.timeout_seconds must be > 0")
	}
	return nil
}

func (a *AIConfig) validate() error {
	if err := a.Primary.validate("ai.primary"); err != nil {
		return err
	}
	// Fallback is optional; when the endpoint is blank the engine simply
	// skips the second opinion.
	if a.Fallback.APIURL != "" {
		if err := a.Fallback.validate("ai.fallback"); err != nil {
			return err
		}
	}
	if a.BreakerThreshold <= 0 {
		return fmt.Errorf("ai.breaker_threshold must be > 0")
	}
	if a.BreakerTimeoutSeconds <= 0 {
		return fmt.Errorf("ai.breaker_timeout_seconds must be > 0")
	}
	return nil
}

func (m *ModelConfig) validate(section string) error {
	if strings.TrimSpace(m.APIURL) == "" {
		return fmt.Errorf("%s.api_url cannot be empty", section)
	}
	if strings.TrimSpace(m.Model) == "" {
		return fmt.Errorf("%s.model cannot be empty", section)
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	tg := n.Telegram
	if tg.Enabled && (strings.TrimSpace(tg.BotToken) == "" || strings.TrimSpace(tg.ChatID) == "") {
		return fmt.Errorf("notify.telegram enabled but bot_token/chat_id missing")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.ProfitTarget <= 0 {
		return fmt.Errorf("risk.profit_target must be > 0 (fraction, e.g. 0.03)")
	}
	if r.StopLoss >= 0 {
		return fmt.Errorf("risk.stop_loss must be < 0 (fraction, e.g. -0.02)")
	}
	if r.DailyLossLimit >= 0 {
		return fmt.Errorf("risk.daily_loss_limit must be < 0")
	}
	if r.MaxPositions <= 0 {
		return fmt.Errorf("risk.max_positions must be > 0")
	}
	if r.ConfidenceThreshold < 1 || r.ConfidenceThreshold > 10 {
		return fmt.Errorf("risk.confidence_threshold must be within [1,10]")
	}
	if r.SwapLossThreshold >= 0 {
		return fmt.Errorf("risk.swap_loss_threshold must be < 0")
	}
	if r.SwapMinHoldingDays < 0 {
		return fmt.Errorf("risk.swap_min_holding_days must be >= 0")
	}
	return nil
}

func (s *ScannerConfig) validate() error {
	if s.CandleMinutes <= 0 {
		return fmt.Errorf("scanner.candle_minutes must be > 0")
	}
	if s.Lookback < 1 {
		return fmt.Errorf("scanner.lookback must be >= 1")
	}
	if s.VolumeMultiplier <= 0 {
		return fmt.Errorf("scanner.volume_multiplier must be > 0")
	}
	if s.ChangeCeiling <= 0 {
		return fmt.Errorf("scanner.change_ceiling must be > 0")
	}
	if s.MaxCandidates <= 0 {
		return fmt.Errorf("scanner.max_candidates must be > 0")
	}
	return nil
}

func (t *TradingConfig) validate() error {
	if t.TickSeconds <= 0 {
		return fmt.Errorf("trading.tick_seconds must be > 0")
	}
	if t.MinOrderQuote <= 0 {
		return fmt.Errorf("trading.min_order_quote must be > 0")
	}
	if t.MaxBalanceRatio <= 0 || t.MaxBalanceRatio > 1 {
		return fmt.Errorf("trading.max_balance_ratio must be within (0,1]")
	}
	if t.SettleDelaySeconds < 0 {
		return fmt.Errorf("trading.settle_delay_seconds must be >= 0")
	}
	return nil
}
