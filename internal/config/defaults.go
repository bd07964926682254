package config

// 默认值常量
const (
	defaultAppEnv            = "dev"
	defaultAppLogLevel       = "info"
	defaultAppHTTPAddr       = ":9980"
	defaultAppLogPath        = "data/logs/coinbutler.log"
	defaultPositionDB        = "data/db/positions.db"
	defaultTradeLogDB        = "data/db/trades.db"
	defaultReportTitle       = "CoinButler P&L"
	defaultStatsDays         = 7
	defaultRecentTrades      = 50
	defaultExchangeName      = "binance"
	defaultExchangeREST      = "https://api.binance.com"
	defaultExchangeQuote     = "USDT"
	defaultExchangeTimeout   = 10
	defaultModelTimeout      = 60
	defaultModelRetries      = 2
	defaultPromptsPath       = "configs/prompts.yaml"
	defaultBreakerThreshold  = 3
	defaultBreakerTimeout    = 300
	defaultRiskProfilePath   = "configs/risk_profile.yaml"
	defaultProfitTarget      = 0.03
	defaultStopLoss          = -0.02
	defaultDailyLossLimit    = -500
	defaultMaxPositions      = 3
	defaultConfidence        = 6
	defaultSwapLoss          = -0.05
	defaultSwapHoldingDays   = 1.0
	defaultCandleMinutes     = 5
	defaultLookback          = 4
	defaultVolumeMultiplier  = 2.0
	defaultChangeCeiling     = 0.05
	defaultUniverseSize      = 60
	defaultMaxCandidates     = 10
	defaultMinQuoteVolume    = 1_000_000
	defaultTickSeconds       = 60
	defaultScanMinutes       = 10
	defaultBalanceMinutes    = 30
	defaultSwapCheckMinutes  = 5
	defaultSettleDelay       = 3
	defaultOrderPollSeconds  = 2
	defaultOrderPollTimeout  = 60
	defaultMinOrderQuote     = 10
	defaultMaxBalanceRatio   = 0.8
)

// applyDefaults 为所有子配置应用默认值（零值即视为未设置；stop_loss 等
// 合法值为负的字段同样以零值判断，显式配 0 会在校验阶段被拒绝）。
func (c *Config) applyDefaults() {
	c.App.applyDefaults()
	c.Exchange.applyDefaults()
	c.AI.applyDefaults()
	c.Risk.applyDefaults()
	c.Scanner.applyDefaults()
	c.Trading.applyDefaults()
}

func (a *AppConfig) applyDefaults() {
	setString(&a.Env, defaultAppEnv)
	setString(&a.LogLevel, defaultAppLogLevel)
	setString(&a.HTTPAddr, defaultAppHTTPAddr)
	setString(&a.LogPath, defaultAppLogPath)
	setString(&a.PositionDB, defaultPositionDB)
	setString(&a.TradeLogDB, defaultTradeLogDB)
	setString(&a.ReportTitle, defaultReportTitle)
	setInt(&a.StatsDays, defaultStatsDays)
	setInt(&a.RecentTrades, defaultRecentTrades)
}

func (e *ExchangeConfig) applyDefaults() {
	setString(&e.Name, defaultExchangeName)
	setString(&e.RESTBaseURL, defaultExchangeREST)
	setString(&e.Quote, defaultExchangeQuote)
	setInt(&e.TimeoutSeconds, defaultExchangeTimeout)
}

func (a *AIConfig) applyDefaults() {
	a.Primary.applyDefaults("primary")
	a.Fallback.applyDefaults("fallback")
	setString(&a.PromptsPath, defaultPromptsPath)
	setInt(&a.BreakerThreshold, defaultBreakerThreshold)
	setInt(&a.BreakerTimeoutSeconds, defaultBreakerTimeout)
}

func (m *ModelConfig) applyDefaults(role string) {
	setString(&m.Name, role)
	setInt(&m.TimeoutSeconds, defaultModelTimeout)
	setInt(&m.MaxRetries, defaultModelRetries)
}

func (r *RiskConfig) applyDefaults() {
	setString(&r.ProfilePath, defaultRiskProfilePath)
	setFloat(&r.ProfitTarget, defaultProfitTarget)
	setFloat(&r.StopLoss, defaultStopLoss)
	setFloat(&r.DailyLossLimit, defaultDailyLossLimit)
	setInt(&r.MaxPositions, defaultMaxPositions)
	setInt(&r.ConfidenceThreshold, defaultConfidence)
	setFloat(&r.SwapLossThreshold, defaultSwapLoss)
	setFloat(&r.SwapMinHoldingDays, defaultSwapHoldingDays)
}

func (s *ScannerConfig) applyDefaults() {
	setInt(&s.CandleMinutes, defaultCandleMinutes)
	setInt(&s.Lookback, defaultLookback)
	setFloat(&s.VolumeMultiplier, defaultVolumeMultiplier)
	setFloat(&s.ChangeCeiling, defaultChangeCeiling)
	setInt(&s.UniverseSize, defaultUniverseSize)
	setInt(&s.MaxCandidates, defaultMaxCandidates)
	setFloat(&s.MinQuoteVolume, defaultMinQuoteVolume)
}

func (t *TradingConfig) applyDefaults() {
	setInt(&t.TickSeconds, defaultTickSeconds)
	setInt(&t.ScanIntervalMinutes, defaultScanMinutes)
	setInt(&t.BalanceCheckMinutes, defaultBalanceMinutes)
	setInt(&t.SwapCheckMinutes, defaultSwapCheckMinutes)
	setInt(&t.SettleDelaySeconds, defaultSettleDelay)
	setInt(&t.OrderPollSeconds, defaultOrderPollSeconds)
	setInt(&t.OrderPollTimeoutSeconds, defaultOrderPollTimeout)
	setFloat(&t.MinOrderQuote, defaultMinOrderQuote)
	setFloat(&t.MaxBalanceRatio, defaultMaxBalanceRatio)
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

func setFloat(dst *float64, def float64) {
	if *dst == 0 {
		*dst = def
	}
}
