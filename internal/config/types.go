package config

// Config 是 CoinButler 的主配置载体。
type Config struct {
	App      AppConfig      `toml:"app"`
	Exchange ExchangeConfig `toml:"exchange"`
	AI       AIConfig       `toml:"ai"`
	Notify   NotifyConfig   `toml:"notify"`
	Risk     RiskConfig     `toml:"risk"`
	Scanner  ScannerConfig  `toml:"scanner"`
	Trading  TradingConfig  `toml:"trading"`
}

type AppConfig struct {
	Env          string `toml:"env"`
	LogLevel     string `toml:"log_level"`
	HTTPAddr     string `toml:"http_addr"`
	LogPath      string `toml:"log_path"`
	PositionDB   string `toml:"position_db_path"`
	TradeLogDB   string `toml:"trade_log_path"`
	ReportTitle  string `toml:"report_title"`
	StatsDays    int    `toml:"stats_days"`
	RecentTrades int    `toml:"recent_trades"`
}

// ExchangeConfig 描述现货交易所的访问方式。密钥优先从环境变量
// BINANCE_API_KEY / BINANCE_SECRET_KEY 注入，配置文件中的值仅作回退。
type ExchangeConfig struct {
	Name           string `toml:"name"`
	RESTBaseURL    string `toml:"rest_base_url"`
	Quote          string `toml:"quote"`
	APIKey         string `toml:"api_key"`
	SecretKey      string `toml:"secret_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ModelConfig 代表一个 OpenAI 兼容的模型端点。
type ModelConfig struct {
	Name           string `toml:"name"`
	APIURL         string `toml:"api_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxRetries     int    `toml:"max_retries"`
}

// AIConfig 包含主/备模型与熔断相关的所有设置。
type AIConfig struct {
	Primary               ModelConfig `toml:"primary"`
	Fallback              ModelConfig `toml:"fallback"`
	PromptsPath           string      `toml:"prompts_path"`
	BreakerThreshold      int         `toml:"breaker_threshold"`
	BreakerTimeoutSeconds int         `toml:"breaker_timeout_seconds"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// RiskConfig 的 profit_target/stop_loss/confidence_threshold 只是初始值，
// 运行期以 profile_path 指向的热加载档位为准。
type RiskConfig struct {
	ProfilePath         string  `toml:"profile_path"`
	ProfitTarget        float64 `toml:"profit_target"`
	StopLoss            float64 `toml:"stop_loss"`
	DailyLossLimit      float64 `toml:"daily_loss_limit"`
	MaxPositions        int     `toml:"max_positions"`
	ConfidenceThreshold int     `toml:"confidence_threshold"`
	SwapLossThreshold   float64 `toml:"swap_loss_threshold"`
	SwapMinHoldingDays  float64 `toml:"swap_min_holding_days"`
}

type ScannerConfig struct {
	CandleMinutes    int     `toml:"candle_minutes"`
	Lookback         int     `toml:"lookback"`
	VolumeMultiplier float64 `toml:"volume_multiplier"`
	ChangeCeiling    float64 `toml:"change_ceiling"`
	UniverseSize     int     `toml:"universe_size"`
	MaxCandidates    int     `toml:"max_candidates"`
	MinQuoteVolume   float64 `toml:"min_quote_volume"`
}

// TradingConfig 控制轮询节奏与下单资金边界。
type TradingConfig struct {
	TickSeconds             int     `toml:"tick_seconds"`
	ScanIntervalMinutes     int     `toml:"scan_interval_minutes"`
	BalanceCheckMinutes     int     `toml:"balance_check_minutes"`
	SwapCheckMinutes        int     `toml:"swap_check_minutes"`
	SettleDelaySeconds      int     `toml:"settle_delay_seconds"`
	OrderPollSeconds        int     `toml:"order_poll_seconds"`
	OrderPollTimeoutSeconds int     `toml:"order_poll_timeout_seconds"`
	MinOrderQuote           float64 `toml:"min_order_quote"`
	MaxBalanceRatio         float64 `toml:"max_balance_ratio"`
}
