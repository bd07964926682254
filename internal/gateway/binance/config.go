package binance

import (
	"strings"
	"time"
)

// Config 描述现货网关的访问方式；密钥从环境变量注入，不落配置文件。
type Config struct {
	APIKey      string
	SecretKey   string
	RESTBaseURL string
	Quote       string // quote currency, e.g. USDT
	HTTPTimeout time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	out.RESTBaseURL = strings.TrimSpace(out.RESTBaseURL)
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = "https://api.binance.com"
	}
	out.Quote = strings.ToUpper(strings.TrimSpace(out.Quote))
	if out.Quote == "" {
		out.Quote = "USDT"
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 10 * time.Second
	}
	return out
}
