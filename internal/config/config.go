package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取 YAML 配置，套用默认值并做基础校验。
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides 将密钥类字段从环境变量注入，避免写进配置文件。
func (c *Config) applyEnvOverrides() {
	overrideFromEnv(&c.Exchange.APIKey, "BINANCE_API_KEY")
	overrideFromEnv(&c.Exchange.SecretKey, "BINANCE_SECRET_KEY")
	overrideFromEnv(&c.AI.Primary.APIKey, "PRIMARY_AI_API_KEY")
	overrideFromEnv(&c.AI.Fallback.APIKey, "FALLBACK_AI_API_KEY")
	overrideFromEnv(&c.Notify.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	overrideFromEnv(&c.Notify.Telegram.ChatID, "TELEGRAM_CHAT_ID")
}

func overrideFromEnv(dst *string, key string) {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		*dst = val
	}
}
