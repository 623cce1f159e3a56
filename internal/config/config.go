package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Runtime  RuntimeConfig  `mapstructure:"runtime"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type ExchangeConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	WSURL     string        `mapstructure:"ws_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	ApiKey    string        `mapstructure:"api_key"`
	Secret    string        `mapstructure:"secret"`
	MaxTries  uint          `mapstructure:"max_tries"`
	QuoteTTL  time.Duration `mapstructure:"quote_ttl"`
	HistoryMx int           `mapstructure:"history_concurrency"`
}

type RuntimeConfig struct {
	LoopInterval time.Duration `mapstructure:"loop_interval"`
	ErrorBackoff time.Duration `mapstructure:"error_backoff"`
	SettleDelay  time.Duration `mapstructure:"settle_delay"`
	Log          LogConfig     `mapstructure:"log"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

type PathsConfig struct {
	HubDir         string `mapstructure:"hub_dir"`
	SettingsFile   string `mapstructure:"settings_file"`
	CredentialsDir string `mapstructure:"credentials_dir"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("exchange.base_url", "https://api.coinbase.com")
	v.SetDefault("exchange.ws_url", "wss://advanced-trade-ws.coinbase.com")
	v.SetDefault("exchange.timeout", 15*time.Second)
	v.SetDefault("exchange.max_tries", 5)
	v.SetDefault("exchange.quote_ttl", 10*time.Minute)
	v.SetDefault("exchange.history_concurrency", 4)

	v.SetDefault("runtime.loop_interval", 500*time.Millisecond)
	v.SetDefault("runtime.error_backoff", 5*time.Second)
	v.SetDefault("runtime.settle_delay", 2*time.Second)
	v.SetDefault("runtime.log.level", "info")
	v.SetDefault("runtime.log.format", "text")
	v.SetDefault("runtime.log.file", "stdout")
	v.SetDefault("runtime.log.max_size", 50)
	v.SetDefault("runtime.log.max_backups", 5)
	v.SetDefault("runtime.log.max_age", 30)

	v.SetDefault("paths.hub_dir", "hub_data")
	v.SetDefault("paths.settings_file", "gui_settings.json")
	v.SetDefault("paths.credentials_dir", ".")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9102")
}

// Load reads configs/config.yaml (or the file given) and applies env overrides with the DCATRADER_ prefix.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("configs")
		v.SetConfigName("config")
	}
	v.SetEnvPrefix("DCATRADER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("Не удалось прочитать конфиг: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("Не удалось разобрать конфиг: %w", err)
	}

	cfg.Exchange.ApiKey = envSub(cfg.Exchange.ApiKey)
	cfg.Exchange.Secret = envSub(cfg.Exchange.Secret)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Exchange.BaseURL == "" {
		return fmt.Errorf("Не задан exchange.base_url")
	}
	if c.Runtime.LoopInterval <= 0 {
		return fmt.Errorf("runtime.loop_interval должен быть > 0: %s", c.Runtime.LoopInterval)
	}
	if c.Runtime.ErrorBackoff < 0 || c.Runtime.SettleDelay < 0 {
		return fmt.Errorf("Отрицательные задержки в runtime")
	}
	if c.Exchange.MaxTries == 0 {
		c.Exchange.MaxTries = 1
	}
	if c.Exchange.HistoryMx <= 0 {
		c.Exchange.HistoryMx = 1
	}
	if c.Paths.HubDir == "" {
		return fmt.Errorf("Не задан paths.hub_dir")
	}
	return nil
}

var envPattern = regexp.MustCompile(`\$\{(\w+)\}`)

func envSub(val string) string {
	if val == "" {
		return ""
	}
	return envPattern.ReplaceAllStringFunc(val, func(match string) string {
		envKey := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(envKey)
	})
}
