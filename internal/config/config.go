package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr          string        `env:"DISPATCHDESK_ADDR"           envDefault:"127.0.0.1:3000"`
	DBPath        string        `env:"DISPATCHDESK_DB_PATH"        envDefault:"data/dispatchdesk.db"`
	HistoryLimit  int           `env:"DISPATCHDESK_HISTORY_LIMIT"  envDefault:"50"`
	TypingTimeout time.Duration `env:"DISPATCHDESK_TYPING_TIMEOUT" envDefault:"3s"`
	SendBuffer    int           `env:"DISPATCHDESK_SEND_BUFFER"    envDefault:"16"`

	LogLevel  string `env:"DISPATCHDESK_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"DISPATCHDESK_LOG_FORMAT" envDefault:"json"`

	WebhookURL     string        `env:"DISPATCHDESK_WEBHOOK_URL"`
	WebhookTimeout time.Duration `env:"DISPATCHDESK_WEBHOOK_TIMEOUT" envDefault:"5s"`

	// 每个连接的发送限速（消息和 reaction 共用）；RateLimit <= 0 表示不限
	RateLimit float64 `env:"DISPATCHDESK_RATE_LIMIT" envDefault:"5"`
	RateBurst int     `env:"DISPATCHDESK_RATE_BURST" envDefault:"10"`

	MetricsEnabled  bool          `env:"DISPATCHDESK_METRICS"          envDefault:"true"`
	ShutdownTimeout time.Duration `env:"DISPATCHDESK_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads envFile (if it exists) into the process environment without
// overriding variables that are already set, then parses DISPATCHDESK_*.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db path is required"))
	}
	if c.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("history limit must be positive, got %d", c.HistoryLimit))
	}
	if c.TypingTimeout <= 0 {
		errs = append(errs, fmt.Errorf("typing timeout must be positive, got %s", c.TypingTimeout))
	}
	if c.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("send buffer must be positive, got %d", c.SendBuffer))
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		errs = append(errs, errors.New("rate burst must be positive when rate limiting is on"))
	}
	return errors.Join(errs...)
}
