// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures every knob of a crawl run loaded via Viper.
type Config struct {
	BaseURL   string          `mapstructure:"base_url"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Paths     PathsConfig     `mapstructure:"paths"`
	Store     StoreConfig     `mapstructure:"store"`
	Retention RetentionConfig `mapstructure:"retention"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// HTTPConfig configures the fetch client.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
	PoolSize       int    `mapstructure:"pool_size"`
	UserAgent      string `mapstructure:"user_agent"`
	MaxBodyBytes   int    `mapstructure:"max_body_bytes"`
}

// CrawlerConfig governs pipeline fan-out.
type CrawlerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// PathsConfig names the download directories.
type PathsConfig struct {
	ImageDir   string `mapstructure:"image_dir"`
	TorrentDir string `mapstructure:"torrent_dir"`
}

// StoreConfig selects and reaches the metadata store.
type StoreConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
	Schema   string `mapstructure:"schema"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// RetentionConfig bounds the download directories on disk.
type RetentionConfig struct {
	ThresholdBytes int64  `mapstructure:"threshold_bytes"`
	MaxAgeDays     int    `mapstructure:"max_age_days"`
	UsageMethod    string `mapstructure:"usage_method"`
}

// LoggingConfig toggles zap development features and the log file.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
}

// MetricsConfig points at an optional Pushgateway.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MIKAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "https://mikanani.me")
	v.SetDefault("http.timeout_seconds", 10)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.pool_size", 128)
	v.SetDefault("http.user_agent", "mikan-crawler/0.1")
	v.SetDefault("http.max_body_bytes", 0)
	v.SetDefault("crawler.concurrency", 128)
	v.SetDefault("paths.image_dir", "img")
	v.SetDefault("paths.torrent_dir", "torrent")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "mikan.db")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.schema", "public")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("retention.threshold_bytes", int64(1<<30))
	v.SetDefault("retention.max_age_days", 100)
	v.SetDefault("retention.usage_method", "du")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.file", "mikan.log")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "mikan")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute url, got %q", c.BaseURL)
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.HTTP.PoolSize <= 0 {
		return fmt.Errorf("http.pool_size must be > 0")
	}
	if c.HTTP.MaxBodyBytes < 0 {
		return fmt.Errorf("http.max_body_bytes must be >= 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if strings.TrimSpace(c.Paths.ImageDir) == "" || strings.TrimSpace(c.Paths.TorrentDir) == "" {
		return fmt.Errorf("paths.image_dir and paths.torrent_dir are required")
	}
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("store.driver must be sqlite or postgres, got %q", c.Store.Driver)
	}
	if c.Retention.ThresholdBytes <= 0 {
		return fmt.Errorf("retention.threshold_bytes must be > 0")
	}
	if c.Retention.MaxAgeDays <= 0 {
		return fmt.Errorf("retention.max_age_days must be > 0")
	}
	if c.Retention.UsageMethod != "du" && c.Retention.UsageMethod != "walk" {
		return fmt.Errorf("retention.usage_method must be du or walk, got %q", c.Retention.UsageMethod)
	}
	return nil
}

// Timeout returns the per-request fetch timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// MaxAge returns the retention age limit.
func (c Config) MaxAge() time.Duration {
	return time.Duration(c.Retention.MaxAgeDays) * 24 * time.Hour
}
