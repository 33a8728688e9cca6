package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"ratewatch/internal/logging"
)

// Storage backends accepted by storage.backend.
const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Notification channels accepted by alerting.channels.
const (
	ChannelLog      = "log"
	ChannelTelegram = "telegram"
	ChannelKafka    = "kafka"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Source    SourceConfig    `mapstructure:"source"`
	Scrape    ScrapeConfig    `mapstructure:"scrape"`
	OnChain   OnChainConfig   `mapstructure:"onchain"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	History   HistoryConfig   `mapstructure:"history"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// SourceConfig is the default rate source and its HTTP settings. A source URL
// saved through the CLI takes precedence over URL.
type SourceConfig struct {
	URL            string        `mapstructure:"url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// ScrapeConfig covers the exchange office page reached through the local proxy.
type ScrapeConfig struct {
	ProxyURL       string        `mapstructure:"proxy_url"`
	PageHost       string        `mapstructure:"page_host"`
	PathPrefix     string        `mapstructure:"path_prefix"`
	LocalCurrency  string        `mapstructure:"local_currency"`
	UserAgent      string        `mapstructure:"user_agent"`
	AcceptLanguage string        `mapstructure:"accept_language"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// OnChainConfig covers price feed aggregators read over Ethereum RPC.
type OnChainConfig struct {
	RPCURL         string            `mapstructure:"rpc_url"`
	Feeds          map[string]string `mapstructure:"feeds"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout"`
}

// SchedulerConfig governs the check cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	WatchInterval   time.Duration `mapstructure:"watch_interval"`
}

// HistoryConfig bounds the check log.
type HistoryConfig struct {
	Limit int `mapstructure:"limit"`
}

// StorageConfig selects where state is kept.
type StorageConfig struct {
	Backend  string `mapstructure:"backend"`
	FilePath string `mapstructure:"file_path"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

// RedisConfig encapsulates Redis connectivity.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
}

// TelegramConfig describes the Telegram bot channel.
type TelegramConfig struct {
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// KafkaConfig describes the Kafka channel.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load builds configuration from an optional .env file, the config file,
// environment, and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("RATEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "ratewatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("source.url", "https://api.exchangerate.host/latest")
	v.SetDefault("source.request_timeout", "10s")
	v.SetDefault("source.user_agent", "ratewatch/1.0")

	v.SetDefault("scrape.proxy_url", "http://localhost:3000/albarakaxchange")
	v.SetDefault("scrape.page_host", "albarakaxchange.com")
	v.SetDefault("scrape.path_prefix", "/albarakaxchange")
	v.SetDefault("scrape.local_currency", "MAD")
	v.SetDefault("scrape.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	v.SetDefault("scrape.accept_language", "fr-FR,fr;q=0.9,en;q=0.8")
	v.SetDefault("scrape.request_timeout", "15s")

	v.SetDefault("onchain.request_timeout", "10s")

	v.SetDefault("scheduler.interval", "60s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x52415445))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.watch_interval", "5s")

	v.SetDefault("history.limit", 100)

	v.SetDefault("storage.backend", BackendFile)
	v.SetDefault("storage.file_path", "ratewatch-state.json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrate", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "ratewatch:")

	v.SetDefault("alerting.channels", []string{ChannelLog})
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")
	v.SetDefault("alerting.kafka.topic", "rate-alerts")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// normalize canonicalises values viper cannot: map keys arrive lower-cased and
// list entries may carry stray whitespace.
func (c *Config) normalize() {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	c.Scrape.LocalCurrency = strings.ToUpper(strings.TrimSpace(c.Scrape.LocalCurrency))

	if len(c.OnChain.Feeds) > 0 {
		feeds := make(map[string]string, len(c.OnChain.Feeds))
		for pair, addr := range c.OnChain.Feeds {
			feeds[strings.ToUpper(strings.TrimSpace(pair))] = strings.TrimSpace(addr)
		}
		c.OnChain.Feeds = feeds
	}

	c.Alerting.Channels = trimList(c.Alerting.Channels, true)
	c.Alerting.Kafka.Brokers = trimList(c.Alerting.Kafka.Brokers, false)
}

func trimList(in []string, lower bool) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		item = strings.TrimSpace(item)
		if lower {
			item = strings.ToLower(item)
		}
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.StartupDelay < 0 || c.Scheduler.WatchInterval < 0 {
		return fmt.Errorf("scheduler.startup_delay and scheduler.watch_interval must not be negative")
	}
	if c.History.Limit <= 0 {
		return fmt.Errorf("history.limit must be greater than zero")
	}
	if len(c.Scrape.LocalCurrency) != 3 {
		return fmt.Errorf("scrape.local_currency must be a 3-letter code, got %q", c.Scrape.LocalCurrency)
	}

	switch c.Storage.Backend {
	case BackendFile:
		if c.Storage.FilePath == "" {
			return fmt.Errorf("storage.file_path is required for the file backend")
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis backend")
		}
	case BackendPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("storage.backend must be one of file, redis, postgres, memory; got %q", c.Storage.Backend)
	}

	for _, ch := range c.Alerting.Channels {
		switch ch {
		case ChannelLog, ChannelTelegram, ChannelKafka:
		default:
			return fmt.Errorf("alerting.channels: unknown channel %q", ch)
		}
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}
	return nil
}

// HasChannel reports whether name is listed in alerting.channels.
func (c *Config) HasChannel(name string) bool {
	for _, ch := range c.Alerting.Channels {
		if ch == name {
			return true
		}
	}
	return false
}
