package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"yutai-ranker/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g. YUTAI_DATABASE_DSN.
const EnvPrefix = "YUTAI"

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Scraper    ScraperConfig    `mapstructure:"scraper"`
	Source     SourceConfig     `mapstructure:"source"`
	Prices     PricesConfig     `mapstructure:"prices"`
	Normalizer NormalizerConfig `mapstructure:"normalizer"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Universe   UniverseConfig   `mapstructure:"universe"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Export     ExportConfig     `mapstructure:"export"`
	Cache      CacheConfig      `mapstructure:"cache"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. An empty DSN selects the
// in-memory store.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// ScraperConfig tunes the fetch worker pool.
type ScraperConfig struct {
	Preset           string        `mapstructure:"preset" validate:"omitempty,oneof=fast normal conservative"`
	Session          string        `mapstructure:"session" validate:"oneof=http browser"`
	Workers          int           `mapstructure:"workers" validate:"gt=0,lte=64"`
	Delay            time.Duration `mapstructure:"delay" validate:"gte=0"`
	MaxRetries       int           `mapstructure:"max_retries" validate:"gt=0"`
	RetryBase        time.Duration `mapstructure:"retry_base" validate:"gte=0"`
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout" validate:"gt=0"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	CheckpointPath   string        `mapstructure:"checkpoint_path" validate:"required"`
	CheckpointEvery  int           `mapstructure:"checkpoint_every" validate:"gt=0"`
	ProgressInterval time.Duration `mapstructure:"progress_interval" validate:"gte=0"`
	PriorityRanges   []string      `mapstructure:"priority_ranges"`
}

// SourceConfig describes the benefit pages and how to reach them.
type SourceConfig struct {
	URLTemplate       string            `mapstructure:"url_template"`
	UserAgent         string            `mapstructure:"user_agent"`
	RequestTimeout    time.Duration     `mapstructure:"request_timeout"`
	RequestsPerSecond float64           `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int               `mapstructure:"burst" validate:"gte=0"`
	Headers           map[string]string `mapstructure:"headers"`
	Selectors         SelectorsConfig   `mapstructure:"selectors"`
	Browser           BrowserConfig     `mapstructure:"browser"`
}

// SelectorsConfig are the CSS selectors of the benefit page.
type SelectorsConfig struct {
	Row           string `mapstructure:"row"`
	Description   string `mapstructure:"description"`
	Shares        string `mapstructure:"shares"`
	Amount        string `mapstructure:"amount"`
	Month         string `mapstructure:"month"`
	NotFound      string `mapstructure:"not_found"`
	Price         string `mapstructure:"price"`
	DividendYield string `mapstructure:"dividend_yield"`
}

// BrowserConfig applies when scraper.session is browser.
type BrowserConfig struct {
	Headless       bool          `mapstructure:"headless"`
	NoSandbox      bool          `mapstructure:"no_sandbox"`
	DisableGPU     bool          `mapstructure:"disable_gpu"`
	WaitSelector   string        `mapstructure:"wait_selector"`
	StartupTimeout time.Duration `mapstructure:"startup_timeout"`
	ExecPath       string        `mapstructure:"exec_path"`
}

// PricesConfig describes the JSON quote source.
type PricesConfig struct {
	URLTemplate    string `mapstructure:"url_template"`
	CheckpointPath string `mapstructure:"checkpoint_path" validate:"required"`
}

// NormalizerConfig bounds normalized values.
type NormalizerConfig struct {
	MaxValue      int            `mapstructure:"max_value" validate:"gt=0"`
	ValueCaps     map[string]int `mapstructure:"value_caps"`
	DefaultShares int            `mapstructure:"default_shares" validate:"gte=1,lte=10000"`
	DefaultMonth  int            `mapstructure:"default_month" validate:"gte=1,lte=12"`
	TaxonomyPath  string         `mapstructure:"taxonomy_path"`
}

// MetricsConfig selects oscillator periods and price history depth.
type MetricsConfig struct {
	RSIPeriods  []int `mapstructure:"rsi_periods" validate:"min=1,dive,gt=0"`
	HistoryDays int   `mapstructure:"history_days" validate:"gt=0"`
}

// UniverseConfig is either a code file or a generated numeric range.
type UniverseConfig struct {
	File  string `mapstructure:"file"`
	From  int    `mapstructure:"from" validate:"gte=0"`
	To    int    `mapstructure:"to" validate:"gte=0"`
	Width int    `mapstructure:"width" validate:"gte=0,lte=8"`
}

// SchedulerConfig governs the run daemon. Cron wins over Interval.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	Cron            string        `mapstructure:"cron"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	Jobs            []string      `mapstructure:"jobs" validate:"min=1,dive,oneof=scrape prices"`
}

// AlertingConfig routes run summaries.
type AlertingConfig struct {
	Enabled       bool           `mapstructure:"enabled"`
	OnFailureOnly bool           `mapstructure:"on_failure_only"`
	Telegram      TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int    `mapstructure:"max_data_points"`
	SheetName     string `mapstructure:"sheet_name"`
}

// CacheConfig bounds the ranking cache.
type CacheConfig struct {
	RankingTTL time.Duration `mapstructure:"ranking_ttl" validate:"gte=0"`
	MaxEntries int           `mapstructure:"max_entries" validate:"gte=0"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
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
	applyPresetDefaults(&cfg, v)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDotEnv exports .env entries that are not already set. A missing file is fine.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// scraper.workers, scraper.delay and scraper.max_retries have no defaults here:
// they come from the preset unless set explicitly.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "yutai")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migrations_path", "migrations")

	v.SetDefault("scraper.preset", "normal")
	v.SetDefault("scraper.session", "http")
	v.SetDefault("scraper.retry_base", "2s")
	v.SetDefault("scraper.fetch_timeout", "30s")
	v.SetDefault("scraper.write_timeout", "15s")
	v.SetDefault("scraper.checkpoint_path", "data/checkpoint.json")
	v.SetDefault("scraper.checkpoint_every", 10)
	v.SetDefault("scraper.progress_interval", "30s")

	v.SetDefault("source.request_timeout", "20s")
	v.SetDefault("source.requests_per_second", 1.0)
	v.SetDefault("source.burst", 1)
	v.SetDefault("source.selectors.row", "table.benefit tr")
	v.SetDefault("source.browser.headless", true)
	v.SetDefault("source.browser.disable_gpu", true)
	v.SetDefault("source.browser.startup_timeout", "30s")

	v.SetDefault("prices.checkpoint_path", "data/prices-checkpoint.json")

	v.SetDefault("normalizer.max_value", 100000)
	v.SetDefault("normalizer.default_shares", 100)
	v.SetDefault("normalizer.default_month", 3)

	v.SetDefault("metrics.rsi_periods", []int{14, 28})
	v.SetDefault("metrics.history_days", 120)

	v.SetDefault("universe.from", 1300)
	v.SetDefault("universe.to", 9999)
	v.SetDefault("universe.width", 4)

	v.SetDefault("scheduler.interval", "24h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x79757461))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.jobs", []string{"scrape", "prices"})

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)
	v.SetDefault("export.sheet_name", "Ranking")

	v.SetDefault("cache.ranking_ttl", "10m")
	v.SetDefault("cache.max_entries", 4096)
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

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate performs sanity checks on the configuration values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config %s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("validate config: %w", err)
	}

	if c.Universe.File == "" && c.Universe.From > c.Universe.To {
		return fmt.Errorf("universe.from must not exceed universe.to")
	}
	if c.Scheduler.Cron == "" && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	for category, limit := range c.Normalizer.ValueCaps {
		if limit < 0 {
			return fmt.Errorf("normalizer.value_caps.%s cannot be negative", category)
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
