// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/thesis-crawler/internal/crawler"
	"github.com/JakeFAU/thesis-crawler/internal/logging"
)

// Config captures every configuration knob loaded via Viper.
type Config struct {
	Site    SiteConfig     `mapstructure:"site"`
	Crawler CrawlerConfig  `mapstructure:"crawler"`
	HTTP    HTTPConfig     `mapstructure:"http"`
	Output  OutputConfig   `mapstructure:"output"`
	Storage StorageConfig  `mapstructure:"storage"`
	DB      DBConfig       `mapstructure:"db"`
	PubSub  PubSubConfig   `mapstructure:"pubsub"`
	Metrics MetricsConfig  `mapstructure:"metrics"`
	Logging logging.Config `mapstructure:"logging"`
}

// SiteConfig describes the repository being crawled.
type SiteConfig struct {
	crawler.SearchParams `mapstructure:",squash"`
	// PageSize is the number of results a full listing page carries.
	PageSize      int    `mapstructure:"page_size"`
	EntrySelector string `mapstructure:"entry_selector"`
}

// CrawlerConfig governs the campaign and politeness.
type CrawlerConfig struct {
	Keywords          []string `mapstructure:"keywords"`
	PerKeyword        int      `mapstructure:"per_keyword"`
	Parallelism       int      `mapstructure:"parallelism"`
	MaxPages          int      `mapstructure:"max_pages"`
	UserAgent         string   `mapstructure:"user_agent"`
	RespectRobots     bool     `mapstructure:"respect_robots"`
	RequestsPerSecond float64  `mapstructure:"requests_per_second"`
	Burst             int      `mapstructure:"burst"`
}

// HTTPConfig configures single requests and the retry schedule.
type HTTPConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	BackoffBase      time.Duration `mapstructure:"backoff_base"`
	BackoffIncrement time.Duration `mapstructure:"backoff_increment"`
	// MaxAttempts bounds retries per request; zero retries forever.
	MaxAttempts int `mapstructure:"max_attempts"`
	// MaxStatusAttempts bounds requests answered with 429 or 5xx. The last
	// such answer is handed on as the page.
	MaxStatusAttempts int `mapstructure:"max_status_attempts"`
}

// OutputConfig controls the delimited output file.
type OutputConfig struct {
	Path          string   `mapstructure:"path"`
	Delimiter     string   `mapstructure:"delimiter"`
	Fields        []string `mapstructure:"fields"`
	ClearNewlines bool     `mapstructure:"clear_newlines"`
}

// StorageConfig selects where raw record pages are archived.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	Prefix    string `mapstructure:"prefix"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// DBConfig controls the optional Postgres record sink.
type DBConfig struct {
	DSN         string `mapstructure:"dsn"`
	Table       string `mapstructure:"table"`
	MaxConns    int32  `mapstructure:"max_conns"`
	CreateTable bool   `mapstructure:"create_table"`
}

// PubSubConfig holds the optional record notification target.
type PubSubConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig toggles the operational HTTP server.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Storage and publisher backends.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendPubSub = "pubsub"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("THESES")
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
	site := crawler.DefaultSearchParams()
	v.SetDefault("site.base_url", site.BaseURL)
	v.SetDefault("site.option", site.Option)
	v.SetDefault("site.file_id", site.FileID)
	v.SetDefault("site.item_id", site.ItemID)
	v.SetDefault("site.lang", site.Lang)
	v.SetDefault("site.group", site.Group)
	v.SetDefault("site.field", site.Field)
	v.SetDefault("site.operator", site.Operator)
	v.SetDefault("site.page_size", crawler.DefaultPageSize)
	v.SetDefault("site.entry_selector", crawler.DefaultEntrySelector)

	v.SetDefault("crawler.keywords", []string{})
	v.SetDefault("crawler.per_keyword", crawler.DefaultEntriesPerKeyword)
	v.SetDefault("crawler.parallelism", 1)
	v.SetDefault("crawler.max_pages", 0)
	v.SetDefault("crawler.user_agent", "thesis-crawler/0.1")
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.requests_per_second", 1.0)
	v.SetDefault("crawler.burst", 1)

	policy := crawler.DefaultBackoffPolicy()
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.backoff_base", policy.Base)
	v.SetDefault("http.backoff_increment", policy.Increment)
	v.SetDefault("http.max_attempts", 0)
	v.SetDefault("http.max_status_attempts", policy.MaxStatusAttempts)

	v.SetDefault("output.path", "theses.csv")
	v.SetDefault("output.delimiter", ";")
	v.SetDefault("output.fields", crawler.DefaultFields)
	v.SetDefault("output.clear_newlines", true)

	v.SetDefault("storage.backend", BackendNone)
	v.SetDefault("storage.prefix", "pages")
	v.SetDefault("storage.local_dir", "archive")
	v.SetDefault("storage.gcs_bucket", "")

	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "theses")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.create_table", true)

	v.SetDefault("pubsub.backend", BackendNone)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")

	v.SetDefault("metrics.addr", "")

	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Site.BaseURL == "" {
		return fmt.Errorf("site.base_url is required")
	}
	if c.Site.PageSize <= 0 {
		return fmt.Errorf("site.page_size must be > 0")
	}
	if c.Crawler.Parallelism <= 0 {
		return fmt.Errorf("crawler.parallelism must be > 0")
	}
	if c.Crawler.MaxPages < 0 {
		return fmt.Errorf("crawler.max_pages must be >= 0")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.HTTP.BackoffBase < 0 || c.HTTP.BackoffIncrement < 0 {
		return fmt.Errorf("http backoff durations must be >= 0")
	}
	if c.HTTP.MaxAttempts < 0 {
		return fmt.Errorf("http.max_attempts must be >= 0")
	}
	if c.HTTP.MaxStatusAttempts < 0 {
		return fmt.Errorf("http.max_status_attempts must be >= 0")
	}
	if len([]rune(c.Output.Delimiter)) != 1 {
		return fmt.Errorf("output.delimiter must be a single character")
	}
	if err := crawler.ValidateFields(c.Output.Fields); err != nil {
		return fmt.Errorf("output.fields: %w", err)
	}
	switch c.Storage.Backend {
	case BackendNone, BackendMemory:
	case BackendLocal:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir is required for the local backend")
		}
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	switch c.PubSub.Backend {
	case BackendNone:
	case BackendMemory, BackendPubSub:
		if c.PubSub.TopicName == "" {
			return fmt.Errorf("pubsub.topic_name is required when publishing")
		}
		if c.PubSub.Backend == BackendPubSub && c.PubSub.ProjectID == "" {
			return fmt.Errorf("pubsub.project_id is required for the pubsub backend")
		}
	default:
		return fmt.Errorf("unknown pubsub.backend %q", c.PubSub.Backend)
	}
	return nil
}

// BackoffPolicy converts the HTTP section into the fetcher's retry schedule.
func (c Config) BackoffPolicy() crawler.BackoffPolicy {
	return crawler.BackoffPolicy{
		Base:              c.HTTP.BackoffBase,
		Increment:         c.HTTP.BackoffIncrement,
		MaxAttempts:       c.HTTP.MaxAttempts,
		MaxStatusAttempts: c.HTTP.MaxStatusAttempts,
	}
}

// Delimiter returns the output delimiter as a rune.
func (c Config) Delimiter() rune {
	return []rune(c.Output.Delimiter)[0]
}
