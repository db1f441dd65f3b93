package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	internal "github.com/ZanzyTHEbar/fitcheck/fitcheck"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Stylist StylistConfig          `mapstructure:"stylist"`
	Store   StoreConfig            `mapstructure:"store"`
	Model   ModelConfig            `mapstructure:"model"`
	Harness HarnessConfig          `mapstructure:"harness"`
	Search  SearchConfig           `mapstructure:"search"`
	Agents  map[string]AgentConfig `mapstructure:"agents"`
	Log     LogConfig              `mapstructure:"log"`
}

// StylistConfig stores request service settings.
type StylistConfig struct {
	DataDir     string        `mapstructure:"data_dir"`     // Root of per-user directories
	InboxDir    string        `mapstructure:"inbox_dir"`    // Drop directory watched by serve
	Workers     int           `mapstructure:"workers"`      // Concurrent tasks
	QueueDepth  int           `mapstructure:"queue_depth"`  // Accepted tasks waiting for a worker
	TaskTimeout time.Duration `mapstructure:"task_timeout"` // Overall per-task deadline
}

// StoreConfig selects the conversation store backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend"` // "file", "libsql" or "sqlite"
	DSN     string `mapstructure:"dsn"`
}

// ModelConfig stores remote model client settings.
type ModelConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	ModelID     string        `mapstructure:"model_id"`     // Fallback when an agent names none
	CallTimeout time.Duration `mapstructure:"call_timeout"` // Per model call deadline
}

// HarnessConfig stores tool loop configurations.
type HarnessConfig struct {
	// Cache settings
	CacheEnabled    bool `mapstructure:"cache_enabled"`     // Memoize grounding URL resolution
	CacheCapacity   int  `mapstructure:"cache_capacity"`    // LRU cache capacity
	CacheTTLSeconds int  `mapstructure:"cache_ttl_seconds"` // Cache entry TTL

	// Rate limiting
	RateLimitEnabled    bool          `mapstructure:"rate_limit_enabled"`
	RateLimitCapacity   int           `mapstructure:"rate_limit_capacity"`
	RateLimitRefillRate time.Duration `mapstructure:"rate_limit_refill_rate"`

	// Policies
	MaxIterations int           `mapstructure:"max_iterations"` // Model calls per loop
	RetryCount    int           `mapstructure:"retry_count"`    // Extra attempts per model call
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`

	// Telemetry
	EnableTracing bool `mapstructure:"enable_tracing"`
}

// SearchConfig stores headless browser search settings.
type SearchConfig struct {
	URLTemplate    string        `mapstructure:"url_template"` // %s receives the escaped query
	ChromeBin      string        `mapstructure:"chrome_bin"`   // Empty means auto-download
	ControlURL     string        `mapstructure:"control_url"`  // Attach to a running browser
	Headless       bool          `mapstructure:"headless"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Screenshots    int           `mapstructure:"screenshots"`
	ScrollPixels   int           `mapstructure:"scroll_px"`
	SettleDelay    time.Duration `mapstructure:"settle_delay"`
	Zoom           float64       `mapstructure:"zoom"`
	Retries        int           `mapstructure:"retries"`
	ViewportWidth  int           `mapstructure:"viewport_width"`
	ViewportHeight int           `mapstructure:"viewport_height"`
}

// AgentConfig overrides one agent's model settings.
type AgentConfig struct {
	ModelID           string  `mapstructure:"model_id"`
	Temperature       float32 `mapstructure:"temperature"`
	MaxOutputTokens   int32   `mapstructure:"max_output_tokens"`
	SystemInstruction string  `mapstructure:"system_instruction"` // Empty keeps the built-in instruction
	MaxIterations     int     `mapstructure:"max_iterations"`     // Nested loop bound, 0 uses harness value
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

var (
	AppConfig Config
	mu        sync.RWMutex
)

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	viper.Reset()

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		viper.AddConfigPath(internal.DefaultConfigPath)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	setDefaults()

	viper.AutomaticEnv()
	// stylist.data_dir becomes STYLIST_DATA_DIR
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return decode()
}

func setDefaults() {
	viper.SetDefault("stylist.data_dir", internal.DefaultDataDir)
	viper.SetDefault("stylist.inbox_dir", internal.DefaultInboxDir)
	viper.SetDefault("stylist.workers", 4)
	viper.SetDefault("stylist.queue_depth", 16)
	viper.SetDefault("stylist.task_timeout", "5m")

	viper.SetDefault("store.backend", internal.DefaultStoreBackend)
	viper.SetDefault("store.dsn", internal.DefaultDatabaseDSN)

	viper.SetDefault("model.api_key", "")
	viper.SetDefault("model.model_id", internal.DefaultModelID)
	viper.SetDefault("model.call_timeout", "60s")

	viper.SetDefault("harness.cache_enabled", true)
	viper.SetDefault("harness.cache_capacity", 1000)
	viper.SetDefault("harness.cache_ttl_seconds", 3600)
	viper.SetDefault("harness.rate_limit_enabled", true)
	viper.SetDefault("harness.rate_limit_capacity", 10)
	viper.SetDefault("harness.rate_limit_refill_rate", "1s")
	viper.SetDefault("harness.max_iterations", internal.DefaultMaxLoopCalls)
	viper.SetDefault("harness.retry_count", 2)
	viper.SetDefault("harness.retry_backoff", "500ms")
	viper.SetDefault("harness.enable_tracing", true)

	viper.SetDefault("search.url_template", internal.DefaultSearchURL)
	viper.SetDefault("search.chrome_bin", "")
	viper.SetDefault("search.control_url", "")
	viper.SetDefault("search.headless", true)
	viper.SetDefault("search.timeout", "45s")
	viper.SetDefault("search.screenshots", 3)
	viper.SetDefault("search.scroll_px", 700)
	viper.SetDefault("search.settle_delay", "2s")
	viper.SetDefault("search.zoom", 0.75)
	viper.SetDefault("search.retries", 3)
	viper.SetDefault("search.viewport_width", 1920)
	viper.SetDefault("search.viewport_height", 1080)

	viper.SetDefault("agents.supervisor.model_id", internal.DefaultModelID)
	viper.SetDefault("agents.supervisor.temperature", 0.5)
	viper.SetDefault("agents.environment.model_id", internal.DefaultSubModelID)
	viper.SetDefault("agents.environment.max_output_tokens", 600)
	viper.SetDefault("agents.closet_analysis.model_id", internal.DefaultSubModelID)
	viper.SetDefault("agents.closet_analysis.max_output_tokens", 600)
	viper.SetDefault("agents.style_match.model_id", internal.DefaultModelID)
	viper.SetDefault("agents.style_match.temperature", 0.8)
	viper.SetDefault("agents.style_match.max_iterations", 5)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.pretty", false)
}

func decode() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	mu.Lock()
	AppConfig = cfg
	mu.Unlock()

	return &cfg, nil
}

// Current returns a copy of the last loaded configuration.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return AppConfig
}

// Watch re-decodes the configuration whenever the config file changes and
// hands the new value to onChange. Decode failures keep the previous value.
func Watch(onChange func(*Config, error)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode()
		onChange(cfg, err)
	})
	viper.WatchConfig()
}
