package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gookit/validate"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "CLIPHARVEST_"

// Config holds all configuration options for clipharvest
type Config struct {
	Twitch   TwitchConfig   `yaml:"twitch" json:"twitch"`
	Fetch    FetchConfig    `yaml:"fetch" json:"fetch"`
	Download DownloadConfig `yaml:"download" json:"download"`
	Output   OutputConfig   `yaml:"output" json:"output"`
	Classify ClassifyConfig `yaml:"classify" json:"classify"`
	Archive  ArchiveConfig  `yaml:"archive" json:"archive"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// TwitchConfig holds Helix API access settings
type TwitchConfig struct {
	ClientID    string        `yaml:"client_id" json:"client_id"`
	AccessToken string        `yaml:"access_token" json:"access_token"`
	BaseURL     string        `yaml:"base_url" json:"base_url" validate:"required"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout" validate:"required|min:1"`
	// CacheSize is the lookup cache size in bytes; 0 disables caching
	CacheSize int           `yaml:"cache_size" json:"cache_size" validate:"min:0"`
	CacheTTL  time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
}

// FetchConfig controls the clip listing walk
type FetchConfig struct {
	WindowDays         int           `yaml:"window_days" json:"window_days" validate:"required|min:1"`
	StartedAt          string        `yaml:"started_at" json:"started_at"`
	EndedAt            string        `yaml:"ended_at" json:"ended_at"`
	PageSize           int           `yaml:"page_size" json:"page_size" validate:"required|min:1|max:100"`
	MinRequestInterval time.Duration `yaml:"min_request_interval" json:"min_request_interval" validate:"required|min:1"`
	Concurrency        int           `yaml:"concurrency" json:"concurrency" validate:"required|min:1|max:200"`
	RetryAttempts      int           `yaml:"retry_attempts" json:"retry_attempts" validate:"required|min:1|max:10"`
	RetryBaseDelay     time.Duration `yaml:"retry_base_delay" json:"retry_base_delay"`
}

// DownloadConfig controls the chat and media download stages
type DownloadConfig struct {
	EntityConcurrency int           `yaml:"entity_concurrency" json:"entity_concurrency" validate:"required|min:1|max:64"`
	ItemConcurrency   int           `yaml:"item_concurrency" json:"item_concurrency" validate:"required|min:1|max:64"`
	ChatBinary        string        `yaml:"chat_binary" json:"chat_binary" validate:"required"`
	ChatTimeout       time.Duration `yaml:"chat_timeout" json:"chat_timeout"`
	MediaBinary       string        `yaml:"media_binary" json:"media_binary" validate:"required"`
	MediaQuality      string        `yaml:"media_quality" json:"media_quality" validate:"required"`
	MediaTimeout      time.Duration `yaml:"media_timeout" json:"media_timeout"`
	SkipMedia         bool          `yaml:"skip_media" json:"skip_media"`
}

// OutputConfig holds data directory configuration
type OutputConfig struct {
	DataRoot       string `yaml:"data_root" json:"data_root" validate:"required"`
	CompressTables bool   `yaml:"compress_tables" json:"compress_tables"`
}

// ClassifyConfig holds the message templates. Each pattern must compile.
type ClassifyConfig struct {
	CheerPattern      string `yaml:"cheer_pattern" json:"cheer_pattern" validate:"required"`
	SubscribedPattern string `yaml:"subscribed_pattern" json:"subscribed_pattern" validate:"required"`
	GiftingPattern    string `yaml:"gifting_pattern" json:"gifting_pattern" validate:"required"`
	NormalizeUnicode  bool   `yaml:"normalize_unicode" json:"normalize_unicode"`
}

// ArchiveConfig enables the SQLite mirror of classified messages
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// MetricsConfig enables the Prometheus textfile export
type MetricsConfig struct {
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	TextfilePath string `yaml:"textfile_path" json:"textfile_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level" validate:"required|in:debug,info,warn,error"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Twitch: TwitchConfig{
			BaseURL:   "https://api.twitch.tv/helix",
			Timeout:   10 * time.Second,
			CacheSize: 4 * 1024 * 1024,
			CacheTTL:  time.Hour,
		},
		Fetch: FetchConfig{
			WindowDays:         90,
			PageSize:           100,
			MinRequestInterval: 200 * time.Millisecond,
			Concurrency:        8,
			RetryAttempts:      3,
			RetryBaseDelay:     time.Second,
		},
		Download: DownloadConfig{
			EntityConcurrency: 4,
			ItemConcurrency:   8,
			ChatBinary:        "chat_downloader",
			ChatTimeout:       5 * time.Minute,
			MediaBinary:       "twitch-dl",
			MediaQuality:      "source",
			MediaTimeout:      10 * time.Minute,
		},
		Output: OutputConfig{
			DataRoot: "data",
		},
		Classify: ClassifyConfig{
			CheerPattern:      `^Cheer(\d+)(?:\s|$)`,
			SubscribedPattern: `subscribed at Tier (\d+).*?(\d+|[\p{L}\p{N}_]+) month`,
			GiftingPattern:    `gifting (\d+) Tier (\d+) Subs to ([\p{L}\p{N}_]+)'s community`,
			NormalizeUnicode:  true,
		},
		Archive: ArchiveConfig{
			Path: "archive.db",
		},
		Metrics: MetricsConfig{
			TextfilePath: "metrics.prom",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from CLIPHARVEST_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(name string, dst *string) {
		if v := os.Getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		v := os.Getenv(envPrefix + name)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
			return
		}
		*dst = n
	}
	setBool := func(name string, dst *bool) {
		if v := os.Getenv(envPrefix + name); v != "" {
			*dst = strings.EqualFold(v, "true") || v == "1"
		}
	}

	setString("CLIENT_ID", &c.Twitch.ClientID)
	setString("ACCESS_TOKEN", &c.Twitch.AccessToken)
	setString("API_BASE_URL", &c.Twitch.BaseURL)
	setString("STARTED_AT", &c.Fetch.StartedAt)
	setString("ENDED_AT", &c.Fetch.EndedAt)
	setInt("WINDOW_DAYS", &c.Fetch.WindowDays)
	setInt("FETCH_CONCURRENCY", &c.Fetch.Concurrency)
	setInt("ENTITY_CONCURRENCY", &c.Download.EntityConcurrency)
	setInt("ITEM_CONCURRENCY", &c.Download.ItemConcurrency)
	setString("MEDIA_QUALITY", &c.Download.MediaQuality)
	setBool("SKIP_MEDIA", &c.Download.SkipMedia)
	setString("DATA_ROOT", &c.Output.DataRoot)
	setBool("COMPRESS_TABLES", &c.Output.CompressTables)
	setBool("ARCHIVE_ENABLED", &c.Archive.Enabled)
	setBool("METRICS_ENABLED", &c.Metrics.Enabled)
	setString("LOG_LEVEL", &c.Logging.Level)
	setString("LOG_FILE", &c.Logging.File)

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".clipharvest.yaml",
		".clipharvest.yml",
		filepath.Join(home, ".config", "clipharvest", "config.yaml"),
		filepath.Join(home, ".config", "clipharvest", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks struct rules per section, then the cross-field rules
func (c *Config) Validate() error {
	var errs []error

	sections := []struct {
		name  string
		value interface{}
	}{
		{"twitch", &c.Twitch},
		{"fetch", &c.Fetch},
		{"download", &c.Download},
		{"output", &c.Output},
		{"classify", &c.Classify},
		{"logging", &c.Logging},
	}
	for _, s := range sections {
		v := validate.Struct(s.value)
		if !v.Validate() {
			errs = append(errs, fmt.Errorf("%s: %s", s.name, v.Errors.Error()))
		}
	}

	for name, pattern := range map[string]string{
		"cheer_pattern":      c.Classify.CheerPattern,
		"subscribed_pattern": c.Classify.SubscribedPattern,
		"gifting_pattern":    c.Classify.GiftingPattern,
	} {
		if pattern == "" {
			continue
		}
		if _, err := regexp.Compile(pattern); err != nil {
			errs = append(errs, fmt.Errorf("classify.%s: %w", name, err))
		}
	}

	if _, _, err := c.Fetch.Window(time.Now()); err != nil {
		errs = append(errs, err)
	}

	if c.Archive.Enabled && c.Archive.Path == "" {
		errs = append(errs, errors.New("archive.path is required when the archive is enabled"))
	}
	if c.Metrics.Enabled && c.Metrics.TextfilePath == "" {
		errs = append(errs, errors.New("metrics.textfile_path is required when metrics are enabled"))
	}

	return errors.Join(errs...)
}

// Window resolves the configured fetch window. Unset bounds default to
// [today-WindowDays, today] at midnight UTC.
func (f FetchConfig) Window(now time.Time) (time.Time, time.Time, error) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := today.AddDate(0, 0, -f.WindowDays)
	end := today

	if f.StartedAt != "" {
		t, err := time.Parse(time.RFC3339, f.StartedAt)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("fetch.started_at: %w", err)
		}
		start = t
	}
	if f.EndedAt != "" {
		t, err := time.Parse(time.RFC3339, f.EndedAt)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("fetch.ended_at: %w", err)
		}
		end = t
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("fetch window start %s is after end %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return start, end, nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Zero values are ignored so unset flags never clobber file or env values.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["client-id"].(string); ok && v != "" {
		c.Twitch.ClientID = v
	}
	if v, ok := flags["access-token"].(string); ok && v != "" {
		c.Twitch.AccessToken = v
	}
	if v, ok := flags["data-root"].(string); ok && v != "" {
		c.Output.DataRoot = v
	}
	if v, ok := flags["started-at"].(string); ok && v != "" {
		c.Fetch.StartedAt = v
	}
	if v, ok := flags["ended-at"].(string); ok && v != "" {
		c.Fetch.EndedAt = v
	}
	if v, ok := flags["concurrency"].(int); ok && v > 0 {
		c.Fetch.Concurrency = v
	}
	if v, ok := flags["entity-concurrency"].(int); ok && v > 0 {
		c.Download.EntityConcurrency = v
	}
	if v, ok := flags["item-concurrency"].(int); ok && v > 0 {
		c.Download.ItemConcurrency = v
	}
	if v, ok := flags["compress"].(bool); ok && v {
		c.Output.CompressTables = true
	}
	if v, ok := flags["archive"].(bool); ok && v {
		c.Archive.Enabled = true
	}
	if v, ok := flags["metrics"].(bool); ok && v {
		c.Metrics.Enabled = true
	}
	if v, ok := flags["skip-media"].(bool); ok && v {
		c.Download.SkipMedia = true
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: flags > environment > .env file > config file > defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".clipharvest.env"))

	cfg := DefaultConfig()

	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg.MergeCommandLineFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Layout returns the data directory layout for this configuration
func (c *Config) Layout() Layout {
	return Layout{Root: c.Output.DataRoot, Compress: c.Output.CompressTables}
}
