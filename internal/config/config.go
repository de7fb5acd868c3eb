// Package config loads and validates engine configuration.
//
// Configuration is read from an optional YAML file ("rustle.yaml" by
// default) merged with RUSTLE_* environment variables; unset fields fall
// back to defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/text/language"
)

// Default values applied by Load when the source leaves a field unset.
const (
	DefaultSourceLanguage = "en"
	DefaultModel          = "standard"
	DefaultAPIBase        = "https://api.rustle.dev/v1"
	DefaultBatchWindowMs  = 100
	DefaultMaxRetries     = 3
	DefaultTimeoutSec     = 30
	DefaultRateLimitMax   = 100
	DefaultRateWindowMs   = 60_000
	DefaultTranslationTTL = 7 * 24 * time.Hour
	DefaultBundleTTL      = 24 * time.Hour
	DefaultDBPath         = "rustle-cache.db"
)

// CacheTTLs configures per-record-type cache lifetimes.
type CacheTTLs struct {
	Translation time.Duration `mapstructure:"translation"`
	Bundle      time.Duration `mapstructure:"bundle"`
}

// RateLimit configures the client-side request limiter.
type RateLimit struct {
	Max      int `mapstructure:"max"`
	WindowMs int `mapstructure:"window_ms"`
}

// Config is the consumed engine configuration.
type Config struct {
	SourceLanguage  string   `mapstructure:"source_language"`
	TargetLanguages []string `mapstructure:"target_languages"`

	APIKey  string `mapstructure:"api_key"`
	APIBase string `mapstructure:"api_base"`
	Model   string `mapstructure:"model"`

	Debug    bool `mapstructure:"debug"`
	Fallback bool `mapstructure:"fallback"`

	CacheTTLs     CacheTTLs `mapstructure:"cache_ttls"`
	BatchWindowMs int       `mapstructure:"batch_window_ms"`
	MaxRetries    int       `mapstructure:"max_retries"`
	RateLimit     RateLimit `mapstructure:"rate_limit"`
	TimeoutSec    int       `mapstructure:"timeout_sec"`

	DBPath    string `mapstructure:"db_path"`
	BundleDir string `mapstructure:"bundle_dir"`
}

// Default returns the configuration used when no file or environment
// overrides exist.
func Default() Config {
	return Config{
		SourceLanguage: DefaultSourceLanguage,
		APIBase:        DefaultAPIBase,
		Model:          DefaultModel,
		Fallback:       true,
		CacheTTLs: CacheTTLs{
			Translation: DefaultTranslationTTL,
			Bundle:      DefaultBundleTTL,
		},
		BatchWindowMs: DefaultBatchWindowMs,
		MaxRetries:    DefaultMaxRetries,
		RateLimit:     RateLimit{Max: DefaultRateLimitMax, WindowMs: DefaultRateWindowMs},
		TimeoutSec:    DefaultTimeoutSec,
		DBPath:        DefaultDBPath,
	}
}

// Load reads configuration from path (optional; empty means no file) merged
// with RUSTLE_* environment variables over the defaults.
func Load(path string) (Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("source_language", def.SourceLanguage)
	v.SetDefault("api_base", def.APIBase)
	v.SetDefault("model", def.Model)
	v.SetDefault("fallback", def.Fallback)
	v.SetDefault("cache_ttls.translation", def.CacheTTLs.Translation)
	v.SetDefault("cache_ttls.bundle", def.CacheTTLs.Bundle)
	v.SetDefault("batch_window_ms", def.BatchWindowMs)
	v.SetDefault("max_retries", def.MaxRetries)
	v.SetDefault("rate_limit.max", def.RateLimit.Max)
	v.SetDefault("rate_limit.window_ms", def.RateLimit.WindowMs)
	v.SetDefault("timeout_sec", def.TimeoutSec)
	v.SetDefault("db_path", def.DBPath)

	v.SetEnvPrefix("RUSTLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the engine cannot run with.
func (c Config) Validate() error {
	if err := validLocale(c.SourceLanguage); err != nil {
		return fmt.Errorf("source_language: %w", err)
	}
	for _, l := range c.TargetLanguages {
		if err := validLocale(l); err != nil {
			return fmt.Errorf("target_languages: %w", err)
		}
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.BatchWindowMs < 0 {
		return fmt.Errorf("batch_window_ms must not be negative, got %d", c.BatchWindowMs)
	}
	if c.RateLimit.Max < 1 {
		return fmt.Errorf("rate_limit.max must be at least 1, got %d", c.RateLimit.Max)
	}
	return nil
}

// BatchWindow returns the flush window as a duration.
func (c Config) BatchWindow() time.Duration {
	return time.Duration(c.BatchWindowMs) * time.Millisecond
}

// Timeout returns the request timeout as a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// RateWindow returns the rate-limit window as a duration.
func (c Config) RateWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowMs) * time.Millisecond
}

func validLocale(locale string) error {
	if locale == "" {
		return fmt.Errorf("locale is empty")
	}
	if _, err := language.Parse(locale); err != nil {
		return fmt.Errorf("invalid locale %q: %w", locale, err)
	}
	return nil
}
