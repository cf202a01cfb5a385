package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Resolver ResolverConfig `yaml:"resolver"`
	Download DownloadConfig `yaml:"download"`
	Output   OutputConfig   `yaml:"output"`
	Log      LogConfig      `yaml:"log"`
	Ops      OpsConfig      `yaml:"ops"`
	Intake   IntakeConfig   `yaml:"intake"`
}

// HTTPConfig represents outbound request configuration
type HTTPConfig struct {
	Origin            string  `yaml:"origin"`
	Referer           string  `yaml:"referer"`
	UserAgent         string  `yaml:"user_agent"`
	Timeout           int     `yaml:"timeout"` // seconds
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// ResolverConfig represents manifest fallback configuration
type ResolverConfig struct {
	// Templates may use {id}, {kbps}, {origin} and {dir}
	Templates      []string          `yaml:"templates"`
	BucketPrefixes []string          `yaml:"bucket_prefixes"`
	MaxCandidates  int               `yaml:"max_candidates"`
	MetadataAPI    MetadataAPIConfig `yaml:"metadata_api"`
	Cache          CacheConfig       `yaml:"cache"`
}

// MetadataAPIConfig represents an optional JSON lookup for manifest URLs
type MetadataAPIConfig struct {
	URLTemplate   string `yaml:"url_template"`
	ManifestField string `yaml:"manifest_field"` // dot separated path
}

// CacheConfig represents the resolved-manifest cache
type CacheConfig struct {
	Backend string      `yaml:"backend"` // "memory", "redis", "none"
	TTL     int         `yaml:"ttl"`     // seconds
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig represents Redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DownloadConfig represents segment retrieval configuration
type DownloadConfig struct {
	BatchSize      int    `yaml:"batch_size"`
	SegmentRetries int    `yaml:"segment_retries"`
	DefaultQuality string `yaml:"default_quality"`
}

// OutputConfig represents artifact delivery configuration
type OutputConfig struct {
	Dir       string      `yaml:"dir"`
	Mode      string      `yaml:"mode"` // "file" or "folder"
	Overwrite bool        `yaml:"overwrite"`
	Remux     RemuxConfig `yaml:"remux"`
}

// RemuxConfig represents the optional MPEG-TS to MP4 container copy
type RemuxConfig struct {
	Enabled    bool `yaml:"enabled"`
	KeepSource bool `yaml:"keep_source"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// OpsConfig represents the metrics and health endpoint
type OpsConfig struct {
	Listen string `yaml:"listen"` // empty disables the endpoint
}

// IntakeConfig represents the request-file watch directory
type IntakeConfig struct {
	Dir string `yaml:"dir"`
}

// Output modes
const (
	ModeFile   = "file"
	ModeFolder = "folder"
)

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Origin:            "https://www.ruv.is",
			Referer:           "https://www.ruv.is/",
			UserAgent:         "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.114 Safari/537.36",
			Timeout:           30,
			RequestsPerSecond: 0, // unlimited
			Burst:             10,
		},
		Resolver: ResolverConfig{
			Templates: []string{
				"https://ruv-vod.akamaized.net/{id}/master.m3u8",
				"https://vod.ruv.is/{id}/master.m3u8",
				"https://ruv-vod.akamaized.net/TV/{id}/master.m3u8",
				"https://ruv-vod.akamaized.net/krakkaruv/{id}/master.m3u8",
				"https://ruv-vod.akamaized.net/{id}/{kbps}/index.m3u8",
				"https://ruv-vod.akamaized.net/{id}/3600/index.m3u8",
			},
			BucketPrefixes: []string{"TV", "krakkaruv", "opid", "lokad"},
			MaxCandidates:  8,
			Cache: CacheConfig{
				Backend: "memory",
				TTL:     6 * 60 * 60,
			},
		},
		Download: DownloadConfig{
			BatchSize:      10,
			SegmentRetries: 0,
			DefaultQuality: "Normal",
		},
		Output: OutputConfig{
			Dir:  "downloads",
			Mode: ModeFile,
			Remux: RemuxConfig{
				KeepSource: true,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	cfg := Default()

	// Read file if it exists
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Save saves configuration to a YAML file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks value ranges and enumerations
func (c *Config) Validate() error {
	if c.Download.BatchSize < 1 {
		return fmt.Errorf("download.batch_size must be at least 1, got %d", c.Download.BatchSize)
	}
	if c.Download.SegmentRetries < 0 {
		return fmt.Errorf("download.segment_retries must not be negative")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("http.requests_per_second must not be negative")
	}
	if c.Resolver.MaxCandidates < 0 {
		return fmt.Errorf("resolver.max_candidates must not be negative")
	}

	switch strings.ToLower(c.Output.Mode) {
	case ModeFile, ModeFolder:
	default:
		return fmt.Errorf("output.mode must be %q or %q, got %q", ModeFile, ModeFolder, c.Output.Mode)
	}

	switch strings.ToLower(c.Resolver.Cache.Backend) {
	case "", "none", "memory":
	case "redis":
		if c.Resolver.Cache.Redis.Addr == "" {
			return fmt.Errorf("resolver.cache.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown resolver.cache.backend %q", c.Resolver.Cache.Backend)
	}

	if c.Resolver.MetadataAPI.URLTemplate != "" && c.Resolver.MetadataAPI.ManifestField == "" {
		return fmt.Errorf("resolver.metadata_api.manifest_field is required when url_template is set")
	}

	return nil
}

// RequestTimeout returns the per-request timeout
func (c *HTTPConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// CacheTTL returns how long a resolved manifest URL is remembered
func (c *CacheConfig) CacheTTL() time.Duration {
	return time.Duration(c.TTL) * time.Second
}

// Headers returns the origin headers sent with every request
func (c *HTTPConfig) Headers() map[string]string {
	headers := make(map[string]string, 3)
	if c.Origin != "" {
		headers["Origin"] = c.Origin
	}
	if c.Referer != "" {
		headers["Referer"] = c.Referer
	}
	if c.UserAgent != "" {
		headers["User-Agent"] = c.UserAgent
	}
	return headers
}
