package model

import (
	"fmt"
	"time"
)

// Config is the complete runtime configuration.
// Precedence: CLI flags > PHISHLENS_* env > config file > DefaultConfig.
type Config struct {
	Model        ModelConfig        `yaml:"model" mapstructure:"model"`
	Thresholds   Thresholds         `yaml:"thresholds" mapstructure:"thresholds"`
	Reputation   ReputationConfig   `yaml:"reputation" mapstructure:"reputation"`
	Blocklist    BlocklistConfig    `yaml:"blocklist" mapstructure:"blocklist"`
	HTTP         HTTPConfig         `yaml:"http" mapstructure:"http"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	History      HistoryConfig      `yaml:"history" mapstructure:"history"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
}

// ModelConfig locates the classifier artefacts.
// A location is a file path, an http(s) URL, or empty for the embedded default.
type ModelConfig struct {
	Weights     string        `yaml:"weights" mapstructure:"weights"`
	Scaler      string        `yaml:"scaler" mapstructure:"scaler"`
	LoadTimeout time.Duration `yaml:"load_timeout" mapstructure:"load_timeout"`
	RetryAfter  time.Duration `yaml:"retry_after" mapstructure:"retry_after"` // 0 keeps a failed load until restart
}

// Thresholds holds the display tier boundaries and the separate blocking gate.
// Block is intentionally much higher than High: most risky pages are shown, few are blocked.
type Thresholds struct {
	Medium int `yaml:"medium" mapstructure:"medium"`
	High   int `yaml:"high" mapstructure:"high"`
	Block  int `yaml:"block" mapstructure:"block"`
}

// ReputationConfig configures the external blocklist lookup
type ReputationConfig struct {
	Enabled           bool          `yaml:"enabled" mapstructure:"enabled"`
	Endpoint          string        `yaml:"endpoint" mapstructure:"endpoint"`
	APIKey            string        `yaml:"api_key,omitempty" mapstructure:"api_key"`
	ClientID          string        `yaml:"client_id" mapstructure:"client_id"`
	Boost             int           `yaml:"boost" mapstructure:"boost"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int           `yaml:"burst" mapstructure:"burst"`
	CacheTTL          time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// BlocklistConfig is a local list of known-bad domains and URL path patterns
type BlocklistConfig struct {
	Domains      []string `yaml:"domains" mapstructure:"domains"`
	PathPatterns []string `yaml:"path_patterns" mapstructure:"path_patterns"`
	Boost        int      `yaml:"boost" mapstructure:"boost"`
}

// HTTPConfig configures page fetching
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	InsecureTLS   bool          `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	HTTPProxy     string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy       string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// CacheConfig controls result caching
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// HistoryConfig controls the SQLite scan log
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// ConcurrencyConfig controls batch workers
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// RateLimitingConfig controls per-host page fetch rate
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// LLMConfig configures the optional narrative summary
type LLMConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"` // openai, ollama, or empty to disable
	Model     string `yaml:"model" mapstructure:"model"`
	APIKey    string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL   string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout   int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ServerConfig configures the local HTTP API
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" mapstructure:"listen_addr"`
}

// OutputConfig controls CLI output
type OutputConfig struct {
	Verbose  bool   `yaml:"verbose" mapstructure:"verbose"`
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
	Color    bool   `yaml:"color" mapstructure:"color"`
}

// DefaultThresholds returns the display tiers (50/75) and the blocking gate (95)
func DefaultThresholds() Thresholds {
	return Thresholds{
		Medium: 50,
		High:   75,
		Block:  95,
	}
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			LoadTimeout: 30 * time.Second,
			RetryAfter:  time.Minute,
		},
		Thresholds: DefaultThresholds(),
		Reputation: ReputationConfig{
			Enabled:           false,
			Endpoint:          "https://safebrowsing.googleapis.com/v4/threatMatches:find",
			ClientID:          "phishlens",
			Boost:             60,
			Timeout:           5 * time.Second,
			RequestsPerSecond: 5,
			Burst:             5,
			CacheTTL:          30 * time.Minute,
		},
		Blocklist: BlocklistConfig{
			Boost: 40,
		},
		HTTP: HTTPConfig{
			Timeout:       10 * time.Second,
			UserAgent:     "PhishLens/0.1 (+https://github.com/ppiankov/phishlens)",
			MaxBodyBytes:  2_000_000,
			RespectRobots: false,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       "~/.phishlens/cache",
			MemoryTTL: 10 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "~/.phishlens/history.db",
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 2,
			BurstSize:         5,
		},
		LLM: LLMConfig{
			Timeout:   30,
			MaxTokens: 400,
		},
		Server: ServerConfig{
			ListenAddr: "127.0.0.1:7780",
		},
		Output: OutputConfig{
			LogLevel: "info",
			Color:    true,
		},
	}
}

// Validate checks invariants that the rest of the code relies on
func (t Thresholds) Validate() error {
	for name, v := range map[string]int{"medium": t.Medium, "high": t.High, "block": t.Block} {
		if v < 0 || v > 100 {
			return fmt.Errorf("threshold %s out of range [0,100]: %d", name, v)
		}
	}
	if t.Medium > t.High {
		return fmt.Errorf("medium threshold (%d) above high threshold (%d)", t.Medium, t.High)
	}
	return nil
}

// Validate checks the whole configuration
func (c *Config) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}
	if c.Reputation.Enabled && c.Reputation.Endpoint == "" {
		return fmt.Errorf("reputation: endpoint required when enabled")
	}
	if c.Reputation.Boost < 0 || c.Blocklist.Boost < 0 {
		return fmt.Errorf("signal boosts must be non-negative")
	}
	return nil
}
