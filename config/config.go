package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Browser    BrowserConfig    `yaml:"browser"`
	Pool       PoolConfig       `yaml:"pool"`
	Escalation EscalationConfig `yaml:"escalation"`
	Extract    ExtractConfig    `yaml:"extract"`
	Auth       AuthConfig       `yaml:"auth"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Cache      CacheConfig      `yaml:"cache"`
	History    HistoryConfig    `yaml:"history"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `yaml:"host"` // default: "0.0.0.0"
	Port int    `yaml:"port"` // default: 8080
	Mode string `yaml:"mode"` // "debug", "release", "test"; default: "release"
}

// FetchConfig controls the static HTTP fetcher.
type FetchConfig struct {
	// Timeout is the deadline for one static fetch.
	Timeout time.Duration `yaml:"timeout"` // default: 15s

	// UserAgent identifies the client to target servers.
	UserAgent string `yaml:"user_agent"`

	// Proxy is an optional http(s) proxy URL for static fetches.
	Proxy string `yaml:"proxy"`

	// RespectRobots refuses URLs that robots.txt disallows for UserAgent.
	RespectRobots bool `yaml:"respect_robots"` // default: false
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool `yaml:"headless"` // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool `yaml:"no_sandbox"` // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string `yaml:"browser_bin"`

	// Proxy is passed to the browser launcher.
	Proxy string `yaml:"proxy"`

	// NavigationTimeout is the deadline for one dynamic fetch
	// (navigate + wait + capture).
	NavigationTimeout time.Duration `yaml:"navigation_timeout"` // default: 30s

	// WaitNetworkIdle waits for network idle instead of DOM stability. It
	// only takes effect when nothing is blocked (BlockedResourceTypes empty and
	// BlockAds false), since request hijacking and idle tracking both use the
	// Fetch domain.
	WaitNetworkIdle bool `yaml:"wait_network_idle"` // default: false

	// SettleDelay is an extra fixed wait after the completion signal.
	SettleDelay time.Duration `yaml:"settle_delay"` // default: 0

	// BlockedResourceTypes lists resource types to block.
	// default: ["Image", "Stylesheet", "Font", "Media"]
	BlockedResourceTypes []string `yaml:"blocked_resource_types"`

	// BlockAds blocks requests to known ad and tracking domains.
	BlockAds bool `yaml:"block_ads"` // default: true
}

// PoolConfig controls the browser page pool sizing.
type PoolConfig struct {
	// MinPages is the minimum number of pages kept in the pool.
	MinPages int `yaml:"min_pages"` // default: 1

	// HardMax is the absolute maximum number of pages.
	HardMax int `yaml:"hard_max"` // default: 5

	// MemThreshold is the heap memory fraction (0.0-1.0) above which the pool shrinks.
	MemThreshold float64 `yaml:"mem_threshold"` // default: 0.9

	// ScaleStep is the fraction of pool size to grow or shrink per interval.
	ScaleStep float64 `yaml:"scale_step"` // default: 0.2
}

// EscalationConfig holds the auto-mode thresholds.
type EscalationConfig struct {
	MinTextLength         int           `yaml:"min_text_length"`          // default: 200
	ShellTextLength       int           `yaml:"shell_text_length"`        // default: 1000
	ScriptHeavyCount      int           `yaml:"script_heavy_count"`       // default: 10
	ScriptHeavyTextLength int           `yaml:"script_heavy_text_length"` // default: 500
	DomainMemoryTTL       time.Duration `yaml:"domain_memory_ttl"`        // default: 0 (disabled)
}

// ExtractConfig controls the extractor output.
type ExtractConfig struct {
	// PreviewLimit is the maximum size in bytes of html_preview.
	PreviewLimit int `yaml:"preview_limit"` // default: 5000
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool `yaml:"enabled"` // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string `yaml:"api_keys"`
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 `yaml:"requests_per_second"` // default: 5

	// Burst is the maximum burst size per API key.
	Burst int `yaml:"burst"` // default: 10
}

// CacheConfig controls the scrape result cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached results.
	MaxEntries int `yaml:"max_entries"` // default: 1000
}

// HistoryConfig controls the in-memory scrape log.
type HistoryConfig struct {
	MaxEntries int `yaml:"max_entries"` // default: 500
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // default: "info"
	Format string `yaml:"format"` // "json" or "text"; default: "json"
}

// DefaultUserAgent identifies scrapepal to the sites it fetches.
const DefaultUserAgent = "ScrapePal/1.0 (+https://github.com/use-agent/scrapepal)"

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("SCRAPEPAL_HOST", "0.0.0.0"),
			Port: envIntOr("SCRAPEPAL_PORT", 8080),
			Mode: envOr("SCRAPEPAL_MODE", "release"),
		},
		Fetch: FetchConfig{
			Timeout:       envDurationOr("SCRAPEPAL_HTTP_TIMEOUT", 15*time.Second),
			UserAgent:     envOr("SCRAPEPAL_USER_AGENT", DefaultUserAgent),
			Proxy:         os.Getenv("SCRAPEPAL_HTTP_PROXY"),
			RespectRobots: envBoolOr("SCRAPEPAL_RESPECT_ROBOTS", false),
		},
		Browser: BrowserConfig{
			Headless:          envBoolOr("SCRAPEPAL_HEADLESS", true),
			NoSandbox:         envBoolOr("SCRAPEPAL_NO_SANDBOX", false),
			BrowserBin:        os.Getenv("SCRAPEPAL_BROWSER_BIN"),
			Proxy:             os.Getenv("SCRAPEPAL_BROWSER_PROXY"),
			NavigationTimeout: envDurationOr("SCRAPEPAL_NAV_TIMEOUT", 30*time.Second),
			WaitNetworkIdle:   envBoolOr("SCRAPEPAL_WAIT_NETWORK_IDLE", false),
			SettleDelay:       envDurationOr("SCRAPEPAL_SETTLE_DELAY", 0),
			BlockedResourceTypes: envSliceOr("SCRAPEPAL_BLOCKED_RESOURCES", []string{
				"Image", "Stylesheet", "Font", "Media",
			}),
			BlockAds: envBoolOr("SCRAPEPAL_BLOCK_ADS", true),
		},
		Pool: PoolConfig{
			MinPages:     envIntOr("SCRAPEPAL_MIN_PAGES", 1),
			HardMax:      envIntOr("SCRAPEPAL_MAX_PAGES", 5),
			MemThreshold: envFloatOr("SCRAPEPAL_MEM_THRESHOLD", 0.9),
			ScaleStep:    envFloatOr("SCRAPEPAL_SCALE_STEP", 0.2),
		},
		Escalation: EscalationConfig{
			MinTextLength:         envIntOr("SCRAPEPAL_ESCALATE_MIN_TEXT", 200),
			ShellTextLength:       envIntOr("SCRAPEPAL_ESCALATE_SHELL_TEXT", 1000),
			ScriptHeavyCount:      envIntOr("SCRAPEPAL_ESCALATE_SCRIPT_COUNT", 10),
			ScriptHeavyTextLength: envIntOr("SCRAPEPAL_ESCALATE_SCRIPT_TEXT", 500),
			DomainMemoryTTL:       envDurationOr("SCRAPEPAL_DOMAIN_MEMORY_TTL", 0),
		},
		Extract: ExtractConfig{
			PreviewLimit: envIntOr("SCRAPEPAL_PREVIEW_LIMIT", 5000),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("SCRAPEPAL_AUTH_ENABLED", true),
			APIKeys: envSliceOr("SCRAPEPAL_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("SCRAPEPAL_RATE_RPS", 5.0),
			Burst:             envIntOr("SCRAPEPAL_RATE_BURST", 10),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("SCRAPEPAL_CACHE_MAX_ENTRIES", 1000),
		},
		History: HistoryConfig{
			MaxEntries: envIntOr("SCRAPEPAL_HISTORY_MAX_ENTRIES", 500),
		},
		Log: LogConfig{
			Level:  envOr("SCRAPEPAL_LOG_LEVEL", "info"),
			Format: envOr("SCRAPEPAL_LOG_FORMAT", "json"),
		},
	}
}

// LoadFile loads the env configuration and overlays the YAML file at path.
// Keys present in the file win over environment values; absent keys keep
// the environment or default value.
func LoadFile(path string) (*Config, error) {
	cfg := Load()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
