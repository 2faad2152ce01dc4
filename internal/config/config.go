// Package config loads gateway configuration from the environment, an optional
// .env file and an optional YAML mount file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jalsakhi/model-gateway/internal/validation"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingInternalKey is returned by Load when INTERNAL_API_KEY is unset.
var ErrMissingInternalKey = errors.New("INTERNAL_API_KEY must be set in environment")

const (
	// DefaultBodyLimit matches express' "1mb" (binary units).
	DefaultBodyLimit = "1mb"
	// DefaultPort is the gateway listen port.
	DefaultPort = 5000
)

// Config holds gateway configuration
type Config struct {
	Port               int           `validate:"min=1,max=65535"`
	InternalAPIKey     string        `validate:"required"`
	BodyLimit          int64         `validate:"gt=0"`
	RequestTimeout     time.Duration `validate:"gt=0"`
	RateLimitWindow    time.Duration `validate:"gt=0"`
	RateLimitMax       int64         `validate:"min=1"`
	ShutdownGrace      time.Duration `validate:"gt=0"`
	ModelLatency       time.Duration `validate:"gte=0"`
	TrustProxy         bool
	RedisURL           string `validate:"omitempty,url"`
	CORSAllowedOrigins []string
	EnableHSTS         bool
	MetricsAddr        string
	OTELEnabled        bool
	OTELEndpoint       string
	LogLevel           string        `validate:"oneof=debug info warn error"`
	Mounts             []MountConfig `validate:"min=1,dive"`
}

// MountConfig maps a path prefix to an upstream base URL.
type MountConfig struct {
	Name     string `yaml:"name" validate:"required"`
	Prefix   string `yaml:"prefix" validate:"required,mount_prefix"`
	Upstream string `yaml:"upstream" validate:"required,upstream_url"`
	Label    string `yaml:"label" validate:"required"`
}

// mountFile is the layout of GATEWAY_MOUNTS_FILE.
type mountFile struct {
	Mounts []MountConfig `yaml:"mounts"`
}

// mountEnv names the environment variable that overrides each built-in upstream.
var mountEnv = map[string]string{
	"crop-water":    "CROP_WATER_API_URL",
	"soil-moisture": "SOIL_MOISTURE_API_URL",
	"village-water": "VILLAGE_WATER_API_URL",
	"chatbot":       "CHATBOT_API_URL",
}

// reservedPaths are served by the gateway itself and cannot be mounted.
var reservedPaths = []string{"/health", "/healthz", "/model1", "/model2", "/model3"}

// DefaultMounts returns the four built-in upstream mounts.
func DefaultMounts() []MountConfig {
	return []MountConfig{
		{Name: "crop-water", Prefix: "/crop-water", Upstream: "http://localhost:8001", Label: "Crop Water"},
		{Name: "soil-moisture", Prefix: "/soil-moisture", Upstream: "http://localhost:8000", Label: "Soil Moisture"},
		{Name: "village-water", Prefix: "/village-water", Upstream: "http://localhost:8003", Label: "Village Water"},
		{Name: "chatbot", Prefix: "/chatbot", Upstream: "http://localhost:8004", Label: "Chatbot"},
	}
}

// LoadDotEnv loads ENV_FILE (or ./.env) into the process environment.
// Variables already set are left untouched and a missing file is not an error.
func LoadDotEnv() error {
	path := getEnv("ENV_FILE", ".env")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	mounts, err := LoadMounts()
	if err != nil {
		return nil, err
	}

	bodyLimit, err := ParseByteSize(getEnv("BODY_LIMIT", DefaultBodyLimit))
	if err != nil {
		return nil, fmt.Errorf("invalid BODY_LIMIT: %w", err)
	}

	cfg := &Config{
		Port:               getEnvInt("PORT", DefaultPort),
		InternalAPIKey:     getEnv("INTERNAL_API_KEY", ""),
		BodyLimit:          bodyLimit,
		RequestTimeout:     getEnvMillis("REQUEST_TIMEOUT_MS", 60*time.Second),
		RateLimitWindow:    getEnvMillis("RATE_LIMIT_WINDOW_MS", 60*time.Second),
		RateLimitMax:       int64(getEnvInt("RATE_LIMIT_MAX", 100)),
		ShutdownGrace:      getEnvMillis("SHUTDOWN_GRACE_MS", 10*time.Second),
		ModelLatency:       getEnvMillisOrZero("MODEL_LATENCY_MS", 500*time.Millisecond),
		TrustProxy:         getEnvBool("TRUST_PROXY", false),
		RedisURL:           getEnv("REDIS_URL", ""),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "")),
		EnableHSTS:         getEnvBool("ENABLE_HSTS", false),
		MetricsAddr:        getEnv("METRICS_ADDR", ""),
		OTELEnabled:        getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		Mounts:             mounts,
	}

	if cfg.InternalAPIKey == "" {
		return nil, ErrMissingInternalKey
	}

	if err := validation.Validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadMounts resolves the mount table: built-in defaults, then
// GATEWAY_MOUNTS_FILE entries, then per-mount URL environment overrides.
func LoadMounts() ([]MountConfig, error) {
	mounts := DefaultMounts()

	if path := getEnv("GATEWAY_MOUNTS_FILE", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading mounts file %s: %w", path, err)
		}
		var f mountFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parsing mounts file %s: %w", path, err)
		}
		mounts = mergeMounts(mounts, f.Mounts)
	}

	for i := range mounts {
		if key, ok := mountEnv[mounts[i].Name]; ok {
			mounts[i].Upstream = getEnv(key, mounts[i].Upstream)
		}
		mounts[i].Prefix = strings.TrimRight(mounts[i].Prefix, "/")
	}

	if err := checkMounts(mounts); err != nil {
		return nil, err
	}
	return mounts, nil
}

// mergeMounts overlays extra onto base by name. Empty fields in an override
// keep the base value; unknown names are appended.
func mergeMounts(base, extra []MountConfig) []MountConfig {
	out := append([]MountConfig(nil), base...)
	for _, m := range extra {
		replaced := false
		for i := range out {
			if out[i].Name != m.Name {
				continue
			}
			if m.Prefix != "" {
				out[i].Prefix = m.Prefix
			}
			if m.Upstream != "" {
				out[i].Upstream = m.Upstream
			}
			if m.Label != "" {
				out[i].Label = m.Label
			}
			replaced = true
			break
		}
		if !replaced {
			out = append(out, m)
		}
	}
	return out
}

func checkMounts(mounts []MountConfig) error {
	seen := make(map[string]string, len(mounts))
	for _, m := range mounts {
		if err := validation.Validate.Struct(m); err != nil {
			return fmt.Errorf("invalid mount %q: %w", m.Name, err)
		}
		if other, dup := seen[m.Prefix]; dup {
			return fmt.Errorf("mounts %q and %q share prefix %s", other, m.Name, m.Prefix)
		}
		for _, p := range reservedPaths {
			if m.Prefix == p {
				return fmt.Errorf("mount %q uses reserved path %s", m.Name, p)
			}
		}
		seen[m.Prefix] = m.Name
	}
	return nil
}

// ParseByteSize parses express-style sizes ("1mb", "512kb", "2048").
// Decimal-looking suffixes are binary, as in the bytes package express uses.
func ParseByteSize(s string) (int64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, unit := range []string{"kb", "mb", "gb", "tb"} {
		if strings.HasSuffix(s, unit) {
			s = strings.TrimSuffix(s, unit) + unit[:1] + "ib"
			break
		}
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("size must be positive")
	}
	return int64(n), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

// getEnvInt falls back to the default for unparsable or non-positive values.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil && intValue > 0 {
			return intValue
		}
	}
	return defaultValue
}

// getEnvMillis reads a positive millisecond count; zero, negative or
// unparsable values fall back to the default.
func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(value); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

// getEnvMillisOrZero is getEnvMillis that keeps an explicit zero.
func getEnvMillisOrZero(key string, defaultValue time.Duration) time.Duration {
	if os.Getenv(key) == "0" {
		return 0
	}
	return getEnvMillis(key, defaultValue)
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
