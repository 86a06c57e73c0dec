package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration required by the service.
type Config struct {
	Env      string
	LogLevel string
	HTTPAddr string

	DBURL    string
	RedisURL string

	APIKeys map[string]string // apiKey -> operator name

	Webhook WebhookConfig

	DedupeWindow       time.Duration
	PhoneRegion        string
	CacheTTL           time.Duration
	CacheKeyPrefix     string
	RateLimitPerMinute int
}

// WebhookConfig is the security material for the telephony webhook.
// It is handed to the webhook guard explicitly.
type WebhookConfig struct {
	APIKey     string
	APISalt    string
	AllowedIPs []string
}

// SigningEnabled reports whether webhook bodies must carry a valid signature.
func (w WebhookConfig) SigningEnabled() bool {
	return w.APIKey != "" && w.APISalt != ""
}

// Load reads values from the environment, after merging an optional .env file.
// API_KEYS format: "operator1:key1,operator2:key2"
func Load() (Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	dbURL := env("DB_URL", "")
	if dbURL == "" {
		return Config{}, errors.New("DB_URL required")
	}

	apiKeys, err := parseAPIKeys(env("API_KEYS", ""))
	if err != nil {
		return Config{}, err
	}

	// Local dev fallback so the service runs out-of-the-box.
	if len(apiKeys) == 0 {
		apiKeys["operator-key-123"] = "operator"
	}

	window, err := durationEnv("DEDUPE_WINDOW", 30*time.Minute)
	if err != nil {
		return Config{}, err
	}
	if window <= 0 {
		return Config{}, errors.New("DEDUPE_WINDOW must be positive")
	}

	cacheTTL, err := durationEnv("CACHE_TTL", time.Hour)
	if err != nil {
		return Config{}, err
	}

	rpm, err := intEnv("RATE_LIMIT_PER_MINUTE", 600)
	if err != nil {
		return Config{}, err
	}

	return Config{
		Env:      env("APP_ENV", "production"),
		LogLevel: strings.ToLower(env("LOG_LEVEL", "info")),
		HTTPAddr: env("HTTP_ADDR", ":8080"),
		DBURL:    dbURL,
		RedisURL: env("REDIS_URL", ""),
		APIKeys:  apiKeys,
		Webhook: WebhookConfig{
			APIKey:     env("MANGO_API_KEY", ""),
			APISalt:    env("MANGO_API_SALT", ""),
			AllowedIPs: splitList(env("MANGO_ALLOWED_IPS", "")),
		},
		DedupeWindow:       window,
		PhoneRegion:        strings.ToUpper(env("PHONE_REGION", "RU")),
		CacheTTL:           cacheTTL,
		CacheKeyPrefix:     env("CACHE_KEY_PREFIX", "request_system"),
		RateLimitPerMinute: rpm,
	}, nil
}

func parseAPIKeys(raw string) (map[string]string, error) {
	apiKeys := map[string]string{}
	for _, p := range splitList(raw) {
		parts := strings.SplitN(p, ":", 2)
		if len(parts) != 2 {
			return nil, errors.New(`API_KEYS must be "name:key,name:key"`)
		}
		name := strings.TrimSpace(parts[0])
		key := strings.TrimSpace(parts[1])
		if name == "" || key == "" {
			return nil, errors.New(`API_KEYS must be "name:key,name:key"`)
		}
		apiKeys[key] = name
	}
	return apiKeys, nil
}

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := env(key, "")
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	raw := env(key, "")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
