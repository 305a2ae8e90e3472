// Package config loads runtime settings from the environment. A .env file
// in the working directory is read first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// ErrInvalid wraps every configuration validation failure.
var ErrInvalid = errors.New("config: invalid configuration")

// Config is the full runtime configuration.
type Config struct {
	APIKeys        []string        `validate:"required,min=1,dive,required"`
	PriceBaseURL   string          `validate:"required,url"`
	Threshold      decimal.Decimal `validate:"-"`
	CheckInterval  time.Duration   `validate:"gte=1000000000"`
	CacheTTL       time.Duration   `validate:"gte=0"`
	RequestTimeout time.Duration   `validate:"gt=0"`

	Port        string `validate:"required,numeric"`
	DatabaseURL string `validate:"omitempty,url"`
	RedisURL    string `validate:"omitempty,url"`
	DBMaxConns  int32  `validate:"gte=1"`
	DBMinConns  int32  `validate:"gte=0,ltefield=DBMaxConns"`

	InfluxURL    string `validate:"omitempty,url"`
	InfluxToken  string `validate:"required_with=InfluxURL"`
	InfluxOrg    string `validate:"required_with=InfluxURL"`
	InfluxBucket string `validate:"required_with=InfluxURL"`

	NotifyRatePerSec float64 `validate:"gte=0"`

	LogLevel string `validate:"oneof=debug info warn error"`
	LogFile  string
}

var validate = validator.New()

// Load reads .env (best effort) and the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds and validates a Config from getenv.
func FromEnv(getenv func(string) string) (Config, error) {
	var errs []error
	p := parser{getenv: getenv, errs: &errs}

	cfg := Config{
		APIKeys:          splitList(getenv("CRYPTO_API_KEYS")),
		PriceBaseURL:     strings.TrimRight(p.str("CRYPTO_API_BASE_URL", ""), "/"),
		Threshold:        p.decimal("PRICE_THRESHOLD", decimal.NewFromFloat(0.005)),
		CheckInterval:    p.millis("PRICE_CHECK_INTERVAL", 15*time.Second),
		CacheTTL:         p.duration("PRICE_CACHE_TTL", 15*time.Second),
		RequestTimeout:   p.duration("PRICE_REQUEST_TIMEOUT", 5*time.Second),
		Port:             p.str("PORT", "8080"),
		DatabaseURL:      getenv("DATABASE_URL"),
		RedisURL:         getenv("REDIS_URL"),
		DBMaxConns:       int32(p.integer("DB_MAX_CONNS", 10)),
		DBMinConns:       int32(p.integer("DB_MIN_CONNS", 2)),
		InfluxURL:        getenv("INFLUXDB_URL"),
		InfluxToken:      getenv("INFLUXDB_TOKEN"),
		InfluxOrg:        getenv("INFLUXDB_ORG"),
		InfluxBucket:     getenv("INFLUXDB_BUCKET"),
		NotifyRatePerSec: p.float("NOTIFY_RATE_PER_SEC", 20),
		LogLevel:         strings.ToLower(p.str("LOG_LEVEL", "info")),
		LogFile:          getenv("LOG_FILE"),
	}

	if !cfg.Threshold.IsPositive() || cfg.Threshold.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Errorf("PRICE_THRESHOLD must be in (0, 1), got %s", cfg.Threshold))
	}
	if len(errs) > 0 {
		return cfg, fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	if err := validate.StructExcept(cfg, feedFields...); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return cfg, nil
}

// Only the monitor needs the price provider; migrate runs without it.
var feedFields = []string{"APIKeys", "PriceBaseURL"}

// RequireFeed checks the price provider settings.
func (c Config) RequireFeed() error {
	if err := validate.StructPartial(c, feedFields...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return ":" + c.Port
}

type parser struct {
	getenv func(string) string
	errs   *[]error
}

func (p parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p parser) integer(key string, def int) int {
	raw := strings.TrimSpace(p.getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (p parser) float(key string, def float64) float64 {
	raw := strings.TrimSpace(p.getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (p parser) decimal(key string, def decimal.Decimal) decimal.Decimal {
	raw := strings.TrimSpace(p.getenv(key))
	if raw == "" {
		return def
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

// millis reads a bare integer as milliseconds.
func (p parser) millis(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(p.getenv(key))
	if raw == "" {
		return def
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: expected milliseconds: %w", key, err))
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

// duration accepts Go duration syntax ("15s") or bare seconds ("15").
func (p parser) duration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(p.getenv(key))
	if raw == "" {
		return def
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
