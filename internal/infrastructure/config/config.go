package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/example/pitch-scheduler/internal/application/orchestrator"
	"github.com/example/pitch-scheduler/internal/domain/booking"
)

type Config struct {
	HTTPAddr    string
	DatabaseURL string
	Env         string
	LogLevel    string
	Location    *time.Location

	Policy        booking.ThresholdPolicy
	PairSelection orchestrator.PairSelection

	MerkyBaseURL    string
	MerkyUsername   string
	MerkyPassword   string
	BrowserHeadless bool
	BrowserBin      string

	ProviderTimeout   time.Duration
	ExecutorTimeout   time.Duration
	RefreshInterval   time.Duration // 0 disables the background refresher
	RefreshCategories []booking.Category

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	NATSURL           string
	NATSSignupSubject string
	NATSNotifySubject string

	SessionHashKey    []byte // base64, server only
	SessionBlockKey   []byte // base64, server only
	AdminPasswordHash string // bcrypt
}

func FromEnv() (Config, error) {
	cfg := Config{
		HTTPAddr:          envDefault("HTTP_ADDR", ":8080"),
		DatabaseURL:       strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Env:               envDefault("APP_ENV", "production"),
		LogLevel:          strings.TrimSpace(os.Getenv("LOG_LEVEL")),
		MerkyBaseURL:      envDefault("MERKY_BASE_URL", "https://merkyfchq.com"),
		MerkyUsername:     strings.TrimSpace(os.Getenv("MERKY_FC_USERNAME")),
		MerkyPassword:     os.Getenv("MERKY_FC_PASSWORD"),
		BrowserBin:        strings.TrimSpace(os.Getenv("BROWSER_BIN")),
		RedisAddr:         strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		NATSURL:           strings.TrimSpace(os.Getenv("NATS_URL")),
		NATSSignupSubject: envDefault("NATS_SIGNUP_SUBJECT", "pitch.signups"),
		NATSNotifySubject: envDefault("NATS_NOTIFY_SUBJECT", "pitch.notices"),
		AdminPasswordHash: strings.TrimSpace(os.Getenv("ADMIN_PASSWORD_HASH")),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}

	var err error
	if cfg.Location, err = time.LoadLocation(envDefault("TIMEZONE", "Europe/London")); err != nil {
		return cfg, fmt.Errorf("TIMEZONE: %w", err)
	}

	p := booking.DefaultPolicy()
	if p.HalfThreshold, err = envInt("BOOKING_HALF_PITCH_THRESHOLD", p.HalfThreshold); err != nil {
		return cfg, err
	}
	if p.FullThreshold, err = envInt("BOOKING_FULL_PITCH_THRESHOLD", p.FullThreshold); err != nil {
		return cfg, err
	}
	if p.PreferredTime, err = booking.ParseTimeOfDay(envDefault("BOOKING_PREFERRED_TIME", p.PreferredTime.String())); err != nil {
		return cfg, fmt.Errorf("BOOKING_PREFERRED_TIME: %w", err)
	}
	if p.AutoBookEnabled, err = envBool("BOOKING_AUTO_ENABLED", p.AutoBookEnabled); err != nil {
		return cfg, err
	}
	if err := p.Validate(); err != nil {
		return cfg, err
	}
	cfg.Policy = p

	if cfg.PairSelection, err = orchestrator.ParsePairSelection(os.Getenv("BOOKING_PAIR_SELECTION")); err != nil {
		return cfg, fmt.Errorf("BOOKING_PAIR_SELECTION: %w", err)
	}
	if cfg.BrowserHeadless, err = envBool("BROWSER_HEADLESS", true); err != nil {
		return cfg, err
	}
	if cfg.ProviderTimeout, err = envDuration("PROVIDER_TIMEOUT", 60*time.Second); err != nil {
		return cfg, err
	}
	if cfg.ExecutorTimeout, err = envDuration("EXECUTOR_TIMEOUT", 3*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.RefreshInterval, err = envDuration("SLOT_REFRESH_INTERVAL", 5*time.Minute); err != nil {
		return cfg, err
	}
	for _, s := range strings.Split(envDefault("SLOT_REFRESH_CATEGORIES", "third"), ",") {
		if strings.TrimSpace(s) == "" {
			continue
		}
		c, err := booking.ParseCategory(s)
		if err != nil {
			return cfg, fmt.Errorf("SLOT_REFRESH_CATEGORIES: %w", err)
		}
		cfg.RefreshCategories = append(cfg.RefreshCategories, c)
	}
	if cfg.RedisDB, err = envInt("REDIS_DB", 0); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadSessionKeys reads the cookie keys the HTTP server needs.
func (c *Config) LoadSessionKeys() error {
	var err error
	if c.SessionHashKey, err = mustB64("SESSION_HASH_KEY"); err != nil {
		return err
	}
	if c.SessionBlockKey, err = mustB64("SESSION_BLOCK_KEY"); err != nil {
		return err
	}
	if n := len(c.SessionBlockKey); n != 16 && n != 24 && n != 32 {
		return fmt.Errorf("SESSION_BLOCK_KEY must decode to 16, 24 or 32 bytes (got %d)", n)
	}
	return nil
}

func envDefault(k, d string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d
	}
	return v
}

func envInt(k string, d int) (int, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return d, fmt.Errorf("%s must be an integer: %w", k, err)
	}
	return n, nil
}

func envBool(k string, d bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return d, fmt.Errorf("%s must be true or false: %w", k, err)
	}
	return b, nil
}

func envDuration(k string, d time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d, nil
	}
	if v == "0" {
		return 0, nil
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		return d, fmt.Errorf("%s must be a duration such as 30s or 5m: %w", k, err)
	}
	if dur < 0 {
		return d, fmt.Errorf("%s must not be negative", k)
	}
	return dur, nil
}

func mustB64(k string) ([]byte, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return nil, fmt.Errorf("%s is required (base64)", k)
	}
	if b, err := base64.StdEncoding.DecodeString(v); err == nil {
		return b, nil
	}
	b, err := base64.RawStdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", k, err)
	}
	return b, nil
}
