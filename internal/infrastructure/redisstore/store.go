// Package redisstore shares slot cache entries between processes through Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/example/pitch-scheduler/internal/application/slotcache"
	"github.com/example/pitch-scheduler/internal/domain/booking"
)

// KeyPrefix is followed by the category name.
const KeyPrefix = "pitchsched:slots:"

// DefaultTTL keeps entries around well past their freshness window so a
// failing provider can still be answered with the last known slots.
const DefaultTTL = 24 * time.Hour

type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Store implements slotcache.Store.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

var _ slotcache.Store = (*Store)(nil)

// New connects and pings Redis. Callers treat an error as "run without a
// shared store".
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	logger.Info().Str("addr", cfg.Addr).Msg("redis slot store initialized")
	return &Store{client: client, ttl: ttl, logger: logger.With().Str("component", "redisstore").Logger()}, nil
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) Load(ctx context.Context, category booking.Category) (slotcache.Entry, bool, error) {
	data, err := s.client.Get(ctx, Key(category)).Bytes()
	if errors.Is(err, redis.Nil) {
		return slotcache.Entry{}, false, nil
	}
	if err != nil {
		return slotcache.Entry{}, false, fmt.Errorf("redis get: %w", err)
	}
	var e slotcache.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		// A corrupt entry is treated as missing so the next read refreshes it.
		s.logger.Debug().Err(err).Str("category", string(category)).Msg("discarding unreadable slot entry")
		return slotcache.Entry{}, false, nil
	}
	return e, true, nil
}

func (s *Store) Save(ctx context.Context, e slotcache.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal slot entry: %w", err)
	}
	if err := s.client.Set(ctx, Key(e.Category), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func Key(c booking.Category) string { return KeyPrefix + string(c) }
