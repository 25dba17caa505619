// Package slotcache keeps the most recent availability per pitch category and
// refreshes it from the booking site when it goes stale.
package slotcache

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/example/pitch-scheduler/internal/application/bounded"
	"github.com/example/pitch-scheduler/internal/domain/booking"
	"github.com/example/pitch-scheduler/internal/telemetry"
)

// FreshFor is how long a captured entry may be served without asking the provider again.
const FreshFor = 30 * time.Minute

const defaultFetchTimeout = 60 * time.Second

// Lookup is the result of a cache read. An empty Slots with a nil Err means the
// provider legitimately reported nothing; a non-nil Err means the last refresh
// failed and Slots (possibly empty) is whatever was cached before.
type Lookup struct {
	Category   booking.Category
	Slots      []booking.Slot
	CapturedAt time.Time
	Refreshed  bool
	Stale      bool
	Err        error
}

// Cache serves slot lists per category. It never returns an error to callers.
type Cache struct {
	provider booking.SlotProvider
	store    Store
	local    *MemoryStore
	logger   zerolog.Logger
	now      func() time.Time
	timeout  time.Duration

	group singleflight.Group
}

type Option func(*Cache)

// WithStore shares entries through s (e.g. Redis). The in-process copy is still
// kept and used whenever s fails.
func WithStore(s Store) Option { return func(c *Cache) { c.store = s } }

func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

// WithFetchTimeout bounds each provider call.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func New(provider booking.SlotProvider, logger zerolog.Logger, opts ...Option) *Cache {
	c := &Cache{
		provider: provider,
		local:    NewMemoryStore(),
		logger:   logger.With().Str("component", "slotcache").Logger(),
		now:      time.Now,
		timeout:  defaultFetchTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the cached slots for category, refreshing first when the entry is
// missing or older than FreshFor.
func (c *Cache) Get(ctx context.Context, category booking.Category) Lookup {
	if e, ok := c.load(ctx, category); ok && e.FreshAt(c.now()) {
		telemetry.SlotLookupsTotal.WithLabelValues(string(category), "fresh").Inc()
		return Lookup{Category: category, Slots: e.Slots, CapturedAt: e.CapturedAt}
	}
	return c.Refresh(ctx, category)
}

// Refresh asks the provider regardless of the entry's age. Concurrent refreshes
// of the same category share one provider call, which runs detached from any
// single caller's cancellation and is bounded by the fetch timeout. A caller
// whose ctx ends first gets the previous entry, marked stale.
func (c *Cache) Refresh(ctx context.Context, category booking.Category) Lookup {
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(string(category), func() (any, error) {
		return c.refresh(shared, category), nil
	})
	select {
	case r := <-ch:
		return r.Val.(Lookup)
	case <-ctx.Done():
		return c.abandoned(shared, category, ctx.Err())
	}
}

func (c *Cache) abandoned(ctx context.Context, category booking.Category, cause error) Lookup {
	l := Lookup{Category: category, Err: fmt.Errorf("waiting for %s slots: %w", category, cause)}
	if e, ok := c.load(ctx, category); ok {
		l.Slots, l.CapturedAt, l.Stale = e.Slots, e.CapturedAt, true
	}
	return l
}

// Snapshot returns the current entry without refreshing it.
func (c *Cache) Snapshot(ctx context.Context, category booking.Category) (Entry, bool) {
	return c.load(ctx, category)
}

func (c *Cache) refresh(ctx context.Context, category booking.Category) Lookup {
	prev, hadPrev := c.load(ctx, category)

	slots, err := c.fetch(ctx, category)
	if err != nil {
		telemetry.SlotRefreshTotal.WithLabelValues(string(category), "error").Inc()
		l := Lookup{Category: category, Err: err}
		if hadPrev {
			c.logger.Warn().Err(err).Str("category", string(category)).
				Time("captured_at", prev.CapturedAt).Msg("slot refresh failed, serving stale entry")
			l.Slots = prev.Slots
			l.CapturedAt = prev.CapturedAt
			l.Stale = true
			telemetry.SlotLookupsTotal.WithLabelValues(string(category), "stale").Inc()
			return l
		}
		c.logger.Warn().Err(err).Str("category", string(category)).Msg("slot refresh failed, nothing cached")
		telemetry.SlotLookupsTotal.WithLabelValues(string(category), "empty").Inc()
		return l
	}

	e := Entry{Category: category, Slots: slots, CapturedAt: c.now()}
	c.save(ctx, e)
	telemetry.SlotRefreshTotal.WithLabelValues(string(category), "ok").Inc()
	telemetry.SlotLookupsTotal.WithLabelValues(string(category), "refreshed").Inc()
	c.logger.Debug().Str("category", string(category)).Int("slots", len(slots)).Msg("slot cache refreshed")
	return Lookup{Category: category, Slots: slots, CapturedAt: e.CapturedAt, Refreshed: true}
}

func (c *Cache) fetch(ctx context.Context, category booking.Category) ([]booking.Slot, error) {
	if c.provider == nil {
		return nil, fmt.Errorf("no slot provider configured")
	}
	slots, err := bounded.Call(ctx, c.timeout, func(ctx context.Context) ([]booking.Slot, error) {
		return c.provider.FetchSlots(ctx, category)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s slots: %w", category, err)
	}
	return slots, nil
}

func (c *Cache) load(ctx context.Context, category booking.Category) (Entry, bool) {
	if c.store != nil {
		e, ok, err := c.store.Load(ctx, category)
		if err == nil {
			return e, ok
		}
		c.logger.Warn().Err(err).Str("category", string(category)).Msg("slot store read failed, using local copy")
	}
	e, ok, _ := c.local.Load(ctx, category)
	return e, ok
}

func (c *Cache) save(ctx context.Context, e Entry) {
	_ = c.local.Save(ctx, e)
	if c.store == nil {
		return
	}
	if err := c.store.Save(ctx, e); err != nil {
		c.logger.Warn().Err(err).Str("category", string(e.Category)).Msg("slot store write failed")
	}
}
