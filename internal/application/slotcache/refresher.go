package slotcache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/pitch-scheduler/internal/domain/booking"
)

// Refresher pre-warms the cache on a timer. It is independent of the
// orchestrator, which still refreshes on demand when it finds a stale entry.
type Refresher struct {
	Cache      *Cache
	Categories []booking.Category
	Interval   time.Duration

	logger  zerolog.Logger
	trigger chan struct{}

	mu     sync.Mutex
	status RefresherStatus
}

// RefresherStatus is reported to operators.
type RefresherStatus struct {
	Running    bool          `json:"running"`
	LastRun    time.Time     `json:"last_run"`
	RunCount   int           `json:"run_count"`
	ErrorCount int           `json:"error_count"`
	Interval   time.Duration `json:"interval"`
}

func NewRefresher(c *Cache, categories []booking.Category, interval time.Duration, logger zerolog.Logger) *Refresher {
	return &Refresher{
		Cache:      c,
		Categories: categories,
		Interval:   interval,
		logger:     logger.With().Str("component", "refresher").Logger(),
		trigger:    make(chan struct{}, 1),
	}
}

// Run refreshes every category immediately and then once per Interval until ctx
// is cancelled.
func (r *Refresher) Run(ctx context.Context) error {
	t := time.NewTicker(r.Interval)
	defer t.Stop()

	r.setRunning(true)
	defer r.setRunning(false)
	r.logger.Info().Dur("interval", r.Interval).Msg("slot refresher started")

	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("slot refresher stopped")
			return ctx.Err()
		case <-t.C:
			r.tick(ctx)
		case <-r.trigger:
			t.Reset(r.Interval)
			r.tick(ctx)
		}
	}
}

// Trigger asks a running refresher for an immediate pass. It never blocks.
func (r *Refresher) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

func (r *Refresher) Status() RefresherStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.status
	s.Interval = r.Interval
	return s
}

func (r *Refresher) tick(ctx context.Context) {
	var failed int
	for _, c := range r.Categories {
		if ctx.Err() != nil {
			return
		}
		l := r.Cache.Refresh(ctx, c)
		if l.Err != nil {
			failed++
			continue
		}
		r.logger.Debug().Str("category", string(c)).Int("slots", len(l.Slots)).Msg("slots cached")
	}

	r.mu.Lock()
	r.status.LastRun = time.Now()
	r.status.RunCount++
	r.status.ErrorCount += failed
	r.mu.Unlock()
}

func (r *Refresher) setRunning(v bool) {
	r.mu.Lock()
	r.status.Running = v
	r.mu.Unlock()
}
