package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/example/pitch-scheduler/internal/application/orchestrator"
	"github.com/example/pitch-scheduler/internal/application/slotcache"
	"github.com/example/pitch-scheduler/internal/domain/booking"
	"github.com/example/pitch-scheduler/internal/infrastructure/config"
	"github.com/example/pitch-scheduler/internal/infrastructure/merky"
	"github.com/example/pitch-scheduler/internal/infrastructure/natsbus"
	"github.com/example/pitch-scheduler/internal/infrastructure/postgres"
	"github.com/example/pitch-scheduler/internal/infrastructure/redisstore"
	"github.com/example/pitch-scheduler/internal/logging"
)

// app is everything a command needs, wired from the environment.
type app struct {
	cfg    config.Config
	logger zerolog.Logger
	pool   *pgxpool.Pool
	site   *merky.Client
	cache  *slotcache.Cache
	orch   *orchestrator.Orchestrator
	nc     *nats.Conn

	closers []func()
}

type bootOptions struct {
	migrate bool
	nats    bool
}

func bootstrap(ctx context.Context, opts bootOptions) (_ *app, err error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logging.Setup(cfg.Env, cfg.LogLevel)}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.pool, err = postgres.Open(ctx, cfg.DatabaseURL); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.pool.Close)
	if err = postgres.Ping(ctx, a.pool); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if opts.migrate {
		applied, err := postgres.Migrate(ctx, a.pool)
		if err != nil {
			return nil, err
		}
		if len(applied) > 0 {
			a.logger.Info().Strs("migrations", applied).Msg("applied migrations")
		}
	}

	a.site = merky.New(merky.Config{
		BaseURL:  cfg.MerkyBaseURL,
		Username: cfg.MerkyUsername,
		Password: cfg.MerkyPassword,
		Headless: cfg.BrowserHeadless,
		Bin:      cfg.BrowserBin,
		Location: cfg.Location,
	}, a.logger)
	a.closers = append(a.closers, func() { _ = a.site.Close() })
	if !a.site.HasCredentials() {
		a.logger.Warn().Msg("MERKY_FC_USERNAME/MERKY_FC_PASSWORD not set; bookings will be attempted without signing in")
	}

	cacheOpts := []slotcache.Option{slotcache.WithFetchTimeout(cfg.ProviderTimeout)}
	if cfg.RedisAddr != "" {
		store, err := redisstore.New(ctx, redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}, a.logger)
		if err != nil {
			a.logger.Warn().Err(err).Msg("redis unavailable; slot cache stays in process")
		} else {
			a.closers = append(a.closers, func() { _ = store.Close() })
			cacheOpts = append(cacheOpts, slotcache.WithStore(store))
		}
	}
	a.cache = slotcache.New(a.site, a.logger, cacheOpts...)

	var notifier booking.Notifier = orchestrator.LogSink{Logger: a.logger}
	if opts.nats && cfg.NATSURL != "" {
		nc, err := natsbus.Connect(natsConfig(cfg), a.logger)
		if err != nil {
			a.logger.Warn().Err(err).Msg("nats unavailable; notices go to the log only")
		} else {
			a.nc = nc
			a.closers = append(a.closers, func() { _ = nc.Drain() })
			notifier = orchestrator.Fanout{notifier, natsbus.NewNotifier(nc, cfg.NATSNotifySubject)}
		}
	}

	a.orch, err = orchestrator.New(orchestrator.Config{
		Policy:          cfg.Policy,
		PairSelection:   cfg.PairSelection,
		Location:        cfg.Location,
		ExecutorTimeout: cfg.ExecutorTimeout,
	}, orchestrator.Deps{
		Signups:  postgres.NewSignupRepo(a.pool),
		Ledger:   postgres.NewLedgerRepo(a.pool),
		Slots:    a.cache,
		Executor: a.site,
		Notifier: notifier,
	}, a.logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func natsConfig(cfg config.Config) natsbus.Config {
	nc := natsbus.DefaultConfig()
	nc.URL = cfg.NATSURL
	nc.SignupSubject = cfg.NATSSignupSubject
	nc.NotifySubject = cfg.NATSNotifySubject
	return nc
}
