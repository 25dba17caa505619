package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/pitch-scheduler/internal/application/slotcache"
	"github.com/example/pitch-scheduler/internal/infrastructure/natsbus"
	"github.com/example/pitch-scheduler/internal/interfaces/web"
)

func newServerCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the operator API, slot refresher and signup listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := bootstrap(ctx, bootOptions{migrate: migrateUp, nats: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.cfg.LoadSessionKeys(); err != nil {
				return err
			}
			if a.cfg.AdminPasswordHash == "" {
				a.logger.Warn().Msg("ADMIN_PASSWORD_HASH not set; operator API login is disabled")
			}

			g, ctx := errgroup.WithContext(ctx)
			deps := web.Deps{Booker: a.orch, Slots: a.cache}

			if a.cfg.RefreshInterval > 0 {
				r := slotcache.NewRefresher(a.cache, a.cfg.RefreshCategories, a.cfg.RefreshInterval, a.logger)
				deps.Refresher = r
				g.Go(func() error { return ignoreCanceled(r.Run(ctx)) })
			} else {
				a.logger.Info().Msg("background slot refresh disabled")
			}

			if a.nc != nil {
				l := natsbus.NewSignupListener(a.orch, a.logger)
				g.Go(func() error { return ignoreCanceled(l.Run(ctx, a.nc, a.cfg.NATSSignupSubject)) })
			}

			srv := web.New(a.cfg.HTTPAddr, web.NewSessionManager(a.cfg.SessionHashKey, a.cfg.SessionBlockKey),
				a.cfg.AdminPasswordHash, deps, a.cfg.Location, a.logger)
			g.Go(func() error { return srv.ListenAndServe(ctx) })

			return g.Wait()
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	return cmd
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
