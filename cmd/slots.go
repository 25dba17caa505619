package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/pitch-scheduler/internal/domain/booking"
)

func newSlotsCmd() *cobra.Command {
	var (
		category string
		refresh  bool
	)

	c := &cobra.Command{
		Use:   "slots",
		Short: "Show the slots the booking site currently lists for a category",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := bootstrap(ctx, bootOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			cat, err := booking.ParseCategory(category)
			if err != nil {
				return err
			}
			get := a.cache.Get
			if refresh {
				get = a.cache.Refresh
			}
			l := get(ctx, cat)
			if l.Err != nil {
				fmt.Fprintf(os.Stderr, "refresh failed: %v\n", l.Err)
			}
			if l.Stale {
				fmt.Fprintf(os.Stderr, "showing stale slots captured at %s\n", l.CapturedAt.Format("2006-01-02 15:04"))
			}
			return printJSON(l.Slots)
		},
	}

	c.Flags().StringVar(&category, "category", "third", "pitch category: half, full or third")
	c.Flags().BoolVar(&refresh, "refresh", false, "bypass the cache and ask the site")
	return c
}
