package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/pitch-scheduler/internal/domain/booking"
)

func newEvaluateCmd() *cobra.Command {
	var week string

	c := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a week's signups once and book if a threshold is met",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := bootstrap(ctx, bootOptions{nats: true})
			if err != nil {
				return err
			}
			defer a.Close()

			w, err := resolveWeek(week, a.cfg.Location)
			if err != nil {
				return err
			}
			out := a.orch.Evaluate(ctx, w)
			if err := printJSON(out); err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, out.Message)
			return nil
		},
	}
	c.Flags().StringVar(&week, "week", "", "ISO week, e.g. 2025-W04 (default: current week)")
	return c
}

func newStatusCmd() *cobra.Command {
	var week string

	c := &cobra.Command{
		Use:   "status",
		Short: "Show signup count, thresholds and bookings for a week",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := bootstrap(ctx, bootOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			w, err := resolveWeek(week, a.cfg.Location)
			if err != nil {
				return err
			}
			st, err := a.orch.Status(ctx, w)
			if err != nil {
				return err
			}
			return printJSON(st)
		},
	}
	c.Flags().StringVar(&week, "week", "", "ISO week, e.g. 2025-W04 (default: current week)")
	return c
}

func resolveWeek(s string, loc *time.Location) (booking.WeekID, error) {
	if s == "" || s == "current" {
		return booking.WeekOf(time.Now().In(loc)), nil
	}
	return booking.ParseWeekID(s)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
