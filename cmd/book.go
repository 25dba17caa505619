package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/example/pitch-scheduler/internal/application/orchestrator"
	"github.com/example/pitch-scheduler/internal/domain/booking"
)

func newBookCmd() *cobra.Command {
	var (
		date     string
		at       string
		category string
		players  int
		price    string
		week     string
	)

	c := &cobra.Command{
		Use:   "book",
		Short: "Book a specific slot now, ignoring thresholds and existing bookings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := bootstrap(ctx, bootOptions{nats: true})
			if err != nil {
				return err
			}
			defer a.Close()

			req := orchestrator.ManualRequest{PlayerCount: players}
			if req.Date, err = time.ParseInLocation("2006-01-02", date, a.cfg.Location); err != nil {
				return fmt.Errorf("--date: %w", err)
			}
			if req.Time, err = booking.ParseTimeOfDay(at); err != nil {
				return fmt.Errorf("--time: %w", err)
			}
			if req.Category, err = booking.ParseCategory(category); err != nil {
				return fmt.Errorf("--category: %w", err)
			}
			if price != "" {
				p, err := decimal.NewFromString(price)
				if err != nil {
					return fmt.Errorf("--price: %w", err)
				}
				req.Price = &p
			}
			if week != "" {
				if req.Week, err = booking.ParseWeekID(week); err != nil {
					return fmt.Errorf("--week: %w", err)
				}
			}

			out, err := a.orch.ManualBook(ctx, req)
			if err != nil {
				return err
			}
			if err := printJSON(out); err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, out.Message)
			return out.Err()
		},
	}

	c.Flags().StringVar(&date, "date", "", "slot date (YYYY-MM-DD)")
	c.Flags().StringVar(&at, "time", "", "slot start time (HH:MM)")
	c.Flags().StringVar(&category, "category", "third", "pitch category: half, full or third")
	c.Flags().IntVar(&players, "players", orchestrator.DefaultManualPlayers, "players to split the cost between")
	c.Flags().StringVar(&price, "price", "", "total price (default: the category's standard price)")
	c.Flags().StringVar(&week, "week", "", "ISO week to file the booking under (default: week of --date)")
	_ = c.MarkFlagRequired("date")
	_ = c.MarkFlagRequired("time")
	return c
}
