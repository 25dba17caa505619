package orchestrator

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/example/pitch-scheduler/internal/domain/booking"
)

// LogSink writes notices to the log. It never fails.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) Notify(_ context.Context, message string) error {
	s.Logger.Info().Str("component", "notify").Msg(message)
	return nil
}

func (s LogSink) NotifyNotice(_ context.Context, n booking.Notice) error {
	s.Logger.Info().Str("component", "notify").Str("week", n.Week.String()).Str("kind", n.Kind).Msg(n.Message)
	return nil
}

// Fanout delivers to every sink and joins their errors.
type Fanout []booking.Notifier

func (f Fanout) Notify(ctx context.Context, message string) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) NotifyNotice(ctx context.Context, notice booking.Notice) error {
	var errs []error
	for _, n := range f {
		var err error
		if nn, ok := n.(booking.NoticeNotifier); ok {
			err = nn.NotifyNotice(ctx, notice)
		} else {
			err = n.Notify(ctx, notice.Message)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
