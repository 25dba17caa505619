package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/example/pitch-scheduler/internal/application/orchestrator"
	"github.com/example/pitch-scheduler/internal/domain/booking"
)

// SignupEvent is published by the signup frontend whenever a player joins or
// leaves a week.
type SignupEvent struct {
	Week   string `json:"week"`
	Action string `json:"action"`
	Name   string `json:"name"`
}

// Evaluator is satisfied by *orchestrator.Orchestrator.
type Evaluator interface {
	Evaluate(ctx context.Context, week booking.WeekID) orchestrator.Outcome
}

// SignupListener re-evaluates a week each time its signups change.
type SignupListener struct {
	eval   Evaluator
	logger zerolog.Logger
}

func NewSignupListener(eval Evaluator, logger zerolog.Logger) *SignupListener {
	return &SignupListener{eval: eval, logger: logger.With().Str("component", "signup-listener").Logger()}
}

// Run subscribes to subject and blocks until ctx is cancelled. Messages are
// handled one at a time.
func (l *SignupListener) Run(ctx context.Context, nc *nats.Conn, subject string) error {
	if subject == "" {
		subject = DefaultSignupSubject
	}
	sub, err := nc.Subscribe(subject, func(m *nats.Msg) {
		l.Handle(ctx, m.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	l.logger.Info().Str("subject", subject).Msg("listening for signup events")

	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil {
		l.logger.Warn().Err(err).Msg("unsubscribe failed")
	}
	return ctx.Err()
}

// Handle decodes one event and evaluates its week. Malformed events are logged
// and dropped.
func (l *SignupListener) Handle(ctx context.Context, data []byte) (orchestrator.Outcome, bool) {
	ev, week, err := decodeSignup(data)
	if err != nil {
		l.logger.Warn().Err(err).Msg("dropping signup event")
		return orchestrator.Outcome{}, false
	}
	l.logger.Debug().Str("week", week.String()).Str("action", ev.Action).Str("name", ev.Name).Msg("signup event")
	return l.eval.Evaluate(ctx, week), true
}

func decodeSignup(data []byte) (SignupEvent, booking.WeekID, error) {
	var ev SignupEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, "", fmt.Errorf("decode signup event: %w", err)
	}
	week, err := booking.ParseWeekID(strings.TrimSpace(ev.Week))
	if err != nil {
		return ev, "", err
	}
	switch ev.Action {
	case "", "add", "remove":
	default:
		return ev, "", fmt.Errorf("unknown signup action %q", ev.Action)
	}
	return ev, week, nil
}
