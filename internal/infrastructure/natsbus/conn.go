// Package natsbus connects the orchestrator to NATS: signup events in,
// booking notices out.
package natsbus

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const (
	DefaultSignupSubject = "pitch.signups"
	DefaultNotifySubject = "pitch.notices"
)

type Config struct {
	URL           string
	SignupSubject string
	NotifySubject string

	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultConfig returns connection settings for a local server.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SignupSubject: DefaultSignupSubject,
		NotifySubject: DefaultNotifySubject,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// Connect dials NATS and logs connection state changes.
func Connect(cfg Config, logger zerolog.Logger) (*nats.Conn, error) {
	log := logger.With().Str("component", "nats").Logger()
	nc, err := nats.Connect(cfg.URL,
		nats.Name("pitchsched"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	log.Info().Str("url", nc.ConnectedUrl()).Msg("nats connected")
	return nc, nil
}
