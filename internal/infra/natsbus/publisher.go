// Package natsbus forwards session host events to NATS.
package natsbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/nats-io/nats.go"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/storybox/internal/app/session"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "storybox.events"

// conn is the subset of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Publisher publishes host events as JSON to "<prefix>.<event type>".
// Without a connection it only logs (stub mode).
type Publisher struct {
	nc     conn
	prefix string
}

// New connects to NATS. If natsURL is empty, returns a stub publisher.
func New(natsURL, prefix string) (*Publisher, error) {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if natsURL == "" {
		zlog.Warn().Msg("nats url not set, host events will only be logged (stub mode)")
		return &Publisher{prefix: prefix}, nil
	}

	nc, err := nats.Connect(natsURL,
		nats.Name("storybox"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				zlog.Warn().Msgf("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			zlog.Info().Msgf("nats reconnected: url=%s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to nats")
	}

	zlog.Info().Msgf("nats publisher initialised: prefix=%s", prefix)
	return &Publisher{nc: nc, prefix: prefix}, nil
}

// Subject returns the subject for an event.
func (p *Publisher) Subject(ev session.HostEvent) string {
	return p.prefix + "." + ev.Type.String()
}

// Publish sends a host event. In stub mode it logs and returns nil.
func (p *Publisher) Publish(_ context.Context, ev session.HostEvent) error {
	subject := p.Subject(ev)
	if p.nc == nil {
		zlog.Debug().Msgf("nats stub: skipping publish: subject=%s event_id=%s", subject, ev.ID)
		return nil
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "failed to marshal host event")
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return errors.Wrapf(err, "failed to publish to %s", subject)
	}

	zlog.Debug().Msgf("nats event published: subject=%s event_id=%s", subject, ev.ID)
	return nil
}

// Close drains the connection.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
