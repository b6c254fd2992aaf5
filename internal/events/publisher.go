// internal/events/publisher.go
package events

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"taskmill/internal/config"
	"taskmill/internal/models"
)

// Publisher emits lifecycle StatusMessages on a NATS subject for external
// dashboard consumers. A nil Publisher is a no-op, so the event stream stays
// optional.
type Publisher struct {
	conn    *nats.Conn
	subject string
	log     zerolog.Logger
}

// Connect dials NATS when a URL is configured; returns nil otherwise.
func Connect(cfg config.NATSConfig, log zerolog.Logger) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	conn, err := nats.Connect(cfg.URL, nats.Name("taskmill"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return &Publisher{
		conn:    conn,
		subject: cfg.Subject,
		log:     log.With().Str("component", "events").Logger(),
	}, nil
}

// PublishStatus sends one lifecycle update. Publish failures are logged, not
// propagated: the run store stays authoritative and the stream is advisory.
func (p *Publisher) PublishStatus(msg models.StatusMessage) {
	if p == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		p.log.Warn().Err(err).Msg("failed to marshal status message")
		return
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		p.log.Warn().Err(err).Str("subject", p.subject).Msg("failed to publish status message")
	}
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
