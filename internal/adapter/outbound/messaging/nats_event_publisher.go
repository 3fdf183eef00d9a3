// Package messaging publishes migration lifecycle events over NATS JetStream.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tenantmigrate/internal/config"
	"tenantmigrate/internal/port/outbound"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	// NATS connection timeout.
	natsConnectionTimeoutSeconds = 5

	// Stream configuration.
	streamName        = "MIGRATIONS"
	streamMaxAgeHours = 24
)

// streamSubjects covers every lifecycle subject the core publishes.
var streamSubjects = []string{"migration.>", "rollback.>"}

// NATSEventPublisher provides a JetStream implementation of EventPublisher.
type NATSEventPublisher struct {
	config config.NATSConfig
	conn   *nats.Conn
	js     nats.JetStreamContext
}

// NewNATSEventPublisher connects to NATS and ensures the migrations stream
// exists.
func NewNATSEventPublisher(cfg config.NATSConfig) (*NATSEventPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("NATS URL cannot be empty")
	}
	if !strings.HasPrefix(cfg.URL, "nats://") {
		return nil, errors.New("invalid NATS URL scheme")
	}
	if cfg.MaxReconnects < 0 {
		return nil, errors.New("max reconnects cannot be negative")
	}

	conn, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(natsConnectionTimeoutSeconds*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p := &NATSEventPublisher{config: cfg, conn: conn, js: js}
	if err := p.ensureStream(); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

// ensureStream creates the migrations stream if it does not exist.
func (p *NATSEventPublisher) ensureStream() error {
	_, err := p.js.StreamInfo(streamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = p.js.AddStream(&nats.StreamConfig{
		Name:     streamName,
		Subjects: streamSubjects,
		MaxAge:   streamMaxAgeHours * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// Publish publishes a lifecycle event to its subject.
func (p *NATSEventPublisher) Publish(ctx context.Context, event outbound.MigrationEvent) error {
	if event.Subject == "" {
		return errors.New("event subject cannot be empty")
	}
	if event.MessageID == "" {
		event.MessageID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := p.js.Publish(event.Subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish event to %s: %w", event.Subject, err)
	}
	return nil
}

// Close drains and closes the NATS connection.
func (p *NATSEventPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}

var _ outbound.EventPublisher = (*NATSEventPublisher)(nil)
