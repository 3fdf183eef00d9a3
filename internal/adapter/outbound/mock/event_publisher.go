// Package mock provides in-memory implementations of outbound ports for
// development and tests.
package mock

import (
	"context"
	"sync"

	"tenantmigrate/internal/port/outbound"
)

// EventPublisher records published events instead of sending them anywhere.
// It is the default publisher when NATS is disabled.
type EventPublisher struct {
	mu     sync.Mutex
	events []outbound.MigrationEvent
}

// NewEventPublisher creates a new mock event publisher.
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{}
}

// Publish records the event.
func (m *EventPublisher) Publish(_ context.Context, event outbound.MigrationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns all recorded events (for verification in tests).
func (m *EventPublisher) Events() []outbound.MigrationEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]outbound.MigrationEvent, len(m.events))
	copy(out, m.events)
	return out
}

// Reset clears recorded events.
func (m *EventPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

// Close is a no-op.
func (m *EventPublisher) Close() error { return nil }

var _ outbound.EventPublisher = (*EventPublisher)(nil)
