// Package idempotency lets Pub/Sub consumers claim an event id before
// handling it, so redeliveries of the same outbox event are skipped.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL applies when the manager is built with a zero TTL.
const DefaultTTL = 7 * 24 * time.Hour

var (
	errConsumerRequired = errors.New("consumer name is required")
	errEventRequired    = errors.New("event id is required")
)

type claimStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Manager records claims as `<prefix>:evt:processed:<consumer>:<event_id>`
// keys holding the claim time.
type Manager struct {
	store claimStore
	ttl   time.Duration
	now   func() time.Time
}

func NewManager(store claimStore, ttl time.Duration) (*Manager, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	case ttl == 0:
		ttl = DefaultTTL
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

// CheckAndMarkProcessed claims the event for consumer. It reports true when
// an earlier claim already exists, in which case the caller should skip it.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	claimed, err := m.store.SetNX(ctx, key, m.now().UTC().Format(time.RFC3339Nano), m.ttl)
	if err != nil {
		return false, err
	}
	return !claimed, nil
}

// Delete releases a claim after a failed handler so the redelivery runs.
func (m *Manager) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return "", errConsumerRequired
	}
	if eventID == uuid.Nil {
		return "", errEventRequired
	}
	return m.store.IdempotencyKey("evt:processed:"+consumer, eventID.String()), nil
}
