package webhooks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// GuardStore is the slice of the Redis client the guard needs.
type GuardStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	WebhookKey(gateway string, parts ...string) string
}

// Guard marks (gateway, payment, status) deliveries as seen so redeliveries
// of the same transition are acknowledged without effect.
type Guard struct {
	store GuardStore
	ttl   time.Duration
}

func NewGuard(store GuardStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// CheckAndMark reports whether the delivery was already seen, marking it
// otherwise.
func (g *Guard) CheckAndMark(ctx context.Context, gateway string, n *Notification) (bool, error) {
	key, err := g.key(gateway, n)
	if err != nil {
		return false, err
	}
	set, err := g.store.SetNX(ctx, key, n.EventID, g.ttl)
	if err != nil {
		return false, fmt.Errorf("set webhook key: %w", err)
	}
	return !set, nil
}

// Release forgets the delivery so a retry can apply it.
func (g *Guard) Release(ctx context.Context, gateway string, n *Notification) error {
	key, err := g.key(gateway, n)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) key(gateway string, n *Notification) (string, error) {
	if n == nil || n.PaymentID == "" {
		return "", errors.New("payment id is required")
	}
	return g.store.WebhookKey(gateway, n.PaymentID, strings.ToLower(n.Status)), nil
}
