package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-settlement/pkg/redis"
)

// Guard claims provider event IDs with Redis SETNX so redeliveries are short-circuited
// before they reach the database. Keys follow `pf:idempotency:evt:<scope>:<event_id>`.
// A lost claim (Redis down, key evicted) only costs a redundant settle call, which the
// conditional update in the store absorbs.
type Guard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewGuard(store redis.IdempotencyStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// Claim returns true when this caller is the first to see eventID in scope.
func (g *Guard) Claim(ctx context.Context, scope, eventID string) (bool, error) {
	key, err := g.key(scope, eventID)
	if err != nil {
		return false, err
	}
	return g.store.SetNX(ctx, key, "1", g.ttl)
}

// Release drops a claim so the provider's next redelivery is processed again.
func (g *Guard) Release(ctx context.Context, scope, eventID string) error {
	key, err := g.key(scope, eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) key(scope, eventID string) (string, error) {
	scope = strings.TrimSpace(scope)
	eventID = strings.TrimSpace(eventID)
	if scope == "" {
		return "", errors.New("scope is required")
	}
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey(fmt.Sprintf("evt:%s", scope), eventID), nil
}
