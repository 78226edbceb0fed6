package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/donation-ledger/pkg/enums"
	"github.com/angelmondragon/donation-ledger/pkg/redis"
)

const (
	guardScope = "stripe-event"

	// DefaultClaimTTL bounds how long a crashed delivery blocks Stripe's retries.
	DefaultClaimTTL = 2 * time.Minute

	statePending = "pending"
	stateDone    = "done"
)

// Claim is the outcome of claiming a Stripe event id.
type Claim int

const (
	// ClaimAcquired means this delivery owns the event and must Complete or Abandon it.
	ClaimAcquired Claim = iota
	// ClaimInFlight means another delivery of the same event is still running.
	ClaimInFlight
	// ClaimDone means the event was already processed.
	ClaimDone
)

func (c Claim) String() string {
	switch c {
	case ClaimAcquired:
		return "acquired"
	case ClaimInFlight:
		return "in_flight"
	case ClaimDone:
		return "done"
	}
	return "unknown"
}

// EventGuard dedupes Stripe deliveries per mode and event id. A delivery first
// claims the event with a short pending marker, then either records it as
// done for the full retention window or drops the claim so Stripe can retry.
type EventGuard struct {
	store     redis.IdempotencyStore
	retention time.Duration
	claimTTL  time.Duration
}

// NewEventGuard builds a guard. retention is how long processed ids are kept.
func NewEventGuard(store redis.IdempotencyStore, retention, claimTTL time.Duration) (*EventGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if retention <= 0 {
		return nil, errors.New("retention must be positive")
	}
	if claimTTL <= 0 {
		claimTTL = DefaultClaimTTL
	}
	return &EventGuard{store: store, retention: retention, claimTTL: claimTTL}, nil
}

func (g *EventGuard) key(mode enums.StripeMode, eventID string) (string, error) {
	if strings.TrimSpace(eventID) == "" {
		return "", errors.New("event id is required")
	}
	if !mode.IsValid() {
		return "", fmt.Errorf("invalid stripe mode %q", mode)
	}
	return g.store.IdempotencyKey(guardScope+":"+mode.String(), eventID), nil
}

// Claim marks eventID as in progress unless some delivery already owns it.
func (g *EventGuard) Claim(ctx context.Context, mode enums.StripeMode, eventID, eventType string) (Claim, error) {
	key, err := g.key(mode, eventID)
	if err != nil {
		return 0, err
	}
	ok, err := g.store.SetNX(ctx, key, statePending+":"+eventType, g.claimTTL)
	if err != nil {
		return 0, fmt.Errorf("claim stripe event: %w", err)
	}
	if ok {
		return ClaimAcquired, nil
	}
	current, err := g.store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		// claim expired between SetNX and Get; let Stripe retry
		return ClaimInFlight, nil
	case err != nil:
		return 0, fmt.Errorf("read stripe event claim: %w", err)
	}
	if strings.HasPrefix(current, stateDone+":") {
		return ClaimDone, nil
	}
	return ClaimInFlight, nil
}

// Complete records eventID as processed for the retention window.
func (g *EventGuard) Complete(ctx context.Context, mode enums.StripeMode, eventID, eventType string) error {
	key, err := g.key(mode, eventID)
	if err != nil {
		return err
	}
	if err := g.store.Set(ctx, key, stateDone+":"+eventType, g.retention); err != nil {
		return fmt.Errorf("complete stripe event: %w", err)
	}
	return nil
}

// Abandon drops the claim so a later delivery can process the event.
func (g *EventGuard) Abandon(ctx context.Context, mode enums.StripeMode, eventID string) error {
	key, err := g.key(mode, eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}
