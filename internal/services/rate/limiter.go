package rate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ivankudzin/amour/internal/domain/apperrors"
)

// Actions throttled on the realtime channel.
const (
	ActionMessage = "msg"
	ActionTyping  = "typing"
)

type WindowStore interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// Rule allows Limit hits per Window. A zero limit disables the rule.
type Rule struct {
	Limit  int
	Window time.Duration
}

type Limiter struct {
	store WindowStore
	rules map[string]Rule
}

func NewLimiter(store WindowStore, rules map[string]Rule) *Limiter {
	cleaned := make(map[string]Rule, len(rules))
	for action, rule := range rules {
		if rule.Limit <= 0 || rule.Window <= 0 {
			continue
		}
		cleaned[action] = rule
	}
	return &Limiter{store: store, rules: cleaned}
}

// Allow counts one hit and returns a TooFastError once the window is exhausted.
// Actions without a rule are always allowed.
func (l *Limiter) Allow(ctx context.Context, action string, userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("invalid user id")
	}
	rule, ok := l.rules[action]
	if !ok {
		return nil
	}
	if l.store == nil {
		return fmt.Errorf("rate limiter store is nil")
	}

	count, ttl, err := l.store.IncrementWindow(ctx, windowKey(action, userID), rule.Window)
	if err != nil {
		return fmt.Errorf("increment %s window: %w", action, err)
	}
	if count > int64(rule.Limit) {
		return &apperrors.TooFastError{RetryAfterSec: ceilSeconds(ttl)}
	}
	return nil
}

func windowKey(action string, userID int64) string {
	return "rate:" + action + ":" + strconv.FormatInt(userID, 10)
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 1
	}
	sec := int64(d / time.Second)
	if d%time.Second != 0 {
		sec++
	}
	if sec <= 0 {
		sec = 1
	}
	return sec
}
