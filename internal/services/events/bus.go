// Package events is the in-process hook between services. Delivery is synchronous and
// happens after the publisher's transaction has committed; a failing handler is logged
// and never fails the publisher.
package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ivankudzin/amour/internal/domain/model"
)

type Kind string

const (
	KindUserInteracted Kind = "user_interacted"
	KindMatchCreated   Kind = "match_created"
	KindMatchActivated Kind = "match_activated"
	KindMatchRemoved   Kind = "match_removed"
)

type Action string

const (
	ActionLike    Action = "like"
	ActionSkip    Action = "skip"
	ActionReport  Action = "report"
	ActionMessage Action = "message"
	ActionRequest Action = "request"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

type Event interface {
	Kind() Kind
}

// UserInteracted fires for every action that must drop the actor's candidate lease.
type UserInteracted struct {
	UserID   int64
	TargetID int64
	Action   Action
}

func (UserInteracted) Kind() Kind { return KindUserInteracted }

type MatchCreated struct {
	Match model.Match
}

func (MatchCreated) Kind() Kind { return KindMatchCreated }

type MatchActivated struct {
	Match model.Match
}

func (MatchActivated) Kind() Kind { return KindMatchActivated }

type MatchRemoved struct {
	MatchID     int64
	RequesterID int64
	RejecterID  int64
}

func (MatchRemoved) Kind() Kind { return KindMatchRemoved }

type Handler func(ctx context.Context, event Event) error

type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
	log      *zap.Logger
}

func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{handlers: make(map[Kind][]Handler), log: log}
}

func (b *Bus) Subscribe(kind Kind, h Handler) {
	if b == nil || h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// Publish runs every handler for the event kind in subscription order. A nil bus is a no-op.
func (b *Bus) Publish(ctx context.Context, event Event) {
	if b == nil || event == nil {
		return
	}
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[event.Kind()]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			b.log.Warn("event handler failed",
				zap.String("kind", string(event.Kind())),
				zap.Error(err),
			)
		}
	}
}
