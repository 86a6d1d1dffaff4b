package realtime

import (
	"context"

	"github.com/ivankudzin/amour/internal/domain/model"
)

// Publisher is the outbound side used by services that are not connection-aware.
type Publisher struct {
	broker Broker
}

func NewPublisher(broker Broker) *Publisher {
	return &Publisher{broker: broker}
}

func (p *Publisher) NotificationUpdate(ctx context.Context, userID int64, summary model.NotificationSummary) error {
	return p.publish(ctx, userID, EventNotificationUpdate, summary)
}

func (p *Publisher) MatchRemoved(ctx context.Context, userID, matchID int64) error {
	return p.publish(ctx, userID, EventMatchRemoved, MatchRemovedPayload{MatchID: matchID})
}

func (p *Publisher) publish(ctx context.Context, userID int64, eventType string, payload any) error {
	env, err := NewEnvelope(eventType, "", payload)
	if err != nil {
		return err
	}
	return p.broker.Publish(ctx, userID, env)
}
