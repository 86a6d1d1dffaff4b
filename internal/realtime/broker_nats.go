package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	applog "github.com/ivankudzin/amour/internal/infra/logger"
)

const natsSubjectPrefix = "rt.user."

// NATSBroker uses core NATS subjects. Events are ephemeral, so JetStream is not involved.
type NATSBroker struct {
	conn     *nats.Conn
	registry *Registry
	logger   *zap.Logger
}

func NewNATSBroker(conn *nats.Conn, registry *Registry, logger *zap.Logger) *NATSBroker {
	return &NATSBroker{conn: conn, registry: registry, logger: applog.OrNop(logger)}
}

func (b *NATSBroker) Publish(_ context.Context, userID int64, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := b.conn.Publish(natsSubject(userID), data); err != nil {
		return fmt.Errorf("publish realtime event: %w", err)
	}
	return nil
}

func (b *NATSBroker) Run(ctx context.Context) error {
	sub, err := b.conn.Subscribe(natsSubjectPrefix+"*", func(msg *nats.Msg) {
		deliverEncoded(b.registry, b.logger, strings.TrimPrefix(msg.Subject, natsSubjectPrefix), msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe realtime events: %w", err)
	}
	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed {
		b.logger.Warn("unsubscribe realtime events", zap.Error(err))
	}
	return nil
}

func natsSubject(userID int64) string {
	return natsSubjectPrefix + strconv.FormatInt(userID, 10)
}
