package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	applog "github.com/ivankudzin/amour/internal/infra/logger"
)

// Broker fans events out to every connection of a user, wherever it is connected.
type Broker interface {
	Publish(ctx context.Context, userID int64, env Envelope) error
	// Run receives events for this instance until ctx is done.
	Run(ctx context.Context) error
}

// LocalBroker delivers straight into the registry of a single instance.
type LocalBroker struct {
	registry *Registry
}

func NewLocalBroker(registry *Registry) *LocalBroker {
	return &LocalBroker{registry: registry}
}

func (b *LocalBroker) Publish(_ context.Context, userID int64, env Envelope) error {
	b.registry.Deliver(userID, env)
	return nil
}

func (b *LocalBroker) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

const redisChannelPrefix = "rt:user:"

type RedisBroker struct {
	client   *goredis.Client
	registry *Registry
	logger   *zap.Logger
	ready    chan struct{}
}

func NewRedisBroker(client *goredis.Client, registry *Registry, logger *zap.Logger) *RedisBroker {
	logger = applog.OrNop(logger)
	return &RedisBroker{client: client, registry: registry, logger: logger, ready: make(chan struct{})}
}

func (b *RedisBroker) Publish(ctx context.Context, userID int64, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := b.client.Publish(ctx, redisChannelPrefix+strconv.FormatInt(userID, 10), data).Err(); err != nil {
		return fmt.Errorf("publish realtime event: %w", err)
	}
	return nil
}

// Ready is closed once the subscription is live.
func (b *RedisBroker) Ready() <-chan struct{} { return b.ready }

func (b *RedisBroker) Run(ctx context.Context) error {
	sub := b.client.PSubscribe(ctx, redisChannelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe realtime events: %w", err)
	}
	close(b.ready)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			deliverEncoded(b.registry, b.logger, strings.TrimPrefix(msg.Channel, redisChannelPrefix), []byte(msg.Payload))
		}
	}
}

func deliverEncoded(registry *Registry, logger *zap.Logger, rawUserID string, data []byte) {
	userID, err := strconv.ParseInt(rawUserID, 10, 64)
	if err != nil || userID <= 0 {
		logger.Warn("realtime event for bad user id", zap.String("user_id", rawUserID))
		return
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		logger.Warn("decode realtime event", zap.Error(err))
		return
	}
	registry.Deliver(userID, env)
}
