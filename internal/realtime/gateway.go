package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ivankudzin/amour/internal/domain/apperrors"
	"github.com/ivankudzin/amour/internal/domain/model"
	applog "github.com/ivankudzin/amour/internal/infra/logger"
	authsvc "github.com/ivankudzin/amour/internal/services/auth"
	"github.com/ivankudzin/amour/internal/services/messaging"
	"github.com/ivankudzin/amour/internal/services/notifications"
	"github.com/ivankudzin/amour/internal/services/rate"
)

var (
	ErrBadPayload    = fmt.Errorf("realtime payload: %w", apperrors.ErrValidation)
	errNotAuthorized = fmt.Errorf("authenticate first: %w", apperrors.ErrUnauthenticated)
)

type Authenticator interface {
	ValidateAccessToken(ctx context.Context, token string) (authsvc.AccessClaims, error)
}

type Messenger interface {
	Send(ctx context.Context, senderID, matchID int64, content, mediaRef string) (messaging.SendResult, error)
	MarkRead(ctx context.Context, readerID, matchID int64) (messaging.ReadResult, error)
	MarkReadIDs(ctx context.Context, readerID, matchID int64, ids []int64) ([]int64, error)
	Authorize(ctx context.Context, userID, matchID int64) (model.Match, error)
}

type Notifier interface {
	Push(ctx context.Context, userID int64, reason notifications.Reason)
}

type Limiter interface {
	Allow(ctx context.Context, action string, userID int64) error
}

type SessionRecorder interface {
	SessionOpened()
	SessionClosed()
}

type Dependencies struct {
	Auth          Authenticator
	Messages      Messenger
	Notifications Notifier
	Limiter       Limiter
	Registry      *Registry
	Presence      Presence
	Broker        Broker
	Recorder      SessionRecorder
	Logger        *zap.Logger
}

type Config struct {
	Client         ClientConfig
	AllowedOrigins []string
}

// Gateway upgrades HTTP requests to websocket sessions and runs the chat protocol on them.
type Gateway struct {
	auth          Authenticator
	messages      Messenger
	notifications Notifier
	limiter       Limiter
	registry      *Registry
	presence      Presence
	broker        Broker
	recorder      SessionRecorder
	logger        *zap.Logger
	cfg           Config
	upgrader      websocket.Upgrader
}

// connection is owned by the read loop goroutine.
type connection struct {
	client *Client
	userID int64
}

func NewGateway(deps Dependencies, cfg Config) *Gateway {
	cfg.Client = cfg.Client.withDefaults()
	logger := applog.OrNop(deps.Logger)
	registry := deps.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	presence := deps.Presence
	if presence == nil {
		presence = NewLocalPresence(registry)
	}
	broker := deps.Broker
	if broker == nil {
		broker = NewLocalBroker(registry)
	}

	g := &Gateway{
		auth:          deps.Auth,
		messages:      deps.Messages,
		notifications: deps.Notifications,
		limiter:       deps.Limiter,
		registry:      registry,
		presence:      presence,
		broker:        broker,
		recorder:      deps.Recorder,
		logger:        logger,
		cfg:           cfg,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(conn, g.cfg.Client)
	go client.writeLoop()

	// The session outlives request-scoped deadlines but keeps request values such as trace ids.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	c := &connection{client: client}
	defer g.disconnect(ctx, c)
	g.readLoop(ctx, c)
}

func (g *Gateway) readLoop(ctx context.Context, c *connection) {
	conn := c.client.conn
	conn.SetReadLimit(g.cfg.Client.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(g.cfg.Client.PongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(g.cfg.Client.PongWait))
		if c.userID > 0 {
			if err := g.presence.Touch(ctx, c.userID, c.client.ID()); err != nil {
				g.logger.Debug("presence touch failed", zap.Int64("user_id", c.userID), zap.Error(err))
			}
		}
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Debug("websocket read failed", zap.String("conn_id", c.client.ID()), zap.Error(err))
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			g.fail(c, "", ErrBadPayload)
			continue
		}
		g.handle(ctx, c, env)
	}
}

func (g *Gateway) handle(ctx context.Context, c *connection, env Envelope) {
	if env.Type != EventAuthenticate && c.userID == 0 {
		g.fail(c, env.RequestID, errNotAuthorized)
		return
	}

	var err error
	switch env.Type {
	case EventAuthenticate:
		err = g.authenticate(ctx, c, env)
	case EventSetActiveMatch:
		err = g.setActiveMatch(ctx, c, env)
	case EventSendMessage:
		err = g.sendMessage(ctx, c, env)
	case EventMarkAsRead:
		err = g.markAsRead(ctx, c, env)
	case EventTyping, EventStopTyping:
		err = g.relayTyping(ctx, c, env)
	default:
		err = fmt.Errorf("unknown event %q: %w", env.Type, apperrors.ErrValidation)
	}
	if err != nil {
		g.fail(c, env.RequestID, err)
	}
}

func (g *Gateway) authenticate(ctx context.Context, c *connection, env Envelope) error {
	var p authenticatePayload
	if err := env.Decode(&p); err != nil || strings.TrimSpace(p.Token) == "" {
		return ErrBadPayload
	}
	if g.auth == nil {
		return fmt.Errorf("realtime auth is not configured")
	}
	claims, err := g.auth.ValidateAccessToken(ctx, strings.TrimSpace(p.Token))
	if err != nil {
		return err
	}

	if c.userID != 0 {
		if c.userID != claims.UserID {
			return apperrors.Forbidden("this connection is bound to another user")
		}
		g.reply(c, EventAuthenticated, env.RequestID, AuthenticatedPayload{UserID: c.userID})
		return nil
	}

	c.userID = claims.UserID
	g.registry.Add(c.userID, c.client)
	if err := g.presence.SetActive(ctx, c.userID, c.client.ID(), 0); err != nil {
		g.logger.Warn("presence set failed", zap.Int64("user_id", c.userID), zap.Error(err))
	}
	if g.recorder != nil {
		g.recorder.SessionOpened()
	}
	g.logger.Info("realtime session opened", zap.Int64("user_id", c.userID), zap.String("conn_id", c.client.ID()))

	g.reply(c, EventAuthenticated, env.RequestID, AuthenticatedPayload{UserID: c.userID})
	g.notify(ctx, c.userID, notifications.ReasonSync)
	return nil
}

// setActiveMatch opens a conversation on this connection and reads everything waiting in it.
// match_id 0 closes the conversation.
func (g *Gateway) setActiveMatch(ctx context.Context, c *connection, env Envelope) error {
	var p matchPayload
	if err := env.Decode(&p); err != nil || p.MatchID < 0 {
		return ErrBadPayload
	}
	if p.MatchID == 0 {
		g.setActive(ctx, c, 0)
		g.reply(c, EventActiveMatchSet, env.RequestID, ActiveMatchSetPayload{})
		return nil
	}

	if _, err := g.messages.Authorize(ctx, c.userID, p.MatchID); err != nil {
		return err
	}
	g.setActive(ctx, c, p.MatchID)

	read, err := g.messages.MarkRead(ctx, c.userID, p.MatchID)
	if err != nil {
		return err
	}
	g.afterRead(ctx, c.userID, p.MatchID, read)
	g.reply(c, EventActiveMatchSet, env.RequestID, ActiveMatchSetPayload{MatchID: p.MatchID, ReadCount: read.Count()})
	return nil
}

func (g *Gateway) sendMessage(ctx context.Context, c *connection, env Envelope) error {
	var p sendMessagePayload
	if err := env.Decode(&p); err != nil {
		return ErrBadPayload
	}
	if err := g.allow(ctx, rate.ActionMessage, c.userID); err != nil {
		return err
	}

	res, err := g.messages.Send(ctx, c.userID, p.MatchID, p.Content, p.MediaRef)
	if err != nil {
		return err
	}

	g.reply(c, EventMessageSent, env.RequestID, MessagePayload{Message: res.Message})
	g.publish(ctx, res.RecipientID, EventNewMessage, MessagePayload{Message: res.Message})
	g.readOrNotify(ctx, c.userID, res)
	return nil
}

// readOrNotify marks the message read right away when the recipient has the conversation
// open somewhere, and otherwise refreshes the recipient's unread badge.
func (g *Gateway) readOrNotify(ctx context.Context, senderID int64, res messaging.SendResult) {
	matchID := res.Message.MatchID
	viewing, err := g.presence.Viewing(ctx, res.RecipientID, matchID)
	if err != nil {
		g.logger.Warn("presence lookup failed", zap.Int64("user_id", res.RecipientID), zap.Error(err))
	}
	if viewing {
		ids, err := g.messages.MarkReadIDs(ctx, res.RecipientID, matchID, []int64{res.Message.ID})
		if err == nil {
			if len(ids) > 0 {
				g.publish(ctx, senderID, EventMessageRead, MessageReadPayload{
					MatchID:    matchID,
					ReaderID:   res.RecipientID,
					MessageIDs: ids,
					Count:      len(ids),
				})
			}
			return
		}
		g.logger.Warn("immediate read failed", zap.Int64("message_id", res.Message.ID), zap.Error(err))
	}
	g.notify(ctx, res.RecipientID, notifications.ReasonMessage)
}

func (g *Gateway) markAsRead(ctx context.Context, c *connection, env Envelope) error {
	var p matchPayload
	if err := env.Decode(&p); err != nil {
		return ErrBadPayload
	}
	read, err := g.messages.MarkRead(ctx, c.userID, p.MatchID)
	if err != nil {
		return err
	}
	g.afterRead(ctx, c.userID, p.MatchID, read)

	ids := read.IDs
	if ids == nil {
		ids = []int64{}
	}
	g.reply(c, EventReadMarked, env.RequestID, MessageReadPayload{
		MatchID:    p.MatchID,
		ReaderID:   c.userID,
		MessageIDs: ids,
		Count:      len(ids),
	})
	return nil
}

// relayTyping forwards a typing hint to the other participant. Throttled hints are dropped.
func (g *Gateway) relayTyping(ctx context.Context, c *connection, env Envelope) error {
	var p matchPayload
	if err := env.Decode(&p); err != nil {
		return ErrBadPayload
	}
	if err := g.allow(ctx, rate.ActionTyping, c.userID); err != nil {
		return nil
	}
	m, err := g.messages.Authorize(ctx, c.userID, p.MatchID)
	if err != nil {
		return err
	}
	g.publish(ctx, m.Other(c.userID), env.Type, TypingPayload{MatchID: p.MatchID, UserID: c.userID})
	return nil
}

func (g *Gateway) afterRead(ctx context.Context, readerID, matchID int64, read messaging.ReadResult) {
	if read.Count() == 0 {
		return
	}
	g.publish(ctx, read.OtherUserID, EventMessageRead, MessageReadPayload{
		MatchID:    matchID,
		ReaderID:   readerID,
		MessageIDs: read.IDs,
		Count:      len(read.IDs),
	})
	g.notify(ctx, readerID, notifications.ReasonSync)
}

func (g *Gateway) setActive(ctx context.Context, c *connection, matchID int64) {
	if err := g.presence.SetActive(ctx, c.userID, c.client.ID(), matchID); err != nil {
		g.logger.Warn("presence set failed", zap.Int64("user_id", c.userID), zap.Error(err))
	}
}

func (g *Gateway) disconnect(ctx context.Context, c *connection) {
	c.client.Close()
	if c.userID == 0 {
		return
	}
	g.registry.Remove(c.client.ID())
	if err := g.presence.Clear(ctx, c.userID, c.client.ID()); err != nil {
		g.logger.Warn("presence clear failed", zap.Int64("user_id", c.userID), zap.Error(err))
	}
	if g.recorder != nil {
		g.recorder.SessionClosed()
	}
	g.logger.Info("realtime session closed", zap.Int64("user_id", c.userID), zap.String("conn_id", c.client.ID()))
}

func (g *Gateway) allow(ctx context.Context, action string, userID int64) error {
	if g.limiter == nil {
		return nil
	}
	return g.limiter.Allow(ctx, action, userID)
}

func (g *Gateway) notify(ctx context.Context, userID int64, reason notifications.Reason) {
	if g.notifications != nil {
		g.notifications.Push(ctx, userID, reason)
	}
}

func (g *Gateway) publish(ctx context.Context, userID int64, eventType string, payload any) {
	env, err := NewEnvelope(eventType, "", payload)
	if err != nil {
		g.logger.Error("encode realtime event", zap.String("type", eventType), zap.Error(err))
		return
	}
	if err := g.broker.Publish(ctx, userID, env); err != nil {
		g.logger.Warn("publish realtime event", zap.String("type", eventType), zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (g *Gateway) reply(c *connection, eventType, requestID string, payload any) {
	env, err := NewEnvelope(eventType, requestID, payload)
	if err != nil {
		g.logger.Error("encode realtime reply", zap.String("type", eventType), zap.Error(err))
		return
	}
	c.client.Send(env)
}

func (g *Gateway) fail(c *connection, requestID string, err error) {
	kind := apperrors.Classify(err)
	if kind == apperrors.KindInternal {
		g.logger.Error("realtime event failed", zap.Int64("user_id", c.userID), zap.Error(err))
	}
	msg := apperrors.Reason(err)
	if msg == "" {
		msg = defaultMessage(kind)
	}
	g.reply(c, EventMessageError, requestID, ErrorPayload{
		Code:          string(kind),
		Message:       msg,
		RetryAfterSec: apperrors.RetryAfter(err),
	})
}

func defaultMessage(kind apperrors.Kind) string {
	switch kind {
	case apperrors.KindValidation:
		return "invalid request"
	case apperrors.KindUnauthenticated:
		return "authentication required"
	case apperrors.KindForbidden:
		return "not allowed"
	case apperrors.KindNotFound:
		return "conversation not found"
	case apperrors.KindConflict:
		return "conflict"
	case apperrors.KindRateLimited:
		return "slow down"
	case apperrors.KindTransient:
		return "temporarily unavailable, try again"
	default:
		return "internal error"
	}
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(g.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range g.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}
