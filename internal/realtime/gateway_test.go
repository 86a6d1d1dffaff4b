package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ivankudzin/amour/internal/domain/apperrors"
	"github.com/ivankudzin/amour/internal/domain/model"
	"github.com/ivankudzin/amour/internal/testutil/memory"
	redisrepo "github.com/ivankudzin/amour/internal/repo/redis"
	authsvc "github.com/ivankudzin/amour/internal/services/auth"
	"github.com/ivankudzin/amour/internal/services/events"
	matchsvc "github.com/ivankudzin/amour/internal/services/matches"
	"github.com/ivankudzin/amour/internal/services/messaging"
	"github.com/ivankudzin/amour/internal/services/notifications"
	"github.com/ivankudzin/amour/internal/services/rate"
)

type authStub map[string]int64

func (a authStub) ValidateAccessToken(_ context.Context, token string) (authsvc.AccessClaims, error) {
	userID, ok := a[token]
	if !ok {
		return authsvc.AccessClaims{}, authsvc.ErrUnauthorized
	}
	return authsvc.AccessClaims{UserID: userID, SID: "sid-" + token}, nil
}

type harness struct {
	store    *memory.Store
	matches  *matchsvc.Service
	registry *Registry
	server   *httptest.Server
}

func newHarness(t *testing.T, limiter Limiter) harness {
	t.Helper()

	store := memory.New()
	for id := int64(1); id <= 3; id++ {
		store.AddUser(model.Account{ID: id, TelegramID: 100 + id}, nil)
	}
	bus := events.NewBus(nil)
	registry := NewRegistry()
	broker := NewLocalBroker(registry)
	presence := NewLocalPresence(registry)

	matches := matchsvc.NewService(matchsvc.Dependencies{
		Tx:           store,
		Accounts:     store.Accounts(),
		Matches:      store.Matches(),
		Interactions: store.Interactions(),
		Bus:          bus,
	})
	messages := messaging.NewService(messaging.Dependencies{
		Tx:       store,
		Matches:  store.Matches(),
		Messages: store.Messages(),
		Bus:      bus,
	}, messaging.Config{})
	notes := notifications.NewService(notifications.Dependencies{
		Summaries: store.Notifications(),
		Accounts:  store.Accounts(),
		Publisher: NewPublisher(broker),
		Presence:  presence,
	})
	notes.Subscribe(bus)

	gateway := NewGateway(Dependencies{
		Auth:          authStub{"t1": 1, "t2": 2, "t3": 3},
		Messages:      messages,
		Notifications: notes,
		Limiter:       limiter,
		Registry:      registry,
		Presence:      presence,
		Broker:        broker,
	}, Config{})

	server := httptest.NewServer(gateway)
	t.Cleanup(server.Close)
	return harness{store: store, matches: matches, registry: registry, server: server}
}

type peer struct {
	t       *testing.T
	conn    *websocket.Conn
	pending []Envelope
	syncs   int
}

func (h harness) connect(t *testing.T) *peer {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &peer{t: t, conn: conn}
}

// login connects and authenticates, consuming the ack and the initial badge.
func (h harness) login(t *testing.T, token string) *peer {
	t.Helper()
	p := h.connect(t)
	p.send(EventAuthenticate, "auth", authenticatePayload{Token: token})
	p.expect(EventAuthenticated)
	p.expect(EventNotificationUpdate)
	return p
}

func (p *peer) send(eventType, requestID string, payload any) {
	p.t.Helper()
	env, err := NewEnvelope(eventType, requestID, payload)
	if err != nil {
		p.t.Fatalf("encode %s: %v", eventType, err)
	}
	if err := p.conn.WriteJSON(env); err != nil {
		p.t.Fatalf("write %s: %v", eventType, err)
	}
}

func (p *peer) expect(eventType string) Envelope {
	p.t.Helper()
	for i, env := range p.pending {
		if env.Type == eventType {
			p.pending = append(p.pending[:i], p.pending[i+1:]...)
			return env
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		_ = p.conn.SetReadDeadline(deadline)
		var env Envelope
		if err := p.conn.ReadJSON(&env); err != nil {
			p.t.Fatalf("waiting for %s: %v (pending %v)", eventType, err, p.types())
		}
		if env.Type == eventType {
			return env
		}
		p.pending = append(p.pending, env)
	}
}

// sync round-trips an unknown event so every frame queued before its reply has been read.
func (p *peer) sync() {
	p.t.Helper()
	p.syncs++
	id := "sync-" + strconv.Itoa(p.syncs)
	p.send("ping", id, nil)

	deadline := time.Now().Add(2 * time.Second)
	for {
		_ = p.conn.SetReadDeadline(deadline)
		var env Envelope
		if err := p.conn.ReadJSON(&env); err != nil {
			p.t.Fatalf("waiting for sync reply: %v", err)
		}
		if env.Type == EventMessageError && env.RequestID == id {
			return
		}
		p.pending = append(p.pending, env)
	}
}

func (p *peer) types() []string {
	out := make([]string, 0, len(p.pending))
	for _, env := range p.pending {
		out = append(out, env.Type)
	}
	return out
}

func (p *peer) assertNone(eventType string) {
	p.t.Helper()
	p.sync()
	for _, env := range p.pending {
		if env.Type == eventType {
			p.t.Fatalf("unexpected %s frame: %s", eventType, env.Data)
		}
	}
}

func decode[T any](t *testing.T, env Envelope) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode %s: %v", env.Type, err)
	}
	return out
}

func (h harness) activeMatch(t *testing.T, a, b int64) int64 {
	t.Helper()
	m, _, err := h.matches.OnMutualLike(context.Background(), a, b)
	if err != nil {
		t.Fatalf("create match: %v", err)
	}
	return m.ID
}

func TestEventsBeforeAuthenticateAreRejected(t *testing.T) {
	h := newHarness(t, nil)
	p := h.connect(t)

	p.send(EventSendMessage, "r1", sendMessagePayload{MatchID: 1, Content: "hi"})
	env := p.expect(EventMessageError)
	if env.RequestID != "r1" {
		t.Fatalf("unexpected request id: %q", env.RequestID)
	}
	if got := decode[ErrorPayload](t, env); got.Code != string(apperrors.KindUnauthenticated) {
		t.Fatalf("unexpected code: got %s want %s", got.Code, apperrors.KindUnauthenticated)
	}

	p.send(EventAuthenticate, "r2", authenticatePayload{Token: "forged"})
	if got := decode[ErrorPayload](t, p.expect(EventMessageError)); got.Code != string(apperrors.KindUnauthenticated) {
		t.Fatalf("unexpected code for bad token: %s", got.Code)
	}
	if h.registry.Count() != 0 {
		t.Fatalf("unauthenticated connection must not be registered")
	}
}

func TestMessageToViewingRecipientIsReadImmediately(t *testing.T) {
	h := newHarness(t, nil)
	matchID := h.activeMatch(t, 1, 2)

	alice := h.login(t, "t1")
	bob := h.login(t, "t2")

	bob.send(EventSetActiveMatch, "open", matchPayload{MatchID: matchID})
	if got := decode[ActiveMatchSetPayload](t, bob.expect(EventActiveMatchSet)); got.MatchID != matchID {
		t.Fatalf("unexpected active match ack: %+v", got)
	}

	alice.send(EventSendMessage, "m1", sendMessagePayload{MatchID: matchID, Content: "hello"})
	sent := alice.expect(EventMessageSent)
	if sent.RequestID != "m1" {
		t.Fatalf("ack must echo request id, got %q", sent.RequestID)
	}
	msg := decode[MessagePayload](t, sent).Message

	if got := decode[MessagePayload](t, bob.expect(EventNewMessage)).Message; got.ID != msg.ID || got.Content != "hello" {
		t.Fatalf("unexpected delivered message: %+v", got)
	}

	receipt := decode[MessageReadPayload](t, alice.expect(EventMessageRead))
	if receipt.ReaderID != 2 || receipt.Count != 1 || len(receipt.MessageIDs) != 1 || receipt.MessageIDs[0] != msg.ID {
		t.Fatalf("unexpected read receipt: %+v", receipt)
	}
	if stored, _ := h.store.Message(msg.ID); !stored.IsRead {
		t.Fatalf("message must be stored as read")
	}
	bob.assertNone(EventNotificationUpdate)
}

func TestMessageToAbsentRecipientRaisesBadgeUntilRead(t *testing.T) {
	h := newHarness(t, nil)
	matchID := h.activeMatch(t, 1, 2)

	alice := h.login(t, "t1")
	bob := h.login(t, "t2")

	alice.send(EventSendMessage, "m1", sendMessagePayload{MatchID: matchID, Content: "are you there"})
	msg := decode[MessagePayload](t, alice.expect(EventMessageSent)).Message

	bob.expect(EventNewMessage)
	if got := decode[model.NotificationSummary](t, bob.expect(EventNotificationUpdate)); got.UnreadMessages != 1 {
		t.Fatalf("unexpected unread count: got %d want 1", got.UnreadMessages)
	}

	bob.send(EventMarkAsRead, "read-1", matchPayload{MatchID: matchID})
	marked := decode[MessageReadPayload](t, bob.expect(EventReadMarked))
	if marked.Count != 1 || len(marked.MessageIDs) != 1 || marked.MessageIDs[0] != msg.ID {
		t.Fatalf("unexpected read ids: %v", marked.MessageIDs)
	}
	if got := decode[model.NotificationSummary](t, bob.expect(EventNotificationUpdate)); got.UnreadMessages != 0 {
		t.Fatalf("badge must clear after read, got %d", got.UnreadMessages)
	}
	if got := decode[MessageReadPayload](t, alice.expect(EventMessageRead)); got.Count != 1 || got.MessageIDs[0] != msg.ID {
		t.Fatalf("unexpected receipt: %+v", got)
	}

	bob.send(EventMarkAsRead, "read-2", matchPayload{MatchID: matchID})
	if again := decode[MessageReadPayload](t, bob.expect(EventReadMarked)); again.Count != 0 || len(again.MessageIDs) != 0 {
		t.Fatalf("second mark must be empty, got %+v", again)
	}
	alice.assertNone(EventMessageRead)
}

func TestPendingConversationOverSocket(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	alice := h.login(t, "t1")
	bob := h.login(t, "t2")

	req, err := h.matches.RequestConversation(ctx, 1, 2)
	if err != nil {
		t.Fatalf("request conversation: %v", err)
	}
	if !req.IsPending {
		t.Fatalf("request should be pending")
	}
	if got := decode[model.NotificationSummary](t, bob.expect(EventNotificationUpdate)); got.NewMatches != 1 {
		t.Fatalf("pending user should see the request, got %+v", got)
	}

	bob.send(EventSendMessage, "b1", sendMessagePayload{MatchID: req.MatchID, Content: "wait"})
	if got := decode[ErrorPayload](t, bob.expect(EventMessageError)); got.Code != string(apperrors.KindForbidden) {
		t.Fatalf("pending user must not send, got %+v", got)
	}

	alice.send(EventSendMessage, "a1", sendMessagePayload{MatchID: req.MatchID, Content: "hi"})
	alice.expect(EventMessageSent)
	bob.expect(EventNewMessage)

	alice.send(EventSendMessage, "a2", sendMessagePayload{MatchID: req.MatchID, Content: "hello?"})
	rejected := alice.expect(EventMessageError)
	if rejected.RequestID != "a2" || decode[ErrorPayload](t, rejected).Code != string(apperrors.KindForbidden) {
		t.Fatalf("second pending message must be forbidden, got %s", rejected.Data)
	}

	if _, err := h.matches.Approve(ctx, 2, req.MatchID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	bob.send(EventSendMessage, "b2", sendMessagePayload{MatchID: req.MatchID, Content: "hey"})
	bob.expect(EventMessageSent)
	for i := 0; i < 3; i++ {
		alice.send(EventSendMessage, "more", sendMessagePayload{MatchID: req.MatchID, Content: "again"})
		alice.expect(EventMessageSent)
	}
}

func TestRejectionNotifiesRequester(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	alice := h.login(t, "t1")
	req, err := h.matches.RequestConversation(ctx, 1, 2)
	if err != nil {
		t.Fatalf("request conversation: %v", err)
	}
	alice.send(EventSendMessage, "a1", sendMessagePayload{MatchID: req.MatchID, Content: "hi"})
	msg := decode[MessagePayload](t, alice.expect(EventMessageSent)).Message

	if err := h.matches.Reject(ctx, 2, req.MatchID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got := decode[MatchRemovedPayload](t, alice.expect(EventMatchRemoved)); got.MatchID != req.MatchID {
		t.Fatalf("unexpected removed match: %d", got.MatchID)
	}
	if _, ok := h.store.Message(msg.ID); ok {
		t.Fatalf("message must be gone with the match")
	}

	alice.send(EventSendMessage, "a2", sendMessagePayload{MatchID: req.MatchID, Content: "?"})
	if got := decode[ErrorPayload](t, alice.expect(EventMessageError)); got.Code != string(apperrors.KindNotFound) {
		t.Fatalf("unexpected code after rejection: %s", got.Code)
	}
}

func TestTypingRelayedToParticipantOnly(t *testing.T) {
	h := newHarness(t, nil)
	matchID := h.activeMatch(t, 1, 2)

	alice := h.login(t, "t1")
	bob := h.login(t, "t2")
	carol := h.login(t, "t3")

	alice.send(EventTyping, "", matchPayload{MatchID: matchID})
	if got := decode[TypingPayload](t, bob.expect(EventTyping)); got.UserID != 1 || got.MatchID != matchID {
		t.Fatalf("unexpected typing relay: %+v", got)
	}
	alice.send(EventStopTyping, "", matchPayload{MatchID: matchID})
	bob.expect(EventStopTyping)

	carol.send(EventTyping, "c1", matchPayload{MatchID: matchID})
	if got := decode[ErrorPayload](t, carol.expect(EventMessageError)); got.Code != string(apperrors.KindForbidden) {
		t.Fatalf("outsider typing must be forbidden, got %s", got.Code)
	}
	bob.assertNone(EventTyping)
}

func TestSendIsRateLimited(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	limiter := rate.NewLimiter(redisrepo.NewRateRepo(client), map[string]rate.Rule{
		rate.ActionMessage: {Limit: 1, Window: 10 * time.Second},
	})

	h := newHarness(t, limiter)
	matchID := h.activeMatch(t, 1, 2)
	alice := h.login(t, "t1")

	alice.send(EventSendMessage, "a1", sendMessagePayload{MatchID: matchID, Content: "one"})
	alice.expect(EventMessageSent)
	alice.send(EventSendMessage, "a2", sendMessagePayload{MatchID: matchID, Content: "two"})
	got := decode[ErrorPayload](t, alice.expect(EventMessageError))
	if got.Code != string(apperrors.KindRateLimited) || got.RetryAfterSec <= 0 {
		t.Fatalf("unexpected throttle error: %+v", got)
	}
}

func TestDisconnectRemovesSession(t *testing.T) {
	h := newHarness(t, nil)
	p := h.login(t, "t1")
	if h.registry.Count() != 1 {
		t.Fatalf("unexpected session count: got %d want 1", h.registry.Count())
	}

	_ = p.conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for h.registry.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("session was not removed after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
