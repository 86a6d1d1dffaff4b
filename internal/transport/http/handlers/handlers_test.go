package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ivankudzin/amour/internal/domain/enums"
	"github.com/ivankudzin/amour/internal/domain/model"
	"github.com/ivankudzin/amour/internal/testutil/memory"
	authsvc "github.com/ivankudzin/amour/internal/services/auth"
	candidatesvc "github.com/ivankudzin/amour/internal/services/candidates"
	"github.com/ivankudzin/amour/internal/services/events"
	interactionsvc "github.com/ivankudzin/amour/internal/services/interactions"
	matchsvc "github.com/ivankudzin/amour/internal/services/matches"
	"github.com/ivankudzin/amour/internal/services/messaging"
	"github.com/ivankudzin/amour/internal/services/notifications"
)

type testEnv struct {
	store  *memory.Store
	router chi.Router
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()

	store := memory.New()
	for id := int64(1); id <= 3; id++ {
		store.AddUser(model.Account{ID: id, Tier: enums.TierStandard}, &model.Profile{
			DisplayName: "user",
			Age:         30,
			Sex:         enums.SexFemale,
			Photos:      []model.Photo{{ObjectKey: "p.jpg"}},
		})
	}
	bus := events.NewBus(nil)

	candidates := candidatesvc.NewService(candidatesvc.Dependencies{
		Accounts: store.Accounts(),
		Profiles: store.Profiles(),
		Leases:   store.Leases(),
	}, candidatesvc.Config{})
	candidates.Subscribe(bus)
	matches := matchsvc.NewService(matchsvc.Dependencies{
		Tx:           store,
		Accounts:     store.Accounts(),
		Matches:      store.Matches(),
		Interactions: store.Interactions(),
		Bus:          bus,
	})
	interactions := interactionsvc.NewService(interactionsvc.Dependencies{
		Tx:           store,
		Accounts:     store.Accounts(),
		Interactions: store.Interactions(),
		Reports:      store.Reports(),
		Matcher:      matches,
		Bus:          bus,
	})
	messages := messaging.NewService(messaging.Dependencies{
		Tx:       store,
		Matches:  store.Matches(),
		Messages: store.Messages(),
		Bus:      bus,
	}, messaging.Config{DefaultPageSize: 2, MaxPageSize: 10})
	notes := notifications.NewService(notifications.Dependencies{
		Summaries: store.Notifications(),
		Accounts:  store.Accounts(),
	})

	candidateH := NewCandidateHandler(candidates)
	interactionsH := NewInteractionsHandler(interactions)
	conversationsH := NewConversationsHandler(matches)
	matchesH := NewMatchesHandler(matches, messages)
	notificationsH := NewNotificationsHandler(notes)

	r := chi.NewRouter()
	r.Get("/v1/candidates/next", candidateH.Next)
	r.Post("/v1/likes", interactionsH.Like)
	r.Post("/v1/skips", interactionsH.Skip)
	r.Post("/v1/reports", interactionsH.Report)
	r.Post("/v1/conversations", conversationsH.Request)
	r.Post("/v1/conversations/{match_id}/approve", conversationsH.Approve)
	r.Post("/v1/conversations/{match_id}/reject", conversationsH.Reject)
	r.Get("/v1/matches", matchesH.List)
	r.Get("/v1/matches/{match_id}/messages", matchesH.Messages)
	r.Get("/v1/notifications", notificationsH.Summary)
	r.Post("/v1/notifications/matches/seen", notificationsH.MarkMatchesSeen)

	return testEnv{store: store, router: r}
}

func (e testEnv) do(t *testing.T, userID int64, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	if userID > 0 {
		req = req.WithContext(authsvc.WithIdentity(context.Background(), authsvc.Identity{
			UserID: userID,
			SID:    "sid",
			Role:   "user",
		}))
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

func TestRequiresIdentity(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, 0, http.MethodGet, "/v1/matches", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestCandidateThenExhaustedPool(t *testing.T) {
	env := newTestEnv(t)

	first := env.do(t, 1, http.MethodGet, "/v1/candidates/next", nil)
	if first.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d body %s", first.Code, first.Body.String())
	}
	again := env.do(t, 1, http.MethodGet, "/v1/candidates/next", nil)
	a := decodeBody[struct {
		UserID int64 `json:"user_id"`
	}](t, first)
	b := decodeBody[struct {
		UserID int64 `json:"user_id"`
	}](t, again)
	if a.UserID != b.UserID {
		t.Fatalf("lease must hold: got %d then %d", a.UserID, b.UserID)
	}

	for _, target := range []int64{2, 3} {
		if rr := env.do(t, 1, http.MethodPost, "/v1/skips", map[string]any{"target_id": target}); rr.Code != http.StatusOK {
			t.Fatalf("skip %d: status %d body %s", target, rr.Code, rr.Body.String())
		}
	}
	rr := env.do(t, 1, http.MethodGet, "/v1/candidates/next", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusNotFound)
	}
	if got := decodeBody[struct {
		Code string `json:"code"`
	}](t, rr); got.Code != "NO_MORE_CANDIDATES" {
		t.Fatalf("unexpected code: %s", got.Code)
	}
}

func TestMutualLikeReportsMatch(t *testing.T) {
	env := newTestEnv(t)

	first := decodeBody[struct {
		IsMatch bool `json:"is_match"`
	}](t, env.do(t, 1, http.MethodPost, "/v1/likes", map[string]any{"target_id": 2}))
	if first.IsMatch {
		t.Fatalf("one-sided like must not match")
	}
	second := decodeBody[struct {
		IsMatch bool  `json:"is_match"`
		MatchID int64 `json:"match_id"`
	}](t, env.do(t, 2, http.MethodPost, "/v1/likes", map[string]any{"target_id": 1}))
	if !second.IsMatch || second.MatchID == 0 {
		t.Fatalf("mutual like must match: %+v", second)
	}

	rr := env.do(t, 1, http.MethodPost, "/v1/likes", map[string]any{"target_id": 1})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("self like: got %d want %d", rr.Code, http.StatusBadRequest)
	}
	rr = env.do(t, 1, http.MethodPost, "/v1/likes", map[string]any{"target_id": 999})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown target: got %d want %d", rr.Code, http.StatusNotFound)
	}
}

func TestConversationRequestApproveFlow(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, 1, http.MethodPost, "/v1/conversations", map[string]any{"target_id": 2})
	if rr.Code != http.StatusCreated {
		t.Fatalf("unexpected status: got %d body %s", rr.Code, rr.Body.String())
	}
	created := decodeBody[struct {
		MatchID   int64 `json:"match_id"`
		IsPending bool  `json:"is_pending"`
	}](t, rr)
	if !created.IsPending {
		t.Fatalf("request must be pending")
	}

	path := "/v1/conversations/" + itoa(created.MatchID) + "/approve"
	if rr := env.do(t, 1, http.MethodPost, path, nil); rr.Code != http.StatusForbidden {
		t.Fatalf("requester approving: got %d want %d", rr.Code, http.StatusForbidden)
	}
	if rr := env.do(t, 3, http.MethodPost, path, nil); rr.Code != http.StatusForbidden {
		t.Fatalf("outsider approving: got %d want %d", rr.Code, http.StatusForbidden)
	}

	rr = env.do(t, 2, http.MethodPost, path, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("approve: got %d body %s", rr.Code, rr.Body.String())
	}
	if got := decodeBody[struct {
		IsPending bool `json:"is_pending"`
	}](t, rr); got.IsPending {
		t.Fatalf("approved match must be active")
	}

	reject := "/v1/conversations/" + itoa(created.MatchID) + "/reject"
	if rr := env.do(t, 2, http.MethodPost, reject, nil); rr.Code != http.StatusForbidden {
		t.Fatalf("rejecting an accepted conversation: got %d want %d", rr.Code, http.StatusForbidden)
	}
	if rr := env.do(t, 2, http.MethodPost, "/v1/conversations/abc/approve", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad match id: got %d want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestMessagesPageAndNotifications(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res := decodeBody[struct {
		MatchID int64 `json:"match_id"`
	}](t, env.do(t, 1, http.MethodPost, "/v1/conversations", map[string]any{"target_id": 2}))
	for _, text := range []string{"one", "two", "three"} {
		if _, err := env.store.Messages().Create(ctx, nil, model.Message{MatchID: res.MatchID, SenderID: 1, Content: text}); err != nil {
			t.Fatalf("seed message: %v", err)
		}
	}

	rr := env.do(t, 2, http.MethodGet, "/v1/matches/"+itoa(res.MatchID)+"/messages?page=1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("messages: got %d body %s", rr.Code, rr.Body.String())
	}
	page := decodeBody[struct {
		Items      []model.Message `json:"items"`
		TotalCount int             `json:"total_count"`
		PageSize   int             `json:"page_size"`
	}](t, rr)
	if page.TotalCount != 3 || page.PageSize != 2 || len(page.Items) != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Items[0].Content != "two" || page.Items[1].Content != "three" {
		t.Fatalf("page must hold the newest messages oldest first: %q %q", page.Items[0].Content, page.Items[1].Content)
	}

	if rr := env.do(t, 3, http.MethodGet, "/v1/matches/"+itoa(res.MatchID)+"/messages", nil); rr.Code != http.StatusForbidden {
		t.Fatalf("outsider reading: got %d want %d", rr.Code, http.StatusForbidden)
	}

	summary := decodeBody[struct {
		UnreadMessages int `json:"unread_messages"`
		NewMatches     int `json:"new_matches"`
	}](t, env.do(t, 2, http.MethodGet, "/v1/notifications", nil))
	if summary.UnreadMessages != 3 || summary.NewMatches != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	items := decodeBody[struct {
		Items []struct {
			ID         int64 `json:"id"`
			AwaitingMe bool  `json:"awaiting_me"`
		} `json:"items"`
	}](t, env.do(t, 2, http.MethodGet, "/v1/matches", nil))
	if len(items.Items) != 1 || !items.Items[0].AwaitingMe {
		t.Fatalf("pending request should await user 2: %+v", items.Items)
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
