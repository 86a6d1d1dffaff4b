package matches

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ivankudzin/amour/internal/domain/apperrors"
	"github.com/ivankudzin/amour/internal/domain/model"
	"github.com/ivankudzin/amour/internal/testutil/memory"
	"github.com/ivankudzin/amour/internal/services/events"
)

type recorderStub struct {
	kinds []string
}

func (r *recorderStub) MatchCreated(kind string) {
	r.kinds = append(r.kinds, kind)
}

func newTestService(t *testing.T) (*Service, *memory.Store, *[]events.Event) {
	t.Helper()

	store := memory.New()
	for id := int64(1); id <= 3; id++ {
		store.AddUser(model.Account{ID: id}, nil)
	}
	bus := events.NewBus(nil)
	var published []events.Event
	for _, kind := range []events.Kind{events.KindMatchCreated, events.KindMatchActivated, events.KindMatchRemoved} {
		bus.Subscribe(kind, func(_ context.Context, e events.Event) error {
			published = append(published, e)
			return nil
		})
	}

	svc := NewService(Dependencies{
		Tx:           store,
		Accounts:     store.Accounts(),
		Matches:      store.Matches(),
		Interactions: store.Interactions(),
		Bus:          bus,
		Recorder:     &recorderStub{},
	})
	svc.now = func() time.Time { return time.Date(2026, time.July, 4, 18, 0, 0, 0, time.UTC) }
	return svc, store, &published
}

func TestRequestConversationCreatesPendingForTarget(t *testing.T) {
	svc, _, published := newTestService(t)
	ctx := context.Background()

	res, err := svc.RequestConversation(ctx, 1, 2)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if !res.IsPending || !res.Created {
		t.Fatalf("expected created pending match, got %+v", res)
	}

	m, err := svc.Get(ctx, 2, res.MatchID)
	if err != nil {
		t.Fatalf("get match: %v", err)
	}
	if m.PendingUserID != 2 || m.RequesterID != 1 {
		t.Fatalf("unexpected pending state: %+v", m)
	}

	again, err := svc.RequestConversation(ctx, 1, 2)
	if err != nil {
		t.Fatalf("repeat request: %v", err)
	}
	if again.MatchID != res.MatchID || again.Created {
		t.Fatalf("repeat request must return the existing match: %+v", again)
	}
	if len(*published) != 1 {
		t.Fatalf("unexpected published events: %d", len(*published))
	}
}

func TestRequestConversationIsActiveWhenTargetAlreadyLikes(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	if err := store.Interactions().Upsert(ctx, nil, 2, 1, false, time.Now()); err != nil {
		t.Fatalf("seed like: %v", err)
	}
	res, err := svc.RequestConversation(ctx, 1, 2)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if res.IsPending {
		t.Fatalf("request to someone who liked the requester must be active")
	}
	if liked, _ := store.Interactions().HasLiked(ctx, nil, 1, 2); !liked {
		t.Fatalf("requester like must be recorded")
	}
}

func TestApproveActivatesAndSynthesizesLikes(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.RequestConversation(ctx, 1, 2)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	if _, err := svc.Approve(ctx, 1, res.MatchID); !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("requester must not approve, got %v", err)
	}
	if _, err := svc.Approve(ctx, 3, res.MatchID); !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("outsider must not approve, got %v", err)
	}

	m, err := svc.Approve(ctx, 2, res.MatchID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if m.IsPending || m.ApprovedAt == nil {
		t.Fatalf("match must be active after approval: %+v", m)
	}
	for _, p := range [][2]int64{{1, 2}, {2, 1}} {
		if liked, _ := store.Interactions().HasLiked(ctx, nil, p[0], p[1]); !liked {
			t.Fatalf("approval must record like %d->%d", p[0], p[1])
		}
	}

	if _, err := svc.Approve(ctx, 2, res.MatchID); err != nil {
		t.Fatalf("second approval must be a no-op, got %v", err)
	}
	if err := svc.Reject(ctx, 2, res.MatchID); !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("active match cannot be rejected, got %v", err)
	}
}

func TestRejectRemovesMatchAndRecordsSkip(t *testing.T) {
	svc, store, published := newTestService(t)
	ctx := context.Background()

	res, err := svc.RequestConversation(ctx, 1, 2)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := svc.Reject(ctx, 1, res.MatchID); !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("requester must not reject, got %v", err)
	}
	if err := svc.Reject(ctx, 2, res.MatchID); err != nil {
		t.Fatalf("reject: %v", err)
	}

	if _, err := svc.Get(ctx, 2, res.MatchID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rejected match must be gone, got %v", err)
	}
	in, ok := store.Interaction(2, 1)
	if !ok || !in.IsSkipped {
		t.Fatalf("reject must record a skip from rejecter to requester")
	}

	last := (*published)[len(*published)-1]
	removed, ok := last.(events.MatchRemoved)
	if !ok || removed.RequesterID != 1 || removed.RejecterID != 2 {
		t.Fatalf("unexpected last event: %#v", last)
	}
}

func TestOnMutualLikeApprovesPendingMatch(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.RequestConversation(ctx, 1, 2)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	m, created, err := svc.OnMutualLike(ctx, 2, 1)
	if err != nil {
		t.Fatalf("mutual like: %v", err)
	}
	if created || m.ID != res.MatchID || m.IsPending {
		t.Fatalf("mutual like must activate the pending match: created=%v match=%+v", created, m)
	}
}

func TestListMarksRequestsAwaitingMe(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.RequestConversation(ctx, 1, 2); err != nil {
		t.Fatalf("request: %v", err)
	}
	items, err := svc.List(ctx, 2, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || !items[0].AwaitingMe || items[0].TargetUserID != 1 {
		t.Fatalf("unexpected list for target: %+v", items)
	}
	items, _ = svc.List(ctx, 1, 10)
	if len(items) != 1 || items[0].AwaitingMe {
		t.Fatalf("unexpected list for requester: %+v", items)
	}
}
