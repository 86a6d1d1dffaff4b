package interactions

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ivankudzin/amour/internal/domain/apperrors"
	"github.com/ivankudzin/amour/internal/domain/model"
	"github.com/ivankudzin/amour/internal/testutil/memory"
	"github.com/ivankudzin/amour/internal/services/events"
	matchsvc "github.com/ivankudzin/amour/internal/services/matches"
)

func newTestService(t *testing.T) (*Service, *memory.Store, *[]events.UserInteracted) {
	t.Helper()

	store := memory.New()
	for id := int64(1); id <= 4; id++ {
		store.AddUser(model.Account{ID: id}, nil)
	}

	bus := events.NewBus(nil)
	var (
		mu   sync.Mutex
		seen []events.UserInteracted
	)
	bus.Subscribe(events.KindUserInteracted, func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.(events.UserInteracted))
		return nil
	})

	matches := matchsvc.NewService(matchsvc.Dependencies{
		Tx:           store,
		Accounts:     store.Accounts(),
		Matches:      store.Matches(),
		Interactions: store.Interactions(),
		Bus:          bus,
	})
	svc := NewService(Dependencies{
		Tx:           store,
		Accounts:     store.Accounts(),
		Interactions: store.Interactions(),
		Reports:      store.Reports(),
		Matcher:      matches,
		Bus:          bus,
	})
	return svc, store, &seen
}

func TestLikeCreatesMatchOnlyWhenMutual(t *testing.T) {
	svc, store, seen := newTestService(t)
	ctx := context.Background()

	res, err := svc.Like(ctx, 1, 2)
	if err != nil {
		t.Fatalf("like: %v", err)
	}
	if res.IsMatch {
		t.Fatalf("one-sided like must not match")
	}

	res, err = svc.Like(ctx, 2, 1)
	if err != nil {
		t.Fatalf("like back: %v", err)
	}
	if !res.IsMatch || res.MatchID <= 0 {
		t.Fatalf("expected match, got %+v", res)
	}
	if store.MatchCount() != 1 {
		t.Fatalf("unexpected match count: got %d want 1", store.MatchCount())
	}
	if len(*seen) != 2 {
		t.Fatalf("every like must publish an interaction event, got %d", len(*seen))
	}
}

func TestConcurrentMutualLikesCreateOneMatch(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]LikeResult, 2)
	for i, pair := range [][2]int64{{1, 2}, {2, 1}} {
		wg.Add(1)
		go func(i int, actor, target int64) {
			defer wg.Done()
			res, err := svc.Like(ctx, actor, target)
			if err != nil {
				t.Errorf("like %d->%d: %v", actor, target, err)
			}
			results[i] = res
		}(i, pair[0], pair[1])
	}
	wg.Wait()

	if store.MatchCount() != 1 {
		t.Fatalf("unexpected match count: got %d want 1", store.MatchCount())
	}
	if !results[0].IsMatch && !results[1].IsMatch {
		t.Fatalf("at least one like must report the match")
	}
	if results[0].IsMatch && results[1].IsMatch && results[0].MatchID != results[1].MatchID {
		t.Fatalf("both likes must point at the same match: %+v", results)
	}
}

func TestSkipThenLikeFlipsInteraction(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Skip(ctx, 1, 3); err != nil {
		t.Fatalf("skip: %v", err)
	}
	if in, ok := store.Interaction(1, 3); !ok || !in.IsSkipped {
		t.Fatalf("expected skipped interaction, got %+v ok=%v", in, ok)
	}
	if _, err := svc.Like(ctx, 1, 3); err != nil {
		t.Fatalf("like: %v", err)
	}
	if in, _ := store.Interaction(1, 3); in.IsSkipped {
		t.Fatalf("like must flip the existing row")
	}
}

func TestReportForcesSkipAndRejectsDuplicates(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Like(ctx, 1, 4); err != nil {
		t.Fatalf("like: %v", err)
	}
	if err := svc.Report(ctx, 1, 4, "SPAM", "sells stuff"); err != nil {
		t.Fatalf("report: %v", err)
	}
	if in, _ := store.Interaction(1, 4); !in.IsSkipped {
		t.Fatalf("report must force skip")
	}

	err := svc.Report(ctx, 1, 4, "fake", "")
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected conflict on duplicate report, got %v", err)
	}
}

func TestValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Like(ctx, 1, 1); !errors.Is(err, ErrValidation) {
		t.Fatalf("self like must fail validation, got %v", err)
	}
	if _, err := svc.Like(ctx, 1, 99); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("unknown target must be not found, got %v", err)
	}
	if err := svc.Report(ctx, 1, 2, "boring", ""); !errors.Is(err, ErrInvalidReportReason) {
		t.Fatalf("unknown reason must fail, got %v", err)
	}
}
