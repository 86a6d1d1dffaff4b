package interactions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ivankudzin/amour/internal/domain/apperrors"
	"github.com/ivankudzin/amour/internal/domain/enums"
	"github.com/ivankudzin/amour/internal/domain/model"
	"github.com/ivankudzin/amour/internal/services/events"
)

const maxReportDetailsLen = 1000

var (
	ErrValidation          = fmt.Errorf("interaction: %w", apperrors.ErrValidation)
	ErrInvalidReportReason = fmt.Errorf("invalid report reason: %w", apperrors.ErrValidation)
)

type TxRunner interface {
	WithTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error
}

type AccountStore interface {
	Get(ctx context.Context, userID int64) (model.Account, error)
}

type InteractionStore interface {
	Upsert(ctx context.Context, tx pgx.Tx, actorID, targetID int64, skipped bool, at time.Time) error
	HasLiked(ctx context.Context, tx pgx.Tx, fromID, toID int64) (bool, error)
}

type ReportStore interface {
	CreateOpen(ctx context.Context, tx pgx.Tx, reporterID, targetID int64, reason, details string, at time.Time) (int64, error)
}

// Matcher is the match lifecycle hand-off for a detected mutual like.
type Matcher interface {
	OnMutualLike(ctx context.Context, userID, targetID int64) (model.Match, bool, error)
}

type Dependencies struct {
	Tx           TxRunner
	Accounts     AccountStore
	Interactions InteractionStore
	Reports      ReportStore
	Matcher      Matcher
	Bus          *events.Bus
}

type Service struct {
	tx           TxRunner
	accounts     AccountStore
	interactions InteractionStore
	reports      ReportStore
	matcher      Matcher
	bus          *events.Bus
	now          func() time.Time
}

type LikeResult struct {
	IsMatch bool
	MatchID int64
}

func NewService(deps Dependencies) *Service {
	return &Service{
		tx:           deps.Tx,
		accounts:     deps.Accounts,
		interactions: deps.Interactions,
		reports:      deps.Reports,
		matcher:      deps.Matcher,
		bus:          deps.Bus,
		now:          time.Now,
	}
}

// Like stores the like in its own transaction before looking for the reverse like, so two
// simultaneous likes always see each other and the match store keeps the pair unique.
func (s *Service) Like(ctx context.Context, actorID, targetID int64) (LikeResult, error) {
	if err := s.validatePair(ctx, actorID, targetID); err != nil {
		return LikeResult{}, err
	}
	if s.matcher == nil {
		return LikeResult{}, fmt.Errorf("matcher is nil")
	}

	if err := s.tx.WithTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		return s.interactions.Upsert(txCtx, tx, actorID, targetID, false, s.now().UTC())
	}); err != nil {
		return LikeResult{}, fmt.Errorf("record like: %w", err)
	}
	s.bus.Publish(ctx, events.UserInteracted{UserID: actorID, TargetID: targetID, Action: events.ActionLike})

	mutual, err := s.interactions.HasLiked(ctx, nil, targetID, actorID)
	if err != nil {
		return LikeResult{}, fmt.Errorf("check mutual like: %w", err)
	}
	if !mutual {
		return LikeResult{}, nil
	}

	match, _, err := s.matcher.OnMutualLike(ctx, actorID, targetID)
	if err != nil {
		return LikeResult{}, err
	}
	return LikeResult{IsMatch: true, MatchID: match.ID}, nil
}

func (s *Service) Skip(ctx context.Context, actorID, targetID int64) error {
	if err := s.validatePair(ctx, actorID, targetID); err != nil {
		return err
	}

	if err := s.tx.WithTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		return s.interactions.Upsert(txCtx, tx, actorID, targetID, true, s.now().UTC())
	}); err != nil {
		return fmt.Errorf("record skip: %w", err)
	}
	s.bus.Publish(ctx, events.UserInteracted{UserID: actorID, TargetID: targetID, Action: events.ActionSkip})
	return nil
}

// Report files an open report and forces a skip on the pair. A second report while the
// first is unresolved fails with a conflict and changes nothing.
func (s *Service) Report(ctx context.Context, actorID, targetID int64, reason, details string) error {
	parsed, ok := enums.ParseReportReason(reason)
	if !ok {
		return ErrInvalidReportReason
	}
	details = strings.TrimSpace(details)
	if len(details) > maxReportDetailsLen {
		return ErrValidation
	}
	if err := s.validatePair(ctx, actorID, targetID); err != nil {
		return err
	}
	if s.reports == nil {
		return fmt.Errorf("report store is nil")
	}

	now := s.now().UTC()
	if err := s.tx.WithTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		if _, err := s.reports.CreateOpen(txCtx, tx, actorID, targetID, string(parsed), details, now); err != nil {
			return err
		}
		return s.interactions.Upsert(txCtx, tx, actorID, targetID, true, now)
	}); err != nil {
		return fmt.Errorf("record report: %w", err)
	}
	s.bus.Publish(ctx, events.UserInteracted{UserID: actorID, TargetID: targetID, Action: events.ActionReport})
	return nil
}

func (s *Service) validatePair(ctx context.Context, actorID, targetID int64) error {
	if actorID <= 0 || targetID <= 0 || actorID == targetID {
		return ErrValidation
	}
	if s.tx == nil || s.interactions == nil || s.accounts == nil {
		return fmt.Errorf("interaction dependencies are not configured")
	}
	if _, err := s.accounts.Get(ctx, targetID); err != nil {
		return fmt.Errorf("load target account: %w", err)
	}
	return nil
}
