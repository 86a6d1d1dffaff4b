package matches

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ivankudzin/amour/internal/domain/apperrors"
	"github.com/ivankudzin/amour/internal/domain/model"
	pgrepo "github.com/ivankudzin/amour/internal/repo/postgres"
	"github.com/ivankudzin/amour/internal/services/events"
)

const defaultListLimit = 100

var (
	ErrValidation = fmt.Errorf("match request: %w", apperrors.ErrValidation)
	ErrNotFound   = fmt.Errorf("match: %w", apperrors.ErrNotFound)
)

type TxRunner interface {
	WithTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error
}

type AccountStore interface {
	Get(ctx context.Context, userID int64) (model.Account, error)
}

type MatchStore interface {
	Get(ctx context.Context, matchID int64) (model.Match, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, matchID int64) (model.Match, error)
	CreateOrGet(ctx context.Context, tx pgx.Tx, in pgrepo.NewMatch) (model.Match, bool, error)
	Activate(ctx context.Context, tx pgx.Tx, matchID int64, at time.Time) (bool, error)
	Delete(ctx context.Context, tx pgx.Tx, matchID int64) (bool, error)
	ListForUser(ctx context.Context, userID int64, limit int) ([]pgrepo.MatchListRecord, error)
}

type InteractionStore interface {
	Upsert(ctx context.Context, tx pgx.Tx, actorID, targetID int64, skipped bool, at time.Time) error
	HasLiked(ctx context.Context, tx pgx.Tx, fromID, toID int64) (bool, error)
}

type Recorder interface {
	MatchCreated(kind string)
}

type Dependencies struct {
	Tx           TxRunner
	Accounts     AccountStore
	Matches      MatchStore
	Interactions InteractionStore
	Bus          *events.Bus
	Recorder     Recorder
	Logger       *zap.Logger
}

type Service struct {
	tx           TxRunner
	accounts     AccountStore
	matches      MatchStore
	interactions InteractionStore
	bus          *events.Bus
	recorder     Recorder
	log          *zap.Logger
	now          func() time.Time
}

type RequestResult struct {
	MatchID   int64
	IsPending bool
	Created   bool
}

type MatchItem struct {
	ID             int64
	TargetUserID   int64
	DisplayName    string
	Age            int
	IsPending      bool
	AwaitingMe     bool
	LastMessage    string
	LastMessageAt  *time.Time
	UnreadMessages int
	CreatedAt      time.Time
}

func NewService(deps Dependencies) *Service {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		tx:           deps.Tx,
		accounts:     deps.Accounts,
		matches:      deps.Matches,
		interactions: deps.Interactions,
		bus:          deps.Bus,
		recorder:     deps.Recorder,
		log:          log,
		now:          time.Now,
	}
}

// OnMutualLike materializes the active match for a mutual like. An existing pending match
// for the pair is approved instead; an existing active match is returned unchanged.
func (s *Service) OnMutualLike(ctx context.Context, userID, targetID int64) (model.Match, bool, error) {
	if userID <= 0 || targetID <= 0 || userID == targetID {
		return model.Match{}, false, ErrValidation
	}
	if err := s.ready(); err != nil {
		return model.Match{}, false, err
	}

	var (
		match     model.Match
		created   bool
		activated bool
	)
	now := s.now().UTC()
	err := s.tx.WithTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		m, ok, err := s.matches.CreateOrGet(txCtx, tx, pgrepo.NewMatch{UserID: userID, TargetID: targetID, At: now})
		if err != nil {
			return err
		}
		match, created = m, ok
		if created || !m.IsPending {
			return nil
		}
		activated, err = s.matches.Activate(txCtx, tx, m.ID, now)
		if err != nil {
			return err
		}
		if activated {
			match.IsPending = false
			match.PendingUserID = 0
			match.ApprovedAt = &now
		}
		return nil
	})
	if err != nil {
		return model.Match{}, false, fmt.Errorf("create mutual match: %w", err)
	}

	switch {
	case created:
		s.recordCreated("mutual")
		s.bus.Publish(ctx, events.MatchCreated{Match: match})
	case activated:
		s.bus.Publish(ctx, events.MatchActivated{Match: match})
	}
	return match, created, nil
}

// RequestConversation opens a conversation without a mutual like. When the target already
// likes the requester the match is created active; otherwise it waits on the target.
// A pair that already has a match gets that match back.
func (s *Service) RequestConversation(ctx context.Context, userID, targetID int64) (RequestResult, error) {
	if userID <= 0 || targetID <= 0 || userID == targetID {
		return RequestResult{}, ErrValidation
	}
	if err := s.ready(); err != nil {
		return RequestResult{}, err
	}
	if _, err := s.accounts.Get(ctx, targetID); err != nil {
		return RequestResult{}, fmt.Errorf("load target account: %w", err)
	}

	var (
		match   model.Match
		created bool
	)
	now := s.now().UTC()
	err := s.tx.WithTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		likedBack, err := s.interactions.HasLiked(txCtx, tx, targetID, userID)
		if err != nil {
			return err
		}

		in := pgrepo.NewMatch{UserID: userID, TargetID: targetID, RequesterID: userID, At: now}
		if likedBack {
			if err := s.interactions.Upsert(txCtx, tx, userID, targetID, false, now); err != nil {
				return err
			}
		} else {
			in.PendingUserID = targetID
		}

		match, created, err = s.matches.CreateOrGet(txCtx, tx, in)
		return err
	})
	if err != nil {
		return RequestResult{}, fmt.Errorf("request conversation: %w", err)
	}

	if created {
		kind := "request"
		if !match.IsPending {
			kind = "mutual"
		}
		s.recordCreated(kind)
		s.bus.Publish(ctx, events.MatchCreated{Match: match})
		s.bus.Publish(ctx, events.UserInteracted{UserID: userID, TargetID: targetID, Action: events.ActionRequest})
	}

	return RequestResult{MatchID: match.ID, IsPending: match.IsPending, Created: created}, nil
}

// Approve activates a pending match and records likes in both directions. Approving an
// already active match is a no-op.
func (s *Service) Approve(ctx context.Context, userID, matchID int64) (model.Match, error) {
	if userID <= 0 || matchID <= 0 {
		return model.Match{}, ErrValidation
	}
	if err := s.ready(); err != nil {
		return model.Match{}, err
	}

	var (
		match     model.Match
		activated bool
	)
	now := s.now().UTC()
	err := s.tx.WithTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		m, err := s.lockParticipant(txCtx, tx, userID, matchID)
		if err != nil {
			return err
		}
		match = m
		if !m.IsPending {
			return nil
		}
		if m.PendingUserID != userID {
			return apperrors.Forbidden("only the invited user can accept this request")
		}

		other := m.Other(userID)
		if err := s.interactions.Upsert(txCtx, tx, userID, other, false, now); err != nil {
			return err
		}
		if err := s.interactions.Upsert(txCtx, tx, other, userID, false, now); err != nil {
			return err
		}
		activated, err = s.matches.Activate(txCtx, tx, m.ID, now)
		if err != nil {
			return err
		}
		match.IsPending = false
		match.PendingUserID = 0
		match.ApprovedAt = &now
		return nil
	})
	if err != nil {
		return model.Match{}, fmt.Errorf("approve conversation: %w", err)
	}

	if activated {
		s.bus.Publish(ctx, events.MatchActivated{Match: match})
		s.bus.Publish(ctx, events.UserInteracted{UserID: userID, TargetID: match.Other(userID), Action: events.ActionApprove})
	}
	return match, nil
}

// Reject deletes a pending match with its messages and stores a skip from the rejecter
// towards the requester so the requester is not offered again.
func (s *Service) Reject(ctx context.Context, userID, matchID int64) error {
	if userID <= 0 || matchID <= 0 {
		return ErrValidation
	}
	if err := s.ready(); err != nil {
		return err
	}

	var requesterID int64
	now := s.now().UTC()
	err := s.tx.WithTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		m, err := s.lockParticipant(txCtx, tx, userID, matchID)
		if err != nil {
			return err
		}
		if !m.IsPending {
			return apperrors.Forbidden("this conversation was already accepted")
		}
		if m.PendingUserID != userID {
			return apperrors.Forbidden("only the invited user can decline this request")
		}

		requesterID = m.Other(userID)
		if _, err := s.matches.Delete(txCtx, tx, m.ID); err != nil {
			return err
		}
		return s.interactions.Upsert(txCtx, tx, userID, requesterID, true, now)
	})
	if err != nil {
		return fmt.Errorf("reject conversation: %w", err)
	}

	s.bus.Publish(ctx, events.MatchRemoved{MatchID: matchID, RequesterID: requesterID, RejecterID: userID})
	s.bus.Publish(ctx, events.UserInteracted{UserID: userID, TargetID: requesterID, Action: events.ActionReject})
	return nil
}

// Get returns the match when userID takes part in it. Outsiders get Forbidden.
func (s *Service) Get(ctx context.Context, userID, matchID int64) (model.Match, error) {
	if userID <= 0 || matchID <= 0 {
		return model.Match{}, ErrValidation
	}
	if s.matches == nil {
		return model.Match{}, fmt.Errorf("match store is nil")
	}
	m, err := s.matches.Get(ctx, matchID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrMatchNotFound) {
			return model.Match{}, ErrNotFound
		}
		return model.Match{}, err
	}
	if !m.HasParticipant(userID) {
		return model.Match{}, apperrors.Forbidden("you are not part of this conversation")
	}
	return m, nil
}

func (s *Service) List(ctx context.Context, userID int64, limit int) ([]MatchItem, error) {
	if userID <= 0 {
		return nil, ErrValidation
	}
	if s.matches == nil {
		return nil, fmt.Errorf("match store is nil")
	}
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}

	rows, err := s.matches.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]MatchItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, MatchItem{
			ID:             row.Match.ID,
			TargetUserID:   row.TargetUserID,
			DisplayName:    row.DisplayName,
			Age:            row.Age,
			IsPending:      row.Match.IsPending,
			AwaitingMe:     row.Match.AwaitingApprovalFrom(userID),
			LastMessage:    row.LastMessage,
			LastMessageAt:  row.LastMessageAt,
			UnreadMessages: row.UnreadMessages,
			CreatedAt:      row.Match.CreatedAt,
		})
	}
	return items, nil
}

func (s *Service) lockParticipant(ctx context.Context, tx pgx.Tx, userID, matchID int64) (model.Match, error) {
	m, err := s.matches.GetForUpdate(ctx, tx, matchID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrMatchNotFound) {
			return model.Match{}, ErrNotFound
		}
		return model.Match{}, err
	}
	if !m.HasParticipant(userID) {
		return model.Match{}, apperrors.Forbidden("you are not part of this conversation")
	}
	return m, nil
}

func (s *Service) ready() error {
	if s.tx == nil || s.matches == nil || s.interactions == nil || s.accounts == nil {
		return fmt.Errorf("match dependencies are not configured")
	}
	return nil
}

func (s *Service) recordCreated(kind string) {
	if s.recorder != nil {
		s.recorder.MatchCreated(kind)
	}
}
