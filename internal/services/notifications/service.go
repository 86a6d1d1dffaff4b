// Package notifications recomputes unread and new-match counts from stored state and
// pushes them to the user. Pushing is best effort; the summary endpoint is the source of truth.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/amour/internal/domain/apperrors"
	"github.com/ivankudzin/amour/internal/domain/model"
	"github.com/ivankudzin/amour/internal/services/events"
)

var ErrValidation = fmt.Errorf("notifications: %w", apperrors.ErrValidation)

// Reason says what changed; it only picks the offline push text.
type Reason string

const (
	ReasonMessage Reason = "message"
	ReasonMatch   Reason = "match"
	ReasonRequest Reason = "request"
	ReasonRemoved Reason = "removed"
	// ReasonSync refreshes the badge of a user who just connected or read something.
	ReasonSync Reason = "sync"
)

type SummaryStore interface {
	Summary(ctx context.Context, userID int64) (model.NotificationSummary, error)
}

type AccountStore interface {
	Get(ctx context.Context, userID int64) (model.Account, error)
	TouchMatchesSeen(ctx context.Context, userID int64, at time.Time) error
}

// Publisher delivers events to the user's live sessions on any instance.
type Publisher interface {
	NotificationUpdate(ctx context.Context, userID int64, summary model.NotificationSummary) error
	MatchRemoved(ctx context.Context, userID, matchID int64) error
}

type Presence interface {
	Online(ctx context.Context, userID int64) (bool, error)
}

type OfflinePusher interface {
	Enqueue(chatID int64, text string) bool
}

type Dependencies struct {
	Summaries SummaryStore
	Accounts  AccountStore
	Publisher Publisher
	Presence  Presence
	Offline   OfflinePusher
	Logger    *zap.Logger
}

type Service struct {
	summaries SummaryStore
	accounts  AccountStore
	publisher Publisher
	presence  Presence
	offline   OfflinePusher
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		summaries: deps.Summaries,
		accounts:  deps.Accounts,
		publisher: deps.Publisher,
		presence:  deps.Presence,
		offline:   deps.Offline,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) Summary(ctx context.Context, userID int64) (model.NotificationSummary, error) {
	if userID <= 0 {
		return model.NotificationSummary{}, ErrValidation
	}
	if s.summaries == nil {
		return model.NotificationSummary{}, fmt.Errorf("notification store is not configured")
	}
	return s.summaries.Summary(ctx, userID)
}

// MarkMatchesSeen moves the new-match watermark to now and returns the fresh summary.
func (s *Service) MarkMatchesSeen(ctx context.Context, userID int64) (model.NotificationSummary, error) {
	if userID <= 0 {
		return model.NotificationSummary{}, ErrValidation
	}
	if s.accounts == nil {
		return model.NotificationSummary{}, fmt.Errorf("account store is not configured")
	}
	if err := s.accounts.TouchMatchesSeen(ctx, userID, s.now().UTC()); err != nil {
		return model.NotificationSummary{}, err
	}
	summary, err := s.Summary(ctx, userID)
	if err != nil {
		return model.NotificationSummary{}, err
	}
	s.publish(ctx, userID, summary)
	return summary, nil
}

// Push sends the current summary to the user's live sessions, or a Telegram message when
// there are none. Errors are logged and never returned.
func (s *Service) Push(ctx context.Context, userID int64, reason Reason) {
	if userID <= 0 || s.summaries == nil {
		return
	}
	summary, err := s.summaries.Summary(ctx, userID)
	if err != nil {
		s.logger.Warn("notification summary failed", zap.Int64("user_id", userID), zap.Error(err))
		return
	}

	if s.online(ctx, userID) {
		s.publish(ctx, userID, summary)
		return
	}
	s.pushOffline(ctx, userID, reason, summary)
}

// Subscribe keeps both sides of a match informed about creation, approval and rejection.
func (s *Service) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.KindMatchCreated, func(ctx context.Context, e events.Event) error {
		ev, ok := e.(events.MatchCreated)
		if !ok {
			return nil
		}
		if ev.Match.IsPending {
			s.Push(ctx, ev.Match.PendingUserID, ReasonRequest)
			return nil
		}
		s.Push(ctx, ev.Match.UserAID, ReasonMatch)
		s.Push(ctx, ev.Match.UserBID, ReasonMatch)
		return nil
	})
	bus.Subscribe(events.KindMatchActivated, func(ctx context.Context, e events.Event) error {
		ev, ok := e.(events.MatchActivated)
		if !ok {
			return nil
		}
		s.Push(ctx, ev.Match.UserAID, ReasonMatch)
		s.Push(ctx, ev.Match.UserBID, ReasonMatch)
		return nil
	})
	bus.Subscribe(events.KindMatchRemoved, func(ctx context.Context, e events.Event) error {
		ev, ok := e.(events.MatchRemoved)
		if !ok {
			return nil
		}
		if s.publisher != nil && ev.RequesterID > 0 {
			if err := s.publisher.MatchRemoved(ctx, ev.RequesterID, ev.MatchID); err != nil {
				s.logger.Warn("match removed push failed", zap.Int64("user_id", ev.RequesterID), zap.Error(err))
			}
		}
		s.Push(ctx, ev.RequesterID, ReasonRemoved)
		s.Push(ctx, ev.RejecterID, ReasonRemoved)
		return nil
	})
}

func (s *Service) online(ctx context.Context, userID int64) bool {
	if s.presence == nil {
		return true
	}
	ok, err := s.presence.Online(ctx, userID)
	if err != nil {
		// Unknown presence: the live push is cheap and the summary endpoint catches up.
		s.logger.Warn("presence lookup failed", zap.Int64("user_id", userID), zap.Error(err))
		return true
	}
	return ok
}

func (s *Service) publish(ctx context.Context, userID int64, summary model.NotificationSummary) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.NotificationUpdate(ctx, userID, summary); err != nil {
		s.logger.Warn("notification update push failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (s *Service) pushOffline(ctx context.Context, userID int64, reason Reason, summary model.NotificationSummary) {
	text := offlineText(reason, summary)
	if text == "" || s.offline == nil || s.accounts == nil {
		return
	}
	acc, err := s.accounts.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.logger.Warn("load account for push failed", zap.Int64("user_id", userID), zap.Error(err))
		}
		return
	}
	s.offline.Enqueue(acc.TelegramID, text)
}

func offlineText(reason Reason, summary model.NotificationSummary) string {
	switch reason {
	case ReasonMessage:
		if summary.UnreadMessages == 0 {
			return ""
		}
		if summary.UnreadMessages == 1 {
			return "You have a new message."
		}
		return fmt.Sprintf("You have %d unread messages.", summary.UnreadMessages)
	case ReasonMatch:
		return "It's a match! Open the app to say hi."
	case ReasonRequest:
		return "Someone wants to chat with you."
	default:
		return ""
	}
}
