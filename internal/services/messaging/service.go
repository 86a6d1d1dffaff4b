package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ivankudzin/amour/internal/domain/apperrors"
	"github.com/ivankudzin/amour/internal/domain/model"
	"github.com/ivankudzin/amour/internal/domain/rules"
	pgrepo "github.com/ivankudzin/amour/internal/repo/postgres"
	"github.com/ivankudzin/amour/internal/services/events"
)

const (
	reasonNotParticipant = "you are not part of this conversation"
	reasonAwaitingYou    = "accept the conversation request before replying"
	reasonAwaitingThem   = "you can send one message until the request is accepted"
)

var (
	ErrValidation   = fmt.Errorf("message: %w", apperrors.ErrValidation)
	ErrEmptyMessage = fmt.Errorf("message is empty: %w", apperrors.ErrValidation)
	ErrTooLong      = fmt.Errorf("message is too long: %w", apperrors.ErrValidation)
	ErrNotFound     = fmt.Errorf("conversation: %w", apperrors.ErrNotFound)
)

type TxRunner interface {
	WithTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error
}

type MatchStore interface {
	Get(ctx context.Context, matchID int64) (model.Match, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, matchID int64) (model.Match, error)
}

type MessageStore interface {
	Create(ctx context.Context, tx pgx.Tx, msg model.Message) (model.Message, error)
	CountBySender(ctx context.Context, tx pgx.Tx, matchID, senderID int64) (int, error)
	MarkRead(ctx context.Context, matchID, readerID int64) ([]int64, error)
	MarkReadIDs(ctx context.Context, matchID, readerID int64, ids []int64) ([]int64, error)
	PageNewestFirst(ctx context.Context, matchID int64, limit, offset int) ([]model.Message, error)
	CountForMatch(ctx context.Context, matchID int64) (int, error)
}

type MediaSigner interface {
	Sign(ctx context.Context, key string) (string, error)
}

type Recorder interface {
	MessageSent()
	MessagesRead(n int)
}

type Dependencies struct {
	Tx       TxRunner
	Matches  MatchStore
	Messages MessageStore
	Media    MediaSigner
	Bus      *events.Bus
	Recorder Recorder
	Logger   *zap.Logger
}

type Config struct {
	MaxContentLen   int
	DefaultPageSize int
	MaxPageSize     int
}

type Service struct {
	tx       TxRunner
	matches  MatchStore
	messages MessageStore
	media    MediaSigner
	bus      *events.Bus
	recorder Recorder
	log      *zap.Logger
	cfg      Config
	now      func() time.Time
}

type SendResult struct {
	Message     model.Message
	RecipientID int64
}

type ReadResult struct {
	IDs         []int64
	OtherUserID int64
}

func (r ReadResult) Count() int { return len(r.IDs) }

type Page struct {
	Messages   []model.Message
	TotalCount int
	Page       int
	PageSize   int
}

func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.MaxContentLen <= 0 {
		cfg.MaxContentLen = 4000
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 30
	}
	if cfg.MaxPageSize < cfg.DefaultPageSize {
		cfg.MaxPageSize = cfg.DefaultPageSize
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		tx:       deps.Tx,
		matches:  deps.Matches,
		messages: deps.Messages,
		media:    deps.Media,
		bus:      deps.Bus,
		recorder: deps.Recorder,
		log:      log,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Send persists a message after the membership and pending-request checks. The match row
// is locked for the duration, so a requester racing two sends on a pending match gets
// exactly one through.
func (s *Service) Send(ctx context.Context, senderID, matchID int64, content, mediaRef string) (SendResult, error) {
	if senderID <= 0 || matchID <= 0 {
		return SendResult{}, ErrValidation
	}
	mediaRef = strings.TrimSpace(mediaRef)
	if strings.TrimSpace(content) == "" && mediaRef == "" {
		return SendResult{}, ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > s.cfg.MaxContentLen {
		return SendResult{}, ErrTooLong
	}
	if err := s.ready(); err != nil {
		return SendResult{}, err
	}

	var (
		stored    model.Message
		recipient int64
	)
	err := s.tx.WithTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		m, err := s.matches.GetForUpdate(txCtx, tx, matchID)
		if err != nil {
			return notFound(err)
		}
		if !m.HasParticipant(senderID) {
			return apperrors.Forbidden(reasonNotParticipant)
		}
		if m.IsPending {
			if m.PendingUserID == senderID {
				return apperrors.Forbidden(reasonAwaitingYou)
			}
			sent, err := s.messages.CountBySender(txCtx, tx, matchID, senderID)
			if err != nil {
				return err
			}
			if sent > 0 {
				return apperrors.Forbidden(reasonAwaitingThem)
			}
		}

		recipient = m.Other(senderID)
		stored, err = s.messages.Create(txCtx, tx, model.Message{
			MatchID:   matchID,
			SenderID:  senderID,
			Content:   content,
			MediaRef:  mediaRef,
			CreatedAt: s.now().UTC(),
		})
		return err
	})
	if err != nil {
		return SendResult{}, fmt.Errorf("send message: %w", err)
	}

	if s.recorder != nil {
		s.recorder.MessageSent()
	}
	s.bus.Publish(ctx, events.UserInteracted{UserID: senderID, TargetID: recipient, Action: events.ActionMessage})

	return SendResult{Message: s.present(ctx, stored), RecipientID: recipient}, nil
}

// MarkRead flips every unread incoming message in the match. Calling it again returns no ids.
func (s *Service) MarkRead(ctx context.Context, readerID, matchID int64) (ReadResult, error) {
	m, err := s.Authorize(ctx, readerID, matchID)
	if err != nil {
		return ReadResult{}, err
	}
	ids, err := s.messages.MarkRead(ctx, matchID, readerID)
	if err != nil {
		return ReadResult{}, err
	}
	s.recordRead(len(ids))
	return ReadResult{IDs: ids, OtherUserID: m.Other(readerID)}, nil
}

// MarkReadIDs is the immediate-read path for messages delivered to a recipient who has the
// conversation open. Participation is not rechecked; the caller just delivered the message.
func (s *Service) MarkReadIDs(ctx context.Context, readerID, matchID int64, ids []int64) ([]int64, error) {
	if readerID <= 0 || matchID <= 0 {
		return nil, ErrValidation
	}
	flipped, err := s.messages.MarkReadIDs(ctx, matchID, readerID, ids)
	if err != nil {
		return nil, err
	}
	s.recordRead(len(flipped))
	return flipped, nil
}

// Page returns one page of the conversation, newest page first, with the messages inside
// the page ordered oldest to newest.
func (s *Service) Page(ctx context.Context, userID, matchID int64, page, pageSize int) (Page, error) {
	if _, err := s.Authorize(ctx, userID, matchID); err != nil {
		return Page{}, err
	}
	page, pageSize, offset := rules.NormalizePage(page, pageSize, s.cfg.DefaultPageSize, s.cfg.MaxPageSize)

	rows, err := s.messages.PageNewestFirst(ctx, matchID, pageSize, offset)
	if err != nil {
		return Page{}, err
	}
	total, err := s.messages.CountForMatch(ctx, matchID)
	if err != nil {
		return Page{}, err
	}

	out := make([]model.Message, len(rows))
	for i, msg := range rows {
		out[len(rows)-1-i] = s.present(ctx, msg)
	}
	return Page{Messages: out, TotalCount: total, Page: page, PageSize: pageSize}, nil
}

// Authorize loads the match and checks that userID takes part in it.
func (s *Service) Authorize(ctx context.Context, userID, matchID int64) (model.Match, error) {
	if userID <= 0 || matchID <= 0 {
		return model.Match{}, ErrValidation
	}
	if err := s.ready(); err != nil {
		return model.Match{}, err
	}
	m, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return model.Match{}, notFound(err)
	}
	if !m.HasParticipant(userID) {
		return model.Match{}, apperrors.Forbidden(reasonNotParticipant)
	}
	return m, nil
}

func (s *Service) present(ctx context.Context, msg model.Message) model.Message {
	if msg.MediaRef == "" || s.media == nil {
		return msg
	}
	url, err := s.media.Sign(ctx, msg.MediaRef)
	if err != nil {
		s.log.Warn("sign message media", zap.Int64("message_id", msg.ID), zap.Error(err))
		return msg
	}
	msg.MediaURL = url
	return msg
}

func (s *Service) recordRead(n int) {
	if s.recorder != nil {
		s.recorder.MessagesRead(n)
	}
}

func (s *Service) ready() error {
	if s.tx == nil || s.matches == nil || s.messages == nil {
		return fmt.Errorf("messaging dependencies are not configured")
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgrepo.ErrMatchNotFound) {
		return ErrNotFound
	}
	return err
}
