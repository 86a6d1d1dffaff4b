package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ivankudzin/amour/internal/domain/apperrors"
	"github.com/ivankudzin/amour/internal/domain/model"
)

var ErrMatchNotFound = fmt.Errorf("match: %w", apperrors.ErrNotFound)

type MatchRepo struct {
	db *DB
}

// NewMatch describes a row to create. PendingUserID == 0 creates an active match.
type NewMatch struct {
	UserID        int64
	TargetID      int64
	PendingUserID int64
	RequesterID   int64
	At            time.Time
}

type MatchListRecord struct {
	Match          model.Match
	TargetUserID   int64
	DisplayName    string
	Age            int
	LastMessage    string
	LastMessageAt  *time.Time
	UnreadMessages int
}

func NewMatchRepo(db *DB) *MatchRepo {
	return &MatchRepo{db: db}
}

const matchColumns = `id, user_a_id, user_b_id, created_at, is_pending, COALESCE(pending_user_id, 0), COALESCE(requester_id, 0), approved_at`

func scanMatch(row pgx.Row) (model.Match, error) {
	var m model.Match
	err := row.Scan(&m.ID, &m.UserAID, &m.UserBID, &m.CreatedAt, &m.IsPending, &m.PendingUserID, &m.RequesterID, &m.ApprovedAt)
	return m, err
}

func (r *MatchRepo) Get(ctx context.Context, matchID int64) (model.Match, error) {
	if matchID <= 0 {
		return model.Match{}, fmt.Errorf("invalid match id")
	}
	q, err := r.db.runner(nil)
	if err != nil {
		return model.Match{}, err
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	m, err := scanMatch(q.QueryRow(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1`, matchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Match{}, ErrMatchNotFound
		}
		return model.Match{}, fmt.Errorf("get match: %w", err)
	}
	return m, nil
}

// GetForUpdate locks the row until tx ends. Sends, approvals and rejections on one match serialize here.
func (r *MatchRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, matchID int64) (model.Match, error) {
	if matchID <= 0 {
		return model.Match{}, fmt.Errorf("invalid match id")
	}
	if tx == nil {
		return model.Match{}, fmt.Errorf("transaction is required")
	}

	m, err := scanMatch(tx.QueryRow(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1 FOR UPDATE`, matchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Match{}, ErrMatchNotFound
		}
		return model.Match{}, fmt.Errorf("lock match: %w", err)
	}
	return m, nil
}

func (r *MatchRepo) GetByUsers(ctx context.Context, tx pgx.Tx, userID, targetID int64) (model.Match, bool, error) {
	if userID <= 0 || targetID <= 0 || userID == targetID {
		return model.Match{}, false, fmt.Errorf("invalid match lookup payload")
	}
	q, err := r.db.runner(tx)
	if err != nil {
		return model.Match{}, false, err
	}
	if tx == nil {
		var cancel context.CancelFunc
		ctx, cancel = r.db.withTimeout(ctx)
		defer cancel()
	}

	userA, userB := model.OrderedPair(userID, targetID)
	m, err := scanMatch(q.QueryRow(ctx, `
SELECT `+matchColumns+`
FROM matches
WHERE user_a_id = $1 AND user_b_id = $2
`, userA, userB))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Match{}, false, nil
		}
		return model.Match{}, false, fmt.Errorf("get match by users: %w", err)
	}
	return m, true, nil
}

// CreateOrGet inserts the pair or, when a row already exists, returns that row with created=false.
func (r *MatchRepo) CreateOrGet(ctx context.Context, tx pgx.Tx, in NewMatch) (model.Match, bool, error) {
	if in.UserID <= 0 || in.TargetID <= 0 || in.UserID == in.TargetID {
		return model.Match{}, false, fmt.Errorf("invalid match payload")
	}
	if tx == nil {
		return model.Match{}, false, fmt.Errorf("transaction is required")
	}

	userA, userB := model.OrderedPair(in.UserID, in.TargetID)
	var pendingUser, requester *int64
	if in.PendingUserID > 0 {
		pendingUser = &in.PendingUserID
	}
	if in.RequesterID > 0 {
		requester = &in.RequesterID
	}

	m, err := scanMatch(tx.QueryRow(ctx, `
INSERT INTO matches (user_a_id, user_b_id, is_pending, pending_user_id, requester_id, created_at, approved_at)
VALUES ($1, $2, $3, $4, $5, $6, CASE WHEN $3 THEN NULL ELSE $6::timestamptz END)
ON CONFLICT (user_a_id, user_b_id) DO NOTHING
RETURNING `+matchColumns,
		userA, userB, pendingUser != nil, pendingUser, requester, in.At.UTC()))
	if err == nil {
		return m, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Match{}, false, fmt.Errorf("create match: %w", err)
	}

	existing, ok, err := r.GetByUsers(ctx, tx, in.UserID, in.TargetID)
	if err != nil {
		return model.Match{}, false, err
	}
	if !ok {
		return model.Match{}, false, fmt.Errorf("match conflict without row")
	}
	return existing, false, nil
}

// Activate clears the pending state. It reports false when the match was not pending.
func (r *MatchRepo) Activate(ctx context.Context, tx pgx.Tx, matchID int64, at time.Time) (bool, error) {
	if matchID <= 0 {
		return false, fmt.Errorf("invalid match id")
	}
	if tx == nil {
		return false, fmt.Errorf("transaction is required")
	}

	tag, err := tx.Exec(ctx, `
UPDATE matches
SET is_pending = FALSE, pending_user_id = NULL, approved_at = $2
WHERE id = $1 AND is_pending
`, matchID, at.UTC())
	if err != nil {
		return false, fmt.Errorf("activate match: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes the match and its messages.
func (r *MatchRepo) Delete(ctx context.Context, tx pgx.Tx, matchID int64) (bool, error) {
	if matchID <= 0 {
		return false, fmt.Errorf("invalid match id")
	}
	if tx == nil {
		return false, fmt.Errorf("transaction is required")
	}

	if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE match_id = $1`, matchID); err != nil {
		return false, fmt.Errorf("delete match messages: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM matches WHERE id = $1`, matchID)
	if err != nil {
		return false, fmt.Errorf("delete match: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *MatchRepo) ListForUser(ctx context.Context, userID int64, limit int) ([]MatchListRecord, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("invalid user id")
	}
	if limit <= 0 {
		limit = 100
	}
	q, err := r.db.runner(nil)
	if err != nil {
		return nil, err
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := q.Query(ctx, `
SELECT
	m.id, m.user_a_id, m.user_b_id, m.created_at, m.is_pending,
	COALESCE(m.pending_user_id, 0), COALESCE(m.requester_id, 0), m.approved_at,
	CASE WHEN m.user_a_id = $1 THEN m.user_b_id ELSE m.user_a_id END AS target_user_id,
	COALESCE(p.display_name, ''),
	COALESCE(DATE_PART('year', AGE(NOW(), p.birthdate::timestamp))::int, 0),
	COALESCE(last.content, ''),
	last.created_at,
	(SELECT COUNT(*) FROM messages u WHERE u.match_id = m.id AND u.sender_id <> $1 AND NOT u.is_read)::int
FROM matches m
LEFT JOIN profiles p ON p.user_id = CASE WHEN m.user_a_id = $1 THEN m.user_b_id ELSE m.user_a_id END
LEFT JOIN LATERAL (
	SELECT content, created_at
	FROM messages
	WHERE match_id = m.id
	ORDER BY created_at DESC, id DESC
	LIMIT 1
) last ON TRUE
WHERE m.user_a_id = $1 OR m.user_b_id = $1
ORDER BY COALESCE(last.created_at, m.created_at) DESC, m.id DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	items := make([]MatchListRecord, 0, limit)
	for rows.Next() {
		var item MatchListRecord
		if err := rows.Scan(
			&item.Match.ID,
			&item.Match.UserAID,
			&item.Match.UserBID,
			&item.Match.CreatedAt,
			&item.Match.IsPending,
			&item.Match.PendingUserID,
			&item.Match.RequesterID,
			&item.Match.ApprovedAt,
			&item.TargetUserID,
			&item.DisplayName,
			&item.Age,
			&item.LastMessage,
			&item.LastMessageAt,
			&item.UnreadMessages,
		); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		items = append(items, item)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate matches: %w", rows.Err())
	}

	return items, nil
}
