package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"github.com/ivankudzin/amour/internal/domain/model"
)

type MessageRepo struct {
	db *DB
}

func NewMessageRepo(db *DB) *MessageRepo {
	return &MessageRepo{db: db}
}

func (r *MessageRepo) Create(ctx context.Context, tx pgx.Tx, msg model.Message) (model.Message, error) {
	if msg.MatchID <= 0 || msg.SenderID <= 0 {
		return model.Message{}, fmt.Errorf("invalid message payload")
	}
	if tx == nil {
		return model.Message{}, fmt.Errorf("transaction is required")
	}

	if err := tx.QueryRow(ctx, `
INSERT INTO messages (match_id, sender_id, content, media_ref, is_read, created_at)
VALUES ($1, $2, $3, $4, FALSE, $5)
RETURNING id, created_at
`, msg.MatchID, msg.SenderID, msg.Content, msg.MediaRef, msg.CreatedAt.UTC()).Scan(&msg.ID, &msg.CreatedAt); err != nil {
		return model.Message{}, fmt.Errorf("create message: %w", err)
	}
	msg.IsRead = false
	return msg, nil
}

func (r *MessageRepo) CountBySender(ctx context.Context, tx pgx.Tx, matchID, senderID int64) (int, error) {
	if tx == nil {
		return 0, fmt.Errorf("transaction is required")
	}
	var n int
	if err := tx.QueryRow(ctx, `
SELECT COUNT(*)::int FROM messages WHERE match_id = $1 AND sender_id = $2
`, matchID, senderID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sender messages: %w", err)
	}
	return n, nil
}

// MarkRead flips every unread message in the match not sent by readerID and returns the
// flipped ids in ascending order. Concurrent callers never receive the same id twice
// because the row update re-checks is_read after acquiring the row lock.
func (r *MessageRepo) MarkRead(ctx context.Context, matchID, readerID int64) ([]int64, error) {
	return r.markRead(ctx, `
UPDATE messages
SET is_read = TRUE
WHERE match_id = $1 AND sender_id <> $2 AND NOT is_read
RETURNING id
`, matchID, readerID)
}

// MarkReadIDs is MarkRead restricted to ids.
func (r *MessageRepo) MarkReadIDs(ctx context.Context, matchID, readerID int64, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return []int64{}, nil
	}
	return r.markRead(ctx, `
UPDATE messages
SET is_read = TRUE
WHERE match_id = $1 AND sender_id <> $2 AND NOT is_read AND id = ANY($3)
RETURNING id
`, matchID, readerID, ids)
}

func (r *MessageRepo) markRead(ctx context.Context, sql string, args ...any) ([]int64, error) {
	q, err := r.db.runner(nil)
	if err != nil {
		return nil, err
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("mark messages read: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("collect read message ids: %w", err)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// PageNewestFirst returns one window of the conversation ordered newest first.
func (r *MessageRepo) PageNewestFirst(ctx context.Context, matchID int64, limit, offset int) ([]model.Message, error) {
	if matchID <= 0 || limit <= 0 || offset < 0 {
		return nil, fmt.Errorf("invalid message page payload")
	}
	q, err := r.db.runner(nil)
	if err != nil {
		return nil, err
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	items := make([]model.Message, 0, limit)
	if err := pgxscan.Select(ctx, q, &items, `
SELECT id, match_id, sender_id, content, media_ref, is_read, created_at
FROM messages
WHERE match_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3
`, matchID, limit, offset); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return items, nil
}

func (r *MessageRepo) CountForMatch(ctx context.Context, matchID int64) (int, error) {
	q, err := r.db.runner(nil)
	if err != nil {
		return 0, err
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var n int
	if err := q.QueryRow(ctx, `SELECT COUNT(*)::int FROM messages WHERE match_id = $1`, matchID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}
