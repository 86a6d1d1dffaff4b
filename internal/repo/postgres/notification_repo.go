package postgres

import (
	"context"
	"fmt"

	"github.com/ivankudzin/amour/internal/domain/model"
)

type NotificationRepo struct {
	db *DB
}

func NewNotificationRepo(db *DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

// Summary counts unread incoming messages across the user's matches and matches created
// after the user's watermark. Requests the user sent and that are still pending are not
// news to them and are left out.
func (r *NotificationRepo) Summary(ctx context.Context, userID int64) (model.NotificationSummary, error) {
	if userID <= 0 {
		return model.NotificationSummary{}, fmt.Errorf("invalid user id")
	}
	q, err := r.db.runner(nil)
	if err != nil {
		return model.NotificationSummary{}, err
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var s model.NotificationSummary
	if err := q.QueryRow(ctx, `
SELECT
	(
		SELECT COUNT(*)::int
		FROM messages msg
		JOIN matches m ON m.id = msg.match_id
		WHERE (m.user_a_id = $1 OR m.user_b_id = $1)
			AND msg.sender_id <> $1
			AND NOT msg.is_read
	),
	(
		SELECT COUNT(*)::int
		FROM matches m
		WHERE (m.user_a_id = $1 OR m.user_b_id = $1)
			AND m.created_at > COALESCE((SELECT matches_seen_at FROM accounts WHERE id = $1), 'epoch'::timestamptz)
			AND NOT (m.is_pending AND m.requester_id = $1)
	)
`, userID).Scan(&s.UnreadMessages, &s.NewMatches); err != nil {
		return model.NotificationSummary{}, fmt.Errorf("load notification summary: %w", err)
	}
	return s, nil
}
