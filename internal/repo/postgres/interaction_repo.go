package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

type InteractionRepo struct {
	db *DB
}

func NewInteractionRepo(db *DB) *InteractionRepo {
	return &InteractionRepo{db: db}
}

// Upsert records a like (skipped=false) or skip (skipped=true). A repeated judgement flips
// the existing row instead of adding a second one.
func (r *InteractionRepo) Upsert(ctx context.Context, tx pgx.Tx, actorID, targetID int64, skipped bool, at time.Time) error {
	if actorID <= 0 || targetID <= 0 || actorID == targetID {
		return fmt.Errorf("invalid interaction payload")
	}
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO interactions (actor_id, target_id, is_skipped, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4)
ON CONFLICT (actor_id, target_id) DO UPDATE SET
	is_skipped = EXCLUDED.is_skipped,
	updated_at = EXCLUDED.updated_at
`, actorID, targetID, skipped, at.UTC()); err != nil {
		return fmt.Errorf("upsert interaction: %w", err)
	}
	return nil
}

// HasLiked reports whether fromID currently likes toID. tx may be nil.
func (r *InteractionRepo) HasLiked(ctx context.Context, tx pgx.Tx, fromID, toID int64) (bool, error) {
	if fromID <= 0 || toID <= 0 {
		return false, fmt.Errorf("invalid like lookup payload")
	}
	q, err := r.db.runner(tx)
	if err != nil {
		return false, err
	}
	if tx == nil {
		var cancel context.CancelFunc
		ctx, cancel = r.db.withTimeout(ctx)
		defer cancel()
	}

	var one int
	err = q.QueryRow(ctx, `
SELECT 1
FROM interactions
WHERE actor_id = $1 AND target_id = $2 AND NOT is_skipped
`, fromID, toID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("lookup like: %w", err)
	}
	return true, nil
}
