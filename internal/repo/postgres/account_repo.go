package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ivankudzin/amour/internal/domain/apperrors"
	"github.com/ivankudzin/amour/internal/domain/enums"
	"github.com/ivankudzin/amour/internal/domain/model"
)

var ErrAccountNotFound = fmt.Errorf("account: %w", apperrors.ErrNotFound)

type AccountRepo struct {
	db *DB
}

func NewAccountRepo(db *DB) *AccountRepo {
	return &AccountRepo{db: db}
}

func (r *AccountRepo) Get(ctx context.Context, userID int64) (model.Account, error) {
	if userID <= 0 {
		return model.Account{}, fmt.Errorf("invalid user id")
	}
	q, err := r.db.runner(nil)
	if err != nil {
		return model.Account{}, err
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var (
		acc         model.Account
		tier        string
		preference  *string
		preferences []string
	)
	err = q.QueryRow(ctx, `
SELECT id, telegram_id, tier, tier_expires_at, preference, preferences, coin_balance, matches_seen_at, created_at
FROM accounts
WHERE id = $1
`, userID).Scan(
		&acc.ID,
		&acc.TelegramID,
		&tier,
		&acc.TierExpiresAt,
		&preference,
		&preferences,
		&acc.CoinBalance,
		&acc.MatchesSeenAt,
		&acc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, ErrAccountNotFound
		}
		return model.Account{}, fmt.Errorf("get account: %w", err)
	}

	acc.Tier = enums.ParseTier(tier)
	if preference != nil {
		if sex, ok := enums.ParseSex(*preference); ok {
			acc.Preference = sex
		}
	}
	// An unparseable set stays empty, which resolves to "no filter".
	acc.Preferences, _ = enums.ParseSexSet(preferences)

	return acc, nil
}

// EnsureByTelegramID returns the account id bound to a Telegram user, creating it on first login.
func (r *AccountRepo) EnsureByTelegramID(ctx context.Context, telegramID int64) (int64, error) {
	if telegramID <= 0 {
		return 0, fmt.Errorf("invalid telegram_id")
	}
	q, err := r.db.runner(nil)
	if err != nil {
		return 0, err
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var id int64
	if err := q.QueryRow(ctx, `
INSERT INTO accounts (telegram_id, created_at)
VALUES ($1, NOW())
ON CONFLICT (telegram_id) DO UPDATE SET telegram_id = EXCLUDED.telegram_id
RETURNING id
`, telegramID).Scan(&id); err != nil {
		return 0, fmt.Errorf("ensure account by telegram_id: %w", err)
	}
	return id, nil
}

func (r *AccountRepo) TouchMatchesSeen(ctx context.Context, userID int64, at time.Time) error {
	if userID <= 0 {
		return fmt.Errorf("invalid user id")
	}
	q, err := r.db.runner(nil)
	if err != nil {
		return err
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := q.Exec(ctx, `
UPDATE accounts
SET matches_seen_at = GREATEST(COALESCE(matches_seen_at, $2), $2)
WHERE id = $1
`, userID, at.UTC())
	if err != nil {
		return fmt.Errorf("touch matches seen: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}
