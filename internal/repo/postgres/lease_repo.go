package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ivankudzin/amour/internal/domain/model"
)

type LeaseRepo struct {
	db *DB
}

func NewLeaseRepo(db *DB) *LeaseRepo {
	return &LeaseRepo{db: db}
}

const leaseColumns = `user_id, candidate_id, expires_at, created_at`

func scanLease(row pgx.Row) (model.CandidateLease, error) {
	var lease model.CandidateLease
	err := row.Scan(&lease.UserID, &lease.CandidateID, &lease.ExpiresAt, &lease.CreatedAt)
	return lease, err
}

// Get returns ok=false when the user holds no lease row. Expiry is left to the caller.
func (r *LeaseRepo) Get(ctx context.Context, userID int64) (model.CandidateLease, bool, error) {
	if userID <= 0 {
		return model.CandidateLease{}, false, fmt.Errorf("invalid user id")
	}
	q, err := r.db.runner(nil)
	if err != nil {
		return model.CandidateLease{}, false, err
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	lease, err := scanLease(q.QueryRow(ctx, `SELECT `+leaseColumns+` FROM candidate_leases WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CandidateLease{}, false, nil
		}
		return model.CandidateLease{}, false, fmt.Errorf("get candidate lease: %w", err)
	}
	return lease, true, nil
}

// Claim stores lease unless another live lease already exists for the user, in which case
// the existing one wins and is returned. Concurrent claimers therefore converge on one candidate.
func (r *LeaseRepo) Claim(ctx context.Context, lease model.CandidateLease, now time.Time) (model.CandidateLease, error) {
	if lease.UserID <= 0 || lease.CandidateID <= 0 {
		return model.CandidateLease{}, fmt.Errorf("invalid lease payload")
	}
	q, err := r.db.runner(nil)
	if err != nil {
		return model.CandidateLease{}, err
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	stored, err := scanLease(q.QueryRow(ctx, `
INSERT INTO candidate_leases (user_id, candidate_id, expires_at, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO UPDATE SET
	candidate_id = EXCLUDED.candidate_id,
	expires_at = EXCLUDED.expires_at,
	created_at = EXCLUDED.created_at
WHERE candidate_leases.expires_at <= $4
RETURNING `+leaseColumns,
		lease.UserID, lease.CandidateID, lease.ExpiresAt.UTC(), now.UTC()))
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.CandidateLease{}, fmt.Errorf("claim candidate lease: %w", err)
	}

	existing, err := scanLease(q.QueryRow(ctx, `SELECT `+leaseColumns+` FROM candidate_leases WHERE user_id = $1`, lease.UserID))
	if err != nil {
		return model.CandidateLease{}, fmt.Errorf("load winning candidate lease: %w", err)
	}
	return existing, nil
}

func (r *LeaseRepo) Delete(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("invalid user id")
	}
	q, err := r.db.runner(nil)
	if err != nil {
		return err
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := q.Exec(ctx, `DELETE FROM candidate_leases WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete candidate lease: %w", err)
	}
	return nil
}

// DeleteIfCandidate removes the lease only while it still points at candidateID.
func (r *LeaseRepo) DeleteIfCandidate(ctx context.Context, userID, candidateID int64) error {
	if userID <= 0 || candidateID <= 0 {
		return fmt.Errorf("invalid lease delete payload")
	}
	q, err := r.db.runner(nil)
	if err != nil {
		return err
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := q.Exec(ctx, `
DELETE FROM candidate_leases
WHERE user_id = $1 AND candidate_id = $2
`, userID, candidateID); err != nil {
		return fmt.Errorf("delete stale candidate lease: %w", err)
	}
	return nil
}

func (r *LeaseRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	q, err := r.db.runner(nil)
	if err != nil {
		return 0, err
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := q.Exec(ctx, `DELETE FROM candidate_leases WHERE expires_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired candidate leases: %w", err)
	}
	return tag.RowsAffected(), nil
}
