package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ivankudzin/amour/internal/domain/apperrors"
)

var ErrReportExists = fmt.Errorf("unresolved report already exists: %w", apperrors.ErrConflict)

type ReportRepo struct {
	db *DB
}

func NewReportRepo(db *DB) *ReportRepo {
	return &ReportRepo{db: db}
}

// CreateOpen inserts an open report. The partial unique index on open reports turns a
// duplicate into ErrReportExists without aborting the surrounding transaction.
func (r *ReportRepo) CreateOpen(ctx context.Context, tx pgx.Tx, reporterID, targetID int64, reason, details string, at time.Time) (int64, error) {
	if reporterID <= 0 || targetID <= 0 || reporterID == targetID {
		return 0, fmt.Errorf("invalid report payload")
	}
	if strings.TrimSpace(reason) == "" {
		return 0, fmt.Errorf("report reason is required")
	}
	if tx == nil {
		return 0, fmt.Errorf("transaction is required")
	}

	var id int64
	err := tx.QueryRow(ctx, `
INSERT INTO reports (reporter_id, target_id, reason, details, status, created_at)
VALUES ($1, $2, $3, $4, 'open', $5)
ON CONFLICT (reporter_id, target_id) WHERE status = 'open' DO NOTHING
RETURNING id
`, reporterID, targetID, reason, strings.TrimSpace(details), at.UTC()).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrReportExists
		}
		return 0, fmt.Errorf("create report: %w", err)
	}
	return id, nil
}
