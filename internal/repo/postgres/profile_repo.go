package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"github.com/ivankudzin/amour/internal/domain/apperrors"
	"github.com/ivankudzin/amour/internal/domain/enums"
	"github.com/ivankudzin/amour/internal/domain/model"
)

var (
	ErrProfileNotFound = fmt.Errorf("profile: %w", apperrors.ErrNotFound)
	ErrNoEligible      = errors.New("no eligible candidates")
)

// eligibleCandidate is shared by the random pick and the lease recheck.
// $1 is the viewer. A candidate must have the required fields, at least one photo,
// no interaction from the viewer and no match row with the viewer.
const eligibleCandidate = `
	p.user_id <> $1
	AND p.display_name <> ''
	AND p.birthdate IS NOT NULL
	AND p.sex IS NOT NULL
	AND EXISTS (SELECT 1 FROM profile_photos ph WHERE ph.user_id = p.user_id)
	AND NOT EXISTS (
		SELECT 1 FROM interactions i
		WHERE i.actor_id = $1 AND i.target_id = p.user_id
	)
	AND NOT EXISTS (
		SELECT 1 FROM matches m
		WHERE m.user_a_id = LEAST($1, p.user_id) AND m.user_b_id = GREATEST($1, p.user_id)
	)`

type ProfileRepo struct {
	db *DB
}

func NewProfileRepo(db *DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

func (r *ProfileRepo) Get(ctx context.Context, userID int64) (model.Profile, error) {
	if userID <= 0 {
		return model.Profile{}, fmt.Errorf("invalid user id")
	}
	q, err := r.db.runner(nil)
	if err != nil {
		return model.Profile{}, err
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var (
		profile model.Profile
		sex     string
	)
	err = q.QueryRow(ctx, `
SELECT
	user_id,
	display_name,
	COALESCE(DATE_PART('year', AGE(NOW(), birthdate::timestamp))::int, 0),
	COALESCE(sex, ''),
	bio,
	updated_at
FROM profiles
WHERE user_id = $1
`, userID).Scan(&profile.UserID, &profile.DisplayName, &profile.Age, &sex, &profile.Bio, &profile.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Profile{}, ErrProfileNotFound
		}
		return model.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	profile.Sex, _ = enums.ParseSex(sex)

	photos := make([]model.Photo, 0, 6)
	if err := pgxscan.Select(ctx, q, &photos, `
SELECT object_key, position
FROM profile_photos
WHERE user_id = $1
ORDER BY position, id
`, userID); err != nil {
		return model.Profile{}, fmt.Errorf("list profile photos: %w", err)
	}
	profile.Photos = photos

	return profile, nil
}

// PickEligible draws one candidate uniformly at random. sexes == nil disables the orientation filter.
func (r *ProfileRepo) PickEligible(ctx context.Context, viewerID int64, sexes []string) (int64, error) {
	if viewerID <= 0 {
		return 0, fmt.Errorf("invalid user id")
	}
	q, err := r.db.runner(nil)
	if err != nil {
		return 0, err
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var candidateID int64
	err = q.QueryRow(ctx, `
SELECT p.user_id
FROM profiles p
WHERE `+eligibleCandidate+`
	AND ($2::text[] IS NULL OR p.sex = ANY($2::text[]))
ORDER BY random()
LIMIT 1
`, viewerID, sexes).Scan(&candidateID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNoEligible
		}
		return 0, fmt.Errorf("pick eligible candidate: %w", err)
	}
	return candidateID, nil
}

// IsEligible rechecks a leased candidate against the current exclusion set.
func (r *ProfileRepo) IsEligible(ctx context.Context, viewerID, candidateID int64) (bool, error) {
	if viewerID <= 0 || candidateID <= 0 {
		return false, fmt.Errorf("invalid eligibility payload")
	}
	q, err := r.db.runner(nil)
	if err != nil {
		return false, err
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var ok bool
	if err := q.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1 FROM profiles p
	WHERE p.user_id = $2 AND `+eligibleCandidate+`
)
`, viewerID, candidateID).Scan(&ok); err != nil {
		return false, fmt.Errorf("check candidate eligibility: %w", err)
	}
	return ok, nil
}
