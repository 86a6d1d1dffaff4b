package candidates

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ivankudzin/amour/internal/domain/apperrors"
	"github.com/ivankudzin/amour/internal/domain/model"
	"github.com/ivankudzin/amour/internal/domain/rules"
	pgrepo "github.com/ivankudzin/amour/internal/repo/postgres"
	"github.com/ivankudzin/amour/internal/services/events"
)

const DefaultLeaseTTL = 12 * time.Hour

var (
	ErrValidation   = fmt.Errorf("candidate request: %w", apperrors.ErrValidation)
	ErrNoCandidates = fmt.Errorf("no candidates available: %w", apperrors.ErrNotFound)
)

type AccountStore interface {
	Get(ctx context.Context, userID int64) (model.Account, error)
}

type ProfileStore interface {
	Get(ctx context.Context, userID int64) (model.Profile, error)
	PickEligible(ctx context.Context, viewerID int64, sexes []string) (int64, error)
	IsEligible(ctx context.Context, viewerID, candidateID int64) (bool, error)
}

type LeaseStore interface {
	Get(ctx context.Context, userID int64) (model.CandidateLease, bool, error)
	Claim(ctx context.Context, lease model.CandidateLease, now time.Time) (model.CandidateLease, error)
	Delete(ctx context.Context, userID int64) error
	DeleteIfCandidate(ctx context.Context, userID, candidateID int64) error
}

type PhotoSigner interface {
	Sign(ctx context.Context, key string) (string, error)
}

type Recorder interface {
	CandidateAssigned(result string)
}

type Dependencies struct {
	Accounts AccountStore
	Profiles ProfileStore
	Leases   LeaseStore
	Photos   PhotoSigner
	Recorder Recorder
	Logger   *zap.Logger
}

type Config struct {
	LeaseTTL time.Duration
}

// Candidate is the profile currently leased to the viewer.
type Candidate struct {
	Profile        model.Profile
	LeaseExpiresAt time.Time
}

type Service struct {
	accounts AccountStore
	profiles ProfileStore
	leases   LeaseStore
	photos   PhotoSigner
	recorder Recorder
	log      *zap.Logger
	leaseTTL time.Duration
	group    singleflight.Group
	now      func() time.Time
}

func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = DefaultLeaseTTL
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		accounts: deps.Accounts,
		profiles: deps.Profiles,
		leases:   deps.Leases,
		photos:   deps.Photos,
		recorder: deps.Recorder,
		log:      log,
		leaseTTL: cfg.LeaseTTL,
		now:      time.Now,
	}
}

// Subscribe drops the actor's lease whenever they act on someone.
func (s *Service) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.KindUserInteracted, func(ctx context.Context, e events.Event) error {
		ev, ok := e.(events.UserInteracted)
		if !ok {
			return nil
		}
		return s.ReleaseLease(ctx, ev.UserID)
	})
}

// GetCandidate returns the viewer's leased candidate, assigning a new one when the lease is
// missing, expired or points at someone no longer eligible. Concurrent calls for the same
// viewer share one computation.
func (s *Service) GetCandidate(ctx context.Context, userID int64) (Candidate, error) {
	if userID <= 0 {
		return Candidate{}, ErrValidation
	}
	if s.accounts == nil || s.profiles == nil || s.leases == nil {
		return Candidate{}, fmt.Errorf("candidate dependencies are not configured")
	}

	v, err, _ := s.group.Do(strconv.FormatInt(userID, 10), func() (interface{}, error) {
		return s.assign(ctx, userID)
	})
	if err != nil {
		return Candidate{}, err
	}
	return v.(Candidate), nil
}

func (s *Service) ReleaseLease(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return ErrValidation
	}
	if err := s.leases.Delete(ctx, userID); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	s.group.Forget(strconv.FormatInt(userID, 10))
	return nil
}

// assign makes at most two passes: a stale lease found on the first pass is removed and
// the second pass computes a fresh one.
func (s *Service) assign(ctx context.Context, userID int64) (Candidate, error) {
	for pass := 0; pass < 2; pass++ {
		now := s.now().UTC()

		lease, ok, err := s.leases.Get(ctx, userID)
		if err != nil {
			return Candidate{}, err
		}
		if ok && lease.Active(now) {
			candidate, found, err := s.loadLeased(ctx, lease, true)
			if err != nil {
				return Candidate{}, err
			}
			if found {
				s.record("hit")
				return candidate, nil
			}
			continue
		}

		pickedID, err := s.pick(ctx, userID, now)
		if err != nil {
			if errors.Is(err, ErrNoCandidates) {
				s.record("empty")
			}
			return Candidate{}, err
		}

		claimed, err := s.leases.Claim(ctx, model.CandidateLease{
			UserID:      userID,
			CandidateID: pickedID,
			ExpiresAt:   now.Add(s.leaseTTL),
			CreatedAt:   now,
		}, now)
		if err != nil {
			return Candidate{}, err
		}

		candidate, found, err := s.loadLeased(ctx, claimed, claimed.CandidateID != pickedID)
		if err != nil {
			return Candidate{}, err
		}
		if found {
			s.record("assigned")
			return candidate, nil
		}
	}

	s.record("empty")
	return Candidate{}, ErrNoCandidates
}

func (s *Service) pick(ctx context.Context, userID int64, now time.Time) (int64, error) {
	account, err := s.accounts.Get(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("load viewer account: %w", err)
	}

	var sexes []string
	if filter, active := rules.OrientationFilter(account, now); active {
		sexes = filter.Values()
	}

	candidateID, err := s.profiles.PickEligible(ctx, userID, sexes)
	if err != nil {
		if errors.Is(err, pgrepo.ErrNoEligible) {
			return 0, ErrNoCandidates
		}
		return 0, fmt.Errorf("pick candidate: %w", err)
	}
	return candidateID, nil
}

// loadLeased fetches the leased profile. found=false means the lease was stale and has
// been deleted; recheck controls whether exclusion rules are evaluated again.
func (s *Service) loadLeased(ctx context.Context, lease model.CandidateLease, recheck bool) (Candidate, bool, error) {
	if recheck {
		eligible, err := s.profiles.IsEligible(ctx, lease.UserID, lease.CandidateID)
		if err != nil {
			return Candidate{}, false, fmt.Errorf("recheck leased candidate: %w", err)
		}
		if !eligible {
			return Candidate{}, false, s.dropStale(ctx, lease)
		}
	}

	profile, err := s.profiles.Get(ctx, lease.CandidateID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrProfileNotFound) {
			return Candidate{}, false, s.dropStale(ctx, lease)
		}
		return Candidate{}, false, fmt.Errorf("load leased candidate: %w", err)
	}

	profile.Photos = s.signPhotos(ctx, profile.Photos)
	return Candidate{Profile: profile, LeaseExpiresAt: lease.ExpiresAt}, true, nil
}

func (s *Service) dropStale(ctx context.Context, lease model.CandidateLease) error {
	if err := s.leases.DeleteIfCandidate(ctx, lease.UserID, lease.CandidateID); err != nil {
		return fmt.Errorf("drop stale lease: %w", err)
	}
	return nil
}

func (s *Service) signPhotos(ctx context.Context, photos []model.Photo) []model.Photo {
	if s.photos == nil {
		return photos
	}
	out := make([]model.Photo, 0, len(photos))
	for _, photo := range photos {
		url, err := s.photos.Sign(ctx, photo.ObjectKey)
		if err != nil {
			s.log.Debug("sign candidate photo", zap.String("key", photo.ObjectKey), zap.Error(err))
			continue
		}
		photo.URL = url
		out = append(out, photo)
	}
	return out
}

func (s *Service) record(result string) {
	if s.recorder != nil {
		s.recorder.CandidateAssigned(result)
	}
}
