// Package memory is an in-process stand-in for the Postgres repositories. It enforces the
// same uniqueness rules as the schema (one interaction per ordered pair, one match per
// unordered pair, one open report per pair, one lease per user, read flags only flip once)
// and is what the service, gateway and handler tests run against.
package memory

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ivankudzin/amour/internal/domain/enums"
	"github.com/ivankudzin/amour/internal/domain/model"
)

type pair struct {
	a, b int64
}

type report struct {
	id       int64
	reporter int64
	target   int64
	reason   string
	status   enums.ReportStatus
}

type Store struct {
	// txMu serializes WithTx callbacks, which stands in for the row locks the SQL takes.
	txMu sync.Mutex
	mu   sync.Mutex

	accounts     map[int64]model.Account
	profiles     map[int64]model.Profile
	interactions map[pair]model.Interaction
	leases       map[int64]model.CandidateLease
	matches      map[int64]model.Match
	matchByPair  map[pair]int64
	messages     []model.Message
	reports      []report

	nextAccountID int64
	nextMatchID   int64
	nextMessageID int64
	nextReportID  int64

	// Now stamps created rows; Pick chooses the random candidate index.
	Now  func() time.Time
	Pick func(n int) int
}

func New() *Store {
	return &Store{
		accounts:      make(map[int64]model.Account),
		profiles:      make(map[int64]model.Profile),
		interactions:  make(map[pair]model.Interaction),
		leases:        make(map[int64]model.CandidateLease),
		matches:       make(map[int64]model.Match),
		matchByPair:   make(map[pair]int64),
		nextAccountID: 1000,
		Now:           time.Now,
		Pick:          rand.IntN,
	}
}

// AddUser seeds an account and, when profile is non-nil, its profile.
func (s *Store) AddUser(account model.Account, profile *model.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if account.CreatedAt.IsZero() {
		account.CreatedAt = s.Now().UTC()
	}
	s.accounts[account.ID] = account
	if profile != nil {
		p := *profile
		p.UserID = account.ID
		s.profiles[account.ID] = p
	}
}

func (s *Store) RemoveProfile(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, userID)
}

// WithTx runs fn with a nil transaction under the store-wide transaction lock.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(ctx, nil)
}

func (s *Store) Accounts() *AccountRepo           { return &AccountRepo{s: s} }
func (s *Store) Profiles() *ProfileRepo           { return &ProfileRepo{s: s} }
func (s *Store) Leases() *LeaseRepo               { return &LeaseRepo{s: s} }
func (s *Store) Interactions() *InteractionRepo   { return &InteractionRepo{s: s} }
func (s *Store) Reports() *ReportRepo             { return &ReportRepo{s: s} }
func (s *Store) Matches() *MatchRepo              { return &MatchRepo{s: s} }
func (s *Store) Messages() *MessageRepo           { return &MessageRepo{s: s} }
func (s *Store) Notifications() *NotificationRepo { return &NotificationRepo{s: s} }

// Message returns a copy of the stored message.
func (s *Store) Message(id int64) (model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id {
			return m, true
		}
	}
	return model.Message{}, false
}

func (s *Store) Interaction(actorID, targetID int64) (model.Interaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.interactions[pair{actorID, targetID}]
	return in, ok
}

func (s *Store) MatchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.matches)
}

func (s *Store) ResolveReports(reporterID, targetID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.reports {
		if s.reports[i].reporter == reporterID && s.reports[i].target == targetID {
			s.reports[i].status = enums.ReportStatusResolved
		}
	}
}

func (s *Store) matchPair(a, b int64) pair {
	x, y := model.OrderedPair(a, b)
	return pair{x, y}
}

func sortIDs(ids []int64) []int64 {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

