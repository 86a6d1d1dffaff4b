package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ivankudzin/amour/internal/domain/enums"
	"github.com/ivankudzin/amour/internal/domain/model"
	pgrepo "github.com/ivankudzin/amour/internal/repo/postgres"
)

type AccountRepo struct{ s *Store }

func (r *AccountRepo) Get(_ context.Context, userID int64) (model.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[userID]
	if !ok {
		return model.Account{}, pgrepo.ErrAccountNotFound
	}
	return a, nil
}

func (r *AccountRepo) EnsureByTelegramID(_ context.Context, telegramID int64) (int64, error) {
	if telegramID <= 0 {
		return 0, fmt.Errorf("invalid telegram_id")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, a := range r.s.accounts {
		if a.TelegramID == telegramID {
			return id, nil
		}
	}
	r.s.nextAccountID++
	id := r.s.nextAccountID
	r.s.accounts[id] = model.Account{ID: id, TelegramID: telegramID, Tier: enums.TierStandard, CreatedAt: r.s.Now().UTC()}
	return id, nil
}

func (r *AccountRepo) TouchMatchesSeen(_ context.Context, userID int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[userID]
	if !ok {
		return pgrepo.ErrAccountNotFound
	}
	if a.MatchesSeenAt == nil || a.MatchesSeenAt.Before(at) {
		t := at.UTC()
		a.MatchesSeenAt = &t
	}
	r.s.accounts[userID] = a
	return nil
}

type ProfileRepo struct{ s *Store }

func (r *ProfileRepo) Get(_ context.Context, userID int64) (model.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.profiles[userID]
	if !ok {
		return model.Profile{}, pgrepo.ErrProfileNotFound
	}
	p.Photos = append([]model.Photo(nil), p.Photos...)
	return p, nil
}

func (r *ProfileRepo) PickEligible(_ context.Context, viewerID int64, sexes []string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	allowed := map[string]bool{}
	for _, sex := range sexes {
		allowed[sex] = true
	}

	ids := make([]int64, 0)
	for id, p := range r.s.profiles {
		if !r.s.eligibleLocked(viewerID, p) {
			continue
		}
		if sexes != nil && !allowed[string(p.Sex)] {
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return 0, pgrepo.ErrNoEligible
	}
	sortIDs(ids)
	return ids[r.s.Pick(len(ids))], nil
}

func (r *ProfileRepo) IsEligible(_ context.Context, viewerID, candidateID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.profiles[candidateID]
	if !ok {
		return false, nil
	}
	return r.s.eligibleLocked(viewerID, p), nil
}

func (s *Store) eligibleLocked(viewerID int64, p model.Profile) bool {
	if p.UserID == viewerID || p.DisplayName == "" || p.Age <= 0 || p.Sex == "" || len(p.Photos) == 0 {
		return false
	}
	if _, judged := s.interactions[pair{viewerID, p.UserID}]; judged {
		return false
	}
	if _, matched := s.matchByPair[s.matchPair(viewerID, p.UserID)]; matched {
		return false
	}
	return true
}

type LeaseRepo struct{ s *Store }

func (r *LeaseRepo) Get(_ context.Context, userID int64) (model.CandidateLease, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.leases[userID]
	return l, ok, nil
}

func (r *LeaseRepo) Claim(_ context.Context, lease model.CandidateLease, now time.Time) (model.CandidateLease, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing, ok := r.s.leases[lease.UserID]; ok && existing.ExpiresAt.After(now) {
		return existing, nil
	}
	r.s.leases[lease.UserID] = lease
	return lease, nil
}

func (r *LeaseRepo) Delete(_ context.Context, userID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.leases, userID)
	return nil
}

func (r *LeaseRepo) DeleteIfCandidate(_ context.Context, userID, candidateID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if l, ok := r.s.leases[userID]; ok && l.CandidateID == candidateID {
		delete(r.s.leases, userID)
	}
	return nil
}

func (r *LeaseRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, l := range r.s.leases {
		if l.ExpiresAt.Before(before) {
			delete(r.s.leases, id)
			n++
		}
	}
	return n, nil
}

type InteractionRepo struct{ s *Store }

func (r *InteractionRepo) Upsert(_ context.Context, _ pgx.Tx, actorID, targetID int64, skipped bool, at time.Time) error {
	if actorID <= 0 || targetID <= 0 || actorID == targetID {
		return fmt.Errorf("invalid interaction payload")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := pair{actorID, targetID}
	in, ok := r.s.interactions[key]
	if !ok {
		in = model.Interaction{ActorID: actorID, TargetID: targetID, CreatedAt: at}
	}
	in.IsSkipped = skipped
	in.UpdatedAt = at
	r.s.interactions[key] = in
	return nil
}

func (r *InteractionRepo) HasLiked(_ context.Context, _ pgx.Tx, fromID, toID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	in, ok := r.s.interactions[pair{fromID, toID}]
	return ok && !in.IsSkipped, nil
}

type ReportRepo struct{ s *Store }

func (r *ReportRepo) CreateOpen(_ context.Context, _ pgx.Tx, reporterID, targetID int64, reason, _ string, _ time.Time) (int64, error) {
	if reporterID <= 0 || targetID <= 0 || reporterID == targetID || reason == "" {
		return 0, fmt.Errorf("invalid report payload")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rep := range r.s.reports {
		if rep.reporter == reporterID && rep.target == targetID && rep.status == enums.ReportStatusOpen {
			return 0, pgrepo.ErrReportExists
		}
	}
	r.s.nextReportID++
	r.s.reports = append(r.s.reports, report{
		id:       r.s.nextReportID,
		reporter: reporterID,
		target:   targetID,
		reason:   reason,
		status:   enums.ReportStatusOpen,
	})
	return r.s.nextReportID, nil
}

type MatchRepo struct{ s *Store }

func (r *MatchRepo) Get(_ context.Context, matchID int64) (model.Match, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.matches[matchID]
	if !ok {
		return model.Match{}, pgrepo.ErrMatchNotFound
	}
	return m, nil
}

func (r *MatchRepo) GetForUpdate(ctx context.Context, _ pgx.Tx, matchID int64) (model.Match, error) {
	return r.Get(ctx, matchID)
}

func (r *MatchRepo) GetByUsers(_ context.Context, _ pgx.Tx, userID, targetID int64) (model.Match, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.matchByPair[r.s.matchPair(userID, targetID)]
	if !ok {
		return model.Match{}, false, nil
	}
	return r.s.matches[id], true, nil
}

func (r *MatchRepo) CreateOrGet(_ context.Context, _ pgx.Tx, in pgrepo.NewMatch) (model.Match, bool, error) {
	if in.UserID <= 0 || in.TargetID <= 0 || in.UserID == in.TargetID {
		return model.Match{}, false, fmt.Errorf("invalid match payload")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := r.s.matchPair(in.UserID, in.TargetID)
	if id, ok := r.s.matchByPair[key]; ok {
		return r.s.matches[id], false, nil
	}

	r.s.nextMatchID++
	at := in.At.UTC()
	m := model.Match{
		ID:            r.s.nextMatchID,
		UserAID:       key.a,
		UserBID:       key.b,
		CreatedAt:     at,
		IsPending:     in.PendingUserID > 0,
		PendingUserID: in.PendingUserID,
		RequesterID:   in.RequesterID,
	}
	if !m.IsPending {
		m.ApprovedAt = &at
	}
	r.s.matches[m.ID] = m
	r.s.matchByPair[key] = m.ID
	return m, true, nil
}

func (r *MatchRepo) Activate(_ context.Context, _ pgx.Tx, matchID int64, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.matches[matchID]
	if !ok || !m.IsPending {
		return false, nil
	}
	t := at.UTC()
	m.IsPending = false
	m.PendingUserID = 0
	m.ApprovedAt = &t
	r.s.matches[matchID] = m
	return true, nil
}

func (r *MatchRepo) Delete(_ context.Context, _ pgx.Tx, matchID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.matches[matchID]
	if !ok {
		return false, nil
	}
	delete(r.s.matches, matchID)
	delete(r.s.matchByPair, r.s.matchPair(m.UserAID, m.UserBID))

	kept := r.s.messages[:0]
	for _, msg := range r.s.messages {
		if msg.MatchID != matchID {
			kept = append(kept, msg)
		}
	}
	r.s.messages = kept
	return true, nil
}

func (r *MatchRepo) ListForUser(_ context.Context, userID int64, limit int) ([]pgrepo.MatchListRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}

	items := make([]pgrepo.MatchListRecord, 0)
	for _, m := range r.s.matches {
		if !m.HasParticipant(userID) {
			continue
		}
		other := m.Other(userID)
		item := pgrepo.MatchListRecord{Match: m, TargetUserID: other}
		if p, ok := r.s.profiles[other]; ok {
			item.DisplayName = p.DisplayName
			item.Age = p.Age
		}
		for _, msg := range r.s.messages {
			if msg.MatchID != m.ID {
				continue
			}
			at := msg.CreatedAt
			item.LastMessage = msg.Content
			item.LastMessageAt = &at
			if msg.SenderID != userID && !msg.IsRead {
				item.UnreadMessages++
			}
		}
		items = append(items, item)
	}

	activity := func(it pgrepo.MatchListRecord) time.Time {
		if it.LastMessageAt != nil {
			return *it.LastMessageAt
		}
		return it.Match.CreatedAt
	}
	sort.Slice(items, func(i, j int) bool {
		ai, aj := activity(items[i]), activity(items[j])
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return items[i].Match.ID > items[j].Match.ID
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

type MessageRepo struct{ s *Store }

func (r *MessageRepo) Create(_ context.Context, _ pgx.Tx, msg model.Message) (model.Message, error) {
	if msg.MatchID <= 0 || msg.SenderID <= 0 {
		return model.Message{}, fmt.Errorf("invalid message payload")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.matches[msg.MatchID]; !ok {
		return model.Message{}, fmt.Errorf("create message: match %d does not exist", msg.MatchID)
	}
	r.s.nextMessageID++
	msg.ID = r.s.nextMessageID
	msg.IsRead = false
	msg.CreatedAt = msg.CreatedAt.UTC()
	r.s.messages = append(r.s.messages, msg)
	return msg, nil
}

func (r *MessageRepo) CountBySender(_ context.Context, _ pgx.Tx, matchID, senderID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, msg := range r.s.messages {
		if msg.MatchID == matchID && msg.SenderID == senderID {
			n++
		}
	}
	return n, nil
}

func (r *MessageRepo) MarkRead(_ context.Context, matchID, readerID int64) ([]int64, error) {
	return r.markRead(matchID, readerID, nil), nil
}

func (r *MessageRepo) MarkReadIDs(_ context.Context, matchID, readerID int64, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return []int64{}, nil
	}
	only := make(map[int64]bool, len(ids))
	for _, id := range ids {
		only[id] = true
	}
	return r.markRead(matchID, readerID, only), nil
}

func (r *MessageRepo) markRead(matchID, readerID int64, only map[int64]bool) []int64 {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	flipped := make([]int64, 0)
	for i := range r.s.messages {
		msg := &r.s.messages[i]
		if msg.MatchID != matchID || msg.SenderID == readerID || msg.IsRead {
			continue
		}
		if only != nil && !only[msg.ID] {
			continue
		}
		msg.IsRead = true
		flipped = append(flipped, msg.ID)
	}
	return sortIDs(flipped)
}

func (r *MessageRepo) PageNewestFirst(_ context.Context, matchID int64, limit, offset int) ([]model.Message, error) {
	if matchID <= 0 || limit <= 0 || offset < 0 {
		return nil, fmt.Errorf("invalid message page payload")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	all := make([]model.Message, 0)
	for _, msg := range r.s.messages {
		if msg.MatchID == matchID {
			all = append(all, msg)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	if offset >= len(all) {
		return []model.Message{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return append([]model.Message(nil), all[offset:end]...), nil
}

func (r *MessageRepo) CountForMatch(_ context.Context, matchID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, msg := range r.s.messages {
		if msg.MatchID == matchID {
			n++
		}
	}
	return n, nil
}

type NotificationRepo struct{ s *Store }

func (r *NotificationRepo) Summary(_ context.Context, userID int64) (model.NotificationSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out model.NotificationSummary
	seen := time.Unix(0, 0)
	if a, ok := r.s.accounts[userID]; ok && a.MatchesSeenAt != nil {
		seen = *a.MatchesSeenAt
	}
	for _, m := range r.s.matches {
		if !m.HasParticipant(userID) {
			continue
		}
		if m.CreatedAt.After(seen) && !(m.IsPending && m.RequesterID == userID) {
			out.NewMatches++
		}
	}
	for _, msg := range r.s.messages {
		m, ok := r.s.matches[msg.MatchID]
		if !ok || !m.HasParticipant(userID) {
			continue
		}
		if msg.SenderID != userID && !msg.IsRead {
			out.UnreadMessages++
		}
	}
	return out, nil
}
