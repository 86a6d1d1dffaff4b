package model

import "time"

type Interaction struct {
	ActorID   int64     `json:"actor_id"`
	TargetID  int64     `json:"target_id"`
	IsSkipped bool      `json:"is_skipped"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CandidateLease struct {
	UserID      int64     `json:"user_id"`
	CandidateID int64     `json:"candidate_id"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

func (l CandidateLease) Active(now time.Time) bool {
	return l.CandidateID > 0 && now.Before(l.ExpiresAt)
}
