package dto

import "time"

type ConversationResponse struct {
	MatchID   int64 `json:"match_id"`
	IsPending bool  `json:"is_pending"`
	Created   bool  `json:"created"`
}

type MatchResponse struct {
	ID            int64      `json:"id"`
	UserAID       int64      `json:"user_a_id"`
	UserBID       int64      `json:"user_b_id"`
	IsPending     bool       `json:"is_pending"`
	PendingUserID int64      `json:"pending_user_id,omitempty"`
	RequesterID   int64      `json:"requester_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
}
