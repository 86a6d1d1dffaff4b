package model

import "time"

// Match links two users with UserAID < UserBID. A pending match is a conversation
// request waiting on PendingUserID.
type Match struct {
	ID            int64      `json:"id"`
	UserAID       int64      `json:"user_a_id"`
	UserBID       int64      `json:"user_b_id"`
	CreatedAt     time.Time  `json:"created_at"`
	IsPending     bool       `json:"is_pending"`
	PendingUserID int64      `json:"pending_user_id,omitempty"`
	RequesterID   int64      `json:"requester_id,omitempty"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
}

func (m Match) HasParticipant(userID int64) bool {
	return userID > 0 && (m.UserAID == userID || m.UserBID == userID)
}

// Other returns the counterpart of userID, or 0 when userID is not a participant.
func (m Match) Other(userID int64) int64 {
	switch userID {
	case m.UserAID:
		return m.UserBID
	case m.UserBID:
		return m.UserAID
	default:
		return 0
	}
}

func (m Match) AwaitingApprovalFrom(userID int64) bool {
	return m.IsPending && m.PendingUserID == userID
}

// OrderedPair returns the ids in storage order.
func OrderedPair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}
