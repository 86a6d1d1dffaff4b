package dto

import "time"

type CandidatePhoto struct {
	URL      string `json:"url"`
	Position int    `json:"position"`
}

type CandidateResponse struct {
	UserID         int64            `json:"user_id"`
	DisplayName    string           `json:"display_name"`
	Age            int              `json:"age"`
	Sex            string           `json:"sex"`
	Bio            string           `json:"bio,omitempty"`
	Photos         []CandidatePhoto `json:"photos"`
	LeaseExpiresAt time.Time        `json:"lease_expires_at"`
}
