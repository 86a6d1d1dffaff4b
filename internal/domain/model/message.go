package model

import "time"

type Message struct {
	ID        int64     `json:"id" db:"id"`
	MatchID   int64     `json:"match_id" db:"match_id"`
	SenderID  int64     `json:"sender_id" db:"sender_id"`
	Content   string    `json:"content" db:"content"`
	MediaRef  string    `json:"media_ref,omitempty" db:"media_ref"`
	// MediaURL is a short-lived signed link for MediaRef; it is never stored.
	MediaURL  string    `json:"media_url,omitempty" db:"-"`
	IsRead    bool      `json:"is_read" db:"is_read"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type NotificationSummary struct {
	UnreadMessages int `json:"unread_messages"`
	NewMatches     int `json:"new_matches"`
}
