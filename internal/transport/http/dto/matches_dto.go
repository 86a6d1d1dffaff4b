package dto

import (
	"time"

	"github.com/ivankudzin/amour/internal/domain/model"
)

type MatchItemResponse struct {
	ID             int64      `json:"id"`
	TargetUserID   int64      `json:"target_user_id"`
	DisplayName    string     `json:"display_name"`
	Age            int        `json:"age"`
	IsPending      bool       `json:"is_pending"`
	AwaitingMe     bool       `json:"awaiting_me"`
	LastMessage    string     `json:"last_message,omitempty"`
	LastMessageAt  *time.Time `json:"last_message_at,omitempty"`
	UnreadMessages int        `json:"unread_messages"`
	CreatedAt      time.Time  `json:"created_at"`
}

type MatchesResponse struct {
	Items []MatchItemResponse `json:"items"`
}

type MessagesResponse struct {
	Items      []model.Message `json:"items"`
	TotalCount int             `json:"total_count"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
}
