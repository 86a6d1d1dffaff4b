package dto

type NotificationSummaryResponse struct {
	UnreadMessages int `json:"unread_messages"`
	NewMatches     int `json:"new_matches"`
}
