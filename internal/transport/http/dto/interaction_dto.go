package dto

type TargetRequest struct {
	TargetID int64 `json:"target_id"`
}

type LikeResponse struct {
	IsMatch bool  `json:"is_match"`
	MatchID int64 `json:"match_id,omitempty"`
}

type ReportRequest struct {
	TargetID int64  `json:"target_id"`
	Reason   string `json:"reason"`
	Details  string `json:"details"`
}
