package enums

import "strings"

type ReportReason string

const (
	ReportReasonSpam     ReportReason = "spam"
	ReportReasonFake     ReportReason = "fake"
	ReportReasonAbusive  ReportReason = "abusive"
	ReportReasonUnderage ReportReason = "underage"
	ReportReasonOther    ReportReason = "other"
)

func ParseReportReason(raw string) (ReportReason, bool) {
	switch r := ReportReason(strings.ToLower(strings.TrimSpace(raw))); r {
	case ReportReasonSpam, ReportReasonFake, ReportReasonAbusive, ReportReasonUnderage, ReportReasonOther:
		return r, true
	default:
		return "", false
	}
}

type ReportStatus string

const (
	ReportStatusOpen     ReportStatus = "open"
	ReportStatusResolved ReportStatus = "resolved"
)
