package model

import (
	"time"

	"github.com/ivankudzin/amour/internal/domain/enums"
)

// Account is the subscription and preference side of a user. Accounts are never hard-deleted.
type Account struct {
	ID            int64      `json:"id"`
	TelegramID    int64      `json:"telegram_id"`
	Tier          enums.Tier `json:"tier"`
	TierExpiresAt *time.Time `json:"tier_expires_at"`
	// Preference is the gold single-sex filter; empty when unset or unparseable.
	Preference enums.Sex `json:"preference"`
	// Preferences is the platinum any-of filter, parsed once when the row is loaded.
	Preferences   enums.SexSet `json:"-"`
	CoinBalance   int64        `json:"coin_balance"`
	MatchesSeenAt *time.Time   `json:"matches_seen_at"`
	CreatedAt     time.Time    `json:"created_at"`
}

// EffectiveTier downgrades an expired paid tier to standard.
func (a Account) EffectiveTier(now time.Time) enums.Tier {
	if !a.Tier.Paid() {
		return enums.TierStandard
	}
	if a.TierExpiresAt != nil && !now.Before(*a.TierExpiresAt) {
		return enums.TierStandard
	}
	return a.Tier
}
