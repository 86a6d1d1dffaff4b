package enums

import "strings"

type Tier string

const (
	TierStandard Tier = "standard"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// ParseTier maps unknown values to standard so a bad row never grants paid filtering.
func ParseTier(raw string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(raw))) {
	case TierGold:
		return TierGold
	case TierPlatinum:
		return TierPlatinum
	default:
		return TierStandard
	}
}

func (t Tier) Paid() bool {
	return t == TierGold || t == TierPlatinum
}
