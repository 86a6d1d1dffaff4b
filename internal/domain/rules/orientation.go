package rules

import (
	"time"

	"github.com/ivankudzin/amour/internal/domain/enums"
	"github.com/ivankudzin/amour/internal/domain/model"
)

// OrientationFilter resolves which candidate sexes the viewer may be shown.
// active=false means no filter. A platinum account whose stored set was empty or
// unparseable also gets no filter; this is intentional, not an error.
func OrientationFilter(account model.Account, now time.Time) (enums.SexSet, bool) {
	switch account.EffectiveTier(now) {
	case enums.TierGold:
		if account.Preference == "" {
			return enums.NewSexSet(), false
		}
		return enums.NewSexSet(account.Preference), true
	case enums.TierPlatinum:
		if account.Preferences.Empty() {
			return enums.NewSexSet(), false
		}
		return account.Preferences, true
	default:
		return enums.NewSexSet(), false
	}
}
