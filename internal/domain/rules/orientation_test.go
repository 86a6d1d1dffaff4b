package rules

import (
	"testing"
	"time"

	"github.com/ivankudzin/amour/internal/domain/enums"
	"github.com/ivankudzin/amour/internal/domain/model"
)

func TestOrientationFilterByTier(t *testing.T) {
	now := time.Date(2026, time.May, 4, 9, 0, 0, 0, time.UTC)
	expired := now.Add(-time.Hour)
	platinumSet, _ := enums.ParseSexSet([]string{"female", "nonbinary"})
	badSet, _ := enums.ParseSexSet([]string{"female", "???"})

	tests := []struct {
		name       string
		account    model.Account
		wantActive bool
		allowed    []enums.Sex
		denied     []enums.Sex
	}{
		{
			name:    "standard ignores stored preference",
			account: model.Account{Tier: enums.TierStandard, Preference: enums.SexFemale},
		},
		{
			name:       "gold single preference",
			account:    model.Account{Tier: enums.TierGold, Preference: enums.SexMale},
			wantActive: true,
			allowed:    []enums.Sex{enums.SexMale},
			denied:     []enums.Sex{enums.SexFemale, enums.SexNonbinary},
		},
		{
			name:    "gold without preference",
			account: model.Account{Tier: enums.TierGold},
		},
		{
			name:       "platinum any-of",
			account:    model.Account{Tier: enums.TierPlatinum, Preferences: platinumSet},
			wantActive: true,
			allowed:    []enums.Sex{enums.SexFemale, enums.SexNonbinary},
			denied:     []enums.Sex{enums.SexMale},
		},
		{
			name:    "platinum unparseable set means no filter",
			account: model.Account{Tier: enums.TierPlatinum, Preferences: badSet},
		},
		{
			name:    "expired platinum behaves as standard",
			account: model.Account{Tier: enums.TierPlatinum, TierExpiresAt: &expired, Preferences: platinumSet},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			set, active := OrientationFilter(tc.account, now)
			if active != tc.wantActive {
				t.Fatalf("unexpected active: got %v want %v", active, tc.wantActive)
			}
			for _, s := range tc.allowed {
				if !set.Contains(s) {
					t.Fatalf("expected %q to be allowed", s)
				}
			}
			for _, s := range tc.denied {
				if set.Contains(s) {
					t.Fatalf("expected %q to be denied", s)
				}
			}
		})
	}
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		page, size         int
		wantPage, wantSize int
		wantOffset         int
	}{
		{page: 0, size: 0, wantPage: 1, wantSize: 30, wantOffset: 0},
		{page: 3, size: 10, wantPage: 3, wantSize: 10, wantOffset: 20},
		{page: 2, size: 1000, wantPage: 2, wantSize: 100, wantOffset: 100},
	}
	for _, tc := range tests {
		page, size, offset := NormalizePage(tc.page, tc.size, 30, 100)
		if page != tc.wantPage || size != tc.wantSize || offset != tc.wantOffset {
			t.Fatalf("unexpected paging for (%d,%d): got (%d,%d,%d)", tc.page, tc.size, page, size, offset)
		}
	}
}
