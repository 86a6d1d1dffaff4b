package model

import (
	"testing"
	"time"

	"github.com/ivankudzin/amour/internal/domain/enums"
)

func TestEffectiveTierDowngradesExpired(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	tests := []struct {
		name    string
		account Account
		want    enums.Tier
	}{
		{name: "standard", account: Account{Tier: enums.TierStandard}, want: enums.TierStandard},
		{name: "gold without expiry", account: Account{Tier: enums.TierGold}, want: enums.TierGold},
		{name: "platinum active", account: Account{Tier: enums.TierPlatinum, TierExpiresAt: &future}, want: enums.TierPlatinum},
		{name: "platinum expired", account: Account{Tier: enums.TierPlatinum, TierExpiresAt: &past}, want: enums.TierStandard},
		{name: "expires exactly now", account: Account{Tier: enums.TierGold, TierExpiresAt: &now}, want: enums.TierStandard},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.account.EffectiveTier(now); got != tc.want {
				t.Fatalf("unexpected tier: got %s want %s", got, tc.want)
			}
		})
	}
}

func TestMatchOther(t *testing.T) {
	m := Match{UserAID: 3, UserBID: 9}
	if m.Other(3) != 9 || m.Other(9) != 3 {
		t.Fatalf("unexpected counterpart")
	}
	if m.Other(5) != 0 || m.HasParticipant(5) {
		t.Fatalf("outsider must not be a participant")
	}
}

func TestLeaseActive(t *testing.T) {
	now := time.Now()
	lease := CandidateLease{CandidateID: 7, ExpiresAt: now.Add(time.Second)}
	if !lease.Active(now) {
		t.Fatalf("lease should be active")
	}
	if lease.Active(now.Add(time.Second)) {
		t.Fatalf("lease must expire at ExpiresAt")
	}
}
