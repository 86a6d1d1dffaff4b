package auth

import (
	"errors"
	"net/url"
	"strconv"
	"testing"
	"time"
)

func signedInitData(t *testing.T, v *InitDataVerifier, authDate time.Time) string {
	t.Helper()
	values := url.Values{}
	values.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	values.Set("query_id", "AAE")
	values.Set("user", `{"id":555,"first_name":"Ann","username":"ann"}`)
	values.Set("hash", v.sign(values))
	return values.Encode()
}

func TestVerifyAcceptsSignedInitData(t *testing.T) {
	now := time.Date(2026, time.May, 1, 10, 0, 0, 0, time.UTC)
	v := NewInitDataVerifier("123:bot-token", time.Hour)
	v.now = func() time.Time { return now }

	user, err := v.Verify(signedInitData(t, v, now.Add(-time.Minute)))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if user.ID != 555 || user.Username != "ann" {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestVerifyRejectsTamperedOrStale(t *testing.T) {
	now := time.Date(2026, time.May, 1, 10, 0, 0, 0, time.UTC)
	v := NewInitDataVerifier("123:bot-token", time.Hour)
	v.now = func() time.Time { return now }

	stale := signedInitData(t, v, now.Add(-2*time.Hour))
	if _, err := v.Verify(stale); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected stale init data to be rejected, got %v", err)
	}

	values, _ := url.ParseQuery(signedInitData(t, v, now))
	values.Set("user", `{"id":556}`)
	if _, err := v.Verify(values.Encode()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected tampered init data to be rejected, got %v", err)
	}
}

func TestVerifyDevModeAcceptsBareID(t *testing.T) {
	v := NewInitDataVerifier("", 0)
	user, err := v.Verify("42")
	if err != nil || user.ID != 42 {
		t.Fatalf("unexpected dev verify result: user=%+v err=%v", user, err)
	}
	if _, err := v.Verify("   "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
