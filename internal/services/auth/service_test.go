package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	redrepo "github.com/ivankudzin/amour/internal/repo/redis"
	authsvc "github.com/ivankudzin/amour/internal/services/auth"
)

type accountsStub struct {
	mu     sync.Mutex
	nextID int64
	byTG   map[int64]int64
}

func (s *accountsStub) EnsureByTelegramID(_ context.Context, telegramID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byTG == nil {
		s.byTG = map[int64]int64{}
	}
	if id, ok := s.byTG[telegramID]; ok {
		return id, nil
	}
	s.nextID++
	s.byTG[telegramID] = s.nextID
	return s.nextID, nil
}

func TestLoginMapsTelegramUserToAccount(t *testing.T) {
	svc := newAuthServiceForTest(t)
	ctx := context.Background()

	first, err := svc.LoginTelegram(ctx, "user_id=1001")
	if err != nil {
		t.Fatalf("login telegram: %v", err)
	}
	second, err := svc.LoginTelegram(ctx, "1001")
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if first.Me.ID != second.Me.ID || first.Me.ID <= 0 {
		t.Fatalf("unexpected account ids: %d and %d", first.Me.ID, second.Me.ID)
	}
	if first.Me.TelegramID != 1001 {
		t.Fatalf("unexpected telegram id: %d", first.Me.TelegramID)
	}
}

func TestRefreshRotation(t *testing.T) {
	svc := newAuthServiceForTest(t)
	ctx := context.Background()

	loginRes, err := svc.LoginTelegram(ctx, "user_id=1001")
	if err != nil {
		t.Fatalf("login telegram: %v", err)
	}

	refreshRes, err := svc.Refresh(ctx, loginRes.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshRes.RefreshToken == loginRes.RefreshToken {
		t.Fatalf("refresh token was not rotated")
	}

	if _, err := svc.Refresh(ctx, loginRes.RefreshToken); !errors.Is(err, authsvc.ErrUnauthorized) {
		t.Fatalf("old refresh token should be unauthorized, got err=%v", err)
	}
	if _, err := svc.ValidateAccessToken(ctx, refreshRes.AccessToken); err != nil {
		t.Fatalf("new access token validation failed: %v", err)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	svc := newAuthServiceForTest(t)
	ctx := context.Background()

	loginRes, err := svc.LoginTelegram(ctx, "user_id=2002")
	if err != nil {
		t.Fatalf("login telegram: %v", err)
	}
	claims, err := svc.ValidateAccessToken(ctx, loginRes.AccessToken)
	if err != nil {
		t.Fatalf("validate access token before logout: %v", err)
	}

	if err := svc.Logout(ctx, claims.SID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.ValidateAccessToken(ctx, loginRes.AccessToken); !errors.Is(err, authsvc.ErrUnauthorized) {
		t.Fatalf("access token should be unauthorized after logout, got err=%v", err)
	}
}

func TestLogoutAllDropsEverySession(t *testing.T) {
	svc := newAuthServiceForTest(t)
	ctx := context.Background()

	a, err := svc.LoginTelegram(ctx, "user_id=3003")
	if err != nil {
		t.Fatalf("login a: %v", err)
	}
	b, err := svc.LoginTelegram(ctx, "user_id=3003")
	if err != nil {
		t.Fatalf("login b: %v", err)
	}

	if err := svc.LogoutAll(ctx, a.Me.ID); err != nil {
		t.Fatalf("logout all: %v", err)
	}
	for _, token := range []string{a.AccessToken, b.AccessToken} {
		if _, err := svc.ValidateAccessToken(ctx, token); !errors.Is(err, authsvc.ErrUnauthorized) {
			t.Fatalf("expected unauthorized after logout all, got %v", err)
		}
	}
}

func TestRejectsForeignAccessToken(t *testing.T) {
	svc := newAuthServiceForTest(t)

	foreign := authsvc.NewJWTManager("other-secret", time.Minute)
	token, _, err := foreign.GenerateAccessToken(1, "sid", "user")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := svc.ValidateAccessToken(context.Background(), token); !errors.Is(err, authsvc.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func newAuthServiceForTest(t *testing.T) *authsvc.Service {
	t.Helper()

	mini, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := goredis.NewClient(&goredis.Options{Addr: mini.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mini.Close()
	})

	return authsvc.NewService(authsvc.Dependencies{
		Sessions: redrepo.NewSessionRepo(client),
		Accounts: &accountsStub{},
	}, authsvc.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 45 * 24 * time.Hour,
	})
}
