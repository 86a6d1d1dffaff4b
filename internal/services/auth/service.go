package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ivankudzin/amour/internal/domain/enums"
)

const (
	MinRefreshTTL = 30 * 24 * time.Hour
	MaxRefreshTTL = 90 * 24 * time.Hour

	defaultInitDataMaxAge = 24 * time.Hour
)

type SessionStore interface {
	Create(ctx context.Context, session SessionRecord, refreshToken string) error
	GetSession(ctx context.Context, sid string) (SessionRecord, error)
	GetByRefreshToken(ctx context.Context, refreshToken string) (SessionRecord, error)
	RotateRefresh(ctx context.Context, sid, oldRefreshToken, newRefreshToken string, expiresAt time.Time) error
	DeleteSession(ctx context.Context, sid string) error
	DeleteAllForUser(ctx context.Context, userID int64) error
}

// AccountResolver maps a Telegram user to the internal account id, creating the account
// on first login.
type AccountResolver interface {
	EnsureByTelegramID(ctx context.Context, telegramID int64) (int64, error)
}

type Dependencies struct {
	Sessions SessionStore
	Accounts AccountResolver
}

type Config struct {
	JWTSecret      string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	BotToken       string
	InitDataMaxAge time.Duration
}

type Service struct {
	jwt        *JWTManager
	initData   *InitDataVerifier
	sessions   SessionStore
	accounts   AccountResolver
	refreshTTL time.Duration
	now        func() time.Time
}

func NewService(deps Dependencies, cfg Config) *Service {
	refreshTTL := cfg.RefreshTTL
	if refreshTTL < MinRefreshTTL {
		refreshTTL = MinRefreshTTL
	}
	if refreshTTL > MaxRefreshTTL {
		refreshTTL = MaxRefreshTTL
	}
	maxAge := cfg.InitDataMaxAge
	if maxAge <= 0 {
		maxAge = defaultInitDataMaxAge
	}

	return &Service{
		jwt:        NewJWTManager(cfg.JWTSecret, cfg.AccessTTL),
		initData:   NewInitDataVerifier(cfg.BotToken, maxAge),
		sessions:   deps.Sessions,
		accounts:   deps.Accounts,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

func (s *Service) LoginTelegram(ctx context.Context, initData string) (AuthResult, error) {
	tgUser, err := s.initData.Verify(initData)
	if err != nil {
		return AuthResult{}, err
	}
	if s.accounts == nil {
		return AuthResult{}, fmt.Errorf("account resolver is nil")
	}

	userID, err := s.accounts.EnsureByTelegramID(ctx, tgUser.ID)
	if err != nil {
		return AuthResult{}, fmt.Errorf("resolve account: %w", err)
	}

	res, err := s.startSession(ctx, userID, string(enums.RoleUser))
	if err != nil {
		return AuthResult{}, err
	}
	res.Me.TelegramID = tgUser.ID
	return res, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return AuthResult{}, ErrInvalidInput
	}

	session, err := s.sessions.GetByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrRefreshNotFound) {
			return AuthResult{}, ErrUnauthorized
		}
		return AuthResult{}, fmt.Errorf("get refresh token session: %w", err)
	}
	if s.now().After(session.ExpiresAt) {
		return AuthResult{}, ErrUnauthorized
	}

	rotated, err := newRefreshToken()
	if err != nil {
		return AuthResult{}, fmt.Errorf("generate refresh token: %w", err)
	}
	if err := s.sessions.RotateRefresh(ctx, session.SID, refreshToken, rotated, s.now().Add(s.refreshTTL)); err != nil {
		if errors.Is(err, ErrRefreshNotFound) {
			return AuthResult{}, ErrUnauthorized
		}
		return AuthResult{}, fmt.Errorf("rotate refresh token: %w", err)
	}

	return s.tokens(session, rotated)
}

func (s *Service) Logout(ctx context.Context, sid string) error {
	if strings.TrimSpace(sid) == "" {
		return ErrInvalidInput
	}
	if err := s.sessions.DeleteSession(ctx, sid); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *Service) LogoutAll(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return ErrInvalidInput
	}
	if err := s.sessions.DeleteAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("delete all sessions: %w", err)
	}
	return nil
}

// ValidateAccessToken checks the signature and that the session behind the token is still live.
func (s *Service) ValidateAccessToken(ctx context.Context, accessToken string) (AccessClaims, error) {
	claims, err := s.jwt.ParseAccessToken(accessToken)
	if err != nil {
		return AccessClaims{}, ErrUnauthorized
	}

	session, err := s.sessions.GetSession(ctx, claims.SID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return AccessClaims{}, ErrUnauthorized
		}
		return AccessClaims{}, fmt.Errorf("get session: %w", err)
	}
	if session.UserID != claims.UserID || session.Role != claims.Role || s.now().After(session.ExpiresAt) {
		return AccessClaims{}, ErrUnauthorized
	}
	return claims, nil
}

func (s *Service) startSession(ctx context.Context, userID int64, role string) (AuthResult, error) {
	sid, err := newSessionID()
	if err != nil {
		return AuthResult{}, fmt.Errorf("generate session id: %w", err)
	}
	refreshToken, err := newRefreshToken()
	if err != nil {
		return AuthResult{}, fmt.Errorf("generate refresh token: %w", err)
	}

	session := SessionRecord{
		SID:       sid,
		UserID:    userID,
		Role:      role,
		ExpiresAt: s.now().Add(s.refreshTTL),
	}
	if err := s.sessions.Create(ctx, session, refreshToken); err != nil {
		return AuthResult{}, fmt.Errorf("create session: %w", err)
	}
	return s.tokens(session, refreshToken)
}

func (s *Service) tokens(session SessionRecord, refreshToken string) (AuthResult, error) {
	accessToken, accessExpires, err := s.jwt.GenerateAccessToken(session.UserID, session.SID, session.Role)
	if err != nil {
		return AuthResult{}, fmt.Errorf("generate access token: %w", err)
	}
	return AuthResult{
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		AccessExpires: accessExpires,
		Me:            Me{ID: session.UserID, Role: session.Role},
	}, nil
}
