package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/ivankudzin/amour/internal/domain/apperrors"
)

var (
	ErrInvalidInput    = fmt.Errorf("auth input: %w", apperrors.ErrValidation)
	ErrUnauthorized    = fmt.Errorf("auth: %w", apperrors.ErrUnauthenticated)
	ErrSessionNotFound = fmt.Errorf("session not found: %w", apperrors.ErrUnauthenticated)
	ErrRefreshNotFound = fmt.Errorf("refresh token not found: %w", apperrors.ErrUnauthenticated)
)

type SessionRecord struct {
	SID       string
	UserID    int64
	Role      string
	ExpiresAt time.Time
}

type AccessClaims struct {
	UserID    int64
	SID       string
	Role      string
	ExpiresAt time.Time
}

type Me struct {
	ID         int64  `json:"id"`
	TelegramID int64  `json:"telegram_id,omitempty"`
	Role       string `json:"role"`
}

type AuthResult struct {
	AccessToken   string
	RefreshToken  string
	AccessExpires time.Time
	Me            Me
}

// Identity is what the HTTP middleware and the websocket gateway attach to a request.
type Identity struct {
	UserID int64
	SID    string
	Role   string
}

type identityContextKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(Identity)
	return identity, ok && identity.UserID > 0
}
