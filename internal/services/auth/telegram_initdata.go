package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TelegramUser is the part of the mini-app init data the service relies on.
type TelegramUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// InitDataVerifier checks the signature Telegram puts on mini-app init data.
// With an empty bot token it runs in dev mode: the payload is trusted and a bare
// numeric id or user_id=<id> is also accepted.
type InitDataVerifier struct {
	botToken string
	maxAge   time.Duration
	now      func() time.Time
}

func NewInitDataVerifier(botToken string, maxAge time.Duration) *InitDataVerifier {
	return &InitDataVerifier{
		botToken: strings.TrimSpace(botToken),
		maxAge:   maxAge,
		now:      time.Now,
	}
}

func (v *InitDataVerifier) Verify(initData string) (TelegramUser, error) {
	trimmed := strings.TrimSpace(initData)
	if trimmed == "" {
		return TelegramUser{}, fmt.Errorf("init data is empty: %w", ErrInvalidInput)
	}

	if v.botToken == "" {
		return parseUnsigned(trimmed)
	}

	values, err := url.ParseQuery(trimmed)
	if err != nil {
		return TelegramUser{}, fmt.Errorf("parse init data: %w", ErrInvalidInput)
	}
	hash := values.Get("hash")
	if hash == "" {
		return TelegramUser{}, ErrUnauthorized
	}
	if !hmac.Equal([]byte(hash), []byte(v.sign(values))) {
		return TelegramUser{}, ErrUnauthorized
	}

	if v.maxAge > 0 {
		authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
		if err != nil || v.now().Sub(time.Unix(authDate, 0)) > v.maxAge {
			return TelegramUser{}, ErrUnauthorized
		}
	}

	user, ok := userFromJSON(values.Get("user"))
	if !ok {
		return TelegramUser{}, fmt.Errorf("init data has no user: %w", ErrInvalidInput)
	}
	return user, nil
}

// sign computes the hex hash over the sorted key=value lines, excluding hash itself.
func (v *InitDataVerifier) sign(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(v.botToken))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}

func parseUnsigned(raw string) (TelegramUser, error) {
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
		return TelegramUser{ID: id}, nil
	}

	values, err := url.ParseQuery(raw)
	if err != nil {
		return TelegramUser{}, fmt.Errorf("parse init data: %w", ErrInvalidInput)
	}
	if user, ok := userFromJSON(values.Get("user")); ok {
		return user, nil
	}
	if id, err := strconv.ParseInt(values.Get("user_id"), 10, 64); err == nil && id > 0 {
		return TelegramUser{ID: id}, nil
	}
	return TelegramUser{}, fmt.Errorf("init data has no user: %w", ErrInvalidInput)
}

func userFromJSON(raw string) (TelegramUser, bool) {
	if raw == "" {
		return TelegramUser{}, false
	}
	var user TelegramUser
	if err := json.Unmarshal([]byte(raw), &user); err != nil || user.ID <= 0 {
		return TelegramUser{}, false
	}
	return user, true
}
