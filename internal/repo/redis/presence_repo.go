package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const presencePrefix = "presence:"

// PresenceRepo stores connection -> active match per user so every api instance can
// answer "is the recipient looking at this conversation right now".
type PresenceRepo struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewPresenceRepo(client *goredis.Client, ttl time.Duration) *PresenceRepo {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &PresenceRepo{client: client, ttl: ttl}
}

// Set records the connection with activeMatchID (0 for none). Every connection has its own
// key and ttl; the per-user set only indexes them.
func (r *PresenceRepo) Set(ctx context.Context, userID int64, connID string, activeMatchID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if userID <= 0 || connID == "" {
		return fmt.Errorf("invalid presence payload")
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, connKey(userID, connID), strconv.FormatInt(activeMatchID, 10), r.ttl)
	pipe.SAdd(ctx, presenceKey(userID), connID)
	pipe.Expire(ctx, presenceKey(userID), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	return nil
}

func (r *PresenceRepo) Remove(ctx context.Context, userID int64, connID string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, connKey(userID, connID))
	pipe.SRem(ctx, presenceKey(userID), connID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove presence: %w", err)
	}
	return nil
}

// Touch extends only the given connection. A connection whose instance died stops being
// touched and expires even while the user's other devices stay connected.
func (r *PresenceRepo) Touch(ctx context.Context, userID int64, connID string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	pipe := r.client.TxPipeline()
	pipe.Expire(ctx, connKey(userID, connID), r.ttl)
	pipe.Expire(ctx, presenceKey(userID), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("touch presence: %w", err)
	}
	return nil
}

func (r *PresenceRepo) Viewing(ctx context.Context, userID, matchID int64) (bool, error) {
	active, err := r.live(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, m := range active {
		if m == matchID {
			return true, nil
		}
	}
	return false, nil
}

func (r *PresenceRepo) Online(ctx context.Context, userID int64) (bool, error) {
	active, err := r.live(ctx, userID)
	if err != nil {
		return false, err
	}
	return len(active) > 0, nil
}

// live returns the active match of every unexpired connection and drops expired ones
// from the index.
func (r *PresenceRepo) live(ctx context.Context, userID int64) (map[string]int64, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	conns, err := r.client.SMembers(ctx, presenceKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read presence: %w", err)
	}
	if len(conns) == 0 {
		return nil, nil
	}

	keys := make([]string, len(conns))
	for i, connID := range conns {
		keys[i] = connKey(userID, connID)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read presence: %w", err)
	}

	active := make(map[string]int64, len(conns))
	var stale []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, conns[i])
			continue
		}
		matchID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			stale = append(stale, conns[i])
			continue
		}
		active[conns[i]] = matchID
	}
	if len(stale) > 0 {
		_ = r.client.SRem(ctx, presenceKey(userID), stale...).Err()
	}
	return active, nil
}

func presenceKey(userID int64) string {
	return presencePrefix + strconv.FormatInt(userID, 10)
}

func connKey(userID int64, connID string) string {
	return presenceKey(userID) + ":" + connID
}
