package realtime

import "context"

// Presence answers "is this user connected" and "is this user looking at this match".
// activeMatchID 0 means connected with no conversation open.
type Presence interface {
	SetActive(ctx context.Context, userID int64, connID string, activeMatchID int64) error
	Clear(ctx context.Context, userID int64, connID string) error
	Touch(ctx context.Context, userID int64, connID string) error
	Viewing(ctx context.Context, userID, matchID int64) (bool, error)
	Online(ctx context.Context, userID int64) (bool, error)
}

// LocalPresence reads the registry of a single api instance.
type LocalPresence struct {
	registry *Registry
}

func NewLocalPresence(registry *Registry) *LocalPresence {
	return &LocalPresence{registry: registry}
}

func (p *LocalPresence) SetActive(_ context.Context, _ int64, connID string, activeMatchID int64) error {
	p.registry.SetActiveMatch(connID, activeMatchID)
	return nil
}

// Clear is a no-op; the gateway removes the connection from the registry itself.
func (p *LocalPresence) Clear(context.Context, int64, string) error { return nil }

func (p *LocalPresence) Touch(context.Context, int64, string) error { return nil }

func (p *LocalPresence) Viewing(_ context.Context, userID, matchID int64) (bool, error) {
	return p.registry.Viewing(userID, matchID), nil
}

func (p *LocalPresence) Online(_ context.Context, userID int64) (bool, error) {
	return p.registry.Online(userID), nil
}

type PresenceStore interface {
	Set(ctx context.Context, userID int64, connID string, activeMatchID int64) error
	Remove(ctx context.Context, userID int64, connID string) error
	Touch(ctx context.Context, userID int64, connID string) error
	Viewing(ctx context.Context, userID, matchID int64) (bool, error)
	Online(ctx context.Context, userID int64) (bool, error)
}

// RedisPresence shares presence across api instances. The local registry is still kept in
// sync so this instance can deliver without a round trip.
type RedisPresence struct {
	store    PresenceStore
	registry *Registry
}

func NewRedisPresence(store PresenceStore, registry *Registry) *RedisPresence {
	return &RedisPresence{store: store, registry: registry}
}

func (p *RedisPresence) SetActive(ctx context.Context, userID int64, connID string, activeMatchID int64) error {
	p.registry.SetActiveMatch(connID, activeMatchID)
	return p.store.Set(ctx, userID, connID, activeMatchID)
}

func (p *RedisPresence) Clear(ctx context.Context, userID int64, connID string) error {
	return p.store.Remove(ctx, userID, connID)
}

func (p *RedisPresence) Touch(ctx context.Context, userID int64, connID string) error {
	return p.store.Touch(ctx, userID, connID)
}

func (p *RedisPresence) Viewing(ctx context.Context, userID, matchID int64) (bool, error) {
	if p.registry.Viewing(userID, matchID) {
		return true, nil
	}
	return p.store.Viewing(ctx, userID, matchID)
}

func (p *RedisPresence) Online(ctx context.Context, userID int64) (bool, error) {
	if p.registry.Online(userID) {
		return true, nil
	}
	return p.store.Online(ctx, userID)
}
