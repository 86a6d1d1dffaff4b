package realtime

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	redisrepo "github.com/ivankudzin/amour/internal/repo/redis"
)

func TestRedisPresenceSeesOtherInstances(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	store := redisrepo.NewPresenceRepo(client, 0)
	ctx := context.Background()

	registryA := NewRegistry()
	c, _ := hookedClient()
	registryA.Add(4, c)
	presenceA := NewRedisPresence(store, registryA)
	presenceB := NewRedisPresence(store, NewRegistry())

	if err := presenceA.SetActive(ctx, 4, c.ID(), 31); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if !registryA.Viewing(4, 31) {
		t.Fatalf("local registry must follow presence updates")
	}

	viewing, err := presenceB.Viewing(ctx, 4, 31)
	if err != nil || !viewing {
		t.Fatalf("other instance should see the open conversation: %v %v", viewing, err)
	}

	if err := presenceA.Clear(ctx, 4, c.ID()); err != nil {
		t.Fatalf("clear: %v", err)
	}
	registryA.Remove(c.ID())
	online, err := presenceB.Online(ctx, 4)
	if err != nil || online {
		t.Fatalf("user should be offline after clear: %v %v", online, err)
	}
}
