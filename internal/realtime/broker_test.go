package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ivankudzin/amour/internal/domain/model"
)

func TestLocalPublisherDeliversNotificationUpdate(t *testing.T) {
	r := NewRegistry()
	c, sink := hookedClient()
	r.Add(5, c)

	pub := NewPublisher(NewLocalBroker(r))
	if err := pub.NotificationUpdate(context.Background(), 5, model.NotificationSummary{UnreadMessages: 3}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	frames := sink.list()
	if len(frames) != 1 || frames[0].Type != EventNotificationUpdate {
		t.Fatalf("unexpected frames: %+v", frames)
	}
	var got model.NotificationSummary
	if err := frames[0].Decode(&got); err != nil || got.UnreadMessages != 3 {
		t.Fatalf("unexpected payload: %+v err=%v", got, err)
	}
}

func TestRedisBrokerFansOutAcrossInstances(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})

	// Instance A holds the connection; instance B publishes.
	registryA := NewRegistry()
	c, sink := hookedClient()
	registryA.Add(9, c)
	brokerA := NewRedisBroker(client, registryA, nil)
	brokerB := NewRedisBroker(client, NewRegistry(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = brokerA.Run(ctx) }()

	select {
	case <-brokerA.Ready():
	case <-time.After(2 * time.Second):
		t.Fatalf("redis broker did not subscribe")
	}

	if err := NewPublisher(brokerB).MatchRemoved(ctx, 9, 77); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(sink.list()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("event did not reach the other instance")
		}
		time.Sleep(10 * time.Millisecond)
	}
	frame := sink.list()[0]
	var got MatchRemovedPayload
	if frame.Type != EventMatchRemoved || frame.Decode(&got) != nil || got.MatchID != 77 {
		t.Fatalf("unexpected frame: %+v", frame)
	}
}

func TestNATSSubjectPerUser(t *testing.T) {
	if got := natsSubject(12); got != "rt.user.12" {
		t.Fatalf("unexpected subject: %s", got)
	}
}
