package alerts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu  sync.Mutex
	ch  Channel
	got []Publication
}

func (s *fakeSender) Channel() Channel { return s.ch }
func (s *fakeSender) Send(ctx context.Context, pub Publication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, pub)
	return nil
}
func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func TestPublishDispatchesToRegisteredSender(t *testing.T) {
	bus := NewBus(zerolog.Nop(), DefaultConfig())
	sender := &fakeSender{ch: ChannelWebhook}
	bus.RegisterSender(sender)

	bus.Publish(Publication{Topic: "risk.alert", Channels: []Channel{ChannelWebhook}})

	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestSubscribeReceivesMatchingTopicOnly(t *testing.T) {
	bus := NewBus(zerolog.Nop(), DefaultConfig())
	var mu sync.Mutex
	var received []string
	bus.Subscribe("watcher", "risk.alert", func(p Publication) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, p.Topic)
	})

	bus.Publish(Publication{Topic: "risk.alert"})
	bus.Publish(Publication{Topic: "other.topic"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 10*time.Millisecond)
}

type blockingSender struct{ release chan struct{} }

func (s *blockingSender) Channel() Channel { return ChannelWebhook }
func (s *blockingSender) Send(ctx context.Context, pub Publication) error {
	<-s.release
	return nil
}

func TestPublishDropsWhenQueueSaturated(t *testing.T) {
	bus := NewBus(zerolog.Nop(), Config{Workers: 1, QueueSize: 1})
	blocker := &blockingSender{release: make(chan struct{})}
	bus.RegisterSender(blocker)
	defer close(blocker.release)

	for i := 0; i < 5; i++ {
		bus.Publish(Publication{Topic: "a", Channels: []Channel{ChannelWebhook}})
	}

	require.Eventually(t, func() bool { return bus.DroppedTotal() > 0 }, time.Second, 10*time.Millisecond)
}
