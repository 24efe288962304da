package pubsub

import (
	"testing"
)

func TestSubscribePublish(t *testing.T) {
	bus := New()

	sub := bus.Subscribe(TopicMappingCreated, 4)
	if bus.SubscriberCount(TopicMappingCreated) != 1 {
		t.Fatal("expected 1 subscriber")
	}

	bus.Publish(TopicMappingCreated, "m1")

	select {
	case msg := <-sub.Channel:
		if msg != "m1" {
			t.Errorf("received %v, want m1", msg)
		}
	default:
		t.Fatal("expected a message on the channel")
	}
}

func TestPublishDoesNotCrossTopics(t *testing.T) {
	bus := New()

	created := bus.Subscribe(TopicMappingCreated, 1)
	deleted := bus.Subscribe(TopicMappingDeleted, 1)

	bus.Publish(TopicMappingDeleted, "gone")

	select {
	case <-created.Channel:
		t.Fatal("created subscriber should not receive deleted events")
	default:
	}

	select {
	case msg := <-deleted.Channel:
		if msg != "gone" {
			t.Errorf("received %v, want gone", msg)
		}
	default:
		t.Fatal("deleted subscriber should receive the event")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New()

	sub := bus.Subscribe(TopicDMXOutput, 1)
	sub.Unsubscribe()

	if bus.SubscriberCount(TopicDMXOutput) != 0 {
		t.Error("expected 0 subscribers after unsubscribe")
	}

	if _, ok := <-sub.Channel; ok {
		t.Error("channel should be closed after unsubscribe")
	}

	// Publishing after unsubscribe must not panic.
	bus.Publish(TopicDMXOutput, "late")
}

func TestPublishSkipsFullChannels(t *testing.T) {
	bus := New()

	sub := bus.Subscribe(TopicDMXOutput, 1)
	bus.Publish(TopicDMXOutput, 1)
	bus.Publish(TopicDMXOutput, 2) // dropped, channel full

	if got := <-sub.Channel; got != 1 {
		t.Errorf("received %v, want 1", got)
	}
	select {
	case msg := <-sub.Channel:
		t.Errorf("unexpected second message %v", msg)
	default:
	}
}

func TestUnsubscribeDuringPublish(t *testing.T) {
	bus := New()

	subs := make([]*Subscriber, 10)
	for i := range subs {
		subs[i] = bus.Subscribe(TopicDMXOutput, 1)
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(TopicDMXOutput, i)
		}
		close(done)
	}()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	<-done
}
