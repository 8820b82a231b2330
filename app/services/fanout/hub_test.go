package fanout

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"campus-portal/app/models"
)

func receive(t *testing.T, sub *Subscription) Message {
	t.Helper()
	select {
	case msg, ok := <-sub.C:
		if !ok {
			t.Fatal("subscription closed")
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
	return Message{}
}

func TestSessionAndAlertTopics(t *testing.T) {
	t.Parallel()
	h := New()

	s1 := h.SubscribeSession("s1")
	s2 := h.SubscribeSession("s2")
	alerts := h.SubscribeAlerts()
	if h.Subscribers() != 3 {
		t.Fatalf("Subscribers() = %d", h.Subscribers())
	}

	h.PublishSession("s1", "event", map[string]string{"id": "e1"})
	msg := receive(t, s1)
	if msg.Topic != "session:s1" || msg.Kind != "event" || msg.SessionID != "s1" {
		t.Fatalf("unexpected message %+v", msg)
	}
	select {
	case m := <-s2.C:
		t.Fatalf("s2 received a message for s1: %+v", m)
	default:
	}

	h.PublishAlert(&models.ProctoringAlert{ID: "a1", SessionID: "s2"})
	msg = receive(t, alerts)
	if msg.Topic != AlertsTopic || msg.Kind != "alert" || msg.SessionID != "s2" {
		t.Fatalf("unexpected alert message %+v", msg)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()
	h := New()
	sub := h.SubscribeSession("s1")
	sub.Unsubscribe()
	sub.Unsubscribe()

	h.PublishSession("s1", "event", nil)
	if _, ok := <-sub.C; ok {
		t.Fatal("message delivered after unsubscribe")
	}
	if h.Subscribers() != 0 {
		t.Fatalf("Subscribers() = %d", h.Subscribers())
	}
}

func TestSlowSubscriberIsDisconnected(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		subscribe func(h *Hub) *Subscription
		publish   func(h *Hub, i int)
	}{
		{
			name:      "session stream",
			subscribe: func(h *Hub) *Subscription { return h.SubscribeSession("s1") },
			publish:   func(h *Hub, i int) { h.PublishSession("s1", "event", i) },
		},
		{
			name:      "alert stream",
			subscribe: func(h *Hub) *Subscription { return h.SubscribeAlerts() },
			publish: func(h *Hub, i int) {
				h.PublishAlert(&models.ProctoringAlert{ID: fmt.Sprint(i), SessionID: "s1"})
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := New(WithBufferSize(2))
			slow := tt.subscribe(h)
			fast := tt.subscribe(h)

			for i := 0; i < 4; i++ {
				tt.publish(h, i)
				receive(t, fast)
			}
			if got := h.Evicted(); got != 1 {
				t.Fatalf("Evicted() = %d, want 1", got)
			}
			if got := h.Subscribers(); got != 1 {
				t.Fatalf("Subscribers() = %d, want 1", got)
			}

			// The slow subscriber drains what it held, then sees the close
			// instead of a silent gap.
			for i := 0; i < 2; i++ {
				receive(t, slow)
			}
			if msg, ok := <-slow.C; ok {
				t.Fatalf("expected closed channel after buffered messages, got %+v", msg)
			}
			slow.Unsubscribe()
			if got := h.Subscribers(); got != 1 {
				t.Fatalf("Subscribers() after Unsubscribe = %d, want 1", got)
			}
		})
	}
}

func TestConcurrentPublishWithSlowSubscribers(t *testing.T) {
	t.Parallel()
	h := New(WithBufferSize(1))
	for i := 0; i < 8; i++ {
		h.SubscribeSession("s1")
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				h.PublishSession("s1", "event", i*10+j)
			}
		}(i)
	}
	wg.Wait()

	if got := h.Subscribers(); got != 0 {
		t.Fatalf("Subscribers() = %d, want 0", got)
	}
	if got := h.Evicted(); got != 8 {
		t.Fatalf("Evicted() = %d, want 8", got)
	}
}

func TestCloseEndsSubscriptions(t *testing.T) {
	t.Parallel()
	h := New()
	sub := h.SubscribeAlerts()
	h.Close()
	h.Close()

	if _, ok := <-sub.C; ok {
		t.Fatal("expected closed channel")
	}
	late := h.SubscribeSession("s1")
	if _, ok := <-late.C; ok {
		t.Fatal("subscription after Close should be closed")
	}
	late.Unsubscribe()
	h.PublishSession("s1", "event", nil)
	if h.Subscribers() != 0 {
		t.Fatalf("Subscribers() = %d", h.Subscribers())
	}
}
