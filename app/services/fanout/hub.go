package fanout

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"campus-portal/app/models"
)

const defaultBufferSize = 64

// AlertsTopic is the topic name of the global alert stream.
const AlertsTopic = "alerts"

// Message is one push to a live subscriber.
type Message struct {
	Topic     string    `json:"topic"`
	Kind      string    `json:"kind"`
	SessionID string    `json:"session_id,omitempty"`
	Data      any       `json:"data"`
	At        time.Time `json:"at"`
}

// Option configures a Hub.
type Option func(*Hub)

// WithBufferSize sets each subscriber's channel capacity. Default: 64.
func WithBufferSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.bufSize = n
		}
	}
}

// Hub is the live subscription registry. Consumers subscribe to one session's
// stream or to the global alert stream. A subscriber that falls a full buffer
// behind is disconnected: its channel closes after the messages it already
// holds, and it must re-read current state before subscribing again. Nothing
// is replayed.
type Hub struct {
	mu       sync.RWMutex
	nextID   uint64
	bufSize  int
	closed   bool
	sessions map[string]map[uint64]*Subscription
	alerts   map[uint64]*Subscription
	evicted  atomic.Int64
}

// Subscription is a registered consumer. Read from C until it is closed.
type Subscription struct {
	C <-chan Message

	ch      chan Message
	hub     *Hub
	id      uint64
	session string
	once    sync.Once
}

// New creates an empty Hub.
func New(opts ...Option) *Hub {
	h := &Hub{
		bufSize:  defaultBufferSize,
		sessions: make(map[string]map[uint64]*Subscription),
		alerts:   make(map[uint64]*Subscription),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) newSubscription(sessionID string) *Subscription {
	h.nextID++
	ch := make(chan Message, h.bufSize)
	sub := &Subscription{C: ch, ch: ch, hub: h, id: h.nextID, session: sessionID}
	if h.closed {
		sub.once.Do(func() { close(ch) })
	}
	return sub
}

// SubscribeSession registers interest in one session's stream.
func (h *Hub) SubscribeSession(sessionID string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub := h.newSubscription(sessionID)
	if h.closed {
		return sub
	}
	subs, ok := h.sessions[sessionID]
	if !ok {
		subs = make(map[uint64]*Subscription)
		h.sessions[sessionID] = subs
	}
	subs[sub.id] = sub
	return sub
}

// SubscribeAlerts registers interest in the global alert stream.
func (h *Hub) SubscribeAlerts() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub := h.newSubscription("")
	if h.closed {
		return sub
	}
	h.alerts[sub.id] = sub
	return sub
}

// Unsubscribe removes the subscription and closes C. Once it returns no
// further messages are delivered. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(s)
	// once is only ever run under h.mu.
	s.once.Do(func() { close(s.ch) })
}

// remove requires h.mu held for writing.
func (h *Hub) remove(s *Subscription) {
	if s.session == "" {
		delete(h.alerts, s.id)
		return
	}
	if subs, ok := h.sessions[s.session]; ok {
		delete(subs, s.id)
		if len(subs) == 0 {
			delete(h.sessions, s.session)
		}
	}
}

// PublishSession pushes to every subscriber of the session's stream.
func (h *Hub) PublishSession(sessionID, kind string, data any) {
	msg := Message{Topic: "session:" + sessionID, Kind: kind, SessionID: sessionID, Data: data, At: time.Now().UTC()}
	h.mu.RLock()
	var slow []*Subscription
	for _, sub := range h.sessions[sessionID] {
		if !deliver(sub, msg) {
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()
	h.evict(slow, msg)
}

// PublishAlert pushes a new or updated alert to the global alert stream.
func (h *Hub) PublishAlert(alert *models.ProctoringAlert) {
	msg := Message{Topic: AlertsTopic, Kind: "alert", SessionID: alert.SessionID, Data: alert, At: time.Now().UTC()}
	h.mu.RLock()
	var slow []*Subscription
	for _, sub := range h.alerts {
		if !deliver(sub, msg) {
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()
	h.evict(slow, msg)
}

// deliver requires h.mu held for reading, which keeps sub.ch open. It
// reports false when the buffer is full.
func deliver(sub *Subscription, msg Message) bool {
	select {
	case sub.ch <- msg:
		return true
	default:
		return false
	}
}

// evict disconnects subscribers that could not take msg. A subscriber seen
// as slow by concurrent publishers is only counted once.
func (h *Hub) evict(slow []*Subscription, msg Message) {
	if len(slow) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range slow {
		sub.once.Do(func() {
			h.remove(sub)
			close(sub.ch)
			h.evicted.Add(1)
			slog.Warn("fanout subscriber buffer full, disconnecting",
				"topic", msg.Topic, "kind", msg.Kind, "subscriber", sub.id)
		})
	}
}

// Subscribers returns the number of live subscriptions on both topics.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := len(h.alerts)
	for _, subs := range h.sessions {
		n += len(subs)
	}
	return n
}

// Evicted returns how many subscribers were disconnected on full buffers.
func (h *Hub) Evicted() int64 {
	return h.evicted.Load()
}

// Close unsubscribes everyone. Later subscriptions are returned closed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, sub := range h.alerts {
		sub.once.Do(func() { close(sub.ch) })
	}
	for _, subs := range h.sessions {
		for _, sub := range subs {
			sub.once.Do(func() { close(sub.ch) })
		}
	}
	h.alerts = make(map[uint64]*Subscription)
	h.sessions = make(map[string]map[uint64]*Subscription)
}
