package eventstream

import (
	"sync"
	"time"
)

// ProactiveMessage is an assistant-initiated message delivered to a
// session's live subscribers outside any turn.
type ProactiveMessage struct {
	SessionID string    `json:"session_id"`
	Content   string    `json:"content"`
	JobID     string    `json:"job_id,omitempty"`
	EmittedAt time.Time `json:"emitted_at"`
}

// subscriberBuffer bounds each subscriber channel; a slow subscriber drops
// messages rather than blocking publishers.
const subscriberBuffer = 16

// Broker is an in-process publish/subscribe channel scoped per session.
// Subscriptions carry an explicit unsubscribe tied to the connection's
// lifetime; there is no global listener list.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan ProactiveMessage]struct{}
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[chan ProactiveMessage]struct{}),
	}
}

// Subscribe registers a subscriber for a session and returns the delivery
// channel plus an unsubscribe function. Callers must invoke unsubscribe when
// the connection ends; the channel is closed by it.
func (b *Broker) Subscribe(sessionID string) (<-chan ProactiveMessage, func()) {
	ch := make(chan ProactiveMessage, subscriberBuffer)

	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[chan ProactiveMessage]struct{})
	}
	b.subs[sessionID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[sessionID], ch)
			if len(b.subs[sessionID]) == 0 {
				delete(b.subs, sessionID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}

	return ch, unsubscribe
}

// Publish delivers msg to every live subscriber of the session. Delivery is
// non-blocking: a subscriber whose buffer is full misses the message.
func (b *Broker) Publish(sessionID string, msg ProactiveMessage) {
	msg.SessionID = sessionID
	if msg.EmittedAt.IsZero() {
		msg.EmittedAt = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs[sessionID] {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Subscribers reports the live subscriber count for a session.
func (b *Broker) Subscribers(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}
