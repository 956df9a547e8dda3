// Package live implements the push side of the store's live-query contract:
// a topic-keyed broker that fans out change notifications to cancellable
// subscriptions.
package live

import (
	"sync"

	"github.com/genericchat/backend/internal/domain"
)

// Topic names for the two observable collections.
func ConversationsTopic(owner domain.CanonicalKey) string {
	return "conversations/" + string(owner)
}

func MessagesTopic(conversationID string) string {
	return "messages/" + conversationID
}

// DefaultBuffer is the per-subscription notification buffer. A subscriber
// that falls this far behind is cancelled rather than blocking publishers.
const DefaultBuffer = 16

// Broker manages subscriptions keyed by topic and fans published
// notifications out to them. Publishing never blocks.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[*Subscription]struct{}),
	}
}

// Subscription is a cancellable stream of change notifications for one topic.
// Updates carries one signal per change; the current collection state is
// re-read by the consumer, mirroring a value-observer on the backing node.
type Subscription struct {
	broker *Broker
	topic  string
	ch     chan struct{}
	once   sync.Once
}

// Updates returns the notification channel. It is closed when the
// subscription is cancelled.
func (s *Subscription) Updates() <-chan struct{} {
	return s.ch
}

// Cancel detaches the subscription and closes its channel. Safe to call more
// than once and concurrently with Publish.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.broker.remove(s)
		close(s.ch)
	})
}

// Subscribe registers a new subscription for the topic.
func (b *Broker) Subscribe(topic string) *Subscription {
	s := &Subscription{
		broker: b,
		topic:  topic,
		ch:     make(chan struct{}, DefaultBuffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*Subscription]struct{})
	}
	b.subs[topic][s] = struct{}{}
	return s
}

// Publish notifies every subscriber of the topic. Subscribers whose buffers
// are full are cancelled; a consumer that slow has lost the live view anyway.
func (b *Broker) Publish(topic string) {
	b.mu.RLock()
	var stale []*Subscription
	for s := range b.subs[topic] {
		select {
		case s.ch <- struct{}{}:
		default:
			stale = append(stale, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range stale {
		s.Cancel()
	}
}

func (b *Broker) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.subs[s.topic]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(b.subs, s.topic)
		}
	}
}
