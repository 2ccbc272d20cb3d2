package stream

import (
	"sync"

	"go.uber.org/zap"

	"progressdb/pkg/logger"
	"progressdb/pkg/metrics"
)

// subscriber is one receiver endpoint on a topic's broadcast channel. Each
// holds its own bounded channel; a slow subscriber drops its oldest
// undelivered message rather than blocking the publisher (spec §4.2).
type subscriber struct {
	ch chan []byte
}

// topic is spec §3's Topic: a name, a set of subscriber channels, and a
// count of in-flight publishes. A topic is "active" (kept in the
// registry) while subscriberCount > 0 or inFlightPublishes > 0.
type topic struct {
	name string

	mu                sync.Mutex
	subscribers       map[*subscriber]struct{}
	inFlightPublishes int
}

func newTopic(name string) *topic {
	return &topic{
		name:        name,
		subscribers: make(map[*subscriber]struct{}),
	}
}

func (t *topic) addSubscriber(capacity int) *subscriber {
	sub := &subscriber{ch: make(chan []byte, capacity)}
	t.mu.Lock()
	t.subscribers[sub] = struct{}{}
	t.mu.Unlock()
	return sub
}

func (t *topic) removeSubscriber(sub *subscriber) bool {
	t.mu.Lock()
	_, ok := t.subscribers[sub]
	if ok {
		delete(t.subscribers, sub)
		close(sub.ch)
	}
	t.mu.Unlock()
	return ok
}

func (t *topic) beginPublish() {
	t.mu.Lock()
	t.inFlightPublishes++
	t.mu.Unlock()
}

func (t *topic) endPublish() {
	t.mu.Lock()
	t.inFlightPublishes--
	t.mu.Unlock()
}

func (t *topic) isEmpty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subscribers) == 0 && t.inFlightPublishes == 0
}

// broadcast fans payload out to every current subscriber. Publish never
// blocks on a dead or slow subscriber: if a subscriber's channel is full,
// the oldest queued message is dropped to make room, so one slow reader
// cannot stall delivery to the others (spec §4.2 Failure semantics).
//
// The whole scan runs under t.mu, the same lock removeSubscriber closes a
// channel under: every send here is non-blocking (select with a default
// case), so holding the lock costs nothing and guarantees broadcast can
// never send on a channel removeSubscriber is concurrently closing.
func (t *topic) broadcast(payload []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for sub := range t.subscribers {
		select {
		case sub.ch <- payload:
			metrics.StreamDeliveries.Inc()
		default:
			// Full: drop the oldest queued message, then retry once.
			select {
			case <-sub.ch:
				metrics.StreamDrops.Inc()
			default:
			}
			select {
			case sub.ch <- payload:
				metrics.StreamDeliveries.Inc()
			default:
				logger.Log.Debug("subscriber_message_dropped", zap.String("topic", t.name))
				metrics.StreamDrops.Inc()
			}
		}
	}
}
