// Package stream implements the realtime pub/sub engine: a name-indexed
// registry of broadcast topics with multi-subscriber fan-out and lossy
// backpressure handling.
package stream

import (
	"sync"

	"go.uber.org/zap"

	"progressdb/pkg/apperr"
	"progressdb/pkg/logger"
	"progressdb/pkg/metrics"
)

const (
	// MaxNameBytes is the maximum length of a topic name.
	MaxNameBytes = 512
	// MaxPayloadBytes is the maximum length of a published payload.
	MaxPayloadBytes = 20 * 1024 * 1024
	// DefaultSubscriberCapacity is the default per-subscriber channel
	// depth; a slow subscriber that falls behind loses the oldest
	// undelivered message (lossy broadcast).
	DefaultSubscriberCapacity = 128
)

// Registry is the concurrent-safe, name-indexed topic table described by
// spec §4.2. A single registry-wide lock serializes topic creation and
// teardown so a publish arriving as the last subscriber disconnects can
// never resurrect an already-removed topic; broadcast itself runs outside
// this lock once a topic handle is obtained, so publishes to different
// topics still proceed concurrently.
type Registry struct {
	capacity int

	mu     sync.Mutex
	topics map[string]*topic
}

// NewRegistry builds an empty topic registry. capacity <= 0 uses
// DefaultSubscriberCapacity.
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultSubscriberCapacity
	}
	return &Registry{capacity: capacity, topics: make(map[string]*topic)}
}

func validateName(name string) error {
	if len(name) < 1 || len(name) > MaxNameBytes {
		return apperr.New(apperr.PayloadTooLarge, "topic name length out of bounds")
	}
	return nil
}

// Publish validates the payload, gets-or-creates the named topic, and
// fans the payload out to every current subscriber. It reports success
// whether or not any subscriber was present (spec §4.2 Publish path).
func (r *Registry) Publish(name string, payload []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	if len(payload) > MaxPayloadBytes {
		return apperr.New(apperr.PayloadTooLarge, "payload exceeds maximum size")
	}
	t := r.acquireOrCreate(name)
	t.beginPublish()
	defer func() {
		t.endPublish()
		r.releaseIfEmpty(name, t)
	}()
	metrics.StreamPublishes.Inc()
	t.broadcast(payload)
	return nil
}

// Subscribe validates the name, gets-or-creates the named topic, and
// registers a new receiver. The returned Subscription must be closed by
// the caller when the connection ends.
func (r *Registry) Subscribe(name string) (*Subscription, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	for {
		t := r.acquireOrCreate(name)
		sub := t.addSubscriber(r.capacity)
		// A teardown may have removed t between the lookup and
		// addSubscriber; a receiver on a removed topic would never see a
		// publish, so look the name up again in that case.
		r.mu.Lock()
		current := r.topics[name] == t
		r.mu.Unlock()
		if !current {
			t.removeSubscriber(sub)
			continue
		}
		metrics.StreamSubscribers.Inc()
		return &Subscription{
			topic:    t,
			registry: r,
			name:     name,
			recv:     sub,
		}, nil
	}
}

func (r *Registry) acquireOrCreate(name string) *topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[name]
	if !ok {
		t = newTopic(name)
		r.topics[name] = t
		metrics.StreamTopics.Inc()
		logger.Log.Debug("topic_created", zap.String("name", name))
	}
	return t
}

// releaseIfEmpty tears the topic down when it has no subscribers and no
// in-flight publish, per spec §4.2's lifecycle table. Serializing this
// against acquireOrCreate under the same registry lock prevents a publish
// racing a teardown from resurrecting a removed topic silently (spec §9).
func (r *Registry) releaseIfEmpty(name string, t *topic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.topics[name] != t {
		return // already replaced by a racing create
	}
	if t.isEmpty() {
		delete(r.topics, name)
		metrics.StreamTopics.Dec()
		logger.Log.Debug("topic_removed", zap.String("name", name))
	}
}

// Subscription is bound to a single subscribe call, per spec §9's resolved
// open question that each subscribe call owns its own cursor.
type Subscription struct {
	topic    *topic
	registry *Registry
	name     string
	recv     *subscriber
}

// Messages returns the channel of binary payloads for this subscription.
func (s *Subscription) Messages() <-chan []byte {
	return s.recv.ch
}

// Close removes this subscriber from its topic and tears the topic down
// if it is now empty. It is safe to call more than once.
func (s *Subscription) Close() {
	if s.topic.removeSubscriber(s.recv) {
		metrics.StreamSubscribers.Dec()
	}
	s.registry.releaseIfEmpty(s.name, s.topic)
}
