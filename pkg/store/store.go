// Package store implements the durable key-value engine: a pebble-backed
// ordered store with per-key write rate limiting and a delayed-visibility
// queue that models bounded eventual consistency.
package store

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"progressdb/pkg/apperr"
	"progressdb/pkg/logger"
	"progressdb/pkg/metrics"
)

const (
	// MaxKeyBytes is the maximum length of a key, fixed by the external
	// contract this simulator models.
	MaxKeyBytes = 512
	// MaxValueBytes is the maximum length of a value: 20 MiB.
	MaxValueBytes = 20 * 1024 * 1024
)

// Config controls the store's delayed-visibility window.
type Config struct {
	// ConsistencyBoundMin/Max are the inclusive bounds, in seconds, from
	// which each write's visibility delay is drawn independently. When
	// both are zero the store behaves synchronously.
	ConsistencyBoundMin uint32
	ConsistencyBoundMax uint32
}

// Store is the durable ordered key/value engine described by spec §4.1: a
// pebble handle, a per-key rate limiter, and a delayed-visibility scheduler.
type Store struct {
	cfg Config
	db  *pebble.DB

	limiters *rateCounters
	pending  *pendingQueue

	mu             sync.Mutex
	lastAppliedSeq map[string]uint64
}

// Open opens (or creates) the pebble database at dir and starts the
// delayed-visibility scheduler.
func Open(dir string, cfg Config) (*Store, error) {
	if cfg.ConsistencyBoundMin > cfg.ConsistencyBoundMax {
		return nil, fmt.Errorf("consistency-bound-min must be <= consistency-bound-max")
	}
	logger.Log.Info("opening_store_db", zap.String("path", dir))
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		logger.Log.Error("store_db_open_failed", zap.String("path", dir), zap.Error(err))
		return nil, fmt.Errorf("open store database: %w", err)
	}
	s := &Store{
		cfg:            cfg,
		db:             db,
		limiters:       newRateCounters(),
		lastAppliedSeq: make(map[string]uint64),
	}
	s.pending = newPendingQueue(s.apply)
	metrics.SetStorePendingDepthFunc(func() float64 { return float64(s.PendingDepth()) })
	logger.Log.Info("store_opened", zap.String("path", dir))
	return s, nil
}

// Close force-applies all outstanding pending writes (advancing time to
// completion, per spec §5's graceful shutdown contract) and closes the
// pebble handle.
func (s *Store) Close() error {
	s.pending.drainAll()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close store database: %w", err)
	}
	logger.Log.Info("store_closed")
	return nil
}

// Put validates and accepts a write, returning once it has been scheduled
// (not once it becomes visible). The value becomes readable at a random
// time within [ConsistencyBoundMin, ConsistencyBoundMax] seconds.
func (s *Store) Put(key, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if len(value) > MaxValueBytes {
		return apperr.New(apperr.PayloadTooLarge, "value exceeds maximum size")
	}
	if !s.limiters.allow(string(key)) {
		metrics.StoreRateLimited.Inc()
		return apperr.New(apperr.RateLimited, "write rate limit exceeded for key")
	}
	metrics.StorePuts.Inc()

	delay := s.drawDelay()
	visibleAt := time.Now().Add(delay)
	acceptSeq := s.pending.enqueue(key, value, visibleAt)
	logger.Log.Debug("write_accepted",
		zap.String("key", string(key)),
		zap.Duration("delay", delay),
		zap.Uint64("accept_seq", acceptSeq),
	)
	if delay <= 0 {
		// Synchronous mode: apply inline so callers observe a
		// linearized in-memory-map-like sequence, per invariant 2.
		s.pending.applyNow(acceptSeq)
	}
	return nil
}

// Get returns the currently visible value for key, or a NotFound error.
func (s *Store) Get(key []byte) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	metrics.StoreGets.Inc()
	v, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		metrics.StoreGetMisses.Inc()
		return nil, apperr.New(apperr.NotFound, "key not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "read key", err)
	}
	out := append([]byte(nil), v...)
	_ = closer.Close()
	return out, nil
}

// RangeEntry is one (key, value) pair returned by Range.
type RangeEntry struct {
	Key   []byte
	Value []byte
}

// Range scans the visible store in ascending byte order over [start, end),
// returning at most limit entries. A nil start/end means unbounded on that
// side; a nil limit (negative) means unlimited. limit == 0 returns no
// results, per spec §9's resolved open question.
func (s *Store) Range(start, end []byte, limit int) ([]RangeEntry, error) {
	metrics.StoreRanges.Inc()
	if limit == 0 {
		return nil, nil
	}
	if start != nil && end != nil && compareBytes(start, end) >= 0 {
		return nil, nil
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: start,
		UpperBound: end,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "open range iterator", err)
	}
	defer iter.Close()

	var out []RangeEntry
	valid := iter.First()
	if start != nil {
		valid = iter.SeekGE(start)
	}
	for ; valid; valid = iter.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, RangeEntry{
			Key:   append([]byte(nil), iter.Key()...),
			Value: append([]byte(nil), iter.Value()...),
		})
	}
	if err := iter.Error(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "range scan", err)
	}
	return out, nil
}

// PendingDepth reports the number of writes accepted but not yet visible,
// exposed as a metrics gauge.
func (s *Store) PendingDepth() int {
	return s.pending.depth()
}

func (s *Store) drawDelay() time.Duration {
	lo, hi := s.cfg.ConsistencyBoundMin, s.cfg.ConsistencyBoundMax
	if lo == hi {
		return time.Duration(lo) * time.Second
	}
	span := hi - lo
	secs := lo + uint32(rand.Int63n(int64(span)+1))
	return time.Duration(secs) * time.Second
}

// apply is invoked by the pending queue's scheduler when a write's
// visible_at has arrived. It guards against out-of-order timer firing: a
// write only applies if no later-accepted write to the same key has
// already applied, so the later-accepted write remains the final visible
// value (spec §4.1.1's tie-breaking rule and invariant 1).
func (s *Store) apply(pw pendingWrite) {
	key := string(pw.key)
	s.mu.Lock()
	if last, ok := s.lastAppliedSeq[key]; ok && last >= pw.acceptSeq {
		s.mu.Unlock()
		logger.Log.Debug("write_superseded", zap.String("key", key), zap.Uint64("accept_seq", pw.acceptSeq))
		return
	}
	s.lastAppliedSeq[key] = pw.acceptSeq
	s.mu.Unlock()

	backoff := 10 * time.Millisecond
	for attempt := 0; attempt < 5; attempt++ {
		if err := s.db.Set(pw.key, pw.value, pebble.Sync); err != nil {
			logger.Log.Error("write_apply_failed", zap.String("key", key), zap.Error(err), zap.Int("attempt", attempt))
			time.Sleep(backoff)
			backoff *= 2
			continue
		}
		logger.Log.Debug("write_applied", zap.String("key", key), zap.Uint64("accept_seq", pw.acceptSeq))
		return
	}
	logger.Log.Error("write_apply_gave_up", zap.String("key", key))
}

func validateKey(key []byte) error {
	if len(key) < 1 || len(key) > MaxKeyBytes {
		return apperr.New(apperr.PayloadTooLarge, "key length out of bounds")
	}
	return nil
}

func compareBytes(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// rateCounters implements spec §4.1's RateCounter: at most one accepted
// write per key per second, grounded in the teacher's limiterPool
// (pkg/auth/limiter.go), which pairs golang.org/x/time/rate with a
// concurrent map keyed by identity.
type rateCounters struct {
	mu sync.Mutex
	m  map[string]*rate.Limiter
}

func newRateCounters() *rateCounters {
	return &rateCounters{m: make(map[string]*rate.Limiter)}
}

func (c *rateCounters) allow(key string) bool {
	c.mu.Lock()
	l, ok := c.m[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(1), 1)
		c.m[key] = l
	}
	c.mu.Unlock()
	return l.Allow()
}

// timingWheelTick and timingWheelSlots size the scheduler used by
// pendingQueue; both must be strictly positive to satisfy timingwheel's
// constructor even when the configured consistency bound is zero.
const (
	timingWheelTick  = 100 * time.Millisecond
	timingWheelSlots = 600
)
