package store

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/RussellLuo/timingwheel"
	"github.com/tidwall/btree"
)

// pendingWrite is spec §3's PendingWrite tuple, plus the acceptance
// sequence used to break ties when two writes to the same key share a
// visible_at (spec §4.1.1: the earlier-accepted write applies first).
type pendingWrite struct {
	key       []byte
	value     []byte
	visibleAt time.Time
	acceptSeq uint64
}

// pendingKey orders the btree index by (visibleAt, acceptSeq), giving the
// FIFO tie-break spec §4.1.1 requires and a way to drain in visible_at
// order during shutdown.
type pendingKey struct {
	visibleAt time.Time
	acceptSeq uint64
}

func lessPendingKey(a, b pendingKey) bool {
	if a.visibleAt.Equal(b.visibleAt) {
		return a.acceptSeq < b.acceptSeq
	}
	return a.visibleAt.Before(b.visibleAt)
}

// pendingQueue implements spec design note 9(b): per-write independent
// timer tasks scheduled on a timing wheel, each calling back into the
// store's apply function on expiry. A tidwall/btree index tracks
// outstanding entries in (visibleAt, acceptSeq) order so shutdown can
// drain them deterministically and metrics can report how many entries are
// pending, mirroring dborchard-cometkv's hwt_btree memtable which pairs the
// same two libraries for the same reason.
type pendingQueue struct {
	wheel *timingwheel.TimingWheel
	apply func(pendingWrite)

	mu      sync.Mutex
	tree    *btree.BTreeG[pendingKey]
	entries map[pendingKey]pendingWrite

	seq uint64
}

func newPendingQueue(apply func(pendingWrite)) *pendingQueue {
	q := &pendingQueue{
		wheel:   timingwheel.NewTimingWheel(timingWheelTick, timingWheelSlots),
		apply:   apply,
		tree:    btree.NewBTreeG(lessPendingKey),
		entries: make(map[pendingKey]pendingWrite),
	}
	q.wheel.Start()
	return q
}

// enqueue schedules pw for application at visibleAt and returns the
// acceptance sequence number assigned to it. An entry whose visibleAt has
// already passed is not scheduled; it waits for applyNow or drainAll.
func (q *pendingQueue) enqueue(key, value []byte, visibleAt time.Time) uint64 {
	seq := atomic.AddUint64(&q.seq, 1)
	pw := pendingWrite{
		key:       append([]byte(nil), key...),
		value:     append([]byte(nil), value...),
		visibleAt: visibleAt,
		acceptSeq: seq,
	}
	pk := pendingKey{visibleAt: visibleAt, acceptSeq: seq}

	q.mu.Lock()
	q.tree.Set(pk)
	q.entries[pk] = pw
	q.mu.Unlock()

	// An entry that is already due gets no timer: the wheel would run it at
	// once on its own goroutine, racing the caller's applyNow.
	if delay := time.Until(visibleAt); delay > 0 {
		q.wheel.AfterFunc(delay, func() {
			q.fire(pk)
		})
	}
	return seq
}

func (q *pendingQueue) fire(pk pendingKey) {
	q.mu.Lock()
	pw, ok := q.entries[pk]
	if ok {
		q.tree.Delete(pk)
		delete(q.entries, pk)
	}
	q.mu.Unlock()
	if ok {
		q.apply(pw)
	}
}

// applyNow forces immediate application of a single pending entry by its
// acceptance sequence, used for the synchronous (0,0) consistency bound
// case so a put is visible before the caller's next observation.
func (q *pendingQueue) applyNow(seq uint64) {
	q.mu.Lock()
	var target pendingKey
	var found bool
	q.tree.Ascend(pendingKey{}, func(pk pendingKey) bool {
		if pk.acceptSeq == seq {
			target = pk
			found = true
			return false
		}
		return true
	})
	q.mu.Unlock()
	if found {
		q.fire(target)
	}
}

// drainAll force-applies every outstanding pending write immediately, in
// visible_at order, per spec §5's graceful-shutdown contract ("flushes
// pending writes by advancing time to completion").
func (q *pendingQueue) drainAll() {
	for {
		q.mu.Lock()
		var next (*pendingKey)
		q.tree.Ascend(pendingKey{}, func(pk pendingKey) bool {
			k := pk
			next = &k
			return false
		})
		q.mu.Unlock()
		if next == nil {
			return
		}
		q.fire(*next)
	}
}

// depth reports the number of writes accepted but not yet visible.
func (q *pendingQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tree.Len()
}
