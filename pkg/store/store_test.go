package store

import (
	"testing"
	"time"

	"progressdb/pkg/apperr"
)

func openTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir, cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetSynchronous(t *testing.T) {
	s := openTestStore(t, Config{})
	if err := s.Put([]byte("k"), []byte("v1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, err := s.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(v) != "v1" {
		t.Fatalf("got %q, want v1", v)
	}
}

func TestGetAbsentKeyIsNotFound(t *testing.T) {
	s := openTestStore(t, Config{})
	_, err := s.Get([]byte("nope"))
	var ae *apperr.Error
	if !apperr.As(err, &ae) || ae.Kind != apperr.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestWriteRateLimitPerKey(t *testing.T) {
	s := openTestStore(t, Config{})
	if err := s.Put([]byte("k"), []byte("v1")); err != nil {
		t.Fatalf("first put: %v", err)
	}
	err := s.Put([]byte("k"), []byte("v2"))
	var ae *apperr.Error
	if !apperr.As(err, &ae) || ae.Kind != apperr.RateLimited {
		t.Fatalf("expected RateLimited on rapid second put, got %v", err)
	}
	// A different key is unaffected.
	if err := s.Put([]byte("other"), []byte("v")); err != nil {
		t.Fatalf("put to different key: %v", err)
	}
}

func TestRangeOrderedPrefix(t *testing.T) {
	s := openTestStore(t, Config{})
	for _, kv := range [][2]string{{"a", "a"}, {"b", "b"}, {"c", "c"}} {
		if err := s.Put([]byte(kv[0]), []byte(kv[1])); err != nil {
			t.Fatalf("put %s: %v", kv[0], err)
		}
	}
	got, err := s.Range([]byte("a"), []byte("z"), -1)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	for i, want := range []string{"a", "b", "c"} {
		if string(got[i].Key) != want {
			t.Fatalf("entry %d: got key %q, want %q", i, got[i].Key, want)
		}
	}
}

func TestRangeLimitZeroReturnsNothing(t *testing.T) {
	s := openTestStore(t, Config{})
	if err := s.Put([]byte("a"), []byte("a")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Range(nil, nil, 0)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected zero results for limit=0, got %d", len(got))
	}
}

func TestRangeStartAfterEndIsEmpty(t *testing.T) {
	s := openTestStore(t, Config{})
	got, err := s.Range([]byte("z"), []byte("a"), -1)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result for start > end, got %d", len(got))
	}
}

func TestDelayedVisibility(t *testing.T) {
	s := openTestStore(t, Config{ConsistencyBoundMin: 0, ConsistencyBoundMax: 1})
	if err := s.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	// Immediately after acceptance the write may still be pending.
	_, err := s.Get([]byte("k"))
	if err == nil {
		return // draw of 0s delay is possible; nothing further to assert
	}
	var ae *apperr.Error
	if !apperr.As(err, &ae) || ae.Kind != apperr.NotFound {
		t.Fatalf("expected NotFound before visibility, got %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v, err := s.Get([]byte("k")); err == nil {
			if string(v) != "v" {
				t.Fatalf("visible value %q, want v", v)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("write never became visible within consistency_bound_max + slack")
}

func TestLaterAcceptedWriteWinsUnderOutOfOrderVisibility(t *testing.T) {
	s := openTestStore(t, Config{})
	seq1 := s.pending.enqueue([]byte("k"), []byte("first"), time.Now().Add(50*time.Millisecond))
	seq2 := s.pending.enqueue([]byte("k"), []byte("second"), time.Now())
	// Apply the later-accepted, earlier-visible write first to simulate
	// out-of-order timer firing.
	s.pending.applyNow(seq2)
	s.pending.applyNow(seq1)
	v, err := s.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(v) != "second" {
		t.Fatalf("expected later-accepted write %q to win, got %q", "second", v)
	}
}
