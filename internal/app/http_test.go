package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"progressdb/pkg/codec"
	"progressdb/pkg/config"
)

const testToken = "T"

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := config.Config{
		Port:      0,
		Token:     testToken,
		Directory: t.TempDir(),
	}
	a, err := New(cfg, "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.shutdown(context.Background()) })
	return a
}

func authed(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer "+testToken)
	return req
}

func TestPutThenGetRoundTrip(t *testing.T) {
	a := newTestApp(t)
	h := a.router()

	putReq := authed(httptest.NewRequest(http.MethodPost, "/store/dGVzdC1rZXk=", bytes.NewReader([]byte("hello"))))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, putReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("put: got %d, want 200", rec.Code)
	}

	getReq := authed(httptest.NewRequest(http.MethodGet, "/store/dGVzdC1rZXk=", nil))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, getReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: got %d, want 200", rec.Code)
	}
	var body codec.GetResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Value != "aGVsbG8=" {
		t.Fatalf("got %q, want aGVsbG8=", body.Value)
	}
}

func TestGetAbsentKeyReturns404(t *testing.T) {
	a := newTestApp(t)
	h := a.router()

	req := authed(httptest.NewRequest(http.MethodGet, "/store/bm9wZQ==", nil))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("got %d, want 404", rec.Code)
	}
}

func TestRangeOrdered(t *testing.T) {
	a := newTestApp(t)
	h := a.router()

	for _, k := range []string{"a", "b", "c"} {
		req := authed(httptest.NewRequest(http.MethodPost, "/store/"+k, bytes.NewReader([]byte(k))))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("put %s: got %d", k, rec.Code)
		}
	}

	req := authed(httptest.NewRequest(http.MethodGet, "/store?start=a&end=z", nil))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("range: got %d, want 200", rec.Code)
	}
	var body codec.RangeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(body.Results))
	}
	for i, want := range []string{"a", "b", "c"} {
		if body.Results[i].Key != want {
			t.Fatalf("entry %d: got %q, want %q", i, body.Results[i].Key, want)
		}
	}
}

func TestOversizeBodyRejected(t *testing.T) {
	a := newTestApp(t)
	h := a.router()

	oversized := bytes.Repeat([]byte{'x'}, 20*1024*1024+1)
	req := authed(httptest.NewRequest(http.MethodPost, "/store/k", bytes.NewReader(oversized)))
	req.ContentLength = int64(len(oversized))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("got %d, want 413", rec.Code)
	}
}

func TestRapidSameKeyWriteRateLimited(t *testing.T) {
	a := newTestApp(t)
	h := a.router()

	first := authed(httptest.NewRequest(http.MethodPost, "/store/k", bytes.NewReader([]byte("v1"))))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, first)
	if rec.Code != http.StatusOK {
		t.Fatalf("first put: got %d, want 200", rec.Code)
	}

	second := authed(httptest.NewRequest(http.MethodPost, "/store/k", bytes.NewReader([]byte("v2"))))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, second)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second put: got %d, want 429", rec.Code)
	}
}

func TestMissingTokenIsUnauthorized(t *testing.T) {
	a := newTestApp(t)
	h := a.router()

	req := httptest.NewRequest(http.MethodGet, "/store/k", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401", rec.Code)
	}
}

func TestStreamPublishToUnknownTopicSucceeds(t *testing.T) {
	a := newTestApp(t)
	h := a.router()

	req := authed(httptest.NewRequest(http.MethodPost, "/stream/s", bytes.NewReader([]byte("hi"))))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
}

func TestOversizeTopicNamePublishRejected(t *testing.T) {
	a := newTestApp(t)
	h := a.router()

	name := bytes.Repeat([]byte{'n'}, 513)
	req := authed(httptest.NewRequest(http.MethodPost, "/stream/"+string(name), bytes.NewReader([]byte("hi"))))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("got %d, want 413", rec.Code)
	}
}

func TestHealthzAndReadyzAreUnauthenticated(t *testing.T) {
	a := newTestApp(t)
	h := a.router()

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: got %d, want 200", path, rec.Code)
		}
	}
}
