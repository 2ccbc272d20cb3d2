package app

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"progressdb/pkg/metrics"
)

// wsURL rewrites an httptest.Server's http(s) base URL to ws(s) and appends
// path, since gorilla/websocket dials ws:// URLs.
func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestStreamSubscribeReceivesPublishedBinaryFrame(t *testing.T) {
	a := newTestApp(t)
	srv := httptest.NewServer(a.router())
	defer srv.Close()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+testToken)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/stream/topic-a"), header)
	if err != nil {
		t.Fatalf("dial: %v (status %v)", err, resp)
	}
	defer conn.Close()

	putReq := authed(httptest.NewRequest(http.MethodPost, "/stream/topic-a", bytes.NewReader([]byte("hello"))))
	rec := httptest.NewRecorder()
	a.router().ServeHTTP(rec, putReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("publish: got %d, want 200", rec.Code)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if msgType != websocket.BinaryMessage {
		t.Fatalf("got message type %d, want BinaryMessage", msgType)
	}
	if string(payload) != "hello" {
		t.Fatalf("got %q, want hello", payload)
	}
}

func TestStreamSubscribeOversizeNameRejectsUpgrade(t *testing.T) {
	a := newTestApp(t)
	srv := httptest.NewServer(a.router())
	defer srv.Close()

	name := strings.Repeat("n", 513)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+testToken)
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/stream/"+name), header)
	if err == nil {
		t.Fatal("expected the handshake to fail for an oversize topic name")
	}
	if resp == nil {
		t.Fatalf("expected an HTTP response accompanying the failed handshake, got none (err: %v)", err)
	}
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("got status %d, want 413", resp.StatusCode)
	}
}

func TestStreamSubscribeDisconnectTearsDownTopic(t *testing.T) {
	a := newTestApp(t)
	srv := httptest.NewServer(a.router())
	defer srv.Close()

	baseline := testutil.ToFloat64(metrics.StreamTopics)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+testToken)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/stream/ephemeral"), header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if testutil.ToFloat64(metrics.StreamTopics) == baseline {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("topic was not torn down after client disconnect (still %v active, baseline %v)",
		testutil.ToFloat64(metrics.StreamTopics), baseline)
}
