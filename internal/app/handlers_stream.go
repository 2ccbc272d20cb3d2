package app

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"

	"progressdb/pkg/logger"
)

var upgrader = websocket.Upgrader{
	// CORS is already enforced by the shared middleware; the upgrader
	// itself accepts any origin so browser SDKs behind that middleware
	// can connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStreamPublish implements POST /stream/{name} (spec §4.2 Publish
// path): reads the raw body and fans it out to current subscribers.
func (a *App) handleStreamPublish(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	bb, err := readBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	payload := append([]byte(nil), bb.B...)
	bytebufferpool.Put(bb)

	if err := a.streams.Publish(name, payload); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleStreamSubscribe implements GET /stream/{name} (spec §4.2
// Subscribe path): upgrades to WebSocket and forwards published payloads
// as binary frames until the peer disconnects.
func (a *App) handleStreamSubscribe(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	sub, err := a.streams.Subscribe(name)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket_upgrade_failed", "name", name, "error", err)
		sub.Close()
		return
	}
	a.registerConn(conn)
	defer a.unregisterConn(conn)

	// stop lets the read loop tear the pump down immediately on disconnect,
	// rather than waiting for the topic to publish again or for a write to
	// fail: without it a quiet topic never notices its peer is gone.
	stop := make(chan struct{})
	done := make(chan struct{})
	err = a.pool.Submit(func() {
		defer close(done)
		defer sub.Close()
		defer conn.Close()
		for {
			select {
			case payload, ok := <-sub.Messages():
				if !ok {
					return
				}
				if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
					logger.Log.Debug("websocket_write_failed", zap.String("name", name), zap.Error(err))
					return
				}
			case <-stop:
				return
			}
		}
	})
	if err != nil {
		logger.Error("worker_pool_submit_failed", "error", err)
		sub.Close()
		conn.Close()
		return
	}

	// Drain reads to notice a client-initiated close; discard any data.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	close(stop)
	<-done
}
