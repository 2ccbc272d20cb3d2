// Package app wires the store engine, stream engine, and HTTP/WebSocket
// front end together into a single running server, following the
// teacher's internal/app.App lifecycle shape.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"progressdb/pkg/auth"
	"progressdb/pkg/banner"
	"progressdb/pkg/config"
	"progressdb/pkg/logger"
	"progressdb/pkg/store"
	"progressdb/pkg/stream"
)

// workerPoolSize bounds the shared pool that runs subscriber write-pumps,
// per spec §5's "parallel worker pool" model. Publish fan-out runs inline
// in the publish handler, not on this pool.
const workerPoolSize = 256

// App encapsulates the simulator's components and lifecycle: config,
// store engine, stream engine, worker pool, and HTTP server.
type App struct {
	cfg     config.Config
	version string

	store   *store.Store
	streams *stream.Registry
	pool    *ants.Pool
	token   auth.Token

	srv *http.Server

	shuttingDown chan struct{}

	wsMu    sync.Mutex
	wsConns map[*websocket.Conn]struct{}
}

// New opens the store, builds the stream registry and worker pool, and
// returns an App ready to Run. It does not start the HTTP server.
func New(cfg config.Config, version string) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.Directory, store.Config{
		ConsistencyBoundMin: cfg.ConsistencyBoundMin,
		ConsistencyBoundMax: cfg.ConsistencyBoundMax,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	pool, err := ants.NewPool(workerPoolSize)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("build worker pool: %w", err)
	}
	a := &App{
		cfg:          cfg,
		version:      version,
		store:        st,
		streams:      stream.NewRegistry(stream.DefaultSubscriberCapacity),
		pool:         pool,
		token:        auth.New(cfg.Token),
		shuttingDown: make(chan struct{}),
		wsConns:      make(map[*websocket.Conn]struct{}),
	}
	return a, nil
}

// registerConn tracks a live WebSocket connection so shutdown can close it
// with code 1001, per spec §5's graceful shutdown contract.
func (a *App) registerConn(c *websocket.Conn) {
	a.wsMu.Lock()
	a.wsConns[c] = struct{}{}
	a.wsMu.Unlock()
}

func (a *App) unregisterConn(c *websocket.Conn) {
	a.wsMu.Lock()
	delete(a.wsConns, c)
	a.wsMu.Unlock()
}

func (a *App) closeAllConns() {
	a.wsMu.Lock()
	conns := make([]*websocket.Conn, 0, len(a.wsConns))
	for c := range a.wsConns {
		conns = append(conns, c)
	}
	a.wsMu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, c := range conns {
		_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = c.Close()
	}
}

// Run starts the HTTP server and blocks until ctx is canceled or a fatal
// server error occurs, then performs a graceful shutdown.
func (a *App) Run(ctx context.Context) error {
	banner.Print(a.cfg, a.version)

	a.srv = &http.Server{
		Addr:    a.cfg.Addr(),
		Handler: a.router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("http_listening", zap.String("addr", a.cfg.Addr()))
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			a.shutdown(context.Background())
			return err
		}
	}
	return a.shutdown(context.Background())
}

// shutdown drains in-flight handlers, force-applies pending writes,
// closes the worker pool, and closes the store, per spec §5's graceful
// shutdown contract.
func (a *App) shutdown(ctx context.Context) error {
	close(a.shuttingDown)
	logger.Log.Info("shutdown_begin")

	if a.srv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(shutdownCtx); err != nil {
			logger.Log.Warn("http_shutdown_error", zap.Error(err))
		}
	}

	a.closeAllConns()
	a.pool.Release()

	if err := a.store.Close(); err != nil {
		logger.Log.Error("store_close_error", zap.Error(err))
		return err
	}
	logger.Log.Info("shutdown_complete")
	return nil
}
