package app

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"progressdb/pkg/auth"
)

var openPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// router builds the full HTTP routing table (spec §4.3.4), wrapped with
// CORS, size enforcement, and bearer-token authentication.
func (a *App) router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", a.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.handleReadyz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.Handle("/docs/openapi.json", http.StripPrefix("/docs", http.FileServer(http.Dir("./docs")))).Methods(http.MethodGet)
	r.PathPrefix("/docs").Handler(httpSwagger.Handler(httpSwagger.URL("/docs/openapi.json")))

	r.HandleFunc("/store/{key}", a.handleStorePut).Methods(http.MethodPost)
	r.HandleFunc("/store/{key}", a.handleStoreGet).Methods(http.MethodGet)
	r.HandleFunc("/store", a.handleStoreRange).Methods(http.MethodGet)

	r.HandleFunc("/stream/{name}", a.handleStreamPublish).Methods(http.MethodPost)
	r.HandleFunc("/stream/{name}", a.handleStreamSubscribe).Methods(http.MethodGet)

	// Request flow per spec §2: auth -> size/length limits -> handler.
	var handler http.Handler = r
	handler = sizeLimit(handler)
	handler = auth.Middleware(a.token, openPaths)(handler)
	handler = auth.CORS(handler)
	return handler
}

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (a *App) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	select {
	case <-a.shuttingDown:
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"shutting_down"}`))
		return
	default:
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}
