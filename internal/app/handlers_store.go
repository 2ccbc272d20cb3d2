package app

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/valyala/bytebufferpool"

	"progressdb/pkg/apperr"
	"progressdb/pkg/codec"
	"progressdb/pkg/logger"
)

// handleStorePut implements POST /store/{key} (spec §4.3.4): the key
// comes from the path, the value from the raw application/octet-stream
// body.
func (a *App) handleStorePut(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	bb, err := readBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	defer bytebufferpool.Put(bb)

	if err := a.store.Put([]byte(key), bb.B); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleStoreGet implements GET /store/{key}, encoding the value as
// base64 inside the JSON boundary per spec §4.3.3.
func (a *App) handleStoreGet(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	v, err := a.store.Get([]byte(key))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, codec.GetResponse{Value: codec.Encode(v)})
}

// handleStoreRange implements GET /store?start=&end=&limit= (spec
// §4.1.3).
func (a *App) handleStoreRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var start, end []byte
	if s := q.Get("start"); s != "" {
		start = []byte(s)
	}
	if e := q.Get("end"); e != "" {
		end = []byte(e)
	}

	limit := -1
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			writeError(w, apperr.New(apperr.BadRequest, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	entries, err := a.store.Range(start, end, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := codec.RangeResponse{Results: make([]codec.RangeEntry, 0, len(entries))}
	for _, e := range entries {
		resp.Results = append(resp.Results, codec.RangeEntry{
			Key:   string(e.Key),
			Value: codec.Encode(e.Value),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("response_encode_failed", "error", err)
	}
}

// writeError maps an error to its HTTP status per spec §7 and writes no
// body detail; logging carries the diagnostic.
func writeError(w http.ResponseWriter, err error) {
	status := apperr.StatusFor(err)
	logger.Warn("request_failed", "status", status, "error", err)
	w.WriteHeader(status)
}
