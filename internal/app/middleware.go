package app

import (
	"io"
	"net/http"

	"github.com/valyala/bytebufferpool"

	"progressdb/pkg/apperr"
	"progressdb/pkg/logger"
	"progressdb/pkg/store"
)

// maxBodyBytes enforces spec §4.3.2's hard request-body ceiling.
const maxBodyBytes = store.MaxValueBytes

// readBody accumulates the request body into a pooled buffer, rejecting
// anything over maxBodyBytes with PayloadTooLarge before the caller sees
// it. The returned buffer must be returned to the pool by the caller via
// bytebufferpool.Put once it is done being read.
func readBody(r *http.Request) (*bytebufferpool.ByteBuffer, error) {
	bb := bytebufferpool.Get()
	limited := io.LimitReader(r.Body, maxBodyBytes+1)
	if _, err := bb.ReadFrom(limited); err != nil {
		bytebufferpool.Put(bb)
		return nil, apperr.Wrap(apperr.Internal, "read request body", err)
	}
	if len(bb.B) > maxBodyBytes {
		bytebufferpool.Put(bb)
		return nil, apperr.New(apperr.PayloadTooLarge, "request body exceeds maximum size")
	}
	return bb, nil
}

// sizeLimit is a defense-in-depth wrapper that rejects requests whose
// declared Content-Length already exceeds the limit before any body read
// begins.
func sizeLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > maxBodyBytes {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			logger.Warn("request_rejected", "reason", "content_length_exceeded", "path", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}
