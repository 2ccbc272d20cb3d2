// Package logger provides the process-wide structured logger.
package logger

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the package-level logger. It is a no-op logger until Init is
// called, so packages may log during early startup without a nil check.
var Log = zap.NewNop()

// Init builds the process logger. Verbose raises the level to Debug;
// otherwise the logger runs at Info.
func Init(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	Log = l
	return l, nil
}

// Sync flushes any buffered log entries. Callers should defer it after Init.
func Sync() {
	_ = Log.Sync()
}

var sensitiveHeaders = map[string]struct{}{
	"authorization": {},
}

func redactHeaderValue(k, v string) string {
	if v == "" {
		return ""
	}
	if _, ok := sensitiveHeaders[strings.ToLower(k)]; ok {
		return "<redacted>"
	}
	return v
}

// SafeHeaders renders request headers for logging with sensitive values
// redacted.
func SafeHeaders(r *http.Request) string {
	parts := make([]string, 0, len(r.Header))
	for k, v := range r.Header {
		if len(v) == 0 {
			continue
		}
		parts = append(parts, k+"="+redactHeaderValue(k, v[0]))
	}
	return strings.Join(parts, "; ")
}

// LogRequest logs a concise, safe summary of an incoming request.
func LogRequest(r *http.Request) {
	Log.Debug("incoming_request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("remote", r.RemoteAddr),
		zap.String("headers", SafeHeaders(r)),
	)
}

// fields turns a flat ("key", value, "key", value, ...) argument list into
// zap fields, for call sites that log ad hoc key/value pairs rather than
// building zap.Field values directly.
func fields(args []any) []zap.Field {
	fs := make([]zap.Field, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		fs = append(fs, zap.Any(key, args[i+1]))
	}
	return fs
}

// Debug logs at debug level with key/value pairs.
func Debug(msg string, args ...any) { Log.Debug(msg, fields(args)...) }

// Info logs at info level with key/value pairs.
func Info(msg string, args ...any) { Log.Info(msg, fields(args)...) }

// Warn logs at warn level with key/value pairs.
func Warn(msg string, args ...any) { Log.Warn(msg, fields(args)...) }

// Error logs at error level with key/value pairs.
func Error(msg string, args ...any) { Log.Error(msg, fields(args)...) }
