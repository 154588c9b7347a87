// Package logging provides the request-scoped structured logger used
// throughout the search pipeline, following the teacher's Log(ctx)
// call-site convention (see internal/controller.go in the teacher repo).
package logging

import (
	"context"
	"log/slog"
	"os"

	charm "github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5/middleware"
)

var _handler = charm.NewWithOptions(os.Stderr, charm.Options{
	ReportTimestamp: true,
	Level:           charm.InfoLevel,
})

var _logger = slog.New(_handler)

// _redactedKeys never have their values logged, matching spec §6's
// redaction list.
var _redactedKeys = map[string]bool{
	"clientSecret":  true,
	"accessKey":     true,
	"password":      true,
	"apiKey":        true,
	"authorization": true,
	"Authorization": true,
}

// SetVerbose raises the log level to debug, mirroring the teacher's
// --verbose flag handling in main.go.
func SetVerbose(verbose bool) {
	if verbose {
		_handler.SetLevel(charm.DebugLevel)
	}
}

// Log returns a logger annotated with the request ID carried in ctx, if
// any. Callers pass key/value pairs the same way the teacher does:
// Log(ctx).Warn("problem doing X", "err", err).
func Log(ctx context.Context) *logWrapper {
	l := _logger
	if reqID, ok := ctx.Value(middleware.RequestIDKey).(string); ok && reqID != "" {
		l = l.With("requestId", reqID)
	}
	return &logWrapper{l}
}

// logWrapper redacts secret-bearing keys before handing pairs to slog.
type logWrapper struct {
	l *slog.Logger
}

func (w *logWrapper) Debug(msg string, kv ...any) { w.l.Debug(msg, redact(kv)...) }
func (w *logWrapper) Info(msg string, kv ...any)  { w.l.Info(msg, redact(kv)...) }
func (w *logWrapper) Warn(msg string, kv ...any)  { w.l.Warn(msg, redact(kv)...) }
func (w *logWrapper) Error(msg string, kv ...any) { w.l.Error(msg, redact(kv)...) }

func redact(kv []any) []any {
	out := make([]any, len(kv))
	copy(out, kv)
	for i := 0; i+1 < len(out); i += 2 {
		key, ok := out[i].(string)
		if !ok {
			continue
		}
		if _redactedKeys[key] {
			out[i+1] = "[redacted]"
		}
	}
	return out
}
