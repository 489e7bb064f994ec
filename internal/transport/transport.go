// Package transport provides Store implementations over S3-compatible
// object stores and an in-memory backend for tests, plus wire-level
// observability hooks.
package transport

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/objstream/objstream/pkg/types"
)

// newRequestID returns a unique identifier attached to every outbound
// request so observers can correlate messages with their request.
func newRequestID() string {
	return uuid.NewString()
}

// NopInterceptor discards all events.
type NopInterceptor struct{}

func (NopInterceptor) OnRequest(types.RequestEvent) {}
func (NopInterceptor) OnMessage(types.RequestEvent) {}

// MultiInterceptor fans events out to several observers in order.
type MultiInterceptor []types.Interceptor

func (m MultiInterceptor) OnRequest(ev types.RequestEvent) {
	for _, in := range m {
		in.OnRequest(ev)
	}
}

func (m MultiInterceptor) OnMessage(ev types.RequestEvent) {
	for _, in := range m {
		in.OnMessage(ev)
	}
}

// Combine merges interceptors, dropping nils. Returns a NopInterceptor when
// nothing remains.
func Combine(ins ...types.Interceptor) types.Interceptor {
	var out MultiInterceptor
	for _, in := range ins {
		if in != nil {
			out = append(out, in)
		}
	}
	switch len(out) {
	case 0:
		return NopInterceptor{}
	case 1:
		return out[0]
	default:
		return out
	}
}

// LogInterceptor logs request and message events at debug level.
type LogInterceptor struct {
	Logger *slog.Logger
}

func (l *LogInterceptor) OnRequest(ev types.RequestEvent) {
	l.Logger.Debug("request",
		"kind", ev.Kind,
		"bucket", ev.Bucket,
		"object", ev.Object,
		"request_id", ev.RequestID)
}

func (l *LogInterceptor) OnMessage(ev types.RequestEvent) {
	l.Logger.Debug("message",
		"kind", ev.Kind,
		"request_id", ev.RequestID,
		"wire_bytes", ev.WireBytes,
		"elapsed", ev.Elapsed,
		"final", ev.Final)
}
