package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type traceDataKey struct{}

// TraceData carries the ids a local API request is logged and answered with.
type TraceData struct {
	TraceID   string
	RequestID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

// RequestID returns the request id stored on ctx, or a fresh one.
func RequestID(ctx context.Context) string {
	if td := GetTraceData(ctx); td != nil && td.RequestID != "" {
		return td.RequestID
	}
	return uuid.NewString()
}
