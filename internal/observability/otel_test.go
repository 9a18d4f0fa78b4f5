package observability

import (
	"context"
	"testing"

	"github.com/yungbote/neurobridge-presence/internal/platform/logger"
)

func TestInitOTelDisabledIsNoop(t *testing.T) {
	stop := InitOTel(context.Background(), logger.NewNop(), OtelConfig{})
	if err := stop(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestTracerProviderSamplesAndShutsDown(t *testing.T) {
	ctx := context.Background()
	tp := newTracerProvider(ctx, logger.NewNop(), OtelConfig{
		Enabled:     true,
		Endpoint:    "127.0.0.1:4318",
		Insecure:    true,
		SampleRatio: 1,
	})
	_, span := tp.Tracer("test").Start(ctx, "heartbeat")
	if !span.SpanContext().IsSampled() {
		t.Fatalf("span should be sampled at ratio 1")
	}
	// Unsent spans are dropped; shutdown must not block on an absent collector.
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_ = tp.Shutdown(cctx)
}

func TestServiceNameDefault(t *testing.T) {
	if got := serviceName(OtelConfig{ServiceName: "  "}); got != "presence-agent" {
		t.Fatalf("service=%q", got)
	}
}
