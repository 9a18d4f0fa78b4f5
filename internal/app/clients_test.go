package app

import (
	"context"
	"testing"

	"github.com/yungbote/neurobridge-presence/internal/config"
	"github.com/yungbote/neurobridge-presence/internal/platform/logger"
	"github.com/yungbote/neurobridge-presence/internal/presence/tabs"
)

func TestWireClientsMemoryBackend(t *testing.T) {
	cfg, err := config.Parse([]byte("identity: ada\nserver:\n  base_url: http://localhost:8080\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	clients, err := wireClients(logger.NewNop(), cfg)
	if err != nil {
		t.Fatalf("wireClients: %v", err)
	}
	if clients.API == nil {
		t.Fatalf("api client missing")
	}
	if _, ok := clients.Shared.(*tabs.Memory); !ok {
		t.Fatalf("shared=%T, want *tabs.Memory", clients.Shared)
	}
	if err := clients.closeShared(); err != nil {
		t.Fatalf("closeShared: %v", err)
	}
	if err := clients.API.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
}
