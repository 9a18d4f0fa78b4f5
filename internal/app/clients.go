package app

import (
	"fmt"

	"github.com/yungbote/neurobridge-presence/internal/config"
	"github.com/yungbote/neurobridge-presence/internal/platform/logger"
	"github.com/yungbote/neurobridge-presence/internal/presence/api"
	"github.com/yungbote/neurobridge-presence/internal/presence/tabs"
)

type Clients struct {
	API    *api.Client
	Shared tabs.Shared
	// closeShared releases the backend connection, if one was opened.
	closeShared func() error
}

func wireClients(log *logger.Logger, cfg *config.Config) (Clients, error) {
	log.Info("Wiring clients...", "tabs_backend", cfg.Tabs.Backend)

	opts := cfg.APIOptions()
	opts.Log = log
	client, err := api.New(opts)
	if err != nil {
		return Clients{}, fmt.Errorf("init presence api client: %w", err)
	}

	out := Clients{API: client, closeShared: func() error { return nil }}
	switch cfg.Tabs.Backend {
	case "redis":
		r, err := tabs.DialRedis(cfg.Tabs.RedisAddr, cfg.Tabs.RedisChannel, log)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis tabs backend: %w", err)
		}
		out.Shared, out.closeShared = r, r.Close
	case "nats":
		n, err := tabs.DialNATS(cfg.Tabs.NATSURL, cfg.Tabs.NATSBucket, log)
		if err != nil {
			return Clients{}, fmt.Errorf("init nats tabs backend: %w", err)
		}
		out.Shared, out.closeShared = n, n.Close
	default:
		out.Shared = tabs.NewMemory()
	}
	return out, nil
}
