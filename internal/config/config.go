// Package config loads the presence agent configuration from an optional
// YAML file and environment overrides.
package config

import (
	"time"

	"github.com/yungbote/neurobridge-presence/internal/presence/api"
	"github.com/yungbote/neurobridge-presence/internal/presence/chat"
	"github.com/yungbote/neurobridge-presence/internal/presence/engine"
	"github.com/yungbote/neurobridge-presence/internal/presence/projection"
	"github.com/yungbote/neurobridge-presence/internal/presence/reconnect"
	"github.com/yungbote/neurobridge-presence/internal/presence/session"
)

// Duration accepts "5s" style strings or integer nanoseconds.
type Duration struct {
	time.Duration
}

func D(d time.Duration) Duration { return Duration{Duration: d} }

type Config struct {
	// Env is the log mode ("development" or "production").
	Env      string `yaml:"env" json:"env"`
	Identity string `yaml:"identity" json:"identity"`

	Server    ServerConfig    `yaml:"server" json:"server"`
	HTTP      HTTPConfig      `yaml:"http" json:"http"`
	Session   SessionConfig   `yaml:"session" json:"session"`
	Reconnect ReconnectConfig `yaml:"reconnect" json:"reconnect"`
	Presence  PresenceConfig  `yaml:"presence" json:"presence"`
	Chat      ChatConfig      `yaml:"chat" json:"chat"`
	Tabs      TabsConfig      `yaml:"tabs" json:"tabs"`
	Tracing   TracingConfig   `yaml:"tracing" json:"tracing"`
}

// ServerConfig describes the remote presence server.
type ServerConfig struct {
	BaseURL       string   `yaml:"base_url" json:"base_url"`
	Token         string   `yaml:"token" json:"token"`
	Timeout       Duration `yaml:"timeout" json:"timeout"`
	BeaconTimeout Duration `yaml:"beacon_timeout" json:"beacon_timeout"`
	DisableBeacon bool     `yaml:"disable_beacon" json:"disable_beacon"`
	MaxRetries    int      `yaml:"max_retries" json:"max_retries"`
}

// HTTPConfig is the local UI API listener.
type HTTPConfig struct {
	Addr              string   `yaml:"addr" json:"addr"`
	ReadHeaderTimeout Duration `yaml:"read_header_timeout" json:"read_header_timeout"`
	ShutdownTimeout   Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	CORSOrigins       []string `yaml:"cors_origins" json:"cors_origins"`
}

type SessionConfig struct {
	ActiveInterval Duration `yaml:"active_interval" json:"active_interval"`
	IdleInterval   Duration `yaml:"idle_interval" json:"idle_interval"`
	// IdleAfter marks the session idle after this much inactivity. Zero disables it.
	IdleAfter     Duration `yaml:"idle_after" json:"idle_after"`
	DeleteTimeout Duration `yaml:"delete_timeout" json:"delete_timeout"`
}

type ReconnectConfig struct {
	FirstDelay      Duration `yaml:"first_delay" json:"first_delay"`
	InitialInterval Duration `yaml:"initial_interval" json:"initial_interval"`
	MaxInterval     Duration `yaml:"max_interval" json:"max_interval"`
}

type PresenceConfig struct {
	AwayAfter       Duration `yaml:"away_after" json:"away_after"`
	LastActiveAfter Duration `yaml:"last_active_after" json:"last_active_after"`
}

type ChatConfig struct {
	TimestampGap      Duration `yaml:"timestamp_gap" json:"timestamp_gap"`
	TrailingTimestamp Duration `yaml:"trailing_timestamp" json:"trailing_timestamp"`
	HistoryPage       int      `yaml:"history_page" json:"history_page"`
}

// TabsConfig selects the store agents use to agree on the live session.
type TabsConfig struct {
	// Backend is one of "memory", "redis" or "nats".
	Backend      string `yaml:"backend" json:"backend"`
	RedisAddr    string `yaml:"redis_addr" json:"redis_addr"`
	RedisChannel string `yaml:"redis_channel" json:"redis_channel"`
	NATSURL      string `yaml:"nats_url" json:"nats_url"`
	NATSBucket   string `yaml:"nats_bucket" json:"nats_bucket"`
}

// TracingConfig controls span export. Without an endpoint spans go to stdout.
type TracingConfig struct {
	Enabled     bool              `yaml:"enabled" json:"enabled"`
	Endpoint    string            `yaml:"endpoint" json:"endpoint"`
	Headers     map[string]string `yaml:"headers" json:"headers"`
	Insecure    bool              `yaml:"insecure" json:"insecure"`
	SampleRatio float64           `yaml:"sample_ratio" json:"sample_ratio"`
}

func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		Identity: c.Identity,
		Session: session.Config{
			ActiveInterval: c.Session.ActiveInterval.Duration,
			IdleInterval:   c.Session.IdleInterval.Duration,
			IdleAfter:      c.Session.IdleAfter.Duration,
			DeleteTimeout:  c.Session.DeleteTimeout.Duration,
		},
		Reconnect: reconnect.Config{
			FirstDelay:      c.Reconnect.FirstDelay.Duration,
			InitialInterval: c.Reconnect.InitialInterval.Duration,
			MaxInterval:     c.Reconnect.MaxInterval.Duration,
		},
		Thresholds: projection.Thresholds{
			AwayAfter:       c.Presence.AwayAfter.Duration,
			LastActiveAfter: c.Presence.LastActiveAfter.Duration,
		},
		Chat: chat.Config{
			TimestampGap:      c.Chat.TimestampGap.Duration,
			TrailingTimestamp: c.Chat.TrailingTimestamp.Duration,
			HistoryPage:       c.Chat.HistoryPage,
		},
	}
}

func (c *Config) APIOptions() api.Options {
	return api.Options{
		BaseURL:       c.Server.BaseURL,
		Token:         c.Server.Token,
		Timeout:       c.Server.Timeout.Duration,
		BeaconTimeout: c.Server.BeaconTimeout.Duration,
		DisableBeacon: c.Server.DisableBeacon,
		MaxRetries:    c.Server.MaxRetries,
	}
}
