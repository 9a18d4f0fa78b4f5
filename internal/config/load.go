package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/neurobridge-presence/internal/platform/envutil"
)

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		d.Duration = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		u, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		return d.parse(u)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("duration must be a JSON string like \"5s\" or an int nanoseconds: %w", err)
	}
	d.Duration = time.Duration(n)
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	if node.Tag == "!!int" {
		n, err := strconv.ParseInt(node.Value, 10, 64)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		d.Duration = time.Duration(n)
		return nil
	}
	if err := d.parse(node.Value); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

func (d *Duration) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" || s == "~" {
		d.Duration = 0
		return nil
	}
	dd, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dd
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Env: "development",
		Server: ServerConfig{
			Timeout:       D(15 * time.Second),
			BeaconTimeout: D(2 * time.Second),
			MaxRetries:    2,
		},
		HTTP: HTTPConfig{
			Addr:              "127.0.0.1:7070",
			ReadHeaderTimeout: D(5 * time.Second),
			ShutdownTimeout:   D(10 * time.Second),
		},
		Session: SessionConfig{
			ActiveInterval: D(30 * time.Second),
			IdleInterval:   D(5 * time.Minute),
			IdleAfter:      D(3 * time.Minute),
			DeleteTimeout:  D(5 * time.Second),
		},
		Reconnect: ReconnectConfig{
			FirstDelay:      D(100 * time.Millisecond),
			InitialInterval: D(2500 * time.Millisecond),
			MaxInterval:     D(5 * time.Minute),
		},
		Presence: PresenceConfig{
			AwayAfter:       D(10 * time.Minute),
			LastActiveAfter: D(2 * time.Minute),
		},
		Chat: ChatConfig{
			TimestampGap:      D(5 * time.Minute),
			TrailingTimestamp: D(time.Minute),
			HistoryPage:       50,
		},
		Tabs: TabsConfig{
			Backend:      "memory",
			RedisChannel: "presence.tabs",
			NATSBucket:   "PRESENCE_TABS",
		},
		Tracing: TracingConfig{
			SampleRatio: 0.1,
		},
	}
}

// Load reads PRESENCE_CONFIG_PATH (or ./config/presence.yaml when present)
// over the defaults, then applies environment overrides and validates.
func Load() (*Config, error) {
	cfgPath := strings.TrimSpace(os.Getenv("PRESENCE_CONFIG_PATH"))
	if cfgPath == "" {
		if wd, err := os.Getwd(); err == nil {
			p := filepath.Join(wd, "config", "presence.yaml")
			if _, err := os.Stat(p); err == nil {
				cfgPath = p
			}
		}
	}
	var b []byte
	if cfgPath != "" {
		var err error
		if b, err = os.ReadFile(cfgPath); err != nil {
			return nil, err
		}
	}
	return Parse(b)
}

// Parse decodes raw YAML over the defaults and applies environment overrides.
func Parse(raw []byte) (*Config, error) {
	cfg := defaultConfig()
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(cfg)
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Env = envutil.String("LOG_MODE", cfg.Env)
	cfg.Identity = envutil.String("PRESENCE_IDENTITY", cfg.Identity)
	cfg.Server.BaseURL = envutil.String("PRESENCE_BASE_URL", cfg.Server.BaseURL)
	cfg.Server.Token = envutil.String("PRESENCE_TOKEN", cfg.Server.Token)
	cfg.HTTP.Addr = envutil.String("PRESENCE_HTTP_ADDR", cfg.HTTP.Addr)
	cfg.Tabs.Backend = envutil.String("PRESENCE_TABS_BACKEND", cfg.Tabs.Backend)
	cfg.Tabs.RedisAddr = envutil.String("REDIS_ADDR", cfg.Tabs.RedisAddr)
	cfg.Tabs.RedisChannel = envutil.String("REDIS_CHANNEL", cfg.Tabs.RedisChannel)
	cfg.Tabs.NATSURL = envutil.String("NATS_URL", cfg.Tabs.NATSURL)
	cfg.Tabs.NATSBucket = envutil.String("NATS_BUCKET", cfg.Tabs.NATSBucket)
	cfg.Server.DisableBeacon = envutil.Bool("PRESENCE_DISABLE_BEACON", cfg.Server.DisableBeacon)

	cfg.Tracing.Enabled = envutil.Bool("OTEL_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.Endpoint)
	cfg.Tracing.Insecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Tracing.Insecure)
	if v := envutil.String("OTEL_SAMPLER_RATIO", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Tracing.SampleRatio = f
		}
	}
	if h := parseHeaders(envutil.String("OTEL_EXPORTER_OTLP_HEADERS", "")); len(h) > 0 {
		cfg.Tracing.Headers = h
	}
}

// parseHeaders reads "k1=v1,k2=v2". Malformed pairs are skipped.
func parseHeaders(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	out := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		key, val, ok := strings.Cut(part, "=")
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)
		if !ok || key == "" || val == "" {
			continue
		}
		out[key] = val
	}
	return out
}

func (c *Config) normalize() error {
	c.Env = strings.TrimSpace(c.Env)
	if c.Env == "" {
		c.Env = "development"
	}
	c.Identity = strings.TrimSpace(c.Identity)
	if c.Identity == "" {
		return errors.New("identity is required")
	}
	c.Server.BaseURL = strings.TrimRight(strings.TrimSpace(c.Server.BaseURL), "/")
	if c.Server.BaseURL == "" {
		return errors.New("server.base_url is required")
	}
	if !strings.HasPrefix(c.Server.BaseURL, "http://") && !strings.HasPrefix(c.Server.BaseURL, "https://") {
		return fmt.Errorf("server.base_url must be http(s): %q", c.Server.BaseURL)
	}
	if c.Server.MaxRetries < 0 {
		return errors.New("server.max_retries must be >= 0")
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		c.HTTP.Addr = "127.0.0.1:7070"
	}

	for name, d := range map[string]Duration{
		"session.active_interval":    c.Session.ActiveInterval,
		"session.idle_interval":      c.Session.IdleInterval,
		"session.idle_after":         c.Session.IdleAfter,
		"reconnect.first_delay":      c.Reconnect.FirstDelay,
		"reconnect.initial_interval": c.Reconnect.InitialInterval,
		"reconnect.max_interval":     c.Reconnect.MaxInterval,
		"presence.away_after":        c.Presence.AwayAfter,
		"chat.timestamp_gap":         c.Chat.TimestampGap,
	} {
		if d.Duration < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if c.Reconnect.MaxInterval.Duration > 0 && c.Reconnect.MaxInterval.Duration < c.Reconnect.InitialInterval.Duration {
		return errors.New("reconnect.max_interval must be >= reconnect.initial_interval")
	}
	if c.Chat.HistoryPage < 0 {
		return errors.New("chat.history_page must be >= 0")
	}

	switch {
	case c.Tracing.SampleRatio < 0:
		c.Tracing.SampleRatio = 0
	case c.Tracing.SampleRatio > 1:
		c.Tracing.SampleRatio = 1
	}
	c.Tracing.Endpoint = strings.TrimSpace(c.Tracing.Endpoint)

	c.Tabs.Backend = strings.ToLower(strings.TrimSpace(c.Tabs.Backend))
	switch c.Tabs.Backend {
	case "", "memory":
		c.Tabs.Backend = "memory"
	case "redis":
		if strings.TrimSpace(c.Tabs.RedisAddr) == "" {
			return errors.New("tabs.redis_addr is required for the redis backend")
		}
	case "nats":
		if strings.TrimSpace(c.Tabs.NATSURL) == "" {
			return errors.New("tabs.nats_url is required for the nats backend")
		}
	default:
		return fmt.Errorf("invalid tabs.backend=%q", c.Tabs.Backend)
	}
	return nil
}
