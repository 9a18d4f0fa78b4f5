package tabs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/neurobridge-presence/internal/platform/logger"
)

const defaultRedisChannel = "presence.tabs"

// Redis stores claims with SET and broadcasts them on a pub/sub channel.
type Redis struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
	owned   bool
}

type redisChange struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func NewRedis(rdb *goredis.Client, channel string, log *logger.Logger) *Redis {
	if log == nil {
		log = logger.NewNop()
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = defaultRedisChannel
	}
	return &Redis{
		log:     log.With("component", "RedisTabs"),
		rdb:     rdb,
		channel: channel,
	}
}

// DialRedis connects and pings addr.
func DialRedis(addr, channel string, log *logger.Logger) (*Redis, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	r := NewRedis(rdb, channel, log)
	r.owned = true
	return r, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if r == nil || r.rdb == nil {
		return fmt.Errorf("redis tabs store not initialized")
	}
	raw, err := json.Marshal(redisChange{Key: key, Value: value})
	if err != nil {
		return err
	}
	_, err = r.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, key, value, 0)
		p.Publish(ctx, r.channel, raw)
		return nil
	})
	return err
}

func (r *Redis) Watch(ctx context.Context, fn func(key, value string)) (func(), error) {
	if r == nil || r.rdb == nil {
		return nil, fmt.Errorf("redis tabs store not initialized")
	}
	if fn == nil {
		return nil, fmt.Errorf("watch callback required")
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := r.rdb.Subscribe(ctx, r.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		cancel()
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var change redisChange
				if err := json.Unmarshal([]byte(m.Payload), &change); err != nil {
					r.log.Warn("bad redis tabs payload", "error", err)
					continue
				}
				fn(change.Key, change.Value)
			}
		}
	}()

	return cancel, nil
}

func (r *Redis) Close() error {
	if r == nil || r.rdb == nil || !r.owned {
		return nil
	}
	return r.rdb.Close()
}
