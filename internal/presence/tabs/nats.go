package tabs

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/yungbote/neurobridge-presence/internal/platform/logger"
)

const defaultNATSBucket = "PRESENCE_TABS"

// NATS keeps claims in a JetStream key-value bucket and learns about other
// claims by watching it.
type NATS struct {
	log *logger.Logger
	kv  nats.KeyValue
	nc  *nats.Conn
}

func NewNATS(kv nats.KeyValue, log *logger.Logger) *NATS {
	if log == nil {
		log = logger.NewNop()
	}
	return &NATS{log: log.With("component", "NATSTabs"), kv: kv}
}

// DialNATS connects to url and binds bucket, creating it when missing.
func DialNATS(url, bucket string, log *logger.Logger) (*NATS, error) {
	if log == nil {
		log = logger.NewNop()
	}
	url = strings.TrimSpace(url)
	if url == "" {
		url = nats.DefaultURL
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		bucket = defaultNATSBucket
	}

	nlog := log.With("component", "NATSTabs")
	nc, err := nats.Connect(url,
		nats.Name("presence-agent"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				nlog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			nlog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats jetstream: %w", err)
	}
	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:  bucket,
			History: 1,
			Storage: nats.MemoryStorage,
		})
	}
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats kv %s: %w", bucket, err)
	}

	n := NewNATS(kv, log)
	n.nc = nc
	return n, nil
}

func (n *NATS) Set(ctx context.Context, key, value string) error {
	if n == nil || n.kv == nil {
		return fmt.Errorf("nats tabs store not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := n.kv.PutString(encodeKVKey(key), value)
	return err
}

func (n *NATS) Watch(ctx context.Context, fn func(key, value string)) (func(), error) {
	if n == nil || n.kv == nil {
		return nil, fmt.Errorf("nats tabs store not initialized")
	}
	if fn == nil {
		return nil, fmt.Errorf("watch callback required")
	}
	ctx, cancel := context.WithCancel(ctx)
	watcher, err := n.kv.WatchAll(nats.IgnoreDeletes(), nats.UpdatesOnly())
	if err != nil {
		cancel()
		return nil, fmt.Errorf("nats watch: %w", err)
	}

	go func() {
		defer watcher.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					return
				}
				if entry == nil || entry.Operation() != nats.KeyValuePut {
					continue
				}
				key, err := decodeKVKey(entry.Key())
				if err != nil {
					n.log.Warn("bad nats tabs key", "key", entry.Key(), "error", err)
					continue
				}
				fn(key, string(entry.Value()))
			}
		}
	}()
	return cancel, nil
}

func (n *NATS) Close() error {
	if n == nil || n.nc == nil {
		return nil
	}
	n.nc.Close()
	return nil
}

// KV keys only allow [-/_=.a-zA-Z0-9]; identities routinely carry '@' and ':'.
func encodeKVKey(key string) string {
	return "k." + base64.RawURLEncoding.EncodeToString([]byte(key))
}

func decodeKVKey(raw string) (string, error) {
	enc, ok := strings.CutPrefix(raw, "k.")
	if !ok {
		return "", fmt.Errorf("unexpected key %q", raw)
	}
	b, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
