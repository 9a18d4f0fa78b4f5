package tabs

import (
	"context"
	"slices"
	"strings"

	"github.com/yungbote/neurobridge-presence/internal/platform/logger"
	"github.com/yungbote/neurobridge-presence/internal/presence/loop"
)

const keyPrefix = "presence.session."

// maxClaims bounds how many of its own past claims an Arbiter remembers per
// identity.
const maxClaims = 32

func Key(identity string) string {
	return keyPrefix + strings.TrimSpace(identity)
}

type Arbiter struct {
	sched  loop.Scheduler
	shared Shared
	log    *logger.Logger

	// claimed holds the session ids this agent published, per identity.
	// Loop only.
	claimed map[string][]string
}

func NewArbiter(sched loop.Scheduler, shared Shared, log *logger.Logger) *Arbiter {
	if log == nil {
		log = logger.NewNop()
	}
	return &Arbiter{
		sched:   sched,
		shared:  shared,
		log:     log.With("component", "TabArbiter"),
		claimed: map[string][]string{},
	}
}

// Claim publishes sessionID as the live session of identity. Every other
// listener for identity will evict itself. Runs on the loop.
func (a *Arbiter) Claim(identity, sessionID string) {
	key := Key(identity)
	a.remember(key, sessionID)
	a.sched.Go(func(ctx context.Context) error {
		return a.shared.Set(ctx, key, sessionID)
	}, func(err error) {
		if err != nil {
			a.log.Warn("tab claim failed", "identity", identity, "error", err)
		}
	})
}

// Listen calls evict on the loop whenever identity's key is written with a
// value other than current() that this agent never claimed itself. Shared
// stores echo our own writes, possibly late. current is read on the loop; an
// empty current means nothing to evict.
func (a *Arbiter) Listen(ctx context.Context, identity string, current func() string, evict func()) (func(), error) {
	want := Key(identity)
	return a.shared.Watch(ctx, func(key, value string) {
		if key != want {
			return
		}
		a.sched.Post(func() {
			mine := current()
			if mine == "" || mine == value || a.ownClaim(want, value) {
				return
			}
			a.log.Info("evicted by another agent", "identity", identity)
			evict()
		})
	})
}

func (a *Arbiter) remember(key, sessionID string) {
	ids := a.claimed[key]
	if slices.Contains(ids, sessionID) {
		return
	}
	ids = append(ids, sessionID)
	if len(ids) > maxClaims {
		ids = slices.Delete(ids, 0, len(ids)-maxClaims)
	}
	a.claimed[key] = ids
}

func (a *Arbiter) ownClaim(key, sessionID string) bool {
	return slices.Contains(a.claimed[key], sessionID)
}
