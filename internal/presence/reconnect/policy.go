// Package reconnect brings an offline presence session back while the user
// is around to see it.
package reconnect

import (
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/yungbote/neurobridge-presence/internal/domain"
	"github.com/yungbote/neurobridge-presence/internal/platform/logger"
	"github.com/yungbote/neurobridge-presence/internal/presence/loop"
	"github.com/yungbote/neurobridge-presence/internal/presence/store"
)

type Starter interface {
	Start()
}

type Config struct {
	FirstDelay      time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (c Config) withDefaults() Config {
	if c.FirstDelay <= 0 {
		c.FirstDelay = 100 * time.Millisecond
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 2500 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 5 * time.Minute
	}
	return c
}

// Policy watches the session and retries Start while the session is offline,
// visible and not idling. Delays are FirstDelay, then InitialInterval doubling
// up to MaxInterval.
type Policy struct {
	cfg     Config
	sched   loop.Scheduler
	state   *store.Store[domain.Session]
	starter Starter
	log     *logger.Logger

	bo       *backoff.ExponentialBackOff
	timer    loop.Timer
	active   bool
	attempts int
	unsub    func()
}

func New(cfg Config, sched loop.Scheduler, state *store.Store[domain.Session], starter Starter, log *logger.Logger) *Policy {
	if log == nil {
		log = logger.NewNop()
	}
	cfg = cfg.withDefaults()
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialInterval
	bo.MaxInterval = cfg.MaxInterval
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.Reset()

	p := &Policy{
		cfg:     cfg,
		sched:   sched,
		state:   state,
		starter: starter,
		log:     log.With("component", "ReconnectPolicy"),
		bo:      bo,
	}
	p.unsub = state.Subscribe(func(_, next domain.Session) { p.observe(next) })
	p.observe(state.Get())
	return p
}

func (p *Policy) Close() {
	p.cancel()
	if p.unsub != nil {
		p.unsub()
		p.unsub = nil
	}
}

// Active reports whether a retry cycle is running.
func (p *Policy) Active() bool { return p.active }

func (p *Policy) Attempts() int { return p.attempts }

// Reconnect is the manual "reconnect now" action: reset the backoff and try
// immediately.
func (p *Policy) Reconnect() {
	p.cancel()
	p.active = true
	p.attempt()
}

func (p *Policy) observe(s domain.Session) {
	if !s.NeedsReconnect() || s.Online {
		p.cancel()
		return
	}
	if p.active {
		return
	}
	p.active = true
	p.log.Debug("session offline, scheduling reconnect", "delay", p.cfg.FirstDelay)
	p.arm(p.cfg.FirstDelay)
}

func (p *Policy) arm(d time.Duration) {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = p.sched.AfterFunc(d, func() {
		p.timer = nil
		p.fire()
	})
}

func (p *Policy) fire() {
	s := p.state.Get()
	if s.Online || !s.NeedsReconnect() {
		p.cancel()
		return
	}
	p.attempt()
}

func (p *Policy) attempt() {
	p.attempts++
	p.starter.Start()
	s := p.state.Get()
	if s.Online || !s.NeedsReconnect() {
		p.cancel()
		return
	}
	next := p.bo.NextBackOff()
	p.log.Debug("reconnect attempt pending", "attempt", p.attempts, "next_delay", next)
	p.arm(next)
}

func (p *Policy) cancel() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.active {
		p.bo.Reset()
	}
	p.active = false
}
