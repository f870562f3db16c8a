// Package netstate tracks whether the remote web application is reachable.
// Login is gated on it and web view load failures are reported against it.
package netstate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	logger "github.com/soulteary/logger-kit"
)

// State is the result of the latest connectivity check.
type State struct {
	Connected bool      `json:"connected"`
	CheckedAt time.Time `json:"checked_at"`
}

// Prober answers a single "is the web application reachable" question.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Probe(ctx context.Context) error { return f(ctx) }

// StaticProber always reports the same answer.
type StaticProber bool

// ErrOffline is returned by an offline StaticProber.
var ErrOffline = errors.New("netstate: offline")

func (p StaticProber) Probe(context.Context) error {
	if p {
		return nil
	}
	return ErrOffline
}

// HTTPProber issues a HEAD request to URL. Any HTTP response counts as
// connected; only transport errors count as offline.
type HTTPProber struct {
	URL     string
	Timeout time.Duration
}

func (p *HTTPProber) Probe(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a := fiber.Head(p.URL)
	if p.Timeout > 0 {
		a.Timeout(p.Timeout)
	}
	_, _, errs := a.Bytes()
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Monitor caches the connectivity state and notifies subscribers on change.
type Monitor struct {
	prober Prober
	log    *logger.Logger

	mu     sync.RWMutex
	state  State
	subs   map[int]func(State)
	nextID int
}

// NewMonitor returns a Monitor that starts out connected.
func NewMonitor(p Prober, log *logger.Logger) *Monitor {
	return &Monitor{
		prober: p,
		log:    log,
		state:  State{Connected: true},
		subs:   make(map[int]func(State)),
	}
}

// IsConnected returns the cached state without probing.
func (m *Monitor) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Connected
}

// State returns the cached state.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Fetch probes now, records the result and returns it.
func (m *Monitor) Fetch(ctx context.Context) State {
	err := m.prober.Probe(ctx)
	next := State{Connected: err == nil, CheckedAt: time.Now()}

	m.mu.Lock()
	changed := next.Connected != m.state.Connected
	m.state = next
	var subs []func(State)
	if changed {
		subs = make([]func(State), 0, len(m.subs))
		for _, fn := range m.subs {
			subs = append(subs, fn)
		}
	}
	m.mu.Unlock()

	if changed {
		if m.log != nil {
			if err != nil {
				m.log.Warn().Err(err).Str("status", "offline").Msg("network status changed")
			} else {
				m.log.Info().Str("status", "online").Msg("network status changed")
			}
		}
		for _, fn := range subs {
			fn(next)
		}
	}
	return next
}

// Subscribe registers fn for state changes and returns a function that
// removes it.
func (m *Monitor) Subscribe(fn func(State)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// Run probes immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	m.Fetch(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Fetch(ctx)
		}
	}
}
