// ABOUTME: Tracks whether the Sheets endpoint is reachable and announces reconnects
// ABOUTME: Offline re-probes back off exponentially; subscribers run on each offline to online edge
package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
)

// DefaultInterval is the probe interval while online.
const DefaultInterval = 15 * time.Second

// ProbeFunc returns nil when the endpoint is reachable.
type ProbeFunc func(ctx context.Context) error

// Options configures a Monitor.
type Options struct {
	Probe    ProbeFunc
	Interval time.Duration
	// MaxBackoff caps the offline re-probe delay. Defaults to Interval.
	MaxBackoff time.Duration
	Logger     *log.Logger
}

// Monitor holds the last observed connectivity state. The state starts
// unknown; the first successful probe counts as coming online.
type Monitor struct {
	probe    ProbeFunc
	interval time.Duration
	backoff  *backoff.ExponentialBackOff
	logger   *log.Logger

	mu     sync.RWMutex
	online bool
	subs   []func()
}

// New creates a Monitor.
func New(opts Options) *Monitor {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	maxBackoff := opts.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = interval
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default().WithPrefix("connectivity")
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	if b.InitialInterval > maxBackoff {
		b.InitialInterval = maxBackoff
	}
	b.MaxInterval = maxBackoff
	b.MaxElapsedTime = 0

	return &Monitor{
		probe:    opts.Probe,
		interval: interval,
		backoff:  b,
		logger:   logger,
	}
}

// Online reports the last observed state.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Subscribe registers fn to run after every offline to online transition.
func (m *Monitor) Subscribe(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// SetOnline records an observation from any source. Subscribers run in
// their own goroutine when the state flips to online.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	was := m.online
	m.online = online
	subs := append([]func(){}, m.subs...)
	m.mu.Unlock()

	switch {
	case online && !was:
		m.logger.Info("connectivity regained")
		go func() {
			for _, fn := range subs {
				fn()
			}
		}()
	case !online && was:
		m.logger.Warn("connectivity lost")
	}
}

// Check probes once and records the result.
func (m *Monitor) Check(ctx context.Context) bool {
	err := m.probe(ctx)
	if err != nil {
		m.logger.Debug("probe failed", "err", err)
	}
	m.SetOnline(err == nil)
	return err == nil
}

// Run probes until ctx ends.
func (m *Monitor) Run(ctx context.Context) {
	for {
		var wait time.Duration
		if m.Check(ctx) {
			m.backoff.Reset()
			wait = m.interval
		} else {
			wait = m.backoff.NextBackOff()
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// HTTPProbe reports the endpoint reachable when it answers with any
// status below 500.
func HTTPProbe(client *http.Client, url string) ProbeFunc {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		_ = resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("endpoint unavailable: %s", resp.Status)
		}
		return nil
	}
}
