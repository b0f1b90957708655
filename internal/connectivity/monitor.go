// Package connectivity polls network reachability.
package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

type Probe interface {
	Online(ctx context.Context) bool
}

type ProbeFunc func(ctx context.Context) bool

func (f ProbeFunc) Online(ctx context.Context) bool { return f(ctx) }

// HTTPProbe treats any response below 500 from URL as online.
type HTTPProbe struct {
	URL    string
	Client *http.Client
}

func (p HTTPProbe) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

// Monitor owns the connectivity flag. It starts out online so the first
// failed sample is what raises the warning.
type Monitor struct {
	probe   Probe
	timeout time.Duration

	mu      sync.RWMutex
	online  bool
	samples uint64
}

func NewMonitor(p Probe, timeout time.Duration) *Monitor {
	return &Monitor{probe: p, timeout: timeout, online: true}
}

func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Sample probes once, stores the result and returns it.
func (m *Monitor) Sample(ctx context.Context) bool {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	on := m.probe.Online(ctx)

	m.mu.Lock()
	m.online = on
	m.samples++
	m.mu.Unlock()

	return on
}

func (m *Monitor) String() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fmt.Sprintf("online=%t samples=%d", m.online, m.samples)
}
