package outbox

import (
	"context"
	"net/http"
	"sync"
	"time"

	"scan-licences/internal/logger"
)

// Connectivity tells the queue whether the backend can be reached.
type Connectivity interface {
	Online() bool
	// Restored fires after each offline to online transition.
	Restored() <-chan struct{}
}

// Prober polls a health URL. It starts out online so a fresh kiosk tries
// the backend first.
type Prober struct {
	url      string
	client   *http.Client
	interval time.Duration

	mu       sync.Mutex
	online   bool
	restored chan struct{}
}

func NewProber(healthURL string, interval, timeout time.Duration) *Prober {
	return &Prober{
		url:      healthURL,
		client:   &http.Client{Timeout: timeout},
		interval: interval,
		online:   true,
		restored: make(chan struct{}, 1),
	}
}

func (p *Prober) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

func (p *Prober) Restored() <-chan struct{} { return p.restored }

// Set records the observed state, firing Restored on a transition to
// online.
func (p *Prober) Set(online bool) {
	p.mu.Lock()
	was := p.online
	p.online = online
	p.mu.Unlock()

	if was == online {
		return
	}
	logger.Info("connectivity.changed", "online", online)
	if online {
		select {
		case p.restored <- struct{}{}:
		default:
		}
	}
}

// Check probes once and records the result.
func (p *Prober) Check(ctx context.Context) bool {
	ok := false
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err == nil {
		if resp, err := p.client.Do(req); err == nil {
			resp.Body.Close()
			ok = resp.StatusCode < 500
		}
	}
	if ctx.Err() == nil {
		p.Set(ok)
	}
	return ok
}

// Run probes until ctx is done.
func (p *Prober) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}
