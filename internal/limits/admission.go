// Package limits implements the admission-control layer: the per-IP
// connection cap, the per-connection fixed-window message counter, and
// an optional token-bucket limiter for connection attempts.
package limits

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// AdmissionConfig configures the admission controller.
type AdmissionConfig struct {
	ConnectionsPerIP int           // concurrent connections allowed per IP
	MessageRateLimit int           // frames admitted per window per connection
	MessageWindow    time.Duration // fixed-window length
	SweepInterval    time.Duration // stale window sweep cadence (default 5m)

	Logger zerolog.Logger
}

// messageWindow is the fixed-window counter state for one connection.
type messageWindow struct {
	count       int
	windowStart time.Time
}

// Admission tracks per-IP connection counts and per-connection message
// windows. All maps shrink back to empty: IP entries are dropped at
// count zero, message windows on connection teardown plus a best-effort
// sweep of windows that ended more than two window lengths ago.
type Admission struct {
	cfg    AdmissionConfig
	logger zerolog.Logger

	mu        sync.Mutex
	ipCounts  map[string]int
	messages  map[string]*messageWindow
	sweepStop chan struct{}
	sweepOnce sync.Once

	// test seam; defaults to time.Now
	now func() time.Time
}

func NewAdmission(cfg AdmissionConfig) *Admission {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	return &Admission{
		cfg:       cfg,
		logger:    cfg.Logger.With().Str("component", "admission").Logger(),
		ipCounts:  make(map[string]int),
		messages:  make(map[string]*messageWindow),
		sweepStop: make(chan struct{}),
		now:       time.Now,
	}
}

// TryAddConnection counts a connection against ip when it is below the
// cap. Check and increment share one critical section, so two upgrades
// racing at cap-1 can never both be admitted.
func (a *Admission) TryAddConnection(ip string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ipCounts[ip] >= a.cfg.ConnectionsPerIP {
		return false
	}
	a.ipCounts[ip]++
	return true
}

// RemoveConnection releases one connection slot for ip, dropping the
// entry once it reaches zero.
func (a *Admission) RemoveConnection(ip string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n, ok := a.ipCounts[ip]; ok {
		if n <= 1 {
			delete(a.ipCounts, ip)
		} else {
			a.ipCounts[ip] = n - 1
		}
	}
}

// ConnectionCount returns the live count for ip.
func (a *Admission) ConnectionCount(ip string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ipCounts[ip]
}

// CanSendMessage admits or rejects one inbound frame for connID under
// the fixed-window scheme: a frame past the window end opens a fresh
// window with count 1; within the window the count increments and the
// frame is admitted iff the count stays at or below the cap.
func (a *Admission) CanSendMessage(connID string) bool {
	now := a.now()

	a.mu.Lock()
	defer a.mu.Unlock()

	w, ok := a.messages[connID]
	if !ok || now.Sub(w.windowStart) >= a.cfg.MessageWindow {
		a.messages[connID] = &messageWindow{count: 1, windowStart: now}
		return true
	}
	w.count++
	return w.count <= a.cfg.MessageRateLimit
}

// ReleaseConnection drops all per-connection state for connID.
func (a *Admission) ReleaseConnection(connID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.messages, connID)
}

// StartSweeper launches the periodic sweep of stale message windows.
// Owned by the server lifetime; stops on ctx cancellation or Stop.
func (a *Admission) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(a.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				a.sweep()
			case <-ctx.Done():
				return
			case <-a.sweepStop:
				return
			}
		}
	}()
}

// Stop halts the sweeper. Safe to call more than once.
func (a *Admission) Stop() {
	a.sweepOnce.Do(func() { close(a.sweepStop) })
}

// sweep removes windows that ended more than two window lengths ago.
// A live connection's active window is always younger than that, so
// the sweep can never take state out from under it.
func (a *Admission) sweep() {
	cutoff := a.now().Add(-2 * a.cfg.MessageWindow)

	a.mu.Lock()
	defer a.mu.Unlock()

	removed := 0
	for id, w := range a.messages {
		if w.windowStart.Before(cutoff) {
			delete(a.messages, id)
			removed++
		}
	}
	if removed > 0 {
		a.logger.Debug().
			Int("removed", removed).
			Int("remaining", len(a.messages)).
			Msg("Swept stale message rate windows")
	}
}
