package focus

import (
	"sync"
	"time"

	"memvault/internal/config"
	"memvault/internal/logging"
)

// Quality tracker tunables. Refresh fires only after the cooldown, on
// sustained misses against the injected set.
const (
	consecutiveMissLimit = 3
	minAccessesForRate   = 5
	lowHitRate           = 0.3
)

// QualityTracker measures whether the context most recently injected is being
// used. Each tool call is checked against the injected set; sustained misses
// mean the context went stale and should be rebuilt.
//
// Injection and refresh are distinct events: SetInjected only swaps the key
// set (it runs after every assembly), while MarkRefreshed resets the counters
// and restarts the cooldown (it runs only when the context is rebuilt).
type QualityTracker struct {
	cfg config.FocusConfig
	now func() time.Time

	mu                sync.Mutex
	injected          map[string]bool
	accesses          int // cumulative since last refresh
	hits              int
	consecutiveMisses int
	lastRefresh       time.Time
}

// NewQualityTracker creates a quality tracker.
func NewQualityTracker(cfg config.FocusConfig) *QualityTracker {
	if cfg.RefreshCooldownSec <= 0 {
		cfg = config.DefaultFocusConfig()
	}
	return &QualityTracker{
		cfg:      cfg,
		now:      time.Now,
		injected: make(map[string]bool),
	}
}

// SetInjected replaces the injected-item set after a context assembly. The
// hit and miss counters are deliberately left alone so misses keep
// accumulating across calls that reuse the same context.
func (t *QualityTracker) SetInjected(keys []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.injected = make(map[string]bool, len(keys))
	for _, k := range keys {
		t.injected[k] = true
	}
}

// MarkRefreshed records that the context was actually rebuilt: counters
// reset and the refresh cooldown restarts.
func (t *QualityTracker) MarkRefreshed() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.accesses = 0
	t.hits = 0
	t.consecutiveMisses = 0
	t.lastRefresh = t.now()
}

// RecordAccess registers that the session touched the given item key and
// reports whether it was part of the injected context. A hit resets the
// consecutive miss counter.
func (t *QualityTracker) RecordAccess(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	hit := t.injected[key]
	t.accesses++
	if hit {
		t.hits++
		t.consecutiveMisses = 0
	} else {
		t.consecutiveMisses++
	}
	return hit
}

// ShouldRefresh reports whether the injected context has gone stale: the
// refresh cooldown has elapsed and either 3+ consecutive misses occurred or
// at least 5 accesses show a cumulative hit rate below 30%.
func (t *QualityTracker) ShouldRefresh() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	cooldown := time.Duration(t.cfg.RefreshCooldownSec) * time.Second
	if t.lastRefresh.IsZero() || t.now().Sub(t.lastRefresh) < cooldown {
		return false
	}

	if t.consecutiveMisses >= consecutiveMissLimit {
		logging.FocusDebug("refresh recommended: %d consecutive misses", t.consecutiveMisses)
		return true
	}
	if t.accesses >= minAccessesForRate && t.hitRateLocked() < lowHitRate {
		logging.FocusDebug("refresh recommended: hit rate %.2f over %d accesses",
			t.hitRateLocked(), t.accesses)
		return true
	}
	return false
}

// HitRate returns the cumulative hit rate since the last refresh, 1.0 when
// nothing has been accessed yet.
func (t *QualityTracker) HitRate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hitRateLocked()
}

func (t *QualityTracker) hitRateLocked() float64 {
	if t.accesses == 0 {
		return 1.0
	}
	return float64(t.hits) / float64(t.accesses)
}

// Reset clears all tracking state, including the injected set.
func (t *QualityTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.injected = make(map[string]bool)
	t.accesses = 0
	t.hits = 0
	t.consecutiveMisses = 0
	t.lastRefresh = time.Time{}
}
