// Package focus tracks what the session is working on. The shifter watches a
// sliding window of tool calls and re-anchors when activity diverges from the
// established baseline; the quality tracker watches whether injected context
// is actually being used and recommends a refresh when it is not.
package focus

import (
	"context"
	"strings"
	"sync"
	"time"

	"memvault/internal/config"
	"memvault/internal/logging"
	"memvault/internal/store"
	"memvault/internal/types"

	"github.com/google/uuid"
)

// Weights for the blended similarity between the current window and the
// anchored baseline. Keywords dominate; domains refine.
const (
	keywordWeight = 0.6
	domainWeight  = 0.4
)

// Shift describes one detected focus change.
type Shift struct {
	ID         string
	Similarity float64
	Keywords   []string
	Domains    []string
	Files      []string
	Reason     string
}

// Shifter detects focus divergence over a sliding call window. A shift fires
// at most once per cooldown period; detecting one persists a focus record and
// re-anchors the baseline so the same divergence is not reported twice.
type Shifter struct {
	cfg config.FocusConfig
	q   store.Querier
	now func() time.Time

	mu               sync.Mutex
	window           []types.ToolCall
	baselineKeywords map[string]bool
	baselineDomains  map[string]bool
	callsSinceAnchor int
	lastShift        time.Time
}

// NewShifter creates a focus shifter. The querier may be nil, in which case
// shifts are detected but not persisted.
func NewShifter(q store.Querier, cfg config.FocusConfig) *Shifter {
	if cfg.WindowSize <= 0 {
		cfg = config.DefaultFocusConfig()
	}
	return &Shifter{cfg: cfg, q: q, now: time.Now}
}

// Record feeds one tool call into the window and checks for divergence. It
// returns a non-nil Shift when the blended similarity against the baseline
// drops below the threshold, the minimum call count has been reached, and the
// cooldown has elapsed.
func (s *Shifter) Record(ctx context.Context, call types.ToolCall) *Shift {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.window = append(s.window, call)
	if len(s.window) > s.cfg.WindowSize {
		s.window = s.window[len(s.window)-s.cfg.WindowSize:]
	}
	s.callsSinceAnchor++

	// First call anchors the baseline.
	if s.baselineKeywords == nil {
		s.anchorLocked()
		return nil
	}

	curKW, curDom := s.windowSetsLocked()
	similarity := jaccard(s.baselineKeywords, curKW)*keywordWeight +
		jaccard(s.baselineDomains, curDom)*domainWeight

	if similarity >= s.cfg.DivergenceThreshold {
		return nil
	}
	if s.callsSinceAnchor < s.cfg.MinCalls {
		return nil
	}
	cooldown := time.Duration(s.cfg.DivergenceCooldownSec) * time.Second
	if !s.lastShift.IsZero() && s.now().Sub(s.lastShift) < cooldown {
		logging.FocusDebug("divergence %.2f below threshold but within cooldown", similarity)
		return nil
	}

	shift := &Shift{
		ID:         uuid.NewString(),
		Similarity: similarity,
		Keywords:   setToSlice(curKW),
		Domains:    setToSlice(curDom),
		Files:      s.windowFilesLocked(),
		Reason:     "activity diverged from established focus",
	}

	s.persist(ctx, shift)
	s.lastShift = s.now()
	s.anchorLocked()

	logging.Focus("focus shift detected (similarity=%.2f, keywords=%v)", similarity, shift.Keywords)
	return shift
}

// Baseline returns the current anchored keywords and domains, for status
// reporting.
func (s *Shifter) Baseline() (keywords, domains []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setToSlice(s.baselineKeywords), setToSlice(s.baselineDomains)
}

// anchorLocked re-anchors the baseline to the current window. Caller holds mu.
func (s *Shifter) anchorLocked() {
	s.baselineKeywords, s.baselineDomains = s.windowSetsLocked()
	s.callsSinceAnchor = 0
}

// windowSetsLocked aggregates keyword and domain sets over the window.
// Caller holds mu.
func (s *Shifter) windowSetsLocked() (map[string]bool, map[string]bool) {
	kw := make(map[string]bool)
	dom := make(map[string]bool)
	for _, call := range s.window {
		for _, k := range call.Keywords {
			kw[k] = true
		}
		for _, d := range call.Domains {
			dom[d] = true
		}
	}
	return kw, dom
}

func (s *Shifter) windowFilesLocked() []string {
	seen := make(map[string]bool)
	var files []string
	for _, call := range s.window {
		for _, f := range call.Files {
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}
	return files
}

// persist writes the focus record. Failures are tolerated; the in-memory
// re-anchor still happens.
func (s *Shifter) persist(ctx context.Context, shift *Shift) {
	if s.q == nil {
		return
	}
	_, err := s.q.Run(ctx,
		`INSERT OR REPLACE INTO focus_areas (id, files, keywords, domains, reason)
		 VALUES (?, ?, ?, ?, ?)`,
		shift.ID,
		strings.Join(shift.Files, ","),
		strings.Join(shift.Keywords, ","),
		strings.Join(shift.Domains, ","),
		shift.Reason)
	if err != nil {
		logging.FocusDebug("focus record persist failed (tolerated): %v", err)
	}
}

// jaccard computes set intersection over union. Two empty sets are identical.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func setToSlice(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
