// Package session owns the per-session pipeline: each analyzed tool call runs
// lexical analysis, retrieval, contradiction detection, intelligence
// collection, and budget assembly, producing one bounded context block. All
// state is scoped to the Engine; two sessions never share mutable state.
package session

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"memvault/internal/budget"
	"memvault/internal/config"
	"memvault/internal/contradiction"
	"memvault/internal/embedding"
	"memvault/internal/focus"
	"memvault/internal/intelligence"
	"memvault/internal/lexical"
	"memvault/internal/logging"
	"memvault/internal/retrieval"
	"memvault/internal/semcache"
	"memvault/internal/store"
	"memvault/internal/types"

	"golang.org/x/sync/errgroup"
)

// maxHistory bounds the retained tool-call history.
const maxHistory = 50

// Engine is the session-scoped context engine. Construct one per session;
// methods are safe for concurrent use.
type Engine struct {
	cfg      config.Config
	q        store.Querier
	cache    *semcache.Cache
	analyzer *lexical.Analyzer
	builder  *retrieval.Builder
	detector *contradiction.Detector
	collect  *intelligence.Collector
	shifter  *focus.Shifter
	quality  *focus.QualityTracker
	budget   *budget.Manager

	mu      sync.Mutex
	calls   []types.ToolCall // most recent first
	current *types.TaskContext
}

// New creates a session engine. The embedding engine may be nil, which
// disables semantic features; providers fields may be nil individually.
func New(q store.Querier, emb embedding.Engine, providers intelligence.Providers, cfg config.Config) *Engine {
	return &Engine{
		cfg:      cfg,
		q:        q,
		cache:    semcache.New(emb, cfg.Cache.MaxItems, cfg.Cache.SimilarityThreshold),
		analyzer: lexical.New(),
		builder:  retrieval.NewBuilder(q, cfg.ScopeID),
		detector: contradiction.NewDetector(q, cfg.ScopeID),
		collect:  intelligence.NewCollector(providers),
		shifter:  focus.NewShifter(q, cfg.Focus),
		quality:  focus.NewQualityTracker(cfg.Focus),
		budget:   budget.NewManager(cfg.Budget, nil),
	}
}

// WarmCache loads the semantic cache from storage. Call once at session
// start; concurrent calls collapse into one.
func (e *Engine) WarmCache(ctx context.Context) int {
	return e.cache.Warm(ctx, e.q, e.cfg.ScopeID)
}

// HandleToolCall runs the full pipeline for one tool invocation and returns
// the assembled context block. It never fails; on total storage loss the
// result is simply empty.
func (e *Engine) HandleToolCall(ctx context.Context, tool string, args map[string]interface{}) types.AssembledContext {
	timer := logging.StartTimer(logging.CategorySession, "HandleToolCall")
	defer timer.Stop()

	keywords := e.analyzer.ExtractKeywords(tool, args)
	files := e.analyzer.ExtractFiles(args)
	domains := e.analyzer.ExtractDomains(files)
	taskType := e.analyzer.DetectTaskType(keywords)

	call := types.ToolCall{Tool: tool, Files: files, Keywords: keywords, Domains: domains, Timestamp: time.Now()}
	calls := e.recordCall(call)

	shift := e.shifter.Record(ctx, call)
	for _, f := range files {
		e.quality.RecordAccess("file:" + f)
	}

	tc, rebuilt := e.currentOrRebuild(ctx, taskType, keywords, domains, files, shift != nil)

	// Contradiction detection and intelligence collection are independent.
	// The deep storage pass piggybacks on rebuilds only; reused contexts get
	// the cheap in-memory pass.
	var (
		contradictions []types.Contradiction
		signals        types.Signals
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		fast := e.detector.Detect(tc, e.queryCache(egCtx, keywords))
		var deep []types.Contradiction
		if rebuilt {
			deep = e.detector.DetectDeep(egCtx, keywords)
		}
		contradictions = mergeContradictions(fast, deep)
		return nil
	})
	eg.Go(func() error {
		signals = e.collect.Collect(egCtx, tc, calls)
		return nil
	})
	eg.Wait()

	assembled := e.budget.Assemble(tc, contradictions, signals)
	e.quality.SetInjected(injectedKeys(tc))

	logging.Session("context assembled for %s: %d tokens, %d sections, %d contradictions",
		tool, assembled.TotalTokens, len(assembled.Sections), len(assembled.Contradictions))
	return assembled
}

// Reset clears all session state: history, current context, the semantic
// cache, and quality tracking.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.calls = nil
	e.current = nil
	e.mu.Unlock()

	e.cache.Reset()
	e.quality.Reset()
	logging.Session("session state reset")
}

// Status summarizes the session for reporting.
type Status struct {
	CallsRecorded int      `json:"calls_recorded"`
	CacheSize     int      `json:"cache_size"`
	HitRate       float64  `json:"hit_rate"`
	FocusKeywords []string `json:"focus_keywords"`
	FocusDomains  []string `json:"focus_domains"`
	HasContext    bool     `json:"has_context"`
}

// Status reports the current session state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	calls := len(e.calls)
	hasContext := !e.current.IsEmpty()
	e.mu.Unlock()

	kw, dom := e.shifter.Baseline()
	return Status{
		CallsRecorded: calls,
		CacheSize:     e.cache.Size(),
		HitRate:       e.quality.HitRate(),
		FocusKeywords: kw,
		FocusDomains:  dom,
		HasContext:    hasContext,
	}
}

// =============================================================================
// Internals
// =============================================================================

// recordCall prepends the call to the bounded history and returns a snapshot.
func (e *Engine) recordCall(call types.ToolCall) []types.ToolCall {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls = append([]types.ToolCall{call}, e.calls...)
	if len(e.calls) > maxHistory {
		e.calls = e.calls[:maxHistory]
	}
	return append([]types.ToolCall(nil), e.calls...)
}

// currentOrRebuild returns the current task context, rebuilding it when there
// is none yet, the focus shifted, or the quality tracker flagged the injected
// context as stale. A rebuild counts as a refresh: the quality counters reset
// and the cooldown restarts. Reuse does not touch them, so misses keep
// accumulating until the next rebuild.
func (e *Engine) currentOrRebuild(ctx context.Context, taskType types.TaskType, keywords, domains, files []string, shifted bool) (*types.TaskContext, bool) {
	e.mu.Lock()
	current := e.current
	e.mu.Unlock()

	if current != nil && !shifted && !e.quality.ShouldRefresh() {
		return current, false
	}

	tc := e.builder.Build(ctx, taskType, keywords, domains, files)
	e.mu.Lock()
	e.current = tc
	e.mu.Unlock()

	e.quality.MarkRefreshed()
	return tc, true
}

// queryCache runs a semantic lookup over the joined keywords.
func (e *Engine) queryCache(ctx context.Context, keywords []string) []semcache.Match {
	if len(keywords) == 0 {
		return nil
	}
	return e.cache.Query(ctx, strings.Join(keywords, " "), 5)
}

// mergeContradictions combines the fast and deep passes, deduplicating by
// source identity, critical entries first, capped at 3.
func mergeContradictions(fast, deep []types.Contradiction) []types.Contradiction {
	seen := make(map[string]bool)
	var merged []types.Contradiction
	for _, list := range [][]types.Contradiction{fast, deep} {
		for _, c := range list {
			key := c.SourceType + ":" + strconv.FormatInt(c.SourceID, 10)
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, c)
		}
	}

	// Stable partition: criticals ahead of warnings.
	var out []types.Contradiction
	for _, c := range merged {
		if c.Severity == types.SeverityCritical {
			out = append(out, c)
		}
	}
	for _, c := range merged {
		if c.Severity != types.SeverityCritical {
			out = append(out, c)
		}
	}
	if len(out) > 3 {
		out = out[:3]
	}
	return out
}

// injectedKeys derives quality-tracking keys from the task context.
func injectedKeys(tc *types.TaskContext) []string {
	if tc == nil {
		return nil
	}
	var keys []string
	for _, f := range tc.FileCandidates {
		keys = append(keys, "file:"+f.Path)
	}
	for _, d := range tc.Decisions {
		keys = append(keys, "decision:"+strconv.FormatInt(d.ID, 10))
	}
	for _, l := range tc.Learnings {
		keys = append(keys, "learning:"+strconv.FormatInt(l.ID, 10))
	}
	return keys
}
