// Package intelligence gathers secondary signals for the budget manager:
// strategies, stale knowledge, budget overrides, next-action predictions,
// trajectory, behavior profile, and impact stats. Every provider is optional
// and every request is best-effort; a failed or missing provider contributes
// a zero value, never an error.
package intelligence

import (
	"context"

	"memvault/internal/logging"
	"memvault/internal/trajectory"
	"memvault/internal/types"

	"golang.org/x/sync/errgroup"
)

// =============================================================================
// Provider interfaces
// =============================================================================

// StrategyCatalog serves behavioral strategies relevant to a task.
type StrategyCatalog interface {
	Relevant(ctx context.Context, taskType types.TaskType, keywords []string) ([]types.Strategy, error)
}

// StalenessTracker reports knowledge items that have not been confirmed
// recently.
type StalenessTracker interface {
	Stale(ctx context.Context, limit int) ([]types.StaleItem, error)
}

// OverrideLoader serves persisted per-category budget overrides.
type OverrideLoader interface {
	BudgetOverrides(ctx context.Context) (map[string]int, error)
}

// NextActionPredictor guesses the session's next actions from its history.
type NextActionPredictor interface {
	Predict(ctx context.Context, calls []types.ToolCall) ([]types.PredictedAction, error)
}

// BehaviorProfiler serves the accumulated user behavior profile.
type BehaviorProfiler interface {
	Profile(ctx context.Context) (*types.BehaviorProfile, error)
}

// ImpactReporter serves injection effectiveness statistics.
type ImpactReporter interface {
	Impact(ctx context.Context) (*types.ImpactStats, error)
}

// AccuracyReporter serves calibration feedback for the budget manager. Zero
// values mean "no data yet".
type AccuracyReporter interface {
	PredictionAccuracy(ctx context.Context) (float64, error)
	EnrichmentAccuracy(ctx context.Context) (float64, error)
}

// StrategyUsage serves fresh usage counters for a set of strategies. Used in
// a second pass after the fan-out settles, so returned strategies carry
// current counts even when the catalog served a cached view.
type StrategyUsage interface {
	UsageCounts(ctx context.Context, ids []int64) (map[int64]int, error)
}

// =============================================================================
// Collector
// =============================================================================

// Providers bundles the optional signal sources; any field may be nil.
type Providers struct {
	Strategies StrategyCatalog
	Staleness  StalenessTracker
	Overrides  OverrideLoader
	Predictor  NextActionPredictor
	Profiler   BehaviorProfiler
	Impact     ImpactReporter
	Accuracy   AccuracyReporter
	Usage      StrategyUsage
}

// Collector fans requests out to the configured providers in parallel and
// assembles whatever came back into a Signals bundle.
type Collector struct {
	providers Providers
	analyzer  *trajectory.Analyzer
}

// NewCollector creates an intelligence collector.
func NewCollector(providers Providers) *Collector {
	return &Collector{providers: providers, analyzer: trajectory.New()}
}

// Collect gathers all available signals for the given task context and call
// history. Each provider request runs concurrently and absorbs its own
// failure; Collect itself never fails.
func (c *Collector) Collect(ctx context.Context, tc *types.TaskContext, calls []types.ToolCall) types.Signals {
	timer := logging.StartTimer(logging.CategoryIntelligence, "Collect")
	defer timer.Stop()

	var signals types.Signals
	eg, egCtx := errgroup.WithContext(ctx)

	if p := c.providers.Strategies; p != nil && tc != nil {
		eg.Go(func() error {
			strategies, err := p.Relevant(egCtx, tc.Type, tc.Keywords)
			if err != nil {
				logging.IntelligenceDebug("strategy lookup failed (tolerated): %v", err)
				return nil
			}
			signals.Strategies = strategies
			return nil
		})
	}

	if p := c.providers.Staleness; p != nil {
		eg.Go(func() error {
			stale, err := p.Stale(egCtx, 5)
			if err != nil {
				logging.IntelligenceDebug("staleness lookup failed (tolerated): %v", err)
				return nil
			}
			signals.StaleItems = stale
			return nil
		})
	}

	if p := c.providers.Overrides; p != nil {
		eg.Go(func() error {
			overrides, err := p.BudgetOverrides(egCtx)
			if err != nil {
				logging.IntelligenceDebug("override lookup failed (tolerated): %v", err)
				return nil
			}
			signals.BudgetOverrides = overrides
			return nil
		})
	}

	if p := c.providers.Predictor; p != nil {
		eg.Go(func() error {
			actions, err := p.Predict(egCtx, calls)
			if err != nil {
				logging.IntelligenceDebug("prediction failed (tolerated): %v", err)
				return nil
			}
			signals.NextActions = actions
			return nil
		})
	}

	if p := c.providers.Profiler; p != nil {
		eg.Go(func() error {
			profile, err := p.Profile(egCtx)
			if err != nil {
				logging.IntelligenceDebug("profile lookup failed (tolerated): %v", err)
				return nil
			}
			signals.Profile = profile
			return nil
		})
	}

	if p := c.providers.Impact; p != nil {
		eg.Go(func() error {
			impact, err := p.Impact(egCtx)
			if err != nil {
				logging.IntelligenceDebug("impact lookup failed (tolerated): %v", err)
				return nil
			}
			signals.Impact = impact
			return nil
		})
	}

	if p := c.providers.Accuracy; p != nil {
		eg.Go(func() error {
			if acc, err := p.PredictionAccuracy(egCtx); err == nil {
				signals.PredictionAccuracy = acc
			}
			if acc, err := p.EnrichmentAccuracy(egCtx); err == nil {
				signals.EnrichmentAccuracy = acc
			}
			return nil
		})
	}

	// Trajectory is computed locally, not provided.
	eg.Go(func() error {
		analysis := c.analyzer.Analyze(calls)
		signals.Trajectory = &analysis
		return nil
	})

	eg.Wait()

	c.enrichStrategyUsage(ctx, signals.Strategies)

	logging.IntelligenceDebug("signals collected: %d strategies, %d stale, %d overrides, %d predictions",
		len(signals.Strategies), len(signals.StaleItems), len(signals.BudgetOverrides), len(signals.NextActions))
	return signals
}

// enrichStrategyUsage refreshes usage counters on the gathered strategies.
// Best effort: a failed lookup leaves the catalog's counts in place.
func (c *Collector) enrichStrategyUsage(ctx context.Context, strategies []types.Strategy) {
	if c.providers.Usage == nil || len(strategies) == 0 {
		return
	}

	ids := make([]int64, len(strategies))
	for i, s := range strategies {
		ids[i] = s.ID
	}

	counts, err := c.providers.Usage.UsageCounts(ctx, ids)
	if err != nil {
		logging.IntelligenceDebug("usage enrichment failed (tolerated): %v", err)
		return
	}
	for i := range strategies {
		if n, ok := counts[strategies[i].ID]; ok {
			strategies[i].TimesUsed = n
		}
	}
}
