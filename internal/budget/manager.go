// Package budget turns a task context, contradictions, and intelligence
// signals into a bounded text block. Every category gets a token budget,
// items are scored and greedily packed as whole lines, and sections are
// emitted in a fixed priority order until the total budget runs out.
package budget

import (
	"fmt"
	"sort"
	"strings"

	"memvault/internal/config"
	"memvault/internal/logging"
	"memvault/internal/types"
)

// Category names, in emission priority order.
const (
	CategoryContradictions   = "contradictions"
	CategoryCriticalWarnings = "critical_warnings"
	CategoryStrategies       = "strategies"
	CategoryDecisions        = "decisions"
	CategoryLearnings        = "learnings"
	CategoryFileContext      = "file_context"
	CategoryIssues           = "issues"
	CategoryErrorFixes       = "error_fixes"
	CategoryReserve          = "reserve"
)

// sectionOrder fixes the emission order. Reserve is headroom, never emitted.
var sectionOrder = []string{
	CategoryContradictions,
	CategoryCriticalWarnings,
	CategoryStrategies,
	CategoryDecisions,
	CategoryLearnings,
	CategoryFileContext,
	CategoryIssues,
	CategoryErrorFixes,
}

// defaultBudgets sums to the 2000-token default total.
var defaultBudgets = map[string]int{
	CategoryContradictions:   250,
	CategoryCriticalWarnings: 250,
	CategoryStrategies:       200,
	CategoryDecisions:        300,
	CategoryLearnings:        300,
	CategoryFileContext:      300,
	CategoryIssues:           150,
	CategoryErrorFixes:       150,
	CategoryReserve:          100,
}

// fragileThreshold promotes a file into the critical warnings section.
const fragileThreshold = 7.0

// Estimator converts text to an approximate token count.
type Estimator interface {
	Estimate(text string) int
}

// CharEstimator approximates tokens as ceil(len/4), the usual heuristic for
// code-heavy English text.
type CharEstimator struct{}

// Estimate returns the approximate token count for the text.
func (CharEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// Manager assembles bounded context blocks.
type Manager struct {
	cfg config.BudgetConfig
	est Estimator
}

// NewManager creates a budget manager. A nil estimator falls back to the
// character heuristic.
func NewManager(cfg config.BudgetConfig, est Estimator) *Manager {
	if cfg.TotalTokens <= 0 {
		cfg = config.DefaultBudgetConfig()
	}
	if est == nil {
		est = CharEstimator{}
	}
	return &Manager{cfg: cfg, est: est}
}

// line is one scored candidate output line.
type line struct {
	text  string
	score float64
}

// Assemble produces the final context block. It never fails: an empty task
// context with no contradictions or signals yields an empty text and zero
// tokens. The output never exceeds the total token budget.
func (m *Manager) Assemble(tc *types.TaskContext, contradictions []types.Contradiction, signals types.Signals) types.AssembledContext {
	timer := logging.StartTimer(logging.CategoryBudget, "Assemble")
	defer timer.Stop()

	out := types.AssembledContext{Contradictions: contradictions}
	if tc.IsEmpty() && len(contradictions) == 0 && len(signals.Strategies) == 0 {
		return out
	}

	budgets := m.computeBudgets(signals)
	candidates := m.collectLines(tc, contradictions, signals)

	var sb strings.Builder
	remaining := m.cfg.TotalTokens

	for _, category := range sectionOrder {
		lines := candidates[category]
		if len(lines) == 0 {
			continue
		}

		section := m.fillSection(category, lines, budgets[category])
		if section.Tokens == 0 {
			continue
		}
		if section.Tokens > remaining {
			// First overflow ends assembly; later sections are lower priority.
			break
		}

		sb.WriteString(section.Text)
		remaining -= section.Tokens
		out.Sections = append(out.Sections, section)
		out.TotalTokens += section.Tokens
	}

	out.Text = strings.TrimRight(sb.String(), "\n")
	if out.Text != "" {
		out.Text += "\n"
	}

	logging.BudgetDebug("assembled %d sections, %d/%d tokens",
		len(out.Sections), out.TotalTokens, m.cfg.TotalTokens)
	return out
}

// =============================================================================
// Budget computation
// =============================================================================

// computeBudgets starts from the defaults, applies configured and persisted
// overrides, then scales select categories by accuracy feedback. Every
// adjusted value is clamped to [MinCategoryTokens, MaxCategoryTokens].
func (m *Manager) computeBudgets(signals types.Signals) map[string]int {
	budgets := make(map[string]int, len(defaultBudgets))
	for cat, tokens := range defaultBudgets {
		budgets[cat] = tokens
	}

	for cat, tokens := range m.cfg.Categories {
		if _, known := budgets[cat]; known {
			budgets[cat] = m.clamp(tokens)
		}
	}
	for cat, tokens := range signals.BudgetOverrides {
		if _, known := budgets[cat]; known {
			budgets[cat] = m.clamp(tokens)
		}
	}

	// Accuracy feedback: confident predictions earn file context more room,
	// confident enrichment earns the knowledge categories more room. Factor
	// range is 0.75 to 1.25.
	if acc := signals.PredictionAccuracy; acc > 0 {
		budgets[CategoryFileContext] = m.clamp(scale(budgets[CategoryFileContext], acc))
	}
	if acc := signals.EnrichmentAccuracy; acc > 0 {
		for _, cat := range []string{CategoryCriticalWarnings, CategoryDecisions, CategoryLearnings, CategoryErrorFixes} {
			budgets[cat] = m.clamp(scale(budgets[cat], acc))
		}
	}

	return budgets
}

func scale(tokens int, accuracy float64) int {
	return int(float64(tokens) * (0.75 + accuracy*0.5))
}

func (m *Manager) clamp(tokens int) int {
	if tokens < m.cfg.MinCategoryTokens {
		return m.cfg.MinCategoryTokens
	}
	if tokens > m.cfg.MaxCategoryTokens {
		return m.cfg.MaxCategoryTokens
	}
	return tokens
}

// =============================================================================
// Scoring and line collection
// =============================================================================

// collectLines renders every candidate item into a scored line, bucketed by
// category.
func (m *Manager) collectLines(tc *types.TaskContext, contradictions []types.Contradiction, signals types.Signals) map[string][]line {
	buckets := make(map[string][]line)
	add := func(cat string, score float64, text string) {
		buckets[cat] = append(buckets[cat], line{text: text, score: score})
	}

	for i, c := range contradictions {
		tag := "[WARNING]"
		score := 1.0 - float64(i)*0.01
		if c.Severity == types.SeverityCritical {
			tag = "[CRITICAL]"
			score += 1.0
		}
		add(CategoryContradictions, score, fmt.Sprintf("%s %s: %s", tag, c.Title, c.Summary))
	}

	if tc != nil {
		m.collectContextLines(tc, add)
	}

	for _, s := range signals.Strategies {
		score := s.SuccessRate*0.6 + min(float64(s.TimesUsed)/20, 1.0)*0.4
		add(CategoryStrategies, score,
			fmt.Sprintf("[STRATEGY %.0f%%] %s: %s", s.SuccessRate*100, s.Name, s.Approach))
	}

	return buckets
}

func (m *Manager) collectContextLines(tc *types.TaskContext, add func(string, float64, string)) {
	for _, f := range tc.FileCandidates {
		score := f.RelevanceScore
		switch {
		case f.Fragility >= 9:
			score += 0.4
		case f.Fragility >= fragileThreshold:
			score += 0.2
		}

		if f.Fragility >= fragileThreshold {
			text := fmt.Sprintf("[FRAGILE %.0f/10] %s", f.Fragility, f.Path)
			if f.LastError != "" {
				text += ": last error: " + f.LastError
			}
			add(CategoryCriticalWarnings, score, text)
			continue
		}

		text := "[FILE] " + f.Path
		if f.Purpose != "" {
			text += ": " + f.Purpose
		}
		add(CategoryFileContext, score, text)
	}

	for _, d := range tc.Decisions {
		score := d.RelevanceScore
		switch d.Outcome {
		case "failed":
			score += 0.5
			text := fmt.Sprintf("[FAILED] %s: %s", d.Title, firstNonEmpty(d.OutcomeReason, d.Decision))
			add(CategoryCriticalWarnings, score, text)
			continue
		case "revised":
			score += 0.2
		}
		add(CategoryDecisions, score,
			fmt.Sprintf("[DECISION %s] %s: %s", d.Outcome, d.Title, d.Decision))
	}

	for _, l := range tc.Learnings {
		score := l.RelevanceScore + l.Confidence/10*0.3
		if l.Category == "gotcha" {
			score += 0.3
		}
		tag := "[LEARNING]"
		if l.Category != "" {
			tag = "[LEARNING " + l.Category + "]"
		}
		add(CategoryLearnings, score, tag+" "+l.Content)
	}

	for _, i := range tc.Issues {
		score := i.RelevanceScore + i.Severity/10*0.4
		if i.IssueType == "security" {
			score += 0.3
		}
		add(CategoryIssues, score,
			fmt.Sprintf("[ISSUE %.0f/10 %s] %s", i.Severity, firstNonEmpty(i.IssueType, "open"), i.Title))
	}

	for _, ef := range tc.ErrorFixes {
		add(CategoryErrorFixes, ef.Confidence,
			fmt.Sprintf("[FIX x%d] %s: %s", ef.FixCount, ef.ErrorSignature, ef.Fix))
	}
}

// =============================================================================
// Section filling
// =============================================================================

// sectionHeaders maps categories to their rendered headers.
var sectionHeaders = map[string]string{
	CategoryContradictions:   "## Contradictions",
	CategoryCriticalWarnings: "## Critical Warnings",
	CategoryStrategies:       "## Strategies",
	CategoryDecisions:        "## Relevant Decisions",
	CategoryLearnings:        "## Learnings",
	CategoryFileContext:      "## File Context",
	CategoryIssues:           "## Open Issues",
	CategoryErrorFixes:       "## Known Fixes",
}

// fillSection greedily packs the highest-scored lines into the category
// budget. Lines are atomic: one that does not fit whole is skipped, never
// truncated mid-line. A section whose header plus best line does not fit
// comes back empty.
func (m *Manager) fillSection(category string, lines []line, budget int) types.ContextSection {
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].score > lines[j].score })

	header := sectionHeaders[category] + "\n"
	used := m.est.Estimate(header)
	var body strings.Builder

	for _, l := range lines {
		cost := m.est.Estimate(l.text + "\n")
		if used+cost > budget {
			continue
		}
		body.WriteString(l.text)
		body.WriteString("\n")
		used += cost
	}

	if body.Len() == 0 {
		return types.ContextSection{Category: category}
	}
	return types.ContextSection{
		Category: category,
		Text:     header + body.String() + "\n",
		Tokens:   used + m.est.Estimate("\n"),
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
