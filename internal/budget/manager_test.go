package budget

import (
	"strings"
	"testing"

	"memvault/internal/config"
	"memvault/internal/types"
)

func TestAssembleEmptyContext(t *testing.T) {
	m := NewManager(config.DefaultBudgetConfig(), nil)

	out := m.Assemble(&types.TaskContext{}, nil, types.Signals{})
	if out.Text != "" {
		t.Errorf("empty context should produce empty text, got %q", out.Text)
	}
	if out.TotalTokens != 0 {
		t.Errorf("empty context should cost 0 tokens, got %d", out.TotalTokens)
	}

	out = m.Assemble(nil, nil, types.Signals{})
	if out.Text != "" {
		t.Errorf("nil context should produce empty text, got %q", out.Text)
	}
}

func TestAssembleRespectsTotalBudget(t *testing.T) {
	cfg := config.DefaultBudgetConfig()
	cfg.TotalTokens = 150
	m := NewManager(cfg, nil)

	tc := &types.TaskContext{}
	for i := 0; i < 20; i++ {
		tc.Learnings = append(tc.Learnings, types.LearningCandidate{
			ID:             int64(i + 1),
			Content:        strings.Repeat("long learning content ", 10),
			Confidence:     8,
			RelevanceScore: 0.6,
		})
	}

	out := m.Assemble(tc, nil, types.Signals{})
	if out.TotalTokens > cfg.TotalTokens {
		t.Errorf("total tokens %d exceed budget %d", out.TotalTokens, cfg.TotalTokens)
	}
	if est := (CharEstimator{}).Estimate(out.Text); est > cfg.TotalTokens+5 {
		t.Errorf("rendered text estimates to %d tokens, budget %d", est, cfg.TotalTokens)
	}
}

func TestAssembleSectionOrder(t *testing.T) {
	m := NewManager(config.DefaultBudgetConfig(), nil)

	tc := &types.TaskContext{
		FileCandidates: []types.FileCandidate{
			{Path: "pkg/db/conn.go", Fragility: 8, LastError: "deadlock", RelevanceScore: 1.0},
			{Path: "pkg/api/handler.go", Purpose: "http handlers", RelevanceScore: 0.6},
		},
		Decisions: []types.DecisionCandidate{
			{ID: 1, Title: "use pooling", Decision: "connection pooling", Outcome: "failed", OutcomeReason: "leaked under load", RelevanceScore: 1.0},
			{ID: 2, Title: "use sqlite", Decision: "embedded sqlite", Outcome: "succeeded", RelevanceScore: 0.6},
		},
		Learnings: []types.LearningCandidate{
			{ID: 1, Content: "pool size must stay under 10", Confidence: 9, RelevanceScore: 0.6},
		},
	}

	out := m.Assemble(tc, nil, types.Signals{})

	warnIdx := strings.Index(out.Text, "## Critical Warnings")
	decIdx := strings.Index(out.Text, "## Relevant Decisions")
	learnIdx := strings.Index(out.Text, "## Learnings")
	if warnIdx < 0 || decIdx < 0 || learnIdx < 0 {
		t.Fatalf("missing sections in output:\n%s", out.Text)
	}
	if !(warnIdx < decIdx && decIdx < learnIdx) {
		t.Errorf("sections out of order: warnings=%d decisions=%d learnings=%d", warnIdx, decIdx, learnIdx)
	}

	// The fragile file and the failed decision both belong in critical
	// warnings, not in their regular sections.
	if !strings.Contains(out.Text, "[FRAGILE 8/10] pkg/db/conn.go") {
		t.Errorf("fragile file not promoted to critical warnings:\n%s", out.Text)
	}
	if !strings.Contains(out.Text, "[FAILED] use pooling") {
		t.Errorf("failed decision not promoted to critical warnings:\n%s", out.Text)
	}
	if strings.Contains(out.Text, "[DECISION failed]") {
		t.Errorf("failed decision also rendered in decisions section:\n%s", out.Text)
	}
}

func TestAssembleContradictionsFirst(t *testing.T) {
	m := NewManager(config.DefaultBudgetConfig(), nil)

	tc := &types.TaskContext{
		Learnings: []types.LearningCandidate{{ID: 1, Content: "something", RelevanceScore: 0.6}},
	}
	contradictions := []types.Contradiction{
		{SourceType: "decision", SourceID: 7, Title: "bad idea", Summary: "Previously tried and FAILED: it broke", Severity: types.SeverityCritical},
	}

	out := m.Assemble(tc, contradictions, types.Signals{})
	if !strings.HasPrefix(out.Text, "## Contradictions") {
		t.Errorf("contradictions should lead the output:\n%s", out.Text)
	}
	if !strings.Contains(out.Text, "[CRITICAL] bad idea") {
		t.Errorf("critical contradiction missing:\n%s", out.Text)
	}
	if len(out.Contradictions) != 1 {
		t.Errorf("structured contradictions not carried through: %d", len(out.Contradictions))
	}
}

func TestLinesNeverTruncatedMidLine(t *testing.T) {
	cfg := config.DefaultBudgetConfig()
	m := NewManager(cfg, nil)

	long := strings.Repeat("x", 2000)
	tc := &types.TaskContext{
		Learnings: []types.LearningCandidate{
			{ID: 1, Content: long, RelevanceScore: 0.9},
			{ID: 2, Content: "short learning that fits", RelevanceScore: 0.5},
		},
	}

	out := m.Assemble(tc, nil, types.Signals{})
	if strings.Contains(out.Text, long[:500]) {
		t.Errorf("oversized line should be skipped, not included")
	}
	if !strings.Contains(out.Text, "short learning that fits") {
		t.Errorf("fitting line should still be packed:\n%s", out.Text)
	}
}

func TestComputeBudgetsClampsOverrides(t *testing.T) {
	cfg := config.DefaultBudgetConfig()
	m := NewManager(cfg, nil)

	budgets := m.computeBudgets(types.Signals{
		BudgetOverrides: map[string]int{
			CategoryDecisions: 5000,
			CategoryLearnings: 10,
			"bogus_category":  999,
		},
	})

	if budgets[CategoryDecisions] != cfg.MaxCategoryTokens {
		t.Errorf("decisions override not clamped to max: %d", budgets[CategoryDecisions])
	}
	if budgets[CategoryLearnings] != cfg.MinCategoryTokens {
		t.Errorf("learnings override not clamped to min: %d", budgets[CategoryLearnings])
	}
	if _, ok := budgets["bogus_category"]; ok {
		t.Errorf("unknown category should be ignored")
	}
}

func TestComputeBudgetsAccuracyScaling(t *testing.T) {
	m := NewManager(config.DefaultBudgetConfig(), nil)

	base := m.computeBudgets(types.Signals{})
	high := m.computeBudgets(types.Signals{PredictionAccuracy: 1.0})
	low := m.computeBudgets(types.Signals{PredictionAccuracy: 0.1})

	if high[CategoryFileContext] <= base[CategoryFileContext] {
		t.Errorf("high accuracy should grow file context: %d vs %d",
			high[CategoryFileContext], base[CategoryFileContext])
	}
	if low[CategoryFileContext] >= base[CategoryFileContext] {
		t.Errorf("low accuracy should shrink file context: %d vs %d",
			low[CategoryFileContext], base[CategoryFileContext])
	}
	// Untouched categories stay put.
	if high[CategoryIssues] != base[CategoryIssues] {
		t.Errorf("issues budget should not react to prediction accuracy")
	}
}

func TestDefaultBudgetsSumToTotal(t *testing.T) {
	sum := 0
	for _, tokens := range defaultBudgets {
		sum += tokens
	}
	if sum != config.DefaultBudgetConfig().TotalTokens {
		t.Errorf("default budgets sum to %d, want %d", sum, config.DefaultBudgetConfig().TotalTokens)
	}
}

func TestCharEstimator(t *testing.T) {
	est := CharEstimator{}
	if got := est.Estimate(""); got != 0 {
		t.Errorf("empty text should cost 0, got %d", got)
	}
	if got := est.Estimate("abcd"); got != 1 {
		t.Errorf("4 chars should cost 1 token, got %d", got)
	}
	if got := est.Estimate("abcde"); got != 2 {
		t.Errorf("5 chars should round up to 2 tokens, got %d", got)
	}
}
