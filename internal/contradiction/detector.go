// Package contradiction flags prior failed or revised decisions that conflict
// with the action being taken now. Detection is two-tier: a fast pass over the
// already-retrieved task context, and a deeper storage-backed pass over recent
// bad outcomes.
package contradiction

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"memvault/internal/logging"
	"memvault/internal/semcache"
	"memvault/internal/store"
	"memvault/internal/types"
)

const (
	// maxSurfaced bounds how many contradictions any detection pass returns.
	maxSurfaced = 3

	// summaryLimit is the truncation length for contradiction summaries.
	summaryLimit = 80

	// semanticSimilarityFloor is the minimum cosine similarity for a cache
	// match to count as a semantic contradiction.
	semanticSimilarityFloor = 0.7

	// lowConfidenceCeiling marks a cached item as contradicted knowledge.
	lowConfidenceCeiling = 2.0

	// minKeywordOverlap is the shared-token threshold for the deep pass.
	minKeywordOverlap = 2
)

// Detector finds contradictions between the current task and past outcomes.
type Detector struct {
	q       store.Querier
	scopeID string
}

// NewDetector creates a contradiction detector bound to a store and scope.
func NewDetector(q store.Querier, scopeID string) *Detector {
	return &Detector{q: q, scopeID: scopeID}
}

// =============================================================================
// Fast pass
// =============================================================================

// Detect inspects the retrieved task context plus any semantic cache matches
// and returns at most 3 contradictions, critical entries first. Failed
// decisions are critical; revised decisions and low-confidence semantic
// matches are warnings. (SourceType, SourceID) pairs appear at most once.
func (d *Detector) Detect(tc *types.TaskContext, matches []semcache.Match) []types.Contradiction {
	if tc == nil {
		return nil
	}

	seen := make(map[string]bool)
	var found []types.Contradiction

	add := func(c types.Contradiction) {
		key := c.SourceType + ":" + strconv.FormatInt(c.SourceID, 10)
		if seen[key] {
			return
		}
		seen[key] = true
		found = append(found, c)
	}

	for _, dec := range tc.Decisions {
		switch dec.Outcome {
		case "failed":
			add(types.Contradiction{
				SourceType: "decision",
				SourceID:   dec.ID,
				Title:      dec.Title,
				Summary:    "Previously tried and FAILED: " + truncate(reasonOrBody(dec), summaryLimit),
				Severity:   types.SeverityCritical,
			})
		case "revised":
			add(types.Contradiction{
				SourceType: "decision",
				SourceID:   dec.ID,
				Title:      dec.Title,
				Summary:    "Previously REVISED: " + truncate(reasonOrBody(dec), summaryLimit),
				Severity:   types.SeverityWarning,
			})
		}
	}

	// A close semantic neighbor to a decision with bottomed-out confidence
	// means the stored knowledge was effectively retracted; surface it as a
	// warning. Only decisions carry an outcome to contradict, so other cached
	// kinds are skipped.
	for _, m := range matches {
		if m.Item.Kind != "decision" {
			continue
		}
		if m.Similarity < semanticSimilarityFloor || m.Item.Confidence > lowConfidenceCeiling {
			continue
		}
		add(types.Contradiction{
			SourceType: m.Item.Kind,
			SourceID:   m.Item.ID,
			Title:      m.Item.Title,
			Summary:    "Low-confidence knowledge closely matches this action: " + truncate(m.Item.Content, summaryLimit),
			Severity:   types.SeverityWarning,
		})
	}

	return rank(found)
}

// =============================================================================
// Deep pass
// =============================================================================

// DetectDeep compares the current keywords against the 10 most recent failed
// or revised decisions in storage, flagging any with at least 2 overlapping
// tokens. Storage errors degrade to no findings.
func (d *Detector) DetectDeep(ctx context.Context, keywords []string) []types.Contradiction {
	timer := logging.StartTimer(logging.CategoryRetrieval, "DetectDeep")
	defer timer.Stop()

	current := tokenSet(keywords)
	if len(current) == 0 {
		return nil
	}

	rows, err := d.q.All(ctx,
		`SELECT id, title, decision, outcome, outcome_reason FROM decisions
		 WHERE outcome IN ('failed', 'revised') AND (scope_id = '' OR scope_id = ?)
		 ORDER BY created_at DESC LIMIT 10`, d.scopeID)
	if err != nil {
		logging.RetrievalDebug("deep contradiction query failed (tolerated): %v", err)
		return nil
	}

	var found []types.Contradiction
	for _, row := range rows {
		overlap := 0
		for tok := range tokenSet([]string{row.String("title"), row.String("decision")}) {
			if current[tok] {
				overlap++
			}
		}
		if overlap < minKeywordOverlap {
			continue
		}

		severity := types.SeverityWarning
		prefix := "Previously REVISED: "
		if row.String("outcome") == "failed" {
			severity = types.SeverityCritical
			prefix = "Previously tried and FAILED: "
		}
		summary := row.String("outcome_reason")
		if summary == "" {
			summary = row.String("decision")
		}
		found = append(found, types.Contradiction{
			SourceType: "decision",
			SourceID:   row.Int("id"),
			Title:      row.String("title"),
			Summary:    prefix + truncate(summary, summaryLimit),
			Severity:   severity,
		})
	}

	return rank(found)
}

// =============================================================================
// Helpers
// =============================================================================

// rank sorts critical before warning, preserving insertion order within a
// severity, and caps the result.
func rank(found []types.Contradiction) []types.Contradiction {
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Severity == types.SeverityCritical && found[j].Severity != types.SeverityCritical
	})
	if len(found) > maxSurfaced {
		found = found[:maxSurfaced]
	}
	return found
}

func reasonOrBody(dec types.DecisionCandidate) string {
	if dec.OutcomeReason != "" {
		return dec.OutcomeReason
	}
	return dec.Decision
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

// tokenSet lowercases and splits the inputs, keeping tokens of 3+ characters.
func tokenSet(texts []string) map[string]bool {
	set := make(map[string]bool)
	for _, text := range texts {
		for _, tok := range strings.Fields(strings.ToLower(text)) {
			tok = strings.Trim(tok, ".,;:()[]{}\"'")
			if len(tok) >= 3 {
				set[tok] = true
			}
		}
	}
	return set
}
