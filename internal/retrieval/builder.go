// Package retrieval builds the task context: given keywords, domains, and
// touched files it issues independent, parallel, best-effort lookups against
// the knowledge store and assembles a typed bundle of candidate files,
// decisions, learnings, issues, and error fixes.
package retrieval

import (
	"context"
	"strings"
	"time"

	"memvault/internal/lexical"
	"memvault/internal/logging"
	"memvault/internal/store"
	"memvault/internal/types"

	"golang.org/x/sync/errgroup"
)

// Result caps. Direct matches take priority over indirect ones for the same
// identity; lists never exceed these sizes.
const (
	maxSearchTerms = 10
	maxDirectFiles = 5
	maxFiles       = 8
	maxDecisions   = 5
	maxLearnings   = 5
	maxIssues      = 3
	maxErrorFixes  = 3
)

// Provenance-derived base scores.
const (
	scoreDirect         = 1.0
	scoreFullText       = 0.6
	scoreIssueFullText  = 0.7
	scoreFallbackFile   = 0.4
	scoreFallbackOther  = 0.5
	scoreAffectsFailed  = 1.0
	scoreAffectsDefault = 0.8
)

// Builder assembles task contexts from the knowledge store.
type Builder struct {
	q       store.Querier
	scopeID string
}

// NewBuilder creates a task context builder bound to a store and scope.
func NewBuilder(q store.Querier, scopeID string) *Builder {
	return &Builder{q: q, scopeID: scopeID}
}

// Build retrieves candidates for the analyzed task. Every lookup runs
// concurrently and independently swallows storage errors; the worst outcome
// is an empty candidate list. The returned context is complete and must not
// be mutated afterward.
func (b *Builder) Build(ctx context.Context, taskType types.TaskType, keywords, domains, files []string) *types.TaskContext {
	timer := logging.StartTimer(logging.CategoryRetrieval, "Build")
	defer timer.Stop()

	terms := lexical.SearchTerms(keywords, files, maxSearchTerms)
	if len(domains) > 5 {
		domains = domains[:5]
	}

	tc := &types.TaskContext{
		Type:     taskType,
		Domains:  domains,
		Keywords: terms,
		Files:    files,
		BuiltAt:  time.Now(),
	}

	var (
		directFiles  []types.FileCandidate
		searchFiles  []types.FileCandidate
		decisions    []types.DecisionCandidate
		affectedDecs []types.DecisionCandidate
		learnings    []types.LearningCandidate
		issues       []types.IssueCandidate
		fixes        []types.ErrorFixCandidate
	)

	// Independent fan-out; each branch writes only its own slice.
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		directFiles = b.lookupDirectFiles(egCtx, files)
		return nil
	})
	eg.Go(func() error {
		searchFiles = b.searchFiles(egCtx, terms)
		return nil
	})
	eg.Go(func() error {
		decisions = b.searchDecisions(egCtx, terms)
		return nil
	})
	eg.Go(func() error {
		affectedDecs = b.lookupAffectedDecisions(egCtx, files)
		return nil
	})
	eg.Go(func() error {
		learnings = b.searchLearnings(egCtx, terms)
		return nil
	})
	eg.Go(func() error {
		issues = b.searchIssues(egCtx, terms)
		return nil
	})
	eg.Go(func() error {
		fixes = b.lookupErrorFixes(egCtx, taskType, terms)
		return nil
	})
	eg.Wait() // branches never return errors; they degrade instead

	tc.FileCandidates = mergeFiles(directFiles, searchFiles, maxFiles)
	tc.Decisions = mergeDecisions(affectedDecs, decisions, maxDecisions)
	tc.Learnings = capLearnings(learnings, maxLearnings)
	tc.Issues = capIssues(issues, maxIssues)
	tc.ErrorFixes = fixes

	logging.RetrievalDebug("task context built: %d files, %d decisions, %d learnings, %d issues, %d fixes (type=%s, terms=%d)",
		len(tc.FileCandidates), len(tc.Decisions), len(tc.Learnings), len(tc.Issues), len(tc.ErrorFixes),
		taskType, len(terms))

	return tc
}

// =============================================================================
// Individual lookups
// =============================================================================

// lookupDirectFiles fetches exact rows for up to 5 directly touched paths.
func (b *Builder) lookupDirectFiles(ctx context.Context, files []string) []types.FileCandidate {
	if len(files) > maxDirectFiles {
		files = files[:maxDirectFiles]
	}

	var out []types.FileCandidate
	for _, path := range files {
		row, err := b.q.Get(ctx,
			`SELECT path, purpose, fragility, last_error FROM files
			 WHERE path = ? AND (scope_id = '' OR scope_id = ?)`, path, b.scopeID)
		if err != nil {
			logging.RetrievalDebug("direct file lookup failed for %s (tolerated): %v", path, err)
			continue
		}
		if row == nil {
			continue
		}
		out = append(out, types.FileCandidate{
			Path:           row.String("path"),
			Purpose:        row.String("purpose"),
			Fragility:      row.Float("fragility"),
			LastError:      row.String("last_error"),
			RelevanceScore: scoreDirect,
		})
	}
	return out
}

// searchFiles runs full-text search over tracked files, with a substring
// fallback when FTS is unavailable.
func (b *Builder) searchFiles(ctx context.Context, terms []string) []types.FileCandidate {
	if len(terms) == 0 {
		return nil
	}

	rows, err := b.q.All(ctx,
		`SELECT f.path, f.purpose, f.fragility, f.last_error
		 FROM files_fts ft JOIN files f ON f.id = ft.rowid
		 WHERE files_fts MATCH ? AND (f.scope_id = '' OR f.scope_id = ?)
		 ORDER BY f.updated_at DESC
		 LIMIT ?`, ftsQuery(terms), b.scopeID, maxFiles)
	score := scoreFullText
	if err != nil {
		rows, err = b.q.All(ctx,
			`SELECT path, purpose, fragility, last_error FROM files
			 WHERE (`+likeClause("path", "purpose", len(terms))+`)
			   AND (scope_id = '' OR scope_id = ?)
			 ORDER BY updated_at DESC
			 LIMIT ?`, append(likeArgs("path", "purpose", terms), b.scopeID, maxFiles)...)
		score = scoreFallbackFile
	}
	if err != nil {
		logging.RetrievalDebug("file search failed (tolerated): %v", err)
		return nil
	}

	var out []types.FileCandidate
	for _, row := range rows {
		out = append(out, types.FileCandidate{
			Path:           row.String("path"),
			Purpose:        row.String("purpose"),
			Fragility:      row.Float("fragility"),
			LastError:      row.String("last_error"),
			RelevanceScore: score,
		})
	}
	return out
}

// searchDecisions runs full-text search over decisions with LIKE fallback.
func (b *Builder) searchDecisions(ctx context.Context, terms []string) []types.DecisionCandidate {
	if len(terms) == 0 {
		return nil
	}

	rows, err := b.q.All(ctx,
		`SELECT d.id, d.title, d.decision, d.affects, d.outcome, d.outcome_reason, d.confidence
		 FROM decisions_fts ft JOIN decisions d ON d.id = ft.rowid
		 WHERE decisions_fts MATCH ? AND d.status = 'active'
		   AND (d.scope_id = '' OR d.scope_id = ?)
		 ORDER BY d.created_at DESC
		 LIMIT ?`, ftsQuery(terms), b.scopeID, maxDecisions)
	score := scoreFullText
	if err != nil {
		rows, err = b.q.All(ctx,
			`SELECT id, title, decision, affects, outcome, outcome_reason, confidence FROM decisions
			 WHERE (`+likeClause("title", "decision", len(terms))+`) AND status = 'active'
			   AND (scope_id = '' OR scope_id = ?)
			 ORDER BY created_at DESC
			 LIMIT ?`, append(likeArgs("title", "decision", terms), b.scopeID, maxDecisions)...)
		score = scoreFallbackOther
	}
	if err != nil {
		logging.RetrievalDebug("decision search failed (tolerated): %v", err)
		return nil
	}

	return scanDecisions(rows, score)
}

// lookupAffectedDecisions finds decisions whose affects field references a
// touched file, failed outcomes sorted first.
func (b *Builder) lookupAffectedDecisions(ctx context.Context, files []string) []types.DecisionCandidate {
	if len(files) > maxDirectFiles {
		files = files[:maxDirectFiles]
	}

	var out []types.DecisionCandidate
	for _, path := range files {
		rows, err := b.q.All(ctx,
			`SELECT id, title, decision, affects, outcome, outcome_reason, confidence FROM decisions
			 WHERE affects LIKE ? AND status = 'active' AND (scope_id = '' OR scope_id = ?)
			 ORDER BY CASE WHEN outcome = 'failed' THEN 0 ELSE 1 END, created_at DESC
			 LIMIT ?`, "%"+path+"%", b.scopeID, maxDecisions)
		if err != nil {
			logging.RetrievalDebug("affects lookup failed for %s (tolerated): %v", path, err)
			continue
		}
		for _, row := range rows {
			score := scoreAffectsDefault
			if row.String("outcome") == "failed" {
				score = scoreAffectsFailed
			}
			out = append(out, decisionFromRow(row, score))
		}
	}
	return out
}

// searchLearnings runs full-text search over learnings with LIKE fallback.
func (b *Builder) searchLearnings(ctx context.Context, terms []string) []types.LearningCandidate {
	if len(terms) == 0 {
		return nil
	}

	rows, err := b.q.All(ctx,
		`SELECT l.id, l.content, l.category, l.confidence
		 FROM learnings_fts ft JOIN learnings l ON l.id = ft.rowid
		 WHERE learnings_fts MATCH ? AND (l.scope_id = '' OR l.scope_id = ?)
		 ORDER BY l.created_at DESC
		 LIMIT ?`, ftsQuery(terms), b.scopeID, maxLearnings)
	score := scoreFullText
	if err != nil {
		rows, err = b.q.All(ctx,
			`SELECT id, content, category, confidence FROM learnings
			 WHERE (`+likeClause("content", "category", len(terms))+`)
			   AND (scope_id = '' OR scope_id = ?)
			 ORDER BY created_at DESC
			 LIMIT ?`, append(likeArgs("content", "category", terms), b.scopeID, maxLearnings)...)
		score = scoreFallbackFile
	}
	if err != nil {
		logging.RetrievalDebug("learning search failed (tolerated): %v", err)
		return nil
	}

	var out []types.LearningCandidate
	for _, row := range rows {
		out = append(out, types.LearningCandidate{
			ID:             row.Int("id"),
			Content:        row.String("content"),
			Category:       row.String("category"),
			Confidence:     row.Float("confidence"),
			RelevanceScore: score,
		})
	}
	return out
}

// searchIssues runs full-text search over open issues with LIKE fallback.
// Full-text relevance is severity-weighted around the 0.7 base.
func (b *Builder) searchIssues(ctx context.Context, terms []string) []types.IssueCandidate {
	if len(terms) == 0 {
		return nil
	}

	rows, err := b.q.All(ctx,
		`SELECT i.id, i.title, i.severity, i.issue_type, i.status
		 FROM issues_fts ft JOIN issues i ON i.id = ft.rowid
		 WHERE issues_fts MATCH ? AND i.status = 'open'
		   AND (i.scope_id = '' OR i.scope_id = ?)
		 ORDER BY i.severity DESC, i.created_at DESC
		 LIMIT ?`, ftsQuery(terms), b.scopeID, maxIssues)
	fullText := true
	if err != nil {
		rows, err = b.q.All(ctx,
			`SELECT id, title, severity, issue_type, status FROM issues
			 WHERE (`+likeClause("title", "issue_type", len(terms))+`) AND status = 'open'
			   AND (scope_id = '' OR scope_id = ?)
			 ORDER BY severity DESC, created_at DESC
			 LIMIT ?`, append(likeArgs("title", "issue_type", terms), b.scopeID, maxIssues)...)
		fullText = false
	}
	if err != nil {
		logging.RetrievalDebug("issue search failed (tolerated): %v", err)
		return nil
	}

	var out []types.IssueCandidate
	for _, row := range rows {
		score := scoreFallbackOther
		if fullText {
			score = scoreIssueFullText * (0.5 + row.Float("severity")/20)
		}
		out = append(out, types.IssueCandidate{
			ID:             row.Int("id"),
			Title:          row.String("title"),
			Severity:       row.Float("severity"),
			IssueType:      row.String("issue_type"),
			Status:         row.String("status"),
			RelevanceScore: score,
		})
	}
	return out
}

// lookupErrorFixes fetches known error fixes when the task looks like a
// bugfix: task type is bugfix or the search text mentions error/fix.
func (b *Builder) lookupErrorFixes(ctx context.Context, taskType types.TaskType, terms []string) []types.ErrorFixCandidate {
	if !looksLikeBugfix(taskType, terms) {
		return nil
	}

	rows, err := b.q.All(ctx,
		`SELECT id, error_signature, fix, confidence, fix_count FROM error_fixes
		 WHERE confidence >= 0.5
		 ORDER BY fix_count DESC, confidence DESC
		 LIMIT ?`, maxErrorFixes)
	if err != nil {
		logging.RetrievalDebug("error fix lookup failed (tolerated): %v", err)
		return nil
	}

	var out []types.ErrorFixCandidate
	for _, row := range rows {
		out = append(out, types.ErrorFixCandidate{
			ID:             row.Int("id"),
			ErrorSignature: row.String("error_signature"),
			Fix:            row.String("fix"),
			Confidence:     row.Float("confidence"),
			FixCount:       int(row.Int("fix_count")),
			RelevanceScore: row.Float("confidence"),
		})
	}
	return out
}

func looksLikeBugfix(taskType types.TaskType, terms []string) bool {
	if taskType == types.TaskBugfix {
		return true
	}
	for _, t := range terms {
		if strings.Contains(t, "error") || strings.Contains(t, "fix") {
			return true
		}
	}
	return false
}

// =============================================================================
// Merging and dedup
// =============================================================================

// mergeFiles combines direct and searched candidates, deduplicating by path
// with direct matches taking priority, capped.
func mergeFiles(direct, searched []types.FileCandidate, cap int) []types.FileCandidate {
	seen := make(map[string]bool)
	var out []types.FileCandidate

	for _, lists := range [][]types.FileCandidate{direct, searched} {
		for _, fc := range lists {
			if fc.Path == "" || seen[fc.Path] || len(out) >= cap {
				continue
			}
			seen[fc.Path] = true
			out = append(out, fc)
		}
	}
	return out
}

// mergeDecisions combines affects-matched and searched decisions,
// deduplicating by id with the affects (direct) matches taking priority.
func mergeDecisions(direct, searched []types.DecisionCandidate, cap int) []types.DecisionCandidate {
	seen := make(map[int64]bool)
	var out []types.DecisionCandidate

	for _, lists := range [][]types.DecisionCandidate{direct, searched} {
		for _, dc := range lists {
			if seen[dc.ID] || len(out) >= cap {
				continue
			}
			seen[dc.ID] = true
			out = append(out, dc)
		}
	}
	return out
}

func capLearnings(in []types.LearningCandidate, cap int) []types.LearningCandidate {
	seen := make(map[int64]bool)
	var out []types.LearningCandidate
	for _, lc := range in {
		if seen[lc.ID] || len(out) >= cap {
			continue
		}
		seen[lc.ID] = true
		out = append(out, lc)
	}
	return out
}

func capIssues(in []types.IssueCandidate, cap int) []types.IssueCandidate {
	seen := make(map[int64]bool)
	var out []types.IssueCandidate
	for _, ic := range in {
		if seen[ic.ID] || len(out) >= cap {
			continue
		}
		seen[ic.ID] = true
		out = append(out, ic)
	}
	return out
}

func scanDecisions(rows []store.Row, score float64) []types.DecisionCandidate {
	var out []types.DecisionCandidate
	for _, row := range rows {
		out = append(out, decisionFromRow(row, score))
	}
	return out
}

func decisionFromRow(row store.Row, score float64) types.DecisionCandidate {
	return types.DecisionCandidate{
		ID:             row.Int("id"),
		Title:          row.String("title"),
		Decision:       row.String("decision"),
		Affects:        row.String("affects"),
		Outcome:        row.String("outcome"),
		OutcomeReason:  row.String("outcome_reason"),
		Confidence:     row.Float("confidence"),
		RelevanceScore: score,
	}
}

// =============================================================================
// Query helpers
// =============================================================================

// ftsQuery builds an OR-joined FTS5 match expression with quoted terms.
func ftsQuery(terms []string) string {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, ``) + `"`
	}
	return strings.Join(quoted, " OR ")
}

// likeClause builds an OR-joined pair-of-columns LIKE clause for n terms.
func likeClause(colA, colB string, n int) string {
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		parts = append(parts, colA+" LIKE ? OR "+colB+" LIKE ?")
	}
	return strings.Join(parts, " OR ")
}

// likeArgs builds the argument list matching likeClause.
func likeArgs(colA, colB string, terms []string) []interface{} {
	args := make([]interface{}, 0, len(terms)*2)
	for _, t := range terms {
		pattern := "%" + t + "%"
		args = append(args, pattern, pattern)
	}
	return args
}
