package retrieval

import (
	"context"
	"fmt"
	"testing"

	"memvault/internal/store"
	"memvault/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	must := func(query string, args ...interface{}) {
		_, err := s.Run(ctx, query, args...)
		require.NoError(t, err)
	}

	must(`INSERT INTO files (path, purpose, fragility, last_error) VALUES
		('internal/auth/login.go', 'login flow', 8, 'nil deref in session check')`)
	must(`INSERT INTO files (path, purpose) VALUES
		('internal/auth/session.go', 'session token management')`)
	must(`INSERT INTO files (path, purpose) VALUES
		('internal/billing/invoice.go', 'invoice generation')`)

	must(`INSERT INTO decisions (title, decision, affects, outcome, outcome_reason) VALUES
		('cache session tokens', 'keep tokens in memory', 'internal/auth/login.go', 'failed', 'tokens leaked across sessions')`)
	must(`INSERT INTO decisions (title, decision, affects, outcome) VALUES
		('rotate session keys', 'rotate keys hourly', 'internal/auth/login.go', 'succeeded')`)
	must(`INSERT INTO decisions (title, decision, outcome) VALUES
		('session timeout policy', 'expire sessions after 30 minutes', 'pending')`)

	must(`INSERT INTO learnings (content, category, confidence) VALUES
		('session middleware must run before auth checks', 'gotcha', 9)`)

	must(`INSERT INTO issues (title, severity, issue_type) VALUES
		('session fixation vulnerability', 9, 'security')`)

	must(`INSERT INTO error_fixes (error_signature, fix, confidence, fix_count) VALUES
		('nil pointer in session', 'guard the session lookup', 0.9, 5)`)
	must(`INSERT INTO error_fixes (error_signature, fix, confidence, fix_count) VALUES
		('timeout in auth', 'raise the deadline', 0.3, 2)`)

	return s
}

func TestBuildRetrievesAllSources(t *testing.T) {
	s := seededStore(t)
	b := NewBuilder(s, "")

	tc := b.Build(context.Background(), types.TaskBugfix,
		[]string{"session", "auth"}, []string{"auth"}, []string{"internal/auth/login.go"})

	require.NotNil(t, tc)
	assert.Equal(t, types.TaskBugfix, tc.Type)
	assert.False(t, tc.IsEmpty())

	// Direct file comes back at full relevance.
	require.NotEmpty(t, tc.FileCandidates)
	var direct *types.FileCandidate
	for i := range tc.FileCandidates {
		if tc.FileCandidates[i].Path == "internal/auth/login.go" {
			direct = &tc.FileCandidates[i]
		}
	}
	require.NotNil(t, direct, "direct file missing from %v", tc.FileCandidates)
	assert.Equal(t, 1.0, direct.RelevanceScore)
	assert.Equal(t, "login flow", direct.Purpose)

	// The failed decision touching the file leads with full relevance.
	require.NotEmpty(t, tc.Decisions)
	assert.Equal(t, "cache session tokens", tc.Decisions[0].Title)
	assert.Equal(t, "failed", tc.Decisions[0].Outcome)
	assert.Equal(t, 1.0, tc.Decisions[0].RelevanceScore)

	assert.NotEmpty(t, tc.Learnings)
	assert.NotEmpty(t, tc.Issues)

	// Only the confident fix qualifies.
	require.Len(t, tc.ErrorFixes, 1)
	assert.Equal(t, "nil pointer in session", tc.ErrorFixes[0].ErrorSignature)
}

func TestBuildSkipsErrorFixesForNonBugfix(t *testing.T) {
	s := seededStore(t)
	b := NewBuilder(s, "")

	tc := b.Build(context.Background(), types.TaskFeature,
		[]string{"invoice", "billing"}, []string{"billing"}, nil)
	assert.Empty(t, tc.ErrorFixes)
}

func TestBuildErrorKeywordTriggersFixes(t *testing.T) {
	s := seededStore(t)
	b := NewBuilder(s, "")

	tc := b.Build(context.Background(), types.TaskUnknown,
		[]string{"error", "session"}, nil, nil)
	assert.NotEmpty(t, tc.ErrorFixes)
}

func TestBuildRespectsCaps(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, err := s.Run(ctx, "INSERT INTO files (path, purpose) VALUES (?, ?)",
			fmt.Sprintf("pkg/widget/file%d.go", i), "widget rendering helpers")
		require.NoError(t, err)
		_, err = s.Run(ctx, "INSERT INTO decisions (title, decision) VALUES (?, ?)",
			fmt.Sprintf("widget decision %d", i), "render widgets lazily")
		require.NoError(t, err)
	}

	b := NewBuilder(s, "")
	tc := b.Build(ctx, types.TaskFeature, []string{"widget", "rendering"}, nil, nil)

	assert.LessOrEqual(t, len(tc.FileCandidates), maxFiles)
	assert.LessOrEqual(t, len(tc.Decisions), maxDecisions)
}

func TestBuildPrefersFreshRows(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	// More matching rows than the caps admit, stamped a minute apart with
	// file0 and learning 0 the oldest. The caps must keep the newest rows.
	base := int64(1700000000)
	for i := 0; i < 20; i++ {
		_, err := s.Run(ctx, "INSERT INTO files (path, purpose, updated_at) VALUES (?, ?, ?)",
			fmt.Sprintf("pkg/widget/file%d.go", i), "widget rendering helpers", base+int64(i)*60)
		require.NoError(t, err)
	}
	for i := 0; i < 12; i++ {
		_, err := s.Run(ctx, "INSERT INTO learnings (content, category, created_at) VALUES (?, ?, ?)",
			fmt.Sprintf("widget layout quirk number %d", i), "gotcha", base+int64(i)*60)
		require.NoError(t, err)
	}

	b := NewBuilder(s, "")
	tc := b.Build(ctx, types.TaskFeature, []string{"widget", "rendering"}, nil, nil)

	require.Len(t, tc.FileCandidates, maxFiles)
	paths := make(map[string]bool)
	for _, fc := range tc.FileCandidates {
		paths[fc.Path] = true
	}
	assert.True(t, paths["pkg/widget/file19.go"], "newest file dropped: %v", tc.FileCandidates)
	assert.False(t, paths["pkg/widget/file0.go"], "oldest file kept over newer matches")

	require.Len(t, tc.Learnings, maxLearnings)
	contents := make(map[string]bool)
	for _, lc := range tc.Learnings {
		contents[lc.Content] = true
	}
	assert.True(t, contents["widget layout quirk number 11"], "newest learning dropped: %v", tc.Learnings)
	assert.False(t, contents["widget layout quirk number 0"], "oldest learning kept over newer matches")
}

func TestBuildDeduplicatesDirectAndSearched(t *testing.T) {
	s := seededStore(t)
	b := NewBuilder(s, "")

	// session.go matches both the direct lookup and the keyword search; it
	// must appear once, with the direct score.
	tc := b.Build(context.Background(), types.TaskBugfix,
		[]string{"session"}, nil, []string{"internal/auth/session.go"})

	count := 0
	for _, fc := range tc.FileCandidates {
		if fc.Path == "internal/auth/session.go" {
			count++
			assert.Equal(t, 1.0, fc.RelevanceScore)
		}
	}
	assert.Equal(t, 1, count)
}

func TestBuildEmptyStoreYieldsEmptyContext(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	b := NewBuilder(s, "")
	tc := b.Build(context.Background(), types.TaskUnknown, []string{"anything"}, nil, nil)
	assert.True(t, tc.IsEmpty())
}

func TestScopeFiltering(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	_, err = s.Run(ctx, "INSERT INTO files (path, purpose, scope_id) VALUES (?, ?, ?)",
		"a.go", "scoped to another project", "other-project")
	require.NoError(t, err)

	b := NewBuilder(s, "this-project")
	tc := b.Build(ctx, types.TaskUnknown, nil, nil, []string{"a.go"})
	assert.Empty(t, tc.FileCandidates, "foreign-scope rows must not leak")
}
