package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"memvault/internal/config"
	"memvault/internal/intelligence"
	"memvault/internal/store"
	"memvault/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, *store.SQLiteStore) {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cfg := config.Default()
	cfg.Store.Path = ":memory:"
	providers := intelligence.Providers{
		Strategies: &intelligence.StoreStrategies{Q: s},
		Overrides:  &intelligence.StoreOverrides{Q: s},
	}
	return New(s, nil, providers, cfg), s
}

func seedKnowledge(t *testing.T, s *store.SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	must := func(query string, args ...interface{}) {
		_, err := s.Run(ctx, query, args...)
		require.NoError(t, err)
	}

	must(`INSERT INTO files (path, purpose, fragility, last_error) VALUES
		('internal/parser/lexer.go', 'tokenizer', 8, 'index out of range on empty input')`)
	must(`INSERT INTO decisions (title, decision, affects, outcome, outcome_reason) VALUES
		('regex tokenizer', 'tokenize with regexes', 'internal/parser/lexer.go', 'failed', 'catastrophic backtracking on nested input')`)
	must(`INSERT INTO learnings (content, category, confidence) VALUES
		('lexer positions are byte offsets, not rune offsets', 'gotcha', 9)`)
}

func TestHandleToolCallAssemblesContext(t *testing.T) {
	e, s := newTestEngine(t)
	seedKnowledge(t, s)

	out := e.HandleToolCall(context.Background(), "Edit", map[string]interface{}{
		"file_path": "internal/parser/lexer.go",
		"task":      "fix the lexer tokenizer bug",
	})

	assert.NotEmpty(t, out.Text)
	assert.LessOrEqual(t, out.TotalTokens, config.DefaultBudgetConfig().TotalTokens)

	// The failed decision touching the edited file must surface as a
	// critical contradiction.
	require.NotEmpty(t, out.Contradictions)
	assert.Equal(t, types.SeverityCritical, out.Contradictions[0].Severity)
	assert.Contains(t, out.Contradictions[0].Summary, "FAILED")

	// The fragile file warning outranks the ordinary sections.
	assert.Contains(t, out.Text, "[FRAGILE 8/10] internal/parser/lexer.go")
}

func TestHandleToolCallEmptyStore(t *testing.T) {
	e, _ := newTestEngine(t)

	out := e.HandleToolCall(context.Background(), "Read", map[string]interface{}{
		"file_path": "nothing/known.go",
	})
	assert.Empty(t, out.Text)
	assert.Zero(t, out.TotalTokens)
}

func TestHandleToolCallNeverExceedsBudget(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		_, err := s.Run(ctx, "INSERT INTO learnings (content, confidence) VALUES (?, ?)",
			strings.Repeat("parser lexer detail ", 15), 8)
		require.NoError(t, err)
	}

	out := e.HandleToolCall(ctx, "Grep", map[string]interface{}{"query": "parser lexer"})
	assert.LessOrEqual(t, out.TotalTokens, config.DefaultBudgetConfig().TotalTokens)
}

func TestContradictionsCappedAtThree(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := s.Run(ctx, `INSERT INTO decisions (title, decision, affects, outcome, outcome_reason) VALUES
			(?, 'bad approach to the parser', 'internal/parser/lexer.go', 'failed', 'parser kept breaking')`,
			"attempt "+string(rune('a'+i)))
		require.NoError(t, err)
	}

	out := e.HandleToolCall(ctx, "Edit", map[string]interface{}{
		"file_path": "internal/parser/lexer.go",
		"task":      "fix parser",
	})
	assert.LessOrEqual(t, len(out.Contradictions), 3)
	for _, c := range out.Contradictions {
		assert.Equal(t, types.SeverityCritical, c.Severity)
	}
}

func TestQualityRefreshTriggersRebuild(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	seedKnowledge(t, s)

	cfg := config.Default()
	cfg.Focus.RefreshCooldownSec = 1
	e := New(s, nil, intelligence.Providers{}, cfg)
	ctx := context.Background()

	// First call builds and injects a context around the seeded lexer file.
	e.HandleToolCall(ctx, "Edit", map[string]interface{}{
		"file_path": "internal/parser/lexer.go",
		"task":      "fix the lexer tokenizer bug",
	})
	time.Sleep(1100 * time.Millisecond)

	// Same task wording keeps the focus anchored, but the touched file is
	// never part of the injected context, so every access is a miss.
	missArgs := map[string]interface{}{
		"file_path": "internal/parser/x1.go",
		"task":      "fix the lexer tokenizer bug",
	}
	e.HandleToolCall(ctx, "Edit", missArgs)
	e.HandleToolCall(ctx, "Edit", missArgs)
	require.Less(t, e.Status().HitRate, 1.0, "misses against the injected set must accumulate")

	// The third consecutive miss crosses the refresh threshold; the rebuild
	// resets the quality counters.
	e.HandleToolCall(ctx, "Edit", missArgs)
	assert.Equal(t, 1.0, e.Status().HitRate, "refresh-triggered rebuild should reset quality tracking")
}

func TestDeepDetectionOnlyOnRebuild(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()

	// Superseded decisions are invisible to the context retrieval (it only
	// considers active rows) but the storage-backed contradiction pass still
	// surfaces their failed outcome.
	_, err := s.Run(ctx, `INSERT INTO decisions (title, decision, outcome, outcome_reason, status) VALUES
		('parser rewrite attempt', 'full rewrite of the parser grammar', 'failed', 'scope exploded, shipped nothing', 'superseded')`)
	require.NoError(t, err)

	args := map[string]interface{}{"task": "rewrite the parser grammar"}

	// First call rebuilds and runs the deep pass.
	first := e.HandleToolCall(ctx, "Edit", args)
	require.NotEmpty(t, first.Contradictions)
	assert.Equal(t, types.SeverityCritical, first.Contradictions[0].Severity)
	assert.Contains(t, first.Contradictions[0].Summary, "FAILED")

	// An identical follow-up reuses the context; the deep pass is skipped.
	second := e.HandleToolCall(ctx, "Edit", args)
	assert.Empty(t, second.Contradictions)
}

func TestResetClearsState(t *testing.T) {
	e, s := newTestEngine(t)
	seedKnowledge(t, s)

	e.HandleToolCall(context.Background(), "Edit", map[string]interface{}{
		"file_path": "internal/parser/lexer.go",
	})
	require.NotZero(t, e.Status().CallsRecorded)

	e.Reset()
	st := e.Status()
	assert.Zero(t, st.CallsRecorded)
	assert.False(t, st.HasContext)
	assert.Zero(t, st.CacheSize)
}

func TestStatusReportsBaseline(t *testing.T) {
	e, _ := newTestEngine(t)

	e.HandleToolCall(context.Background(), "Grep", map[string]interface{}{
		"query": "authentication session tokens",
	})
	st := e.Status()
	assert.Equal(t, 1, st.CallsRecorded)
	assert.NotEmpty(t, st.FocusKeywords)
}
