package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesSchema(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, table := range []string{"files", "decisions", "learnings", "issues", "error_fixes", "strategies", "focus_areas", "budget_recommendations"} {
		_, err := s.All(ctx, "SELECT * FROM "+table+" LIMIT 1")
		assert.NoError(t, err, "table %s should exist", table)
	}
}

func TestRunGetAll(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	res, err := s.Run(ctx,
		"INSERT INTO files (path, purpose, fragility) VALUES (?, ?, ?)",
		"internal/auth/login.go", "login flow", 8.5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Changes)
	assert.NotZero(t, res.LastID)

	row, err := s.Get(ctx, "SELECT path, purpose, fragility FROM files WHERE path = ?", "internal/auth/login.go")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "internal/auth/login.go", row.String("path"))
	assert.Equal(t, "login flow", row.String("purpose"))
	assert.InDelta(t, 8.5, row.Float("fragility"), 0.001)

	rows, err := s.All(ctx, "SELECT path FROM files")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestGetReturnsNilWhenMissing(t *testing.T) {
	s := openTestStore(t)

	row, err := s.Get(context.Background(), "SELECT * FROM files WHERE path = ?", "nope")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestRowAccessorsOnMissingColumns(t *testing.T) {
	row := Row{"n": int64(3), "f": 1.5, "s": "x", "b": []byte{1, 2}}

	assert.Equal(t, int64(3), row.Int("n"))
	assert.Equal(t, 1.5, row.Float("f"))
	assert.Equal(t, "x", row.String("s"))
	assert.Equal(t, []byte{1, 2}, row.Bytes("b"))

	assert.Equal(t, int64(0), row.Int("missing"))
	assert.Equal(t, 0.0, row.Float("missing"))
	assert.Equal(t, "", row.String("missing"))
	assert.Nil(t, row.Bytes("missing"))
}

func TestFTSAvailableAndSynced(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if !s.HasFTS() {
		t.Skip("fts5 not available in this build")
	}

	_, err := s.Run(ctx, "INSERT INTO decisions (title, decision) VALUES (?, ?)",
		"use connection pooling", "pool database connections with a cap of ten")
	require.NoError(t, err)

	rows, err := s.All(ctx,
		`SELECT d.title FROM decisions_fts ft JOIN decisions d ON d.id = ft.rowid
		 WHERE decisions_fts MATCH ?`, "pooling")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "use connection pooling", rows[0].String("title"))
}
