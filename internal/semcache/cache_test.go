package semcache

import (
	"context"
	"fmt"
	"testing"

	"memvault/internal/embedding"
	"memvault/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine returns fixed vectors keyed by text so tests control geometry.
type fakeEngine struct {
	vectors map[string][]float32
	fail    bool
}

func (f *fakeEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, fmt.Errorf("embedding backend down")
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func (f *fakeEngine) Dimensions() int { return 3 }
func (f *fakeEngine) Name() string    { return "fake" }

func seedEmbedded(t *testing.T, s *store.SQLiteStore) {
	t.Helper()
	ctx := context.Background()

	insert := func(query string, vec []float32, args ...interface{}) {
		_, err := s.Run(ctx, query, append(args, embedding.Serialize(vec))...)
		require.NoError(t, err)
	}

	insert("INSERT INTO learnings (content, category, confidence, embedding) VALUES (?, ?, ?, ?)",
		[]float32{1, 0, 0}, "always close the pool", "gotcha", 9)
	insert("INSERT INTO learnings (content, category, confidence, embedding) VALUES (?, ?, ?, ?)",
		[]float32{0, 1, 0}, "prefer prepared statements", "pattern", 7)
	insert("INSERT INTO decisions (title, decision, confidence, embedding) VALUES (?, ?, ?, ?)",
		[]float32{0.9, 0.1, 0}, "pool connections", "use a bounded pool", 8)

	// No embedding: must never be warmed.
	_, err := s.Run(ctx, "INSERT INTO learnings (content, confidence) VALUES (?, ?)", "unembedded", 10)
	require.NoError(t, err)
}

func TestWarmLoadsEmbeddedItems(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	seedEmbedded(t, s)

	c := New(&fakeEngine{}, 10, 0.3)
	size := c.Warm(context.Background(), s, "")
	assert.Equal(t, 3, size)
	assert.Equal(t, 3, c.Size())
}

func TestWarmDropsDimensionMismatches(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	blob := embedding.Serialize([]float32{1, 2, 3, 4, 5}) // wrong dims
	_, err = s.Run(context.Background(),
		"INSERT INTO learnings (content, confidence, embedding) VALUES (?, ?, ?)", "bad vec", 9, blob)
	require.NoError(t, err)

	c := New(&fakeEngine{}, 10, 0.3)
	assert.Equal(t, 0, c.Warm(context.Background(), s, ""))
}

func TestQueryRanksBySimilarity(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	seedEmbedded(t, s)

	engine := &fakeEngine{vectors: map[string][]float32{"pool question": {1, 0, 0}}}
	c := New(engine, 10, 0.3)
	c.Warm(context.Background(), s, "")

	matches := c.Query(context.Background(), "pool question", 5)
	require.NotEmpty(t, matches)
	assert.Equal(t, "always close the pool", matches[0].Item.Content)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Similarity, matches[i].Similarity)
	}
	for _, m := range matches {
		assert.GreaterOrEqual(t, m.Similarity, 0.3)
	}
}

func TestQueryFailsClosed(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	seedEmbedded(t, s)

	c := New(&fakeEngine{fail: true}, 10, 0.3)
	c.Warm(context.Background(), s, "")
	assert.Nil(t, c.Query(context.Background(), "anything", 5))

	// No engine at all: queries are disabled, warming is harmless.
	disabled := New(nil, 10, 0.3)
	disabled.Warm(context.Background(), s, "")
	assert.Nil(t, disabled.Query(context.Background(), "anything", 5))
}

func TestReset(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	seedEmbedded(t, s)

	c := New(&fakeEngine{}, 10, 0.3)
	c.Warm(context.Background(), s, "")
	require.NotZero(t, c.Size())

	c.Reset()
	assert.Zero(t, c.Size())
}
