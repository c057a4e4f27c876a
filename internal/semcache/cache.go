// Package semcache holds a warmed, in-memory set of top-confidence knowledge
// items with embeddings and answers nearest-neighbor queries by cosine
// similarity. The scan is deliberately unindexed: with at most 500 items it
// completes in single-digit milliseconds and needs no ANN structure.
package semcache

import (
	"context"
	"sort"
	"sync"

	"memvault/internal/embedding"
	"memvault/internal/logging"
	"memvault/internal/store"
)

// CachedItem is one warmed knowledge item with its embedding.
type CachedItem struct {
	ID         int64
	Kind       string // learning|decision
	Title      string
	Content    string
	Confidence float64
	Vector     []float32
}

// Match is a cache query hit.
type Match struct {
	Item       CachedItem
	Similarity float64
}

// Cache is the session-scoped semantic cache. Warmed once at session start;
// concurrent warm requests collapse into the in-flight one.
type Cache struct {
	engine    embedding.Engine
	maxItems  int
	threshold float64

	mu      sync.RWMutex
	items   []CachedItem // swapped atomically on warm completion
	warming bool
}

// New creates a semantic cache. A nil engine disables queries (they return
// no matches) but warming still loads nothing harmful.
func New(engine embedding.Engine, maxItems int, threshold float64) *Cache {
	if maxItems <= 0 {
		maxItems = 500
	}
	if threshold <= 0 {
		threshold = 0.3
	}
	return &Cache{engine: engine, maxItems: maxItems, threshold: threshold}
}

// Size returns the number of cached items.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Reset clears the cache. Intended for test isolation and session teardown.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
}

// =============================================================================
// Warming
// =============================================================================

// Warm loads the top-confidence learnings and most-recent active decisions
// that carry stored embeddings, then atomically replaces the cached set.
// Warming is not re-entrant: a call that finds one in flight is a no-op and
// returns the current (possibly incomplete) size.
func (c *Cache) Warm(ctx context.Context, q store.Querier, scopeID string) int {
	c.mu.Lock()
	if c.warming {
		size := len(c.items)
		c.mu.Unlock()
		logging.CacheDebug("warm already in flight; returning current size %d", size)
		return size
	}
	c.warming = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.warming = false
		c.mu.Unlock()
	}()

	timer := logging.StartTimer(logging.CategoryCache, "Warm")
	defer timer.Stop()

	half := c.maxItems / 2
	dims := 0
	if c.engine != nil {
		dims = c.engine.Dimensions()
	}

	fresh := make([]CachedItem, 0, c.maxItems)
	fresh = append(fresh, c.loadLearnings(ctx, q, scopeID, half, dims)...)
	fresh = append(fresh, c.loadDecisions(ctx, q, scopeID, half, dims)...)

	c.mu.Lock()
	c.items = fresh
	size := len(c.items)
	c.mu.Unlock()

	logging.Cache("semantic cache warmed: %d items (scope=%q)", size, scopeID)
	return size
}

// loadLearnings fetches the highest-confidence learnings with embeddings.
// Storage errors and malformed vectors degrade to fewer items, never a
// failure.
func (c *Cache) loadLearnings(ctx context.Context, q store.Querier, scopeID string, limit, dims int) []CachedItem {
	rows, err := q.All(ctx,
		`SELECT id, content, category, confidence, embedding FROM learnings
		 WHERE embedding IS NOT NULL AND (scope_id = '' OR scope_id = ?)
		 ORDER BY confidence DESC LIMIT ?`, scopeID, limit)
	if err != nil {
		logging.CacheDebug("learning warm query failed (tolerated): %v", err)
		return nil
	}

	var items []CachedItem
	for _, row := range rows {
		vec, err := embedding.Deserialize(row.Bytes("embedding"))
		if err != nil || (dims > 0 && len(vec) != dims) {
			continue
		}
		items = append(items, CachedItem{
			ID:         row.Int("id"),
			Kind:       "learning",
			Title:      row.String("category"),
			Content:    row.String("content"),
			Confidence: row.Float("confidence"),
			Vector:     vec,
		})
	}
	return items
}

// loadDecisions fetches the most-recent active decisions with embeddings.
func (c *Cache) loadDecisions(ctx context.Context, q store.Querier, scopeID string, limit, dims int) []CachedItem {
	rows, err := q.All(ctx,
		`SELECT id, title, decision, confidence, embedding FROM decisions
		 WHERE embedding IS NOT NULL AND status = 'active'
		   AND (scope_id = '' OR scope_id = ?)
		 ORDER BY created_at DESC LIMIT ?`, scopeID, limit)
	if err != nil {
		logging.CacheDebug("decision warm query failed (tolerated): %v", err)
		return nil
	}

	var items []CachedItem
	for _, row := range rows {
		vec, err := embedding.Deserialize(row.Bytes("embedding"))
		if err != nil || (dims > 0 && len(vec) != dims) {
			continue
		}
		items = append(items, CachedItem{
			ID:         row.Int("id"),
			Kind:       "decision",
			Title:      row.String("title"),
			Content:    row.String("decision"),
			Confidence: row.Float("confidence"),
			Vector:     vec,
		})
	}
	return items
}

// =============================================================================
// Querying
// =============================================================================

// Query embeds the input text and performs a linear cosine-similarity scan
// over the cached set. Fails closed: no engine or an embedding error yields
// no matches. Results are at or above the similarity threshold, sorted
// descending, capped at maxResults.
func (c *Cache) Query(ctx context.Context, text string, maxResults int) []Match {
	if c.engine == nil || text == "" {
		return nil
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	queryVec, err := c.engine.Embed(ctx, text)
	if err != nil {
		logging.CacheDebug("query embedding unavailable (fail closed): %v", err)
		return nil
	}

	c.mu.RLock()
	items := c.items
	c.mu.RUnlock()

	var matches []Match
	for _, item := range items {
		sim, err := embedding.CosineSimilarity(queryVec, item.Vector)
		if err != nil || sim < c.threshold {
			continue
		}
		matches = append(matches, Match{Item: item, Similarity: sim})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})

	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches
}
