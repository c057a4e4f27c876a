// Package store is the storage collaborator for the context engine. The
// engine only ever sees the narrow Querier contract; "no data" and "table
// or column missing" are soft outcomes that every caller absorbs into
// empty defaults.
package store

import "context"

// Result reports the outcome of a write.
type Result struct {
	LastID  int64
	Changes int64
}

// Row is a generic projection of one result row, keyed by column name.
// SQLite value types surface as int64, float64, string, []byte, or nil.
type Row map[string]interface{}

// Querier is the narrow storage contract the context engine depends on.
// Implementations may fail with generic query errors; callers in the engine
// treat any error as "no data" rather than propagating it.
type Querier interface {
	// Get returns the first matching row, or nil when there is none.
	Get(ctx context.Context, query string, args ...interface{}) (Row, error)

	// All returns every matching row.
	All(ctx context.Context, query string, args ...interface{}) ([]Row, error)

	// Run executes a statement and reports the last insert id and the
	// number of affected rows.
	Run(ctx context.Context, query string, args ...interface{}) (Result, error)
}

// =============================================================================
// Row accessors
// =============================================================================

// String returns the named column as a string, or "" when absent.
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// Int returns the named column as an int64, or 0 when absent.
func (r Row) Int(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// Float returns the named column as a float64, or 0 when absent.
func (r Row) Float(col string) float64 {
	switch v := r[col].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

// Bytes returns the named column as raw bytes, or nil when absent.
func (r Row) Bytes(col string) []byte {
	switch v := r[col].(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return nil
	}
}
