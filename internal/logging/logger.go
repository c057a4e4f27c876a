// Package logging provides categorized logging for memvault, backed by zap.
// Each subsystem logs under its own category; categories can be silenced
// individually and the whole sink is a no-op until Initialize is called.
package logging

import (
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies a logging subsystem.
type Category string

const (
	CategoryBoot         Category = "boot"
	CategorySession      Category = "session"
	CategoryStore        Category = "store"
	CategoryEmbedding    Category = "embedding"
	CategoryCache        Category = "cache"
	CategoryRetrieval    Category = "retrieval"
	CategoryBudget       Category = "budget"
	CategoryFocus        Category = "focus"
	CategoryTrajectory   Category = "trajectory"
	CategoryIntelligence Category = "intelligence"
)

// Logger is a category-scoped logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
	enabled  bool
}

var (
	mu         sync.RWMutex
	root       *zap.SugaredLogger
	loggers    = make(map[Category]*Logger)
	categories map[string]bool // nil means all enabled
	debugMode  bool
)

// Options configures the logging sink.
type Options struct {
	// DebugMode enables debug-level output. When false only info and above
	// are emitted.
	DebugMode bool

	// Categories restricts output to the listed categories. Empty enables all.
	Categories map[string]bool

	// FilePath, when set, appends logs to the given file instead of stderr.
	FilePath string
}

// Initialize sets up the zap sink. Safe to call once at startup; before it
// is called every Logger is a silent no-op.
func Initialize(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	level := zapcore.InfoLevel
	if opts.DebugMode {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	sink := zapcore.Lock(os.Stderr)
	if opts.FilePath != "" {
		f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		sink = zapcore.Lock(f)
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), sink, level)
	root = zap.New(core).Sugar()
	debugMode = opts.DebugMode
	categories = opts.Categories
	loggers = make(map[Category]*Logger)
	return nil
}

// IsDebugMode reports whether debug-level logging is active.
func IsDebugMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return debugMode
}

// Get returns the logger for a category, creating it on first use.
func Get(cat Category) *Logger {
	mu.Lock()
	defer mu.Unlock()

	if l, ok := loggers[cat]; ok {
		return l
	}

	l := &Logger{category: cat}
	if root != nil {
		l.sugar = root.Named(string(cat))
		l.enabled = categories == nil || len(categories) == 0 || categories[string(cat)]
	}
	loggers[cat] = l
	return l
}

// Debug logs a debug-level message.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l != nil && l.enabled && l.sugar != nil {
		l.sugar.Debugf(format, args...)
	}
}

// Info logs an info-level message.
func (l *Logger) Info(format string, args ...interface{}) {
	if l != nil && l.enabled && l.sugar != nil {
		l.sugar.Infof(format, args...)
	}
}

// Warn logs a warn-level message.
func (l *Logger) Warn(format string, args ...interface{}) {
	if l != nil && l.enabled && l.sugar != nil {
		l.sugar.Warnf(format, args...)
	}
}

// Error logs an error-level message.
func (l *Logger) Error(format string, args ...interface{}) {
	if l != nil && l.enabled && l.sugar != nil {
		l.sugar.Errorf(format, args...)
	}
}

// =============================================================================
// Category convenience functions
// =============================================================================

// Store logs an info message under the store category.
func Store(format string, args ...interface{}) { Get(CategoryStore).Info(format, args...) }

// StoreDebug logs a debug message under the store category.
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }

// Retrieval logs an info message under the retrieval category.
func Retrieval(format string, args ...interface{}) { Get(CategoryRetrieval).Info(format, args...) }

// RetrievalDebug logs a debug message under the retrieval category.
func RetrievalDebug(format string, args ...interface{}) {
	Get(CategoryRetrieval).Debug(format, args...)
}

// Cache logs an info message under the cache category.
func Cache(format string, args ...interface{}) { Get(CategoryCache).Info(format, args...) }

// CacheDebug logs a debug message under the cache category.
func CacheDebug(format string, args ...interface{}) { Get(CategoryCache).Debug(format, args...) }

// Budget logs an info message under the budget category.
func Budget(format string, args ...interface{}) { Get(CategoryBudget).Info(format, args...) }

// BudgetDebug logs a debug message under the budget category.
func BudgetDebug(format string, args ...interface{}) { Get(CategoryBudget).Debug(format, args...) }

// Focus logs an info message under the focus category.
func Focus(format string, args ...interface{}) { Get(CategoryFocus).Info(format, args...) }

// FocusDebug logs a debug message under the focus category.
func FocusDebug(format string, args ...interface{}) { Get(CategoryFocus).Debug(format, args...) }

// Embedding logs an info message under the embedding category.
func Embedding(format string, args ...interface{}) { Get(CategoryEmbedding).Info(format, args...) }

// EmbeddingDebug logs a debug message under the embedding category.
func EmbeddingDebug(format string, args ...interface{}) {
	Get(CategoryEmbedding).Debug(format, args...)
}

// Session logs an info message under the session category.
func Session(format string, args ...interface{}) { Get(CategorySession).Info(format, args...) }

// SessionDebug logs a debug message under the session category.
func SessionDebug(format string, args ...interface{}) { Get(CategorySession).Debug(format, args...) }

// Intelligence logs an info message under the intelligence category.
func Intelligence(format string, args ...interface{}) {
	Get(CategoryIntelligence).Info(format, args...)
}

// IntelligenceDebug logs a debug message under the intelligence category.
func IntelligenceDebug(format string, args ...interface{}) {
	Get(CategoryIntelligence).Debug(format, args...)
}

// =============================================================================
// Timers
// =============================================================================

// Timer measures the duration of an operation and logs it on Stop.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation for the given category.
func StartTimer(cat Category, op string) *Timer {
	return &Timer{category: cat, op: op, start: time.Now()}
}

// Stop logs the elapsed time at debug level.
func (t *Timer) Stop() {
	if t == nil {
		return
	}
	Get(t.category).Debug("%s took %v", t.op, time.Since(t.start))
}
