// Package lexical extracts search keywords, touched files, domain tags, and
// a coarse task type from raw tool-call arguments. Everything here is
// synchronous, deterministic, and free of I/O; it never fails.
package lexical

import (
	"sort"
	"strings"
	"unicode"

	"memvault/internal/types"
)

// textFields are the free-text argument keys worth tokenizing.
var textFields = []string{"query", "task", "goal", "title", "content", "description", "command"}

// pathFields are the argument keys that carry file paths.
var pathFields = []string{"file", "path", "file_path", "filePath", "files", "paths", "notebook_path"}

// structuralDirs are directory names that carry no domain meaning.
var structuralDirs = map[string]bool{
	"src": true, "lib": true, "dist": true, "build": true,
	"node_modules": true, ".git": true,
}

// stopWords are tokens too common to be useful search terms.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "this": true,
	"that": true, "from": true, "are": true, "was": true, "were": true,
	"will": true, "have": true, "has": true, "been": true, "its": true,
	"can": true, "all": true, "use": true, "using": true, "into": true,
	"when": true, "then": true, "than": true, "some": true, "not": true,
	"but": true, "you": true, "your": true, "our": true, "out": true,
}

// toolHints maps substrings of tool names to hint tokens.
var toolHints = []struct {
	fragment string
	hint     string
}{
	{"test", "test"},
	{"edit", "edit"},
	{"write", "edit"},
	{"grep", "search"},
	{"search", "search"},
	{"bash", "command"},
	{"command", "command"},
	{"read", "read"},
}

// taskPatterns is the fixed pattern table for task-type detection. Order
// matters: ties go to the earlier entry.
var taskPatterns = []struct {
	taskType types.TaskType
	patterns []string
}{
	{types.TaskBugfix, []string{"fix", "bug", "error", "issue", "broken", "fail", "crash", "debug", "repair"}},
	{types.TaskFeature, []string{"add", "implement", "create", "new", "feature", "build", "introduce"}},
	{types.TaskRefactor, []string{"refactor", "clean", "reorganiz", "restructur", "simplif", "extract", "rename", "move"}},
	{types.TaskTesting, []string{"test", "spec", "coverage", "mock", "assert"}},
	{types.TaskDocumentation, []string{"doc", "readme", "comment", "explain", "describe"}},
	{types.TaskPerformance, []string{"optim", "perf", "slow", "speed", "cache", "benchmark", "latency", "memory"}},
	{types.TaskConfiguration, []string{"config", "setting", "env", "setup", "install", "depend", "version"}},
	{types.TaskExploration, []string{"explore", "search", "find", "read", "understand", "look", "list", "show"}},
}

// Analyzer extracts lexical signals from tool-call arguments.
type Analyzer struct{}

// New returns a lexical analyzer.
func New() *Analyzer {
	return &Analyzer{}
}

// =============================================================================
// Keyword extraction
// =============================================================================

// ExtractKeywords pulls search keywords from a tool call: free-text field
// tokens, path-derived terms, and tool-name hints. Order is stable; results
// are deduplicated.
func (a *Analyzer) ExtractKeywords(tool string, args map[string]interface{}) []string {
	seen := make(map[string]bool)
	var keywords []string

	add := func(tok string) {
		if tok == "" || seen[tok] {
			return
		}
		seen[tok] = true
		keywords = append(keywords, tok)
	}

	for _, field := range textFields {
		if text, ok := args[field].(string); ok {
			for _, tok := range tokenize(text) {
				add(tok)
			}
		}
	}

	for _, path := range a.ExtractFiles(args) {
		for _, tok := range pathTerms(path) {
			add(tok)
		}
	}

	toolLower := strings.ToLower(tool)
	for _, h := range toolHints {
		if strings.Contains(toolLower, h.fragment) {
			add(h.hint)
		}
	}

	return keywords
}

// ExtractFiles collects the file paths named in the argument map.
func (a *Analyzer) ExtractFiles(args map[string]interface{}) []string {
	seen := make(map[string]bool)
	var files []string

	add := func(p string) {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		files = append(files, p)
	}

	for _, field := range pathFields {
		switch v := args[field].(type) {
		case string:
			add(v)
		case []string:
			for _, p := range v {
				add(p)
			}
		case []interface{}:
			for _, item := range v {
				if p, ok := item.(string); ok {
					add(p)
				}
			}
		}
	}

	return files
}

// =============================================================================
// Task type detection
// =============================================================================

// DetectTaskType scores each task type by counting keyword prefix matches
// against its pattern table. The highest count wins; ties go to the type
// listed first; zero matches yields unknown.
func (a *Analyzer) DetectTaskType(keywords []string) types.TaskType {
	best := types.TaskUnknown
	bestScore := 0

	for _, entry := range taskPatterns {
		score := 0
		for _, kw := range keywords {
			for _, pat := range entry.patterns {
				if strings.HasPrefix(kw, pat) {
					score++
					break
				}
			}
		}
		if score > bestScore {
			bestScore = score
			best = entry.taskType
		}
	}

	return best
}

// =============================================================================
// Domain extraction
// =============================================================================

// ExtractDomains derives domain tags from touched paths: directory segments
// with structural names filtered out and file names (segments containing a
// dot) skipped. At most 5, deduplicated, in path order.
func (a *Analyzer) ExtractDomains(paths []string) []string {
	seen := make(map[string]bool)
	var domains []string

	for _, path := range paths {
		for _, seg := range strings.Split(path, "/") {
			seg = strings.ToLower(strings.TrimSpace(seg))
			if seg == "" || structuralDirs[seg] || strings.Contains(seg, ".") {
				continue
			}
			if seen[seg] {
				continue
			}
			seen[seg] = true
			domains = append(domains, seg)
			if len(domains) >= 5 {
				return domains
			}
		}
	}

	return domains
}

// =============================================================================
// Tokenization helpers
// =============================================================================

// tokenize lowercases free text, splits on non-alphanumeric separators, and
// drops short tokens and stop words.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var out []string
	for _, f := range fields {
		if len(f) < 3 || stopWords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// pathTerms extracts meaningful terms from a path: non-structural segments
// with extensions stripped and compound identifiers split on camelCase,
// kebab, and snake boundaries.
func pathTerms(path string) []string {
	var out []string
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || structuralDirs[strings.ToLower(seg)] {
			continue
		}
		if dot := strings.LastIndex(seg, "."); dot > 0 {
			seg = seg[:dot]
		}
		for _, part := range splitIdentifier(seg) {
			part = strings.ToLower(part)
			if len(part) < 3 || stopWords[part] {
				continue
			}
			out = append(out, part)
		}
	}
	return out
}

// splitIdentifier splits a compound identifier on camelCase, kebab-case,
// and snake_case boundaries.
func splitIdentifier(s string) []string {
	var parts []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, cur.String())
			cur.Reset()
		}
	}

	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == '-' || r == '_':
			flush()
		case unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]):
			flush()
			cur.WriteRune(r)
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return parts
}

// SearchTerms merges keywords and path terms into a capped, deduplicated
// search-term set for the retrieval layer.
func SearchTerms(keywords, files []string, max int) []string {
	seen := make(map[string]bool)
	var terms []string

	add := func(t string) {
		if t == "" || seen[t] || len(terms) >= max {
			return
		}
		seen[t] = true
		terms = append(terms, t)
	}

	for _, kw := range keywords {
		add(kw)
	}
	for _, f := range files {
		for _, t := range pathTerms(f) {
			add(t)
		}
	}

	return terms
}

// SortedCopy returns a sorted copy, for deterministic logging and tests.
func SortedCopy(items []string) []string {
	out := append([]string(nil), items...)
	sort.Strings(out)
	return out
}
