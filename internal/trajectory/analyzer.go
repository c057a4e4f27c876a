// Package trajectory classifies the session's recent tool-call history into a
// behavioral pattern: stuck, failing, exploring, confident, or normal. The
// analysis is stateless; the caller passes the window of calls each time.
package trajectory

import (
	"strings"

	"memvault/internal/logging"
	"memvault/internal/types"
)

// minCalls is the history size below which no pattern is claimed.
const minCalls = 3

// Analyzer classifies tool-call histories. Stateless and safe for concurrent
// use.
type Analyzer struct{}

// New returns a trajectory analyzer.
func New() *Analyzer {
	return &Analyzer{}
}

// Analyze classifies the call history, most recent call first. Patterns are
// checked in fixed priority order: stuck, failing, exploration, confident.
// Fewer than 3 calls yields normal with zero confidence.
func (a *Analyzer) Analyze(calls []types.ToolCall) types.TrajectoryAnalysis {
	if len(calls) < minCalls {
		return types.TrajectoryAnalysis{
			Pattern:    types.TrajectoryNormal,
			Message:    "too early to analyze",
			Confidence: 0.0,
		}
	}

	if result, ok := a.detectStuck(calls); ok {
		logging.Get(logging.CategoryTrajectory).Debug("pattern detected: %s", result.Pattern)
		return result
	}
	if result, ok := a.detectFailing(calls); ok {
		logging.Get(logging.CategoryTrajectory).Debug("pattern detected: %s", result.Pattern)
		return result
	}
	if result, ok := a.detectExploration(calls); ok {
		logging.Get(logging.CategoryTrajectory).Debug("pattern detected: %s", result.Pattern)
		return result
	}
	if result, ok := a.detectConfident(calls); ok {
		logging.Get(logging.CategoryTrajectory).Debug("pattern detected: %s", result.Pattern)
		return result
	}

	return types.TrajectoryAnalysis{
		Pattern:    types.TrajectoryNormal,
		Message:    "steady progress",
		Confidence: 0.5,
	}
}

// detectStuck fires when 3 or more check-class calls hit the same file,
// meaning the session keeps re-verifying without moving on.
func (a *Analyzer) detectStuck(calls []types.ToolCall) (types.TrajectoryAnalysis, bool) {
	checksPerFile := make(map[string]int)
	for _, call := range calls {
		if !isCheckCall(call.Tool) {
			continue
		}
		for _, f := range call.Files {
			checksPerFile[f]++
			if checksPerFile[f] >= 3 {
				return types.TrajectoryAnalysis{
					Pattern:    types.TrajectoryStuck,
					Message:    "repeatedly checking " + f + " without progress",
					Confidence: 0.8,
					Suggestion: "step back and reconsider the approach for " + f,
				}, true
			}
		}
	}
	return types.TrajectoryAnalysis{}, false
}

// detectFailing fires when 2 or more of the 5 most recent calls look like
// error handling.
func (a *Analyzer) detectFailing(calls []types.ToolCall) (types.TrajectoryAnalysis, bool) {
	window := calls
	if len(window) > 5 {
		window = window[:5]
	}

	errors := 0
	for _, call := range window {
		if isErrorCall(call) {
			errors++
		}
	}
	if errors < 2 {
		return types.TrajectoryAnalysis{}, false
	}

	return types.TrajectoryAnalysis{
		Pattern:    types.TrajectoryFailing,
		Message:    "multiple recent errors",
		Confidence: 0.7,
		Suggestion: "check known error fixes before retrying",
	}, true
}

// detectExploration fires on a read-heavy window: 5+ reads and zero writes in
// the 10 most recent calls.
func (a *Analyzer) detectExploration(calls []types.ToolCall) (types.TrajectoryAnalysis, bool) {
	window := calls
	if len(window) > 10 {
		window = window[:10]
	}

	reads, writes := 0, 0
	for _, call := range window {
		switch {
		case isWriteCall(call.Tool):
			writes++
		case isReadCall(call.Tool):
			reads++
		}
	}
	if reads < 5 || writes > 0 {
		return types.TrajectoryAnalysis{}, false
	}

	return types.TrajectoryAnalysis{
		Pattern:    types.TrajectoryExploration,
		Message:    "reading broadly without edits",
		Confidence: 0.7,
		Suggestion: "gathering context; broader file summaries may help",
	}, true
}

// detectConfident fires when a check call is immediately followed by a write
// within the 5 most recent calls (most recent first, so the write appears
// right before the check). Intervening calls break the pairing; verify first,
// then edit.
func (a *Analyzer) detectConfident(calls []types.ToolCall) (types.TrajectoryAnalysis, bool) {
	window := calls
	if len(window) > 5 {
		window = window[:5]
	}

	for i := 0; i+1 < len(window); i++ {
		if isWriteCall(window[i].Tool) && isCheckCall(window[i+1].Tool) {
			return types.TrajectoryAnalysis{
				Pattern:    types.TrajectoryConfident,
				Message:    "verifying then editing",
				Confidence: 0.6,
			}, true
		}
	}
	return types.TrajectoryAnalysis{}, false
}

// =============================================================================
// Tool classification
// =============================================================================

func isCheckCall(tool string) bool {
	t := strings.ToLower(tool)
	return strings.Contains(t, "read") || strings.Contains(t, "grep") ||
		strings.Contains(t, "search") || strings.Contains(t, "test") ||
		strings.Contains(t, "lint") || strings.Contains(t, "check")
}

func isReadCall(tool string) bool {
	t := strings.ToLower(tool)
	return strings.Contains(t, "read") || strings.Contains(t, "grep") ||
		strings.Contains(t, "search") || strings.Contains(t, "glob") ||
		strings.Contains(t, "list")
}

func isWriteCall(tool string) bool {
	t := strings.ToLower(tool)
	return strings.Contains(t, "write") || strings.Contains(t, "edit") ||
		strings.Contains(t, "patch") || strings.Contains(t, "create")
}

// isErrorCall heuristically marks a call as error handling from its keywords.
func isErrorCall(call types.ToolCall) bool {
	for _, kw := range call.Keywords {
		switch kw {
		case "error", "fail", "failed", "crash", "exception", "panic", "traceback":
			return true
		}
	}
	return false
}
