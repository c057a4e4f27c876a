// Package types holds the shared data model for the memvault context engine:
// the analyzed task context, candidate knowledge items, contradictions,
// budget sections, and the signal bundle produced by the intelligence
// collector. Pure data, no behavior beyond small accessors.
package types

import "time"

// =============================================================================
// SECTION 1: Task Classification
// =============================================================================

// TaskType is the coarse classification of the current unit of work.
type TaskType string

const (
	TaskBugfix        TaskType = "bugfix"
	TaskFeature       TaskType = "feature"
	TaskRefactor      TaskType = "refactor"
	TaskTesting       TaskType = "testing"
	TaskDocumentation TaskType = "documentation"
	TaskPerformance   TaskType = "performance"
	TaskConfiguration TaskType = "configuration"
	TaskExploration   TaskType = "exploration"
	TaskUnknown       TaskType = "unknown"
)

// =============================================================================
// SECTION 2: Candidate Items
// =============================================================================
// Candidate items are read-only projections of stored knowledge plus a
// provenance-derived relevance score: direct match 1.0, full-text match 0.6,
// fallback substring match 0.4-0.5.

// FileCandidate is a tracked file relevant to the current task.
type FileCandidate struct {
	Path           string   `json:"path"`
	Purpose        string   `json:"purpose,omitempty"`
	Fragility      float64  `json:"fragility"` // 0-10 risk score
	LastError      string   `json:"last_error,omitempty"`
	RelevanceScore float64  `json:"relevance_score"`
	Contradictions []string `json:"contradictions,omitempty"`
}

// DecisionCandidate is a past decision relevant to the current task.
type DecisionCandidate struct {
	ID             int64    `json:"id"`
	Title          string   `json:"title"`
	Decision       string   `json:"decision"`
	Affects        string   `json:"affects,omitempty"`
	Outcome        string   `json:"outcome"` // pending|succeeded|failed|revised
	OutcomeReason  string   `json:"outcome_reason,omitempty"`
	Confidence     float64  `json:"confidence"` // 0-10
	RelevanceScore float64  `json:"relevance_score"`
	Contradictions []string `json:"contradictions,omitempty"`
}

// LearningCandidate is an accumulated learning relevant to the current task.
type LearningCandidate struct {
	ID             int64    `json:"id"`
	Content        string   `json:"content"`
	Category       string   `json:"category,omitempty"` // gotcha, pattern, preference, ...
	Confidence     float64  `json:"confidence"`         // 0-10
	RelevanceScore float64  `json:"relevance_score"`
	Contradictions []string `json:"contradictions,omitempty"`
}

// IssueCandidate is an open issue relevant to the current task.
type IssueCandidate struct {
	ID             int64   `json:"id"`
	Title          string  `json:"title"`
	Severity       float64 `json:"severity"` // 0-10
	IssueType      string  `json:"issue_type,omitempty"`
	Status         string  `json:"status,omitempty"`
	RelevanceScore float64 `json:"relevance_score"`
}

// ErrorFixCandidate is a known error signature with its historical fix.
type ErrorFixCandidate struct {
	ID             int64   `json:"id"`
	ErrorSignature string  `json:"error_signature"`
	Fix            string  `json:"fix"`
	Confidence     float64 `json:"confidence"` // 0-1
	FixCount       int     `json:"fix_count"`
	RelevanceScore float64 `json:"relevance_score"`
}

// =============================================================================
// SECTION 3: Task Context
// =============================================================================

// TaskContext is the analyzed view of one tool invocation plus the candidate
// knowledge retrieved for it. Built once per analyzed call; immutable
// afterward. The session holds a single current context, replace-on-write.
type TaskContext struct {
	Type     TaskType `json:"type"`
	Domains  []string `json:"domains"`  // ordered, at most 5
	Keywords []string `json:"keywords"` // ordered, at most 10
	Files    []string `json:"files"`    // directly touched paths

	FileCandidates []FileCandidate     `json:"file_candidates"`
	Decisions      []DecisionCandidate `json:"decisions"`
	Learnings      []LearningCandidate `json:"learnings"`
	Issues         []IssueCandidate    `json:"issues"`
	ErrorFixes     []ErrorFixCandidate `json:"error_fixes"`

	BuiltAt time.Time `json:"built_at"`
}

// IsEmpty reports whether the context carries no candidate items at all.
func (tc *TaskContext) IsEmpty() bool {
	return tc == nil ||
		(len(tc.FileCandidates) == 0 && len(tc.Decisions) == 0 &&
			len(tc.Learnings) == 0 && len(tc.Issues) == 0 && len(tc.ErrorFixes) == 0)
}

// =============================================================================
// SECTION 4: Contradictions
// =============================================================================

// ContradictionSeverity grades how strongly a prior outcome conflicts with
// the current action.
type ContradictionSeverity string

const (
	SeverityWarning  ContradictionSeverity = "warning"
	SeverityCritical ContradictionSeverity = "critical"
)

// Contradiction flags a prior failed/revised decision that conflicts with
// the current action. At most 3 are ever surfaced; critical entries always
// precede warnings; (SourceID, SourceType) is unique within a result.
type Contradiction struct {
	SourceType string                `json:"source_type"` // decision|learning
	SourceID   int64                 `json:"source_id"`
	Title      string                `json:"title"`
	Summary    string                `json:"summary"`
	Severity   ContradictionSeverity `json:"severity"`
}

// =============================================================================
// SECTION 5: Tool Call Records
// =============================================================================

// ToolCall is the per-invocation record fed to the trajectory analyzer and
// the focus shifter. Keywords and domains come from the lexical analyzer.
type ToolCall struct {
	Tool      string    `json:"tool"`
	Files     []string  `json:"files,omitempty"`
	Keywords  []string  `json:"keywords,omitempty"`
	Domains   []string  `json:"domains,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// =============================================================================
// SECTION 6: Trajectory
// =============================================================================

// TrajectoryPattern labels the session's behavioral trajectory.
type TrajectoryPattern string

const (
	TrajectoryExploration TrajectoryPattern = "exploration"
	TrajectoryConfident   TrajectoryPattern = "confident"
	TrajectoryFailing     TrajectoryPattern = "failing"
	TrajectoryStuck       TrajectoryPattern = "stuck"
	TrajectoryNormal      TrajectoryPattern = "normal"
)

// TrajectoryAnalysis is the stateless per-call trajectory classification.
type TrajectoryAnalysis struct {
	Pattern    TrajectoryPattern `json:"pattern"`
	Message    string            `json:"message"`
	Confidence float64           `json:"confidence"`
	Suggestion string            `json:"suggestion,omitempty"`
}

// =============================================================================
// SECTION 7: Intelligence Signals
// =============================================================================

// Strategy is a behavioral strategy from the strategy catalog.
type Strategy struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Situation   string  `json:"situation"`
	Approach    string  `json:"approach"`
	SuccessRate float64 `json:"success_rate"` // 0-1
	TimesUsed   int     `json:"times_used"`
}

// StaleItem flags knowledge that has not been confirmed recently.
type StaleItem struct {
	Kind  string `json:"kind"` // decision|learning|file
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Days  int    `json:"days"` // age since last confirmation
}

// PredictedAction is a next-action hint from the predictor.
type PredictedAction struct {
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
}

// BehaviorProfile summarizes how the user prefers the assistant to behave.
type BehaviorProfile struct {
	Style     string `json:"style,omitempty"`
	Verbosity string `json:"verbosity,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// ImpactStats reports how effective past injections were.
type ImpactStats struct {
	ContextsInjected int     `json:"contexts_injected"`
	HitRate          float64 `json:"hit_rate"` // 0-1
	TokensInjected   int     `json:"tokens_injected"`
}

// Signals is the flat bundle the intelligence collector hands to the budget
// manager. Any field may be zero-valued when its provider was unavailable.
type Signals struct {
	Strategies      []Strategy          `json:"strategies,omitempty"`
	StaleItems      []StaleItem         `json:"stale_items,omitempty"`
	BudgetOverrides map[string]int      `json:"budget_overrides,omitempty"`
	NextActions     []PredictedAction   `json:"next_actions,omitempty"`
	Trajectory      *TrajectoryAnalysis `json:"trajectory,omitempty"`
	Profile         *BehaviorProfile    `json:"profile,omitempty"`
	Impact          *ImpactStats        `json:"impact,omitempty"`

	// Calibration feedback from the accuracy tracker. Zero means "no data";
	// the budget manager only applies multipliers for non-zero values.
	PredictionAccuracy float64 `json:"prediction_accuracy,omitempty"` // 0-1
	EnrichmentAccuracy float64 `json:"enrichment_accuracy,omitempty"` // 0-1
}

// =============================================================================
// SECTION 8: Assembled Output
// =============================================================================

// ContextSection is one rendered category of the assembled context block.
type ContextSection struct {
	Category string `json:"category"`
	Text     string `json:"text"`
	Tokens   int    `json:"tokens"`
}

// AssembledContext is the terminal output of the pipeline: the bounded text
// block plus the structured metadata downstream consumers track.
type AssembledContext struct {
	Text           string           `json:"text"`
	Sections       []ContextSection `json:"sections"`
	Contradictions []Contradiction  `json:"contradictions"`
	TotalTokens    int              `json:"total_tokens"`
}
