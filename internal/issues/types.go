// Package issues defines the typed problem records fed to the fixer and the
// rules that derive them from phase failure output.
package issues

// IssueType is the closed set of problem categories.
type IssueType string

const (
	TypeTestFailure IssueType = "TEST_FAILURE"
	TypeFormatting  IssueType = "FORMATTING"
	TypeTypeError   IssueType = "TYPE_ERROR"
	TypeSecurity    IssueType = "SECURITY"
	TypeComplexity  IssueType = "COMPLEXITY"
	TypePerformance IssueType = "PERFORMANCE"
	TypeDeadCode    IssueType = "DEAD_CODE"
)

// Severity ranks an issue.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Issue is a single detected problem derived from phase output.
type Issue struct {
	ID       string    `json:"id"`
	Type     IssueType `json:"type"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	Stage    string    `json:"stage"`
}

// FixResult is what the fixer reports after attempting a batch of issues.
type FixResult struct {
	Success         bool     `json:"success"`
	FixesApplied    []string `json:"fixes_applied"`
	RemainingIssues []Issue  `json:"remaining_issues"`
	Confidence      float64  `json:"confidence"`
}

// Tier is the hook tier a failure came from.
type Tier string

const (
	TierFast          Tier = "fast"
	TierComprehensive Tier = "comprehensive"
)

// HookFailure is the error message recorded for a failed hook task.
type HookFailure struct {
	TaskID  string
	Tier    Tier
	Message string
}
