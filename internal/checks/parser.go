package checks

// ParseResult holds the normalized output from a parser.
type ParseResult struct {
	Passed   bool        `json:"passed"`
	Summary  string      `json:"summary"`
	Findings interface{} `json:"findings"`
	// Failures are one-line descriptions of individual failures, when the
	// tool reports them separately (failing tests, for example).
	Failures []string `json:"failures,omitempty"`
}

// Parser converts raw command output into a structured ParseResult.
type Parser interface {
	Parse(stdout string, stderr string, exitCode int) ParseResult
}
