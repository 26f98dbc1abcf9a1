package checks

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// PytestParser parses pytest's short test summary (run with -rfE or -q).
type PytestParser struct{}

type pytestResult struct {
	Passed   int      `json:"passed"`
	Failed   int      `json:"failed"`
	Errors   int      `json:"errors"`
	Skipped  int      `json:"skipped"`
	Failures []string `json:"failures"`
}

var (
	pytestFailRe  = regexp.MustCompile(`^(FAILED|ERROR)\s+(.+)$`)
	pytestCountRe = regexp.MustCompile(`(\d+)\s+(passed|failed|errors?|skipped)`)
)

func (p *PytestParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	var result pytestResult
	var summaryLine string

	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if m := pytestFailRe.FindStringSubmatch(line); m != nil {
			result.Failures = append(result.Failures, m[2])
			continue
		}
		if pytestCountRe.MatchString(line) && (strings.Contains(line, " in ") || strings.HasPrefix(line, "=")) {
			summaryLine = line
		}
	}

	for _, m := range pytestCountRe.FindAllStringSubmatch(summaryLine, -1) {
		n, _ := strconv.Atoi(m[1])
		switch m[2] {
		case "passed":
			result.Passed = n
		case "failed":
			result.Failed = n
		case "error", "errors":
			result.Errors = n
		case "skipped":
			result.Skipped = n
		}
	}

	passed := exitCode == 0 && result.Failed == 0 && result.Errors == 0
	failures := result.Failures
	if !passed && len(failures) == 0 {
		// No per-test lines: fall back to the raw output tail.
		failures = (&GenericParser{}).Parse(stdout, stderr, exitCode).Failures
	}

	return ParseResult{
		Passed:   passed,
		Summary:  fmt.Sprintf("%d passed, %d failed, %d errors, %d skipped", result.Passed, result.Failed, result.Errors, result.Skipped),
		Findings: result,
		Failures: failures,
	}
}
