package checks

import "fmt"

// GenericParser is the fallback parser that captures exit code and output.
type GenericParser struct{}

// maxOutputLen caps how much stdout/stderr the generic parser retains.
const maxOutputLen = 8000

func (p *GenericParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	passed := exitCode == 0
	if passed {
		return ParseResult{Passed: true, Summary: "passed (exit code 0)", Findings: ""}
	}

	combined := stdout
	if stderr != "" {
		if combined != "" {
			combined += "\n"
		}
		combined += stderr
	}
	// Keep the tail; error summaries and tracebacks are usually at the end.
	if len(combined) > maxOutputLen {
		combined = "…(truncated)\n" + combined[len(combined)-maxOutputLen:]
	}

	var failures []string
	if combined != "" {
		failures = []string{combined}
	}
	return ParseResult{
		Passed:   false,
		Summary:  fmt.Sprintf("exit code %d, stdout=%d bytes, stderr=%d bytes", exitCode, len(stdout), len(stderr)),
		Findings: combined,
		Failures: failures,
	}
}
