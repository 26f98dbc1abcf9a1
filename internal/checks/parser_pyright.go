package checks

import (
	"encoding/json"
	"fmt"
)

// PyrightParser parses `pyright --outputjson` output.
type PyrightParser struct{}

type pyrightOutput struct {
	GeneralDiagnostics []pyrightDiagnostic `json:"generalDiagnostics"`
	Summary            struct {
		FilesAnalyzed    int `json:"filesAnalyzed"`
		ErrorCount       int `json:"errorCount"`
		WarningCount     int `json:"warningCount"`
		InformationCount int `json:"informationCount"`
	} `json:"summary"`
}

type pyrightDiagnostic struct {
	File     string `json:"file"`
	Severity string `json:"severity"` // "error", "warning", "information"
	Message  string `json:"message"`
	Rule     string `json:"rule"`
	Range    struct {
		Start struct {
			Line      int `json:"line"`
			Character int `json:"character"`
		} `json:"start"`
	} `json:"range"`
}

type pyrightFinding struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Severity string `json:"severity"`
	Rule     string `json:"rule,omitempty"`
	Message  string `json:"message"`
}

type pyrightResult struct {
	Errors   int              `json:"errors"`
	Warnings int              `json:"warnings"`
	Files    int              `json:"files"`
	Findings []pyrightFinding `json:"findings"`
}

func (p *PyrightParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	var raw pyrightOutput
	if err := json.Unmarshal([]byte(stdout), &raw); err != nil {
		return ParseResult{
			Passed:   exitCode == 0,
			Summary:  fmt.Sprintf("exit code %d (could not parse pyright JSON)", exitCode),
			Findings: pyrightResult{Errors: -1},
		}
	}

	result := pyrightResult{
		Errors:   raw.Summary.ErrorCount,
		Warnings: raw.Summary.WarningCount,
		Files:    raw.Summary.FilesAnalyzed,
	}
	var failures []string
	for _, d := range raw.GeneralDiagnostics {
		// pyright lines are zero-based.
		line := d.Range.Start.Line + 1
		result.Findings = append(result.Findings, pyrightFinding{
			File:     d.File,
			Line:     line,
			Severity: d.Severity,
			Rule:     d.Rule,
			Message:  d.Message,
		})
		if d.Severity == "error" {
			failures = append(failures, fmt.Sprintf("%s:%d: %s", d.File, line, d.Message))
		}
	}

	return ParseResult{
		Passed:   result.Errors == 0,
		Summary:  fmt.Sprintf("%d errors, %d warnings in %d files", result.Errors, result.Warnings, result.Files),
		Findings: result,
		Failures: failures,
	}
}
