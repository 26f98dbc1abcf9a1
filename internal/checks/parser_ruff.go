package checks

import (
	"encoding/json"
	"fmt"
)

// RuffParser parses `ruff check --output-format=json` output.
type RuffParser struct{}

type ruffViolation struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Filename string `json:"filename"`
	Location struct {
		Row    int `json:"row"`
		Column int `json:"column"`
	} `json:"location"`
	Fix *struct {
		Applicability string `json:"applicability"`
	} `json:"fix"`
}

type ruffFinding struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

type ruffResult struct {
	Violations int           `json:"violations"`
	Fixable    int           `json:"fixable"`
	Findings   []ruffFinding `json:"findings"`
}

func (p *RuffParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	var raw []ruffViolation
	if err := json.Unmarshal([]byte(stdout), &raw); err != nil {
		return ParseResult{
			Passed:   exitCode == 0,
			Summary:  fmt.Sprintf("exit code %d (could not parse ruff JSON)", exitCode),
			Findings: ruffResult{Violations: -1},
		}
	}

	var result ruffResult
	var failures []string
	for _, v := range raw {
		result.Violations++
		if v.Fix != nil {
			result.Fixable++
		}
		result.Findings = append(result.Findings, ruffFinding{
			File:    v.Filename,
			Line:    v.Location.Row,
			Column:  v.Location.Column,
			Rule:    v.Code,
			Message: v.Message,
		})
		failures = append(failures, fmt.Sprintf("%s:%d:%d: %s %s", v.Filename, v.Location.Row, v.Location.Column, v.Code, v.Message))
	}

	return ParseResult{
		Passed:   result.Violations == 0,
		Summary:  fmt.Sprintf("%d violations, %d fixable", result.Violations, result.Fixable),
		Findings: result,
		Failures: failures,
	}
}
