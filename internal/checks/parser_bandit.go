package checks

import (
	"encoding/json"
	"fmt"
)

// BanditParser parses `bandit -f json` output.
type BanditParser struct{}

type banditOutput struct {
	Results []struct {
		Filename   string `json:"filename"`
		LineNumber int    `json:"line_number"`
		TestID     string `json:"test_id"`
		Severity   string `json:"issue_severity"`
		Confidence string `json:"issue_confidence"`
		Text       string `json:"issue_text"`
	} `json:"results"`
}

type banditFinding struct {
	File       string `json:"file"`
	Line       int    `json:"line"`
	TestID     string `json:"test_id"`
	Severity   string `json:"severity"`
	Confidence string `json:"confidence"`
	Message    string `json:"message"`
}

type banditResult struct {
	High     int             `json:"high"`
	Medium   int             `json:"medium"`
	Low      int             `json:"low"`
	Findings []banditFinding `json:"findings"`
}

func (p *BanditParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	var raw banditOutput
	if err := json.Unmarshal([]byte(stdout), &raw); err != nil {
		return ParseResult{
			Passed:   exitCode == 0,
			Summary:  fmt.Sprintf("exit code %d (could not parse bandit JSON)", exitCode),
			Findings: banditResult{High: -1},
		}
	}

	var result banditResult
	var failures []string
	for _, r := range raw.Results {
		switch r.Severity {
		case "HIGH":
			result.High++
		case "MEDIUM":
			result.Medium++
		default:
			result.Low++
		}
		result.Findings = append(result.Findings, banditFinding{
			File:       r.Filename,
			Line:       r.LineNumber,
			TestID:     r.TestID,
			Severity:   r.Severity,
			Confidence: r.Confidence,
			Message:    r.Text,
		})
		failures = append(failures, fmt.Sprintf("%s:%d: %s %s", r.Filename, r.LineNumber, r.TestID, r.Text))
	}

	return ParseResult{
		Passed:   len(raw.Results) == 0,
		Summary:  fmt.Sprintf("%d high, %d medium, %d low", result.High, result.Medium, result.Low),
		Findings: result,
		Failures: failures,
	}
}
