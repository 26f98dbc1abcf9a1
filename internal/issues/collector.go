package issues

import (
	"fmt"
	"strings"
)

// MaxTestIssues caps the number of test-derived issues per collection.
const MaxTestIssues = 20

// Collector converts phase failure artifacts into issues.
type Collector struct {
	rules   []Rule
	maxTest int
}

// NewCollector creates a Collector using HookRules.
func NewCollector() *Collector {
	return &Collector{rules: HookRules, maxTest: MaxTestIssues}
}

// Collect returns test-derived issues followed by hook-derived issues.
func (c *Collector) Collect(testFailures []string, hookFailures []HookFailure) []Issue {
	out := c.FromTestFailures(testFailures)
	return append(out, c.FromHookFailures(hookFailures)...)
}

// FromTestFailures wraps up to MaxTestIssues non-blank failure strings as
// TEST_FAILURE issues.
func (c *Collector) FromTestFailures(failures []string) []Issue {
	var out []Issue
	for _, f := range failures {
		if len(out) >= c.maxTest {
			break
		}
		msg := strings.TrimSpace(f)
		if msg == "" {
			continue
		}
		out = append(out, Issue{
			ID:       fmt.Sprintf("test_failure_%d", len(out)),
			Type:     TypeTestFailure,
			Severity: SeverityHigh,
			Message:  msg,
			Stage:    "tests",
		})
	}
	return out
}

// FromHookFailures classifies hook task error messages against the rule table.
// A fast-tier failure with no known tool becomes a FORMATTING/LOW issue. When
// no message matches a known tool, every failure still without an issue
// yields one generic issue.
func (c *Collector) FromHookFailures(failures []HookFailure) []Issue {
	var (
		out        []Issue
		anyMatched bool
		bare       []HookFailure
	)
	for _, f := range failures {
		msg := failureMessage(f)
		matched := Match(c.rules, msg)
		for _, r := range matched {
			out = append(out, Issue{
				ID:       fmt.Sprintf("%s_%s", f.TaskID, r.Substring),
				Type:     r.Type,
				Severity: r.Severity,
				Message:  msg,
				Stage:    string(f.Tier),
			})
		}
		switch {
		case len(matched) > 0:
			anyMatched = true
		case f.Tier == TierFast:
			out = append(out, Issue{
				ID:       fmt.Sprintf("%s_formatting", f.TaskID),
				Type:     TypeFormatting,
				Severity: SeverityLow,
				Message:  msg,
				Stage:    string(f.Tier),
			})
		default:
			bare = append(bare, f)
		}
	}
	if anyMatched {
		return out
	}

	for _, f := range bare {
		typ := TypeTypeError
		if f.Tier == TierFast {
			typ = TypeFormatting
		}
		out = append(out, Issue{
			ID:       fmt.Sprintf("hook_failure_%s", f.TaskID),
			Type:     typ,
			Severity: SeverityMedium,
			Message:  failureMessage(f),
			Stage:    string(f.Tier),
		})
	}
	return out
}

func failureMessage(f HookFailure) string {
	if msg := strings.TrimSpace(f.Message); msg != "" {
		return msg
	}
	return fmt.Sprintf("%s failed", f.TaskID)
}
