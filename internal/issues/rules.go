package issues

import "strings"

// Rule maps a tool name found in a hook failure message to an issue category.
type Rule struct {
	Substring string
	Type      IssueType
	Severity  Severity
}

// HookRules is evaluated top to bottom; every matching rule yields one issue.
var HookRules = []Rule{
	{Substring: "pyright", Type: TypeTypeError, Severity: SeverityHigh},
	{Substring: "bandit", Type: TypeSecurity, Severity: SeverityHigh},
	{Substring: "complexipy", Type: TypeComplexity, Severity: SeverityHigh},
	{Substring: "refurb", Type: TypePerformance, Severity: SeverityMedium},
	{Substring: "vulture", Type: TypeDeadCode, Severity: SeverityMedium},
}

// Match returns the rules whose substring occurs in message, in table order.
// Matching is case-insensitive.
func Match(rules []Rule, message string) []Rule {
	lower := strings.ToLower(message)
	var out []Rule
	for _, r := range rules {
		if strings.Contains(lower, r.Substring) {
			out = append(out, r)
		}
	}
	return out
}
