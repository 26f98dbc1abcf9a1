package prompt

import (
	"fmt"
	"strings"

	"github.com/lucasnoah/hookforge/internal/issues"
)

// FixTemplate is the name of the built-in fix prompt.
const FixTemplate = "fix.md"

var builtin = map[string]string{
	FixTemplate: fixTemplate,
}

const fixTemplate = `# Fix quality issues in {{project}}

Working in: {{root}}

The automated quality run found the problems below. Fix each one in the
source, without disabling the check that reported it.

## Issues
{{issue_list}}
{{#if test_failures}}

## Failing tests
{{test_failures}}
{{/if}}

## Reporting
When done, print a single JSON object on the last line of output:
{"success": true|false, "fixes_applied": ["..."], "remaining_issues": [], "confidence": 0.0-1.0}
Describe each applied fix in one line, naming the test or tool it addresses.
`

// FixVars builds the variables of the fix template.
func FixVars(project, root string, found []issues.Issue) Vars {
	var list, tests strings.Builder
	for _, is := range found {
		fmt.Fprintf(&list, "- [%s/%s] %s (%s): %s\n", is.Type, is.Severity, is.ID, is.Stage, firstLine(is.Message))
		if is.Type == issues.TypeTestFailure {
			fmt.Fprintf(&tests, "- %s\n", is.Message)
		}
	}
	return Vars{
		"project":       project,
		"root":          root,
		"issue_list":    strings.TrimRight(list.String(), "\n"),
		"test_failures": strings.TrimRight(tests.String(), "\n"),
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
