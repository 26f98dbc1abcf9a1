// Package prompt renders the instructions handed to the fixer agent.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	varRe    = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)
	ifOpenRe = regexp.MustCompile(`\{\{#if\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)
)

const ifClose = "{{/if}}"

// Vars maps template variable names to values.
type Vars map[string]string

// Render expands tmpl. {{name}} is replaced by its value and every referenced
// variable must be present. {{#if name}}...{{/if}} keeps its body only when
// name is set and non-empty; blocks may nest.
func Render(tmpl string, vars Vars) (string, error) {
	body, err := expandConditionals(tmpl, vars)
	if err != nil {
		return "", err
	}

	var missing []string
	out := varRe.ReplaceAllStringFunc(body, func(match string) string {
		name := varRe.FindStringSubmatch(match)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		missing = append(missing, name)
		return match
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// expandConditionals resolves the innermost block first: the last opening tag
// before the first closing tag.
func expandConditionals(tmpl string, vars Vars) (string, error) {
	s := tmpl
	for {
		end := strings.Index(s, ifClose)
		if end < 0 {
			break
		}
		opens := ifOpenRe.FindAllStringSubmatchIndex(s[:end], -1)
		if len(opens) == 0 {
			return "", fmt.Errorf("{{/if}} without matching {{#if}}")
		}
		open := opens[len(opens)-1]
		name := s[open[2]:open[3]]

		keep := ""
		if vars[name] != "" {
			keep = s[open[1]:end]
		}
		s = s[:open[0]] + keep + s[end+len(ifClose):]
	}
	if loc := ifOpenRe.FindString(s); loc != "" {
		return "", fmt.Errorf("unclosed conditional block: %s", loc)
	}
	return s, nil
}

// Load returns the template override at <root>/.hookforge/templates/<name> if
// it exists, otherwise the built-in template of that name.
func Load(root, name string) (string, error) {
	if filepath.Base(name) != name {
		return "", fmt.Errorf("template name %q must not contain a path", name)
	}
	if root != "" {
		data, err := os.ReadFile(filepath.Join(root, ".hookforge", "templates", name))
		if err == nil {
			return string(data), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("read template override: %w", err)
		}
	}
	tmpl, ok := builtin[name]
	if !ok {
		return "", fmt.Errorf("unknown template %q", name)
	}
	return tmpl, nil
}
