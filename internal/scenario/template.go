package scenario

import (
	"fmt"
	"regexp"
	"strings"
)

// varPattern matches {{var}} placeholders.
var varPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// Substitute replaces {{var}} placeholders in text. An unknown
// placeholder is an error: a typo in a template must fail plan building,
// not silently weaken the contention.
func Substitute(text string, vars map[string]string) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	var missing []string
	result := varPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := varPattern.FindStringSubmatch(match)[1]
		if val, ok := vars[name]; ok {
			return val
		}
		missing = append(missing, name)
		return match
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("unknown placeholder(s) %v", missing)
	}
	return result, nil
}

// SubstituteMap applies Substitute to every value of a map.
func SubstituteMap(m map[string]string, vars map[string]string) (map[string]string, error) {
	if m == nil {
		return nil, nil
	}
	result := make(map[string]string, len(m))
	for k, v := range m {
		substituted, err := Substitute(v, vars)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		result[k] = substituted
	}
	return result, nil
}
