package systemprompt

import (
	"regexp"

	"github.com/bububa/atomic-orchestrator/components"
)

var placeholderRe = regexp.MustCompile(`\$\{([A-Za-z0-9_.-]+)\}`)

// Expand replaces every ${key} placeholder of text with the matching RunContext fact
func Expand(text string, rc *components.RunContext) (string, error) {
	var missing string
	ret := placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		v, ok := rc.Lookup(key)
		if !ok {
			if missing == "" {
				missing = key
			}
			return m
		}
		return v
	})
	if missing != "" {
		return "", &MissingContextFieldError{Field: missing}
	}
	return ret, nil
}

// ExpandLines expands each line of a directive section
func ExpandLines(lines []string, rc *components.RunContext) ([]string, error) {
	ret := make([]string, 0, len(lines))
	for _, line := range lines {
		v, err := Expand(line, rc)
		if err != nil {
			return nil, err
		}
		ret = append(ret, v)
	}
	return ret, nil
}

// References returns the placeholder keys used by text in order of appearance
func References(text string) []string {
	matches := placeholderRe.FindAllStringSubmatch(text, -1)
	ret := make([]string, 0, len(matches))
	for _, m := range matches {
		ret = append(ret, m[1])
	}
	return ret
}
