package util

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.]*)\s*\}\}`)

// RenderTemplate replaces {{variable}} placeholders in text with values from
// state. Variables may use dot notation to reach into nested maps. Unknown
// variables are left verbatim so payloads carrying literal braces survive
// rendering unchanged.
// This lives in internal to avoid committing to public API stability prematurely.
func RenderTemplate(text string, state map[string]any) string {
	if !strings.Contains(text, "{{") { // fast path: no template markers
		return text
	}

	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		v, ok := lookupPath(state, strings.Split(name, "."))
		if !ok {
			return match
		}
		return fmt.Sprintf("%v", v)
	})
}

// RenderInput returns a copy of input with every string value passed through
// RenderTemplate. Nested maps and slices are walked recursively; non-string
// values are carried over untouched. The input map is never mutated.
func RenderInput(input, state map[string]any) map[string]any {
	if input == nil {
		return nil
	}

	out := make(map[string]any, len(input))
	for k, v := range input {
		out[k] = renderValue(v, state)
	}
	return out
}

func renderValue(v any, state map[string]any) any {
	switch t := v.(type) {
	case string:
		return RenderTemplate(t, state)
	case map[string]any:
		return RenderInput(t, state)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = renderValue(item, state)
		}
		return out
	default:
		return v
	}
}

func lookupPath(state map[string]any, path []string) (any, bool) {
	var current any = state
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
