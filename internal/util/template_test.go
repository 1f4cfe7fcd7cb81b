package util

import (
	"reflect"
	"testing"
)

func TestRenderTemplate(t *testing.T) {
	state := map[string]any{
		"name":   "alice",
		"count":  3,
		"nested": map[string]any{"status_code": 200},
	}

	cases := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"hello {{name}}", "hello alice"},
		{"{{count}} items", "3 items"},
		{"{{ name }} spaced", "alice spaced"},
		{"status was {{nested.status_code}}", "status was 200"},
		{"{{missing}} stays", "{{missing}} stays"},
		{"{{nested.missing}} stays", "{{nested.missing}} stays"},
		{"{{name}} and {{name}}", "alice and alice"},
		{"literal }} braces {{", "literal }} braces {{"},
	}

	for _, tc := range cases {
		if got := RenderTemplate(tc.in, state); got != tc.want {
			t.Errorf("RenderTemplate(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRenderInput(t *testing.T) {
	state := map[string]any{"city": "berlin", "temp": 21.5}

	input := map[string]any{
		"url":  "https://api.example.com/{{city}}",
		"body": map[string]any{"message": "temperature is {{temp}}"},
		"tags": []any{"{{city}}", 42},
		"n":    7,
	}

	got := RenderInput(input, state)

	want := map[string]any{
		"url":  "https://api.example.com/berlin",
		"body": map[string]any{"message": "temperature is 21.5"},
		"tags": []any{"berlin", 42},
		"n":    7,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("RenderInput = %+v, want %+v", got, want)
	}

	if input["url"] != "https://api.example.com/{{city}}" {
		t.Error("RenderInput must not mutate its input")
	}
}

func TestRenderInput_Nil(t *testing.T) {
	if RenderInput(nil, map[string]any{"a": 1}) != nil {
		t.Error("nil input should render to nil")
	}
}
