package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_Valid(t *testing.T) {
	exprs := []string{
		"status_code == 200",
		"a != b",
		"count >= 3 && count < 10",
		"ready == true || override",
		"!(done)",
		"name == 'alice'",
		`name == "bob"`,
		"response.status_code == 200",
		"(a > 1 || b > 2) && c != null",
		"-5 < x",
	}

	for _, src := range exprs {
		_, err := Compile(src)
		assert.NoError(t, err, "expression %q should compile", src)
	}
}

func TestCompile_Invalid(t *testing.T) {
	exprs := []string{
		"",
		"   ",
		"a ==",
		"== 3",
		"a = 3",
		"(a > 1",
		"a && ",
		"a # b",
		"'unterminated",
		"a || || b",
	}

	for _, src := range exprs {
		_, err := Compile(src)
		assert.Error(t, err, "expression %q should not compile", src)
	}
}

func TestExpr_Eval(t *testing.T) {
	vars := map[string]any{
		"status_code": 200,
		"count":       float64(3),
		"ready":       true,
		"name":        "alice",
		"score":       2.5,
		"missing_nil": nil,
		"response": map[string]any{
			"status_code": float64(404),
			"body":        map[string]any{"ok": false},
		},
	}

	tests := []struct {
		src  string
		want bool
	}{
		{"status_code == 200", true},
		{"status_code != 200", false},
		{"status_code == 404", false},
		{"count < 10", true},
		{"count <= 3", true},
		{"count > 3", false},
		{"count >= 3", true},
		{"ready", true},
		{"!ready", false},
		{"ready && count == 3", true},
		{"ready && count == 4", false},
		{"ready || count == 4", true},
		{"name == 'alice'", true},
		{"name == 'bob'", false},
		{"name < 'bob'", true},
		{"score > 2", true},
		{"missing_nil == null", true},
		{"response.status_code == 404", true},
		{"response.body.ok == false", true},
		{"(status_code == 200 && ready) || name == 'bob'", true},
		{"status_code == 200 && (ready || name == 'bob')", true},
	}

	for _, tt := range tests {
		expr, err := Compile(tt.src)
		require.NoError(t, err, "expression %q", tt.src)

		got, err := expr.Eval(vars)
		require.NoError(t, err, "expression %q", tt.src)
		assert.Equal(t, tt.want, got, "expression %q", tt.src)
	}
}

func TestExpr_Eval_IntAndFloatCompareEqual(t *testing.T) {
	expr, err := Compile("status_code == 200")
	require.NoError(t, err)

	for _, v := range []any{200, int64(200), float64(200), uint(200)} {
		got, err := expr.Eval(map[string]any{"status_code": v})
		require.NoError(t, err)
		assert.True(t, got, "status_code of type %T should equal 200", v)
	}
}

func TestExpr_Eval_UnknownVariable(t *testing.T) {
	expr, err := Compile("does_not_exist == 1")
	require.NoError(t, err)

	_, err = expr.Eval(map[string]any{"other": 1})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown variable")
}

func TestExpr_Eval_UnknownNestedVariable(t *testing.T) {
	expr, err := Compile("response.missing == 1")
	require.NoError(t, err)

	_, err = expr.Eval(map[string]any{"response": map[string]any{"present": 1}})
	assert.Error(t, err)
}

func TestExpr_Eval_TypeErrors(t *testing.T) {
	vars := map[string]any{"name": "alice", "count": 3}

	tests := []string{
		"name",           // top-level non-boolean
		"name < 3",       // string vs number ordering
		"name && count",  // non-boolean operands
		"!name",          // non-boolean negation
		"count || count", // non-boolean operands
	}

	for _, src := range tests {
		expr, err := Compile(src)
		require.NoError(t, err, "expression %q", src)

		_, err = expr.Eval(vars)
		assert.Error(t, err, "expression %q should fail evaluation", src)
	}
}

func TestExpr_Eval_ShortCircuit(t *testing.T) {
	// The right operand references an unknown variable; short-circuiting
	// must keep it untouched.
	expr, err := Compile("ready || missing == 1")
	require.NoError(t, err)

	got, err := expr.Eval(map[string]any{"ready": true})
	require.NoError(t, err)
	assert.True(t, got)

	expr, err = Compile("!ready && missing == 1")
	require.NoError(t, err)

	got, err = expr.Eval(map[string]any{"ready": true})
	require.NoError(t, err)
	assert.False(t, got)
}

func TestExpr_String(t *testing.T) {
	src := "status_code == 200"
	expr, err := Compile(src)
	require.NoError(t, err)
	assert.Equal(t, src, expr.String())
}
