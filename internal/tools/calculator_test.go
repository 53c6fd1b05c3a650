package tools

import (
	"testing"

	dispatch "github.com/ZanzyTHEbar/dispatch-agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	var testCases = []struct {
		description string
		expr        string
		expect      float64
	}{
		{description: "percent of", expr: "15% of 640", expect: 96},
		{description: "compute lead-in", expr: "Compute: (125 * 6) - 50", expect: 700},
		{description: "plain expression", expr: "(125 * 6) - 50", expect: 700},
		{description: "question form", expr: "what is 3 + 4?", expect: 7},
		{description: "trailing equals", expr: "2 * 21 =", expect: 42},
		{description: "true division", expr: "7 / 2", expect: 3.5},
		{description: "floor division", expr: "7 // 2", expect: 3},
		{description: "negative floor division", expr: "-7 // 2", expect: -4},
		{description: "modulo", expr: "10 % 3", expect: 1},
		{description: "modulo takes divisor sign", expr: "-7 % 3", expect: 2},
		{description: "power", expr: "2 ** 10", expect: 1024},
		{description: "power is right associative", expr: "2 ** 3 ** 2", expect: 512},
		{description: "power binds tighter than unary minus", expr: "-2 ** 2", expect: -4},
		{description: "negative exponent", expr: "2 ** -1", expect: 0.5},
		{description: "unary plus", expr: "+5 - -3", expect: 8},
		{description: "precedence", expr: "2 + 3 * 4", expect: 14},
		{description: "nested parentheses", expr: "((1 + 2) * (3 + 4))", expect: 21},
		{description: "decimals", expr: "0.5 + .25", expect: 0.75},
		{description: "bare percentage", expr: "50%", expect: 0.5},
	}

	for _, testCase := range testCases {
		actual, err := Evaluate(testCase.expr)
		require.NoError(t, err, testCase.description)
		assert.InDelta(t, testCase.expect, actual, 1e-9, testCase.description)
	}
}

func TestEvaluate_Rejects(t *testing.T) {
	var testCases = []struct {
		description string
		expr        string
	}{
		{description: "empty", expr: ""},
		{description: "only lead-in", expr: "Compute:"},
		{description: "identifier", expr: "x + 1"},
		{description: "function call", expr: "pow(2, 3)"},
		{description: "code injection", expr: "__import__('os').system('ls')"},
		{description: "dangling operator", expr: "2 +"},
		{description: "unbalanced open", expr: "(1 + 2"},
		{description: "unbalanced close", expr: "1 + 2)"},
		{description: "malformed number", expr: "1.2.3 + 1"},
		{description: "comparison", expr: "1 < 2"},
		{description: "division by zero", expr: "1 / 0"},
		{description: "floor division by zero", expr: "1 // 0"},
		{description: "modulo by zero", expr: "1 % 0"},
		{description: "zero to negative power", expr: "0 ** -1"},
		{description: "conjunction", expr: "(125 * 6) - 50 and 15% of 640"},
	}

	for _, testCase := range testCases {
		_, err := Evaluate(testCase.expr)
		require.Error(t, err, testCase.description)
		assert.True(t, dispatch.IsPermanent(err), "%s: expected validation error, got %v", testCase.description, err)
	}
}

func TestCanonicalize(t *testing.T) {
	out, err := Canonicalize("7 // 2 + 3 % 2")
	require.NoError(t, err)
	assert.Equal(t, "(floordiv(7, 2) + mod(3, 2))", out)

	out, err = Canonicalize("15% of 640")
	require.NoError(t, err)
	assert.Equal(t, "(div(((15) * (640)), 100))", out)
}
