package ttlexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/trustkit/pkg/errors"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want int
	}{
		{name: "fifteen days", expr: "15 * 24 * 60 * 60", want: 1296000},
		{name: "multiplication binds tighter", expr: "10+2*3", want: 16},
		{name: "division truncates", expr: "8/3", want: 2},
		{name: "single number", expr: "3600", want: 3600},
		{name: "zero", expr: "0", want: 0},
		{name: "subtraction", expr: "10 - 4 - 3", want: 3},
		{name: "left to right division", expr: "100 / 10 / 5", want: 2},
		{name: "mixed precedence", expr: "2*3 + 4*5 - 6/2", want: 23},
		{name: "negative truncates toward zero", expr: "1 - 7/2", want: -2},
		{name: "surrounding blanks", expr: "  60 * 60  ", want: 3600},
		{name: "tabs", expr: "60\t*\t2", want: 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_Errors(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{name: "empty", expr: ""},
		{name: "blank", expr: "   "},
		{name: "leading minus", expr: "-5"},
		{name: "leading plus", expr: "+5"},
		{name: "trailing operator", expr: "5 *"},
		{name: "double operator", expr: "5 * / 2"},
		{name: "parentheses", expr: "(1+2)*3"},
		{name: "letters", expr: "15d"},
		{name: "split number", expr: "1 2"},
		{name: "division by zero", expr: "10 / 0"},
		{name: "division by zero product", expr: "10 / 0 * 3"},
		{name: "overflow literal", expr: "99999999999999999999"},
		{name: "overflow product", expr: "4294967296 * 4294967296"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(tt.expr)
			require.Error(t, err)
			assert.True(t, errors.IsConfigurationError(err), "got %v", err)
		})
	}
}

func TestEvaluate_DivisionByZeroMetadata(t *testing.T) {
	_, err := Evaluate("1/0")
	require.Error(t, err)

	te, ok := errors.AsTrustError(err)
	require.True(t, ok)
	assert.Equal(t, "1/0", te.Metadata()["expression"])
	assert.Contains(t, err.Error(), "division by zero")
}

