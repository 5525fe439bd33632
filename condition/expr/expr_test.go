package expr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowstate-io/flowstate/instance"
)

func TestEvaluate(t *testing.T) {
	eval := New()
	wctx := instance.Context{"paid": true, "amount": 42}
	data := instance.Context{"region": "eu"}

	cases := []struct {
		cond string
		want bool
	}{
		{"", true},
		{"context.paid == true", true},
		{"context.amount > 100", false},
		{`event.region == "eu"`, true},
		{`context.paid && event.region == "us"`, false},
	}
	for _, tc := range cases {
		got, err := eval.Evaluate(tc.cond, wctx, data)
		require.NoError(t, err, tc.cond)
		require.Equal(t, tc.want, got, tc.cond)
	}
}

func TestEvaluateCompileError(t *testing.T) {
	eval := New()
	ok, err := eval.Evaluate("context.paid ==", nil, nil)
	require.Error(t, err)
	require.False(t, ok, "guards fail closed on bad expressions")
}

func TestEvaluateNonBool(t *testing.T) {
	eval := New()
	ok, err := eval.Evaluate("context.amount", instance.Context{"amount": 3}, nil)
	require.Error(t, err)
	require.False(t, ok)
}

func TestEvaluateUndefinedVariables(t *testing.T) {
	eval := New()
	ok, err := eval.Evaluate("context.missing == true", instance.Context{}, nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestProgramCache(t *testing.T) {
	eval := New()
	for i := 0; i < 3; i++ {
		ok, err := eval.Evaluate("context.paid == true", instance.Context{"paid": true}, nil)
		require.NoError(t, err)
		require.True(t, ok)
	}
	_, cached := eval.programs.Load("context.paid == true")
	require.True(t, cached)
}
