// Package condition defines the transition guard evaluator port. The engine
// consults an Evaluator for every candidate transition; a transition with no
// condition always passes, and the default evaluator deliberately rejects
// everything else so that guarded transitions fail closed until a real
// evaluator (for example condition/expr) is installed.
package condition

import (
	"github.com/flowstate-io/flowstate/instance"
)

type (
	// Evaluator decides whether a transition guard holds for the given
	// instance context and event data. Implementations must never panic on
	// unrecognized expressions; they return false (optionally with an error
	// for logging) and the engine surfaces the miss as a no-transition
	// problem.
	Evaluator interface {
		Evaluate(cond string, wctx instance.Context, eventData instance.Context) (bool, error)
	}

	// Func adapts a plain function to the Evaluator interface.
	Func func(cond string, wctx instance.Context, eventData instance.Context) (bool, error)

	// Default is the engine's built-in evaluator: empty conditions pass,
	// non-empty conditions are rejected. Guard expressions therefore have no
	// effect until an evaluator that understands them is configured.
	Default struct{}
)

// Evaluate implements Evaluator.
func (f Func) Evaluate(cond string, wctx instance.Context, eventData instance.Context) (bool, error) {
	return f(cond, wctx, eventData)
}

// Evaluate returns true for empty conditions and false otherwise.
func (Default) Evaluate(cond string, _ instance.Context, _ instance.Context) (bool, error) {
	return cond == "", nil
}
