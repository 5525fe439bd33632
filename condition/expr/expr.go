// Package expr provides a condition.Evaluator backed by expr-lang/expr.
// Guard expressions see two variables: "context" (the instance context) and
// "event" (the event data), e.g. `context.paid == true && event.amount > 0`.
//
// Compiled programs are cached per expression string, so repeated evaluation
// of the same guard across instances pays compilation once.
package expr

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/flowstate-io/flowstate/instance"
)

// Evaluator evaluates transition guards as expr-lang boolean expressions.
// Safe for concurrent use. The zero value is ready to use.
type Evaluator struct {
	programs sync.Map // expression string -> *vm.Program
}

// New returns an expression evaluator with an empty program cache.
func New() *Evaluator {
	return &Evaluator{}
}

// Evaluate compiles (or reuses) the expression and runs it against the
// context and event data. An empty condition always passes, matching the
// engine's default semantics for unguarded transitions. Compile and runtime
// errors are returned to the caller for logging; the boolean result is false
// in both cases so guarded transitions fail closed.
func (e *Evaluator) Evaluate(cond string, wctx instance.Context, eventData instance.Context) (bool, error) {
	if cond == "" {
		return true, nil
	}
	program, err := e.program(cond)
	if err != nil {
		return false, err
	}
	env := map[string]any{
		"context": map[string]any(wctx),
		"event":   map[string]any(eventData),
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate condition %q: %w", cond, err)
	}
	ok, isBool := out.(bool)
	if !isBool {
		return false, fmt.Errorf("condition %q evaluated to %T, want bool", cond, out)
	}
	return ok, nil
}

func (e *Evaluator) program(cond string) (*vm.Program, error) {
	if cached, ok := e.programs.Load(cond); ok {
		return cached.(*vm.Program), nil
	}
	program, err := expr.Compile(cond, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile condition %q: %w", cond, err)
	}
	e.programs.Store(cond, program)
	return program, nil
}
