package workflow

import "time"

type (
	// Builder assembles a Definition incrementally and validates it on Build.
	// It exists for callers composing definitions in code; loading from YAML
	// or writing a struct literal plus Validate are equally supported.
	Builder struct {
		def Definition
	}

	// StateOption configures an individual state added via Builder.State.
	StateOption func(*State)

	// TransitionOption configures a transition added via Builder.Transition.
	TransitionOption func(*Transition)
)

// NewBuilder starts a definition with the given id and name. The first state
// added becomes the initial state unless Initial overrides it.
func NewBuilder(id, name string) *Builder {
	return &Builder{def: Definition{ID: id, Name: name}}
}

// Description sets the workflow description.
func (b *Builder) Description(desc string) *Builder {
	b.def.Description = desc
	return b
}

// Initial overrides the initial state. By default the first added state is
// the entry point.
func (b *Builder) Initial(state string) *Builder {
	b.def.InitialState = state
	return b
}

// Timeout declares the workflow-level timeout.
func (b *Builder) Timeout(d time.Duration) *Builder {
	b.def.Timeout = d
	return b
}

// State appends a state in declaration order.
func (b *Builder) State(name string, kind Kind, opts ...StateOption) *Builder {
	s := State{Name: name, Kind: kind}
	for _, opt := range opts {
		opt(&s)
	}
	if b.def.InitialState == "" {
		b.def.InitialState = name
	}
	b.def.States = append(b.def.States, s)
	return b
}

// Transition appends a transition in declaration order. Order matters: the
// engine picks the first matching transition for a (state, event) pair.
func (b *Builder) Transition(from, to, event string, opts ...TransitionOption) *Builder {
	t := Transition{From: from, To: to, Event: event}
	for _, opt := range opts {
		opt(&t)
	}
	b.def.Transitions = append(b.def.Transitions, t)
	return b
}

// Build validates the assembled definition and returns it. The returned
// Definition is a value; callers may register it with any number of engines.
func (b *Builder) Build() (Definition, error) {
	if err := Validate(b.def); err != nil {
		return Definition{}, err
	}
	return b.def, nil
}

// WithAction names the executor invoked when the state is entered.
func WithAction(name string) StateOption {
	return func(s *State) { s.Action = name }
}

// WithCompensation names the executor that undoes the state's action during
// saga rollback.
func WithCompensation(name string) StateOption {
	return func(s *State) { s.Compensation = name }
}

// WithStateTimeout declares a per-state timeout.
func WithStateTimeout(d time.Duration) StateOption {
	return func(s *State) { s.Timeout = d }
}

// WithCondition guards the transition with an opaque condition expression.
// The engine's default evaluator rejects non-empty conditions; install a
// condition evaluator (for example condition/expr) to make guards pass.
func WithCondition(cond string) TransitionOption {
	return func(t *Transition) { t.Condition = cond }
}
