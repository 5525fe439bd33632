package workflow

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

type (
	yamlDefinition struct {
		ID           string           `yaml:"id"`
		Name         string           `yaml:"name"`
		Description  string           `yaml:"description"`
		InitialState string           `yaml:"initial_state"`
		Timeout      string           `yaml:"timeout"`
		States       []yamlState      `yaml:"states"`
		Transitions  []yamlTransition `yaml:"transitions"`
	}

	yamlState struct {
		Name         string `yaml:"name"`
		Kind         string `yaml:"kind"`
		Action       string `yaml:"action"`
		Compensation string `yaml:"compensation"`
		Timeout      string `yaml:"timeout"`
	}

	yamlTransition struct {
		From      string `yaml:"from"`
		To        string `yaml:"to"`
		Event     string `yaml:"event"`
		Condition string `yaml:"condition"`
	}
)

// ParseYAML decodes a workflow definition from a YAML document and validates
// it. Durations are Go duration strings ("30s", "5m"); an omitted kind
// defaults to TASK. Declaration order of states and transitions in the
// document is preserved, which matters for transition tie-breaking.
//
// Example:
//
//	id: order-fulfillment
//	name: Order fulfillment
//	initial_state: reserve
//	states:
//	  - name: reserve
//	    kind: TASK
//	    action: reserve-stock
//	    compensation: release-stock
//	  - name: shipped
//	    kind: END
//	transitions:
//	  - from: reserve
//	    to: shipped
//	    event: ship
func ParseYAML(data []byte) (Definition, error) {
	var doc yamlDefinition
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Definition{}, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	def := Definition{
		ID:           doc.ID,
		Name:         doc.Name,
		Description:  doc.Description,
		InitialState: doc.InitialState,
	}
	var err error
	if def.Timeout, err = parseDuration(doc.Timeout); err != nil {
		return Definition{}, fmt.Errorf("%w: workflow timeout: %w", ErrInvalidDefinition, err)
	}

	for _, s := range doc.States {
		kind := Kind(s.Kind)
		if s.Kind == "" {
			kind = KindTask
		}
		st := State{
			Name:         s.Name,
			Kind:         kind,
			Action:       s.Action,
			Compensation: s.Compensation,
		}
		if st.Timeout, err = parseDuration(s.Timeout); err != nil {
			return Definition{}, fmt.Errorf("%w: state %q timeout: %w", ErrInvalidDefinition, s.Name, err)
		}
		def.States = append(def.States, st)
	}
	if def.InitialState == "" && len(def.States) > 0 {
		def.InitialState = def.States[0].Name
	}

	for _, t := range doc.Transitions {
		def.Transitions = append(def.Transitions, Transition{
			From:      t.From,
			To:        t.To,
			Event:     t.Event,
			Condition: t.Condition,
		})
	}

	if err := Validate(def); err != nil {
		return Definition{}, err
	}
	return def, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
