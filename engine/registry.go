package engine

import (
	"sync"

	"github.com/flowstate-io/flowstate/workflow"
)

// registry holds the definition and action executor maps under RWMutexes:
// many concurrent readers (every workflow step reads both), single writers.
// Overwrites are atomic and silent.
type registry struct {
	defsMu sync.RWMutex
	defs   map[string]workflow.Definition

	actionsMu sync.RWMutex
	actions   map[string]Action
}

func newRegistry() *registry {
	return &registry{
		defs:    make(map[string]workflow.Definition),
		actions: make(map[string]Action),
	}
}

func (r *registry) putDefinition(def workflow.Definition) {
	r.defsMu.Lock()
	defer r.defsMu.Unlock()
	r.defs[def.ID] = def
}

func (r *registry) definition(id string) (workflow.Definition, bool) {
	r.defsMu.RLock()
	defer r.defsMu.RUnlock()
	def, ok := r.defs[id]
	return def, ok
}

func (r *registry) putAction(name string, fn Action) {
	r.actionsMu.Lock()
	defer r.actionsMu.Unlock()
	r.actions[name] = fn
}

func (r *registry) action(name string) (Action, bool) {
	r.actionsMu.RLock()
	defer r.actionsMu.RUnlock()
	fn, ok := r.actions[name]
	return fn, ok
}
