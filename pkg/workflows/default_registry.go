package workflows

import "github.com/affandar/toygres/pkg/engine"

// NewDefaultRegistry builds the engine.Registry the Orchestration Runtime
// dispatches against: every workflow this control plane defines.
func NewDefaultRegistry() *engine.Registry {
	r := engine.NewRegistry()
	r.Register(NameCreateInstance, CreateInstance)
	r.Register(NameDeleteInstance, DeleteInstance)
	r.Register(NameInstanceActor, InstanceActor)
	return r
}
