// Package workflows holds the three durable orchestrations the control
// plane is built around: CreateInstance, DeleteInstance, and the
// continuously-running InstanceActor. Each is an ordinary Go function
// composed entirely from engine.OrchestrationContext's primitives, so the
// Orchestration Runtime can replay it deterministically.
package workflows

// Stable workflow names, scheduled by the engine.Registry and referenced
// by engine.OrchestrationContext.CallSubOrchestration.
const (
	NameCreateInstance = "create-instance"
	NameDeleteInstance = "delete-instance"
	NameInstanceActor  = "instance-actor"
)

// EventInstanceDeleted is the external event DeleteInstance raises to wake
// a draining InstanceActor, per spec.md §4.5.2 step 4 / §4.5.3 step 7.
const EventInstanceDeleted = "InstanceDeleted"
