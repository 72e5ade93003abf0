package dde

import "github.com/sarchlab/ddesim/sim"

// An Actor is a computation that runs in its own process and exchanges timed
// tokens through ports.
type Actor interface {
	sim.Named

	// Fire runs one iteration of the actor.
	Fire(p *Process) error
}

// An Initializer is an actor that prepares itself before the first firing.
type Initializer interface {
	Initialize(p *Process) error
}

// A Postfirer is an actor that decides after each firing whether to continue.
type Postfirer interface {
	Postfire(p *Process) (bool, error)
}

// A WrapUpper is an actor that cleans up when its process ends.
type WrapUpper interface {
	WrapUp(p *Process)
}

// ActorBase provides the name of an actor.
type ActorBase struct {
	name string
}

// NewActorBase creates a new ActorBase.
func NewActorBase(name string) *ActorBase {
	sim.NameMustBeValid(name)
	return &ActorBase{name: name}
}

// Name returns the name of the actor.
func (a *ActorBase) Name() string {
	return a.name
}
