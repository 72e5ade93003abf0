package resource

import "github.com/sarchlab/ddesim/sim"

// HasExecutionTime is implemented by anything that knows how long an actor
// occupies a resource.
type HasExecutionTime interface {
	ExecutionTime() sim.VTimeInSec
}

// HasPriority is implemented by anything that knows how urgent an actor's
// requests are. Higher numbers are served first.
type HasPriority interface {
	Priority() int
}

// Attributes are the resource parameters of one actor.
type Attributes struct {
	Execution sim.VTimeInSec
	Urgency   int
}

// ExecutionTime returns the time the actor occupies the resource.
func (a Attributes) ExecutionTime() sim.VTimeInSec {
	return a.Execution
}

// Priority returns the urgency of the actor's requests.
func (a Attributes) Priority() int {
	return a.Urgency
}
