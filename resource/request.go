package resource

import (
	"github.com/sarchlab/ddesim/dde"
	"github.com/sarchlab/ddesim/sim"
)

// A Request asks a resource to execute an actor for a while.
type Request struct {
	ID            string
	Actor         dde.Actor
	ExecutionTime sim.VTimeInSec
	Priority      int
	Time          sim.VTimeInSec
	Deadline      sim.VTimeInSec
}

// A Completion tells the scheduler that a request has been served.
type Completion struct {
	Request Request
	Time    sim.VTimeInSec
}

// A RequestPort receives the requests of the actors bound to it.
type RequestPort interface {
	sim.Named

	// Owner returns the actor that serves the requests.
	Owner() dde.Actor

	// Post hands a request to the owner. It never blocks.
	Post(req Request) error
}

// EventType is the kind of an execution event.
type EventType int

// The execution events a scheduler emits.
const (
	EventStart EventType = iota
	EventStop
	EventPreempted
)

func (t EventType) String() string {
	switch t {
	case EventStart:
		return "START"
	case EventStop:
		return "STOP"
	case EventPreempted:
		return "PREEMPTED"
	}

	return "UNKNOWN"
}

// An ExecutionEvent records when a scheduler or an actor starts or stops
// executing.
type ExecutionEvent struct {
	Scheduler string
	Subject   string
	Type      EventType
	Time      sim.VTimeInSec
}
