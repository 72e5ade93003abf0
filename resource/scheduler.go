package resource

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sarchlab/ddesim/dde"
	"github.com/sarchlab/ddesim/sim"
)

// HookPosExecution marks an execution event. The item is an ExecutionEvent.
var HookPosExecution = &sim.HookPos{Name: "Resource Execution"}

// Director is the part of the director that a scheduler calls back into.
type Director interface {
	CurrentTime() sim.VTimeInSec
	FireAtCurrentTime(actor dde.Actor) error
	ResumeActor(actor dde.Actor) error
}

// A Scheduler arbitrates execution slots among competing actors. Requests
// are posted to the request port bound to each actor, and the actor is
// resumed when the request completes.
type Scheduler struct {
	sim.HookableBase

	name        string
	director    Director
	log         logrus.FieldLogger
	justMonitor bool

	lock              sync.Mutex
	ports             map[string]RequestPort
	requestPorts      map[dde.Actor]string
	attributes        map[dde.Actor]HasExecutionTime
	lastScheduled     map[dde.Actor]sim.VTimeInSec
	executing         map[dde.Actor]bool
	completions       []Completion
	lastActorFinished bool
}

// Name returns the name of the scheduler.
func (s *Scheduler) Name() string {
	return s.name
}

// AddRequestPort makes a request port available for binding.
func (s *Scheduler) AddRequestPort(port RequestPort) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.ports[port.Name()] = port
}

// SetRequestPort binds an actor to the named request port.
func (s *Scheduler) SetRequestPort(actor dde.Actor, portName string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.requestPorts[actor] = portName
}

// SetAttributes sets the resource parameters of an actor. Without
// attributes, an actor that implements HasExecutionTime describes itself.
func (s *Scheduler) SetAttributes(actor dde.Actor, attrs HasExecutionTime) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.attributes[actor] = attrs
}

// Initialize forgets every request before a run.
func (s *Scheduler) Initialize() {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.lastScheduled = make(map[dde.Actor]sim.VTimeInSec)
	s.executing = make(map[dde.Actor]bool)
	s.completions = nil
	s.lastActorFinished = false
}

// Schedule requests an execution slot for the actor. Unless the actor is
// already executing, a request is posted to its request port and the owner
// of the port is fired at the current time.
//
// In monitor mode the actor is not gated and Schedule returns 0. Otherwise
// it returns +Inf and the actor waits until the director resumes it.
func (s *Scheduler) Schedule(
	actor dde.Actor,
	environmentTime, deadline sim.VTimeInSec,
) (sim.VTimeInSec, error) {
	s.emit(s.name, EventStart, environmentTime)
	s.emit(s.name, EventStop, environmentTime)

	s.lock.Lock()
	defer s.lock.Unlock()

	s.lastActorFinished = false

	if s.needsRequestLocked(actor, environmentTime) {
		if err := s.postLocked(actor, environmentTime, deadline); err != nil {
			return 0, err
		}
	}

	if s.justMonitor {
		s.lastActorFinished = true
		return 0, nil
	}

	return sim.Infinity, nil
}

func (s *Scheduler) needsRequestLocked(
	actor dde.Actor,
	environmentTime sim.VTimeInSec,
) bool {
	if !s.executing[actor] {
		return true
	}

	last, scheduled := s.lastScheduled[actor]

	return s.justMonitor && (!scheduled || last != environmentTime)
}

func (s *Scheduler) postLocked(
	actor dde.Actor,
	environmentTime, deadline sim.VTimeInSec,
) error {
	s.lastScheduled[actor] = environmentTime
	s.emit(actor.Name(), EventStart, s.director.CurrentTime())

	portName, bound := s.requestPorts[actor]
	if !bound {
		return dde.NewConfigError(actor.Name(),
			"actor does not have a registered request port")
	}

	port, found := s.ports[portName]
	if !found {
		return dde.NewConfigError(actor.Name(),
			"no request port with name %s", portName)
	}

	req := Request{
		ID:            uuid.NewString(),
		Actor:         actor,
		ExecutionTime: s.executionTimeLocked(actor),
		Priority:      s.priorityLocked(actor),
		Time:          environmentTime,
		Deadline:      deadline,
	}

	if err := port.Post(req); err != nil {
		return err
	}

	if err := s.director.FireAtCurrentTime(port.Owner()); err != nil {
		return err
	}

	s.executing[actor] = true

	s.log.WithFields(logrus.Fields{
		"actor":          actor.Name(),
		"port":           portName,
		"execution_time": req.ExecutionTime,
	}).Debug("resource requested")

	return nil
}

func (s *Scheduler) executionTimeLocked(actor dde.Actor) sim.VTimeInSec {
	var t sim.VTimeInSec

	if attrs, found := s.attributes[actor]; found {
		t = attrs.ExecutionTime()
	} else if attrs, ok := actor.(HasExecutionTime); ok {
		t = attrs.ExecutionTime()
	}

	if t < 0 {
		return 0
	}

	return t
}

func (s *Scheduler) priorityLocked(actor dde.Actor) int {
	if attrs, found := s.attributes[actor]; found {
		if p, ok := attrs.(HasPriority); ok {
			return p.Priority()
		}
	}

	if p, ok := actor.(HasPriority); ok {
		return p.Priority()
	}

	return 0
}

// Complete notifies the scheduler that a request has been served. The actor
// is resumed by the next Postfire.
func (s *Scheduler) Complete(c Completion) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.completions = append(s.completions, c)
}

// Postfire drains the completions and resumes the actors that were served.
func (s *Scheduler) Postfire() error {
	s.lock.Lock()
	completions := s.completions
	s.completions = nil

	for _, c := range completions {
		delete(s.executing, c.Request.Actor)
		s.lastActorFinished = true
	}
	s.lock.Unlock()

	for _, c := range completions {
		s.emit(c.Request.Actor.Name(), EventStop, c.Time)

		if err := s.director.ResumeActor(c.Request.Actor); err != nil {
			return err
		}
	}

	return nil
}

// IsWaitingForResource returns true while the actor is executing on the
// resource.
func (s *Scheduler) IsWaitingForResource(actor dde.Actor) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.executing[actor]
}

// LastScheduledActorFinished returns true if the most recent request has
// been served, or if the scheduler only monitors.
func (s *Scheduler) LastScheduledActorFinished() bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.lastActorFinished
}

// Acquire schedules the actor of the process at its current time and waits
// until the resource has served it.
func Acquire(p *dde.Process, s *Scheduler) error {
	t, err := s.Schedule(p.Actor(), p.CurrentTime(), sim.Infinity)
	if err != nil {
		return err
	}

	if t == sim.Infinity {
		return p.WaitForResume()
	}

	return nil
}

func (s *Scheduler) emit(subject string, t EventType, time sim.VTimeInSec) {
	if s.NumHooks() == 0 {
		return
	}

	s.InvokeHook(sim.HookCtx{
		Domain: s,
		Pos:    HookPosExecution,
		Item: ExecutionEvent{
			Scheduler: s.name,
			Subject:   subject,
			Type:      t,
			Time:      time,
		},
	})
}
