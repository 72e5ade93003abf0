package dde

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/ddesim/sim"
)

// HookPosFireStart marks the start of a firing. The item is the actor.
var HookPosFireStart = &sim.HookPos{Name: "Fire Start"}

// HookPosFireEnd marks the end of a firing. The item is the actor.
var HookPosFireEnd = &sim.HookPos{Name: "Fire End"}

// A Process runs one actor in its own goroutine.
type Process struct {
	sim.HookableBase

	actor    Actor
	director *Director
	keeper   *TimeKeeper
	inputs   []*Port
	outputs  []*Port
	log      logrus.FieldLogger

	iterations atomic.Uint64
	done       atomic.Bool
}

func newProcess(actor Actor, director *Director) *Process {
	return &Process{
		actor:    actor,
		director: director,
		keeper:   NewTimeKeeper(actor.Name()),
		log:      director.log.WithField("actor", actor.Name()),
	}
}

// Name returns the name of the actor.
func (p *Process) Name() string {
	return p.actor.Name()
}

// Actor returns the actor that the process runs.
func (p *Process) Actor() Actor {
	return p.actor
}

// Director returns the director that coordinates the process.
func (p *Process) Director() *Director {
	return p.director
}

// Keeper returns the time keeper of the actor.
func (p *Process) Keeper() *TimeKeeper {
	return p.keeper
}

// Inputs returns the input ports of the actor.
func (p *Process) Inputs() []*Port {
	return p.inputs
}

// Outputs returns the output ports of the actor.
func (p *Process) Outputs() []*Port {
	return p.outputs
}

// CurrentTime returns the local time of the actor.
func (p *Process) CurrentTime() sim.VTimeInSec {
	return p.keeper.CurrentTime()
}

// Iterations returns the number of completed firings.
func (p *Process) Iterations() uint64 {
	return p.iterations.Load()
}

// IsDone returns true if the process has ended.
func (p *Process) IsDone() bool {
	return p.done.Load()
}

// NextInput waits until one of the input receivers holds the event the actor
// must process next and removes it.
func (p *Process) NextInput() (*Receiver, TimedEvent, error) {
	for {
		p.keeper.ResortReceivers()

		receivers := p.keeper.SortedReceivers()
		if len(receivers) == 0 {
			return nil, TimedEvent{}, NewConfigError(p.Name(),
				"actor has no input to read from")
		}

		for _, r := range receivers {
			ok, err := r.HasToken()
			if err != nil {
				return nil, TimedEvent{}, err
			}

			if !ok {
				continue
			}

			evt, err := r.Get()

			return r, evt, err
		}
	}
}

// Send puts a token into every receiver connected to the output port, at the
// output time of the actor.
func (p *Process) Send(port *Port, token Token) error {
	return p.SendAt(port, token, p.keeper.OutputTime())
}

// SendAt puts a token into every receiver connected to the output port, at
// time t. Receivers already closed with Inactive are skipped.
func (p *Process) SendAt(port *Port, token Token, t sim.VTimeInSec) error {
	port.mustBeOutputOf(p)

	for _, r := range port.remotes {
		if r.LastTime() == Inactive {
			continue
		}

		if err := r.Put(token, t); err != nil {
			return err
		}
	}

	return nil
}

// FireAt requests a firing at time t.
func (p *Process) FireAt(t sim.VTimeInSec) error {
	return p.director.FireAt(p.actor, t)
}

// WaitForFiring blocks until the director grants a firing request and
// returns the granted time. The actor advances to that time.
func (p *Process) WaitForFiring() (sim.VTimeInSec, error) {
	t, err := p.director.waitForFiring(p)
	if err != nil {
		return 0, err
	}

	p.keeper.advanceTo(t)

	return t, nil
}

// WaitUntil requests a firing at t and blocks until the clock reaches it.
func (p *Process) WaitUntil(t sim.VTimeInSec) error {
	if err := p.FireAt(t); err != nil {
		return err
	}

	for {
		granted, err := p.WaitForFiring()
		if err != nil {
			return err
		}

		if granted >= t {
			return nil
		}
	}
}

// WaitForResume blocks until the director resumes the actor after a resource
// grant. The actor advances to the global time.
func (p *Process) WaitForResume() error {
	if err := p.director.waitForResume(p); err != nil {
		return err
	}

	p.keeper.advanceTo(p.director.CurrentTime())

	return nil
}

// IsWaitingForResume returns true if the actor waits for a resource.
func (p *Process) IsWaitingForResume() bool {
	return p.director.isWaitingForResume(p)
}

func (p *Process) initialize() error {
	p.keeper.Reset()
	p.iterations.Store(0)
	p.done.Store(false)

	if i, ok := p.actor.(Initializer); ok {
		if err := i.Initialize(p); err != nil {
			return fmt.Errorf("actor %s: %w", p.Name(), err)
		}
	}

	return nil
}

func (p *Process) run() error {
	err := errTerminatedOrNil(p.loop())

	if w, ok := p.actor.(WrapUpper); ok {
		w.WrapUp(p)
	}

	p.finishInputs()
	p.notifyTermination()
	p.done.Store(true)
	p.director.processExited(p)

	if err != nil {
		p.log.WithError(err).Error("actor failed")
		p.director.Terminate()

		return fmt.Errorf("actor %s: %w", p.Name(), err)
	}

	p.log.WithField("iterations", p.Iterations()).Debug("actor finished")

	return nil
}

func (p *Process) loop() error {
	postfirer, hasPostfire := p.actor.(Postfirer)

	for {
		p.invoke(HookPosFireStart)
		err := p.actor.Fire(p)
		p.invoke(HookPosFireEnd)

		if err != nil {
			return err
		}

		p.keeper.UpdateIgnoredReceivers()
		p.iterations.Add(1)

		if !hasPostfire {
			continue
		}

		cont, err := postfirer.Postfire(p)
		if err != nil {
			return err
		}

		if !cont {
			return nil
		}
	}
}

// finishInputs stops the writers of the actor's receivers.
func (p *Process) finishInputs() {
	for _, r := range p.keeper.Inputs() {
		r.RequestFinish()
	}
}

// notifyTermination closes every downstream receiver with an Inactive event.
func (p *Process) notifyTermination() {
	for _, port := range p.outputs {
		for _, r := range port.remotes {
			if r.LastTime() == Inactive {
				continue
			}

			if err := r.Put(NullToken, Inactive); err != nil {
				p.log.WithError(err).
					WithField("receiver", r.Name()).
					Debug("termination notice not delivered")
			}
		}
	}
}

func (p *Process) invoke(pos *sim.HookPos) {
	if p.NumHooks() == 0 {
		return
	}

	p.InvokeHook(sim.HookCtx{
		Domain: p,
		Pos:    pos,
		Item:   p.actor,
		Detail: p.Iterations(),
	})
}
