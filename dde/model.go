package dde

import (
	"context"
	"fmt"
	"log"

	"github.com/sarchlab/ddesim/sim"
)

// PortDirection tells whether a port receives or sends tokens.
type PortDirection int

// The directions of a port.
const (
	InputPort PortDirection = iota
	OutputPort
)

func (d PortDirection) String() string {
	if d == InputPort {
		return "input"
	}

	return "output"
}

// A Port is a named input or output of an actor.
type Port struct {
	name      string
	process   *Process
	direction PortDirection
	receivers []*Receiver
	remotes   []*Receiver
}

// Name returns the full name of the port.
func (p *Port) Name() string {
	return p.name
}

// Direction returns whether the port is an input or an output.
func (p *Port) Direction() PortDirection {
	return p.direction
}

// Process returns the process of the actor that owns the port.
func (p *Port) Process() *Process {
	return p.process
}

// Receivers returns the receivers of an input port.
func (p *Port) Receivers() []*Receiver {
	return p.receivers
}

// Remotes returns the receivers an output port writes to.
func (p *Port) Remotes() []*Receiver {
	return p.remotes
}

func (p *Port) mustBe(direction PortDirection) {
	if p.direction != direction {
		log.Panicf("port %s is an %s port, not an %s port",
			p.name, p.direction, direction)
	}
}

func (p *Port) mustBeOutputOf(proc *Process) {
	p.mustBe(OutputPort)

	if p.process != proc {
		log.Panicf("port %s does not belong to actor %s", p.name, proc.Name())
	}
}

// A BoundaryInput feeds a model from outside. Reads blocked on it count as
// external blocks, so the director waits for it instead of terminating.
type BoundaryInput struct {
	name     string
	receiver *Receiver
}

// Name returns the name of the boundary input.
func (b *BoundaryInput) Name() string {
	return b.name
}

// Receiver returns the receiver that the boundary input feeds.
func (b *BoundaryInput) Receiver() *Receiver {
	return b.receiver
}

// Put sends a token into the model at time t. It blocks while the receiver
// is full.
func (b *BoundaryInput) Put(token Token, t sim.VTimeInSec) error {
	return b.receiver.Put(token, t)
}

// Close tells the model that no more tokens will arrive.
func (b *BoundaryInput) Close() error {
	return b.receiver.Put(NullToken, Inactive)
}

// A Model is a set of actors connected through ports and coordinated by one
// director.
type Model struct {
	name       string
	director   *Director
	capacity   int
	processes  map[string]*Process
	ports      map[string]*Port
	boundaries []*BoundaryInput
}

// NewModel creates an empty model run by the director. Receivers created by
// Connect hold capacity events.
func NewModel(name string, director *Director, capacity int) *Model {
	sim.NameMustBeValid(name)

	if capacity <= 0 {
		log.Panicf("model %s must have a positive receiver capacity", name)
	}

	return &Model{
		name:      name,
		director:  director,
		capacity:  capacity,
		processes: make(map[string]*Process),
		ports:     make(map[string]*Port),
	}
}

// Name returns the name of the model.
func (m *Model) Name() string {
	return m.name
}

// Director returns the director of the model.
func (m *Model) Director() *Director {
	return m.director
}

// AddActor registers an actor and creates its process.
func (m *Model) AddActor(a Actor) *Process {
	if _, found := m.processes[a.Name()]; found {
		log.Panicf("actor %s is already part of model %s", a.Name(), m.name)
	}

	p := newProcess(a, m.director)
	m.processes[a.Name()] = p
	m.director.addProcess(p)

	return p
}

// Process returns the process of the named actor, or nil.
func (m *Model) Process(name string) *Process {
	return m.processes[name]
}

// Port returns the port with the given full name, or nil.
func (m *Model) Port(name string) *Port {
	return m.ports[name]
}

// AddInput creates an input port on an actor.
func (m *Model) AddInput(a Actor, name string) *Port {
	return m.addPort(a, name, InputPort)
}

// AddOutput creates an output port on an actor.
func (m *Model) AddOutput(a Actor, name string) *Port {
	return m.addPort(a, name, OutputPort)
}

func (m *Model) addPort(a Actor, name string, direction PortDirection) *Port {
	p := m.mustFindProcess(a)
	fullName := sim.BuildName(a.Name(), name)
	sim.NameMustBeValid(fullName)

	if existing, found := m.ports[fullName]; found {
		log.Panicf("port %s is ambiguous, it is already an %s port",
			fullName, existing.direction)
	}

	port := &Port{
		name:      fullName,
		process:   p,
		direction: direction,
	}
	m.ports[fullName] = port

	if direction == InputPort {
		p.inputs = append(p.inputs, port)
	} else {
		p.outputs = append(p.outputs, port)
	}

	return port
}

func (m *Model) mustFindProcess(a Actor) *Process {
	p, found := m.processes[a.Name()]
	if !found || p.actor != a {
		log.Panicf("actor %s is not part of model %s", a.Name(), m.name)
	}

	return p
}

// Connect creates a receiver on the input port that the output port writes
// to.
func (m *Model) Connect(out, in *Port) *Receiver {
	out.mustBe(OutputPort)

	r := m.newReceiver(in)
	out.remotes = append(out.remotes, r)
	out.process.keeper.AddOutput(r)

	return r
}

// AddBoundaryInput creates a receiver on the input port that is fed from
// outside of the model.
func (m *Model) AddBoundaryInput(name string, in *Port) *BoundaryInput {
	sim.NameMustBeValid(name)

	r := m.newReceiver(in)
	r.SetBoundary(true)

	b := &BoundaryInput{name: name, receiver: r}
	m.boundaries = append(m.boundaries, b)

	return b
}

func (m *Model) newReceiver(in *Port) *Receiver {
	in.mustBe(InputPort)

	name := sim.BuildNameWithIndex(in.name, "Receiver", len(in.receivers))
	r := NewReceiver(name, m.capacity, m.director, in.process.keeper)
	r.port = in

	in.receivers = append(in.receivers, r)
	in.process.keeper.AddInput(r)
	m.director.addReceiver(r)

	return r
}

// Run runs the model until every actor has ended.
func (m *Model) Run(ctx context.Context) error {
	if len(m.processes) == 0 {
		return fmt.Errorf("model %s has no actors", m.name)
	}

	return m.director.Run(ctx)
}
