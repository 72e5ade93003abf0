package resource

import (
	"sort"
	"sync"

	"github.com/sarchlab/ddesim/dde"
	"github.com/sarchlab/ddesim/sim"
)

// A Processor is an actor that serves the requests of one request port, one
// at a time. A request occupies the processor for its execution time;
// higher-priority requests are served first.
type Processor struct {
	*dde.ActorBase

	scheduler *Scheduler
	port      *processorPort

	lock    sync.Mutex
	pending []Request
	served  int
	busy    sim.VTimeInSec
}

type processorPort struct {
	name      string
	processor *Processor
}

func (p *processorPort) Name() string {
	return p.name
}

func (p *processorPort) Owner() dde.Actor {
	return p.processor
}

func (p *processorPort) Post(req Request) error {
	p.processor.lock.Lock()
	defer p.processor.lock.Unlock()

	p.processor.pending = append(p.processor.pending, req)

	return nil
}

// NewProcessor creates a processor and registers its request port, named
// after the processor with a "Request" suffix, with the scheduler.
func NewProcessor(name string, scheduler *Scheduler) *Processor {
	p := &Processor{
		ActorBase: dde.NewActorBase(name),
		scheduler: scheduler,
	}
	p.port = &processorPort{
		name:      sim.BuildName(name, "Request"),
		processor: p,
	}

	scheduler.AddRequestPort(p.port)

	return p
}

// RequestPort returns the port that the processor serves.
func (p *Processor) RequestPort() RequestPort {
	return p.port
}

// Pending returns the number of requests waiting to be served.
func (p *Processor) Pending() int {
	p.lock.Lock()
	defer p.lock.Unlock()

	return len(p.pending)
}

// Served returns the number of completed requests.
func (p *Processor) Served() int {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.served
}

// BusyTime returns the accumulated execution time.
func (p *Processor) BusyTime() sim.VTimeInSec {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.busy
}

// Initialize drops the requests of a previous run.
func (p *Processor) Initialize(_ *dde.Process) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.pending = nil
	p.served = 0
	p.busy = 0

	return nil
}

// Fire serves one request. Without requests, it sleeps until the scheduler
// fires it.
func (p *Processor) Fire(proc *dde.Process) error {
	req, ok := p.next()
	if !ok {
		_, err := proc.WaitForFiring()
		return err
	}

	if err := proc.WaitUntil(proc.CurrentTime() + req.ExecutionTime); err != nil {
		return err
	}

	p.lock.Lock()
	p.served++
	p.busy += req.ExecutionTime
	p.lock.Unlock()

	p.scheduler.Complete(Completion{Request: req, Time: proc.CurrentTime()})

	return p.scheduler.Postfire()
}

func (p *Processor) next() (Request, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if len(p.pending) == 0 {
		return Request{}, false
	}

	sort.SliceStable(p.pending, func(i, j int) bool {
		return p.pending[i].Priority > p.pending[j].Priority
	})

	req := p.pending[0]
	p.pending = p.pending[1:]

	return req, true
}
