package dde

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/ddesim/sim"
)

// HookPosBlock marks a change of the block counters. The detail is a
// BlockChange.
var HookPosBlock = &sim.HookPos{Name: "Director Block"}

// HookPosDeadlock marks that every process is blocked. The detail is the
// DeadlockKind the director resolved.
var HookPosDeadlock = &sim.HookPos{Name: "Director Deadlock"}

// HookPosTimeAdvance marks that the global clock moved forward. The item is
// the new time.
var HookPosTimeAdvance = &sim.HookPos{Name: "Director Time Advance"}

// HookPosTerminate marks the termination of a run.
var HookPosTerminate = &sim.HookPos{Name: "Director Terminate"}

// BlockKind tells why a process is blocked.
type BlockKind int

// The kinds of blocks that the director counts.
const (
	InternalReadBlock BlockKind = iota
	ExternalReadBlock
	WriteBlock
	ExternalWriteBlock
	TimeBlock
	ResourceBlock
)

var blockKindNames = []string{
	"internal read", "external read", "write", "external write",
	"time", "resource",
}

func (k BlockKind) String() string {
	return blockKindNames[k]
}

// BlockChange is the detail of the HookPosBlock hook.
type BlockChange struct {
	Kind     BlockKind
	Delta    int
	Receiver *Receiver
}

// DeadlockKind classifies a state in which every process is blocked.
type DeadlockKind int

// The deadlock classes, in the order the director tries to resolve them.
const (
	CapacityDeadlock DeadlockKind = iota
	TimeDeadlock
	ExternalDeadlock
	RealDeadlock
)

var deadlockKindNames = []string{"capacity", "time", "external", "real"}

func (k DeadlockKind) String() string {
	return deadlockKindNames[k]
}

// BlockCounts is a snapshot of the counters of a director.
type BlockCounts struct {
	Now           sim.VTimeInSec `json:"now"`
	Active        int            `json:"active"`
	InternalRead  int            `json:"internal_read"`
	ExternalRead  int            `json:"external_read"`
	Write         int            `json:"write"`
	ExternalWrite int            `json:"external_write"`
	Time          int            `json:"time"`
	Resource      int            `json:"resource"`
	Deadlocks     map[string]int `json:"deadlocks"`
	Terminated    bool           `json:"terminated"`
}

// Blocked returns the number of processes that cannot make progress by
// themselves.
func (c BlockCounts) Blocked() int {
	return c.InternalRead + c.ExternalRead + c.Write + c.Time + c.Resource
}

type fireRequest struct {
	process *Process
	time    sim.VTimeInSec
}

func (r fireRequest) Time() sim.VTimeInSec {
	return r.time
}

// writeBlock counts the writers blocked on one receiver. Whether they are
// external is fixed when the first writer blocks.
type writeBlock struct {
	count    int
	external bool
}

func (b *writeBlock) kind() BlockKind {
	if b.external {
		return ExternalWriteBlock
	}

	return WriteBlock
}

// A Director coordinates the processes of one model run. It counts blocked
// processes and, when all of them are blocked, grows a full receiver,
// advances the global clock, waits for boundary input, or terminates the run.
type Director struct {
	sim.HookableBase

	name        string
	log         logrus.FieldLogger
	maxCapacity int
	stopTime    sim.VTimeInSec

	lock sync.Mutex
	cond *sync.Cond

	now           sim.VTimeInSec
	internalRead  int
	externalRead  int
	write         int
	externalWrite int
	timeWaits     int
	resourceWaits int
	active        int
	writeBlocks   map[*Receiver]*writeBlock
	deadlocks     map[DeadlockKind]int

	requests      *sim.EventQueueImpl
	firePermits   map[*Process][]sim.VTimeInSec
	firing        map[*Process]bool
	resumePermits map[*Process]int
	resuming      map[*Process]bool

	processes []*Process
	byActor   map[Actor]*Process
	receivers []*Receiver

	started       bool
	terminated    bool
	terminateOnce sync.Once
	changed       chan struct{}
}

// Name returns the name of the director.
func (d *Director) Name() string {
	return d.name
}

// CurrentTime returns the global clock.
func (d *Director) CurrentTime() sim.VTimeInSec {
	d.lock.Lock()
	defer d.lock.Unlock()

	return d.now
}

// Processes returns the registered processes in registration order.
func (d *Director) Processes() []*Process {
	d.lock.Lock()
	defer d.lock.Unlock()

	return append([]*Process(nil), d.processes...)
}

// Receivers returns the registered receivers in registration order.
func (d *Director) Receivers() []*Receiver {
	d.lock.Lock()
	defer d.lock.Unlock()

	return append([]*Receiver(nil), d.receivers...)
}

// Counts returns a snapshot of the block counters.
func (d *Director) Counts() BlockCounts {
	d.lock.Lock()
	defer d.lock.Unlock()

	deadlocks := make(map[string]int, len(d.deadlocks))
	for k, v := range d.deadlocks {
		deadlocks[k.String()] = v
	}

	return BlockCounts{
		Now:           d.now,
		Active:        d.active,
		InternalRead:  d.internalRead,
		ExternalRead:  d.externalRead,
		Write:         d.write,
		ExternalWrite: d.externalWrite,
		Time:          d.timeWaits,
		Resource:      d.resourceWaits,
		Deadlocks:     deadlocks,
		Terminated:    d.terminated,
	}
}

// IsTerminated returns true once the run has ended.
func (d *Director) IsTerminated() bool {
	d.lock.Lock()
	defer d.lock.Unlock()

	return d.terminated
}

func (d *Director) addProcess(p *Process) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if d.started {
		panic("cannot add actors to a running director")
	}

	if _, found := d.byActor[p.actor]; found {
		panic(fmt.Sprintf("actor %s is already registered", p.Name()))
	}

	d.processes = append(d.processes, p)
	d.byActor[p.actor] = p
}

func (d *Director) addReceiver(r *Receiver) {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.receivers = append(d.receivers, r)
}

// AddInternalReadBlock counts a process blocked reading a receiver fed from
// inside the model.
func (d *Director) AddInternalReadBlock() {
	d.changeBlocks(InternalReadBlock, 1, nil)
}

// RemoveInternalReadBlock reverts AddInternalReadBlock.
func (d *Director) RemoveInternalReadBlock() {
	d.changeBlocks(InternalReadBlock, -1, nil)
}

// AddExternalReadBlock counts a process blocked reading a receiver fed from
// outside of the model.
func (d *Director) AddExternalReadBlock() {
	d.changeBlocks(ExternalReadBlock, 1, nil)
}

// RemoveExternalReadBlock reverts AddExternalReadBlock.
func (d *Director) RemoveExternalReadBlock() {
	d.changeBlocks(ExternalReadBlock, -1, nil)
}

// AddWriteBlock counts a writer blocked on the full receiver r. Writers
// outside of the model are tracked but never count as blocked processes. The
// caller must hold the lock of r.
func (d *Director) AddWriteBlock(r *Receiver) {
	kind := WriteBlock
	if r.boundary {
		kind = ExternalWriteBlock
	}

	d.changeBlocks(kind, 1, r)
}

// RemoveWriteBlock reverts AddWriteBlock for receiver r, with the kind that
// was recorded when the block was added. Removing a block that is not
// registered does nothing.
func (d *Director) RemoveWriteBlock(r *Receiver) {
	d.changeBlocks(WriteBlock, -1, r)
}

func (d *Director) changeBlocks(kind BlockKind, delta int, r *Receiver) {
	d.lock.Lock()

	switch kind {
	case InternalReadBlock:
		d.internalRead += delta
	case ExternalReadBlock:
		d.externalRead += delta
	case WriteBlock, ExternalWriteBlock:
		var changed bool
		kind, changed = d.changeWriteBlockLocked(kind, delta, r)
		if !changed {
			d.lock.Unlock()
			return
		}
	default:
		panic(fmt.Sprintf("unexpected block kind %s", kind))
	}

	d.mustHaveValidCountsLocked()
	d.signalLocked()
	d.lock.Unlock()

	d.log.WithFields(logrus.Fields{
		"kind":  kind.String(),
		"delta": delta,
	}).Debug("block changed")

	d.invoke(HookPosBlock, nil, BlockChange{
		Kind:     kind,
		Delta:    delta,
		Receiver: r,
	})
}

func (d *Director) changeWriteBlockLocked(
	kind BlockKind,
	delta int,
	r *Receiver,
) (BlockKind, bool) {
	block, found := d.writeBlocks[r]

	if delta > 0 {
		if !found {
			block = &writeBlock{external: kind == ExternalWriteBlock}
			d.writeBlocks[r] = block
		}

		block.count++
		d.writeCounterLocked(block.external, 1)

		return block.kind(), true
	}

	if !found {
		return kind, false
	}

	block.count--
	if block.count == 0 {
		delete(d.writeBlocks, r)
	}

	d.writeCounterLocked(block.external, -1)

	return block.kind(), true
}

func (d *Director) writeCounterLocked(external bool, delta int) {
	if external {
		d.externalWrite += delta
	} else {
		d.write += delta
	}
}

func (d *Director) mustHaveValidCountsLocked() {
	if d.internalRead < 0 || d.externalRead < 0 ||
		d.write < 0 || d.externalWrite < 0 ||
		d.timeWaits < 0 || d.resourceWaits < 0 {
		panic("block counters must not be negative")
	}
}

// FireAt requests that the actor fires at time t. The request is granted
// when every process is blocked and t is the earliest pending request. An
// actor that fell behind the global clock, for example while blocked on a
// write, fires at the current time.
func (d *Director) FireAt(actor Actor, t sim.VTimeInSec) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	p, found := d.byActor[actor]
	if !found {
		return NewConfigError(actor.Name(), "actor is not part of the model")
	}

	if !IsConcrete(t) {
		return NewConfigError(actor.Name(),
			"cannot fire at reserved time %s", TimeString(t))
	}

	if t < d.now {
		t = d.now
	}

	d.requests.Push(fireRequest{process: p, time: t})
	d.signalLocked()

	return nil
}

// FireAtCurrentTime requests that the actor fires at the current time.
func (d *Director) FireAtCurrentTime(actor Actor) error {
	return d.FireAt(actor, d.CurrentTime())
}

// ResumeActor releases an actor that waits for a resource.
func (d *Director) ResumeActor(actor Actor) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	p, found := d.byActor[actor]
	if !found {
		return NewConfigError(actor.Name(), "actor is not part of the model")
	}

	d.resumePermits[p]++

	if d.resuming[p] {
		d.resuming[p] = false
		d.resourceWaits--
		d.signalLocked()
	}

	d.cond.Broadcast()

	return nil
}

func (d *Director) waitForFiring(p *Process) (sim.VTimeInSec, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	for {
		if d.terminated {
			if d.firing[p] {
				d.firing[p] = false
				d.timeWaits--
			}

			return 0, ErrTerminated
		}

		if permits := d.firePermits[p]; len(permits) > 0 {
			d.firePermits[p] = permits[1:]
			return permits[0], nil
		}

		if !d.firing[p] {
			d.firing[p] = true
			d.timeWaits++
			d.signalLocked()
		}

		d.cond.Wait()
	}
}

func (d *Director) waitForResume(p *Process) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	for {
		if d.terminated {
			if d.resuming[p] {
				d.resuming[p] = false
				d.resourceWaits--
			}

			return ErrTerminated
		}

		if d.resumePermits[p] > 0 {
			d.resumePermits[p]--
			return nil
		}

		if !d.resuming[p] {
			d.resuming[p] = true
			d.resourceWaits++
			d.signalLocked()
		}

		d.cond.Wait()
	}
}

func (d *Director) isWaitingForResume(p *Process) bool {
	d.lock.Lock()
	defer d.lock.Unlock()

	return d.resuming[p]
}

func (d *Director) processExited(p *Process) {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.active--
	d.signalLocked()
}

func (d *Director) signalLocked() {
	select {
	case d.changed <- struct{}{}:
	default:
	}
}

func (d *Director) allBlockedLocked() bool {
	if d.terminated || d.active <= 0 {
		return false
	}

	blocked := d.internalRead + d.externalRead + d.write +
		d.timeWaits + d.resourceWaits

	return blocked >= d.active
}

// Run initializes every actor, runs one goroutine per actor, and returns when
// all of them have ended. Cancelling the context terminates the run.
func (d *Director) Run(ctx context.Context) error {
	d.lock.Lock()
	if d.started {
		d.lock.Unlock()
		panic("a director can only run once")
	}

	d.started = true
	d.active = len(d.processes)
	processes := append([]*Process(nil), d.processes...)
	receivers := append([]*Receiver(nil), d.receivers...)
	d.lock.Unlock()

	for _, r := range receivers {
		r.Reset()
	}

	for _, p := range processes {
		if err := p.initialize(); err != nil {
			d.Terminate()
			return err
		}
	}

	d.log.WithField("actors", len(processes)).Info("run started")

	done := make(chan struct{})
	coordinatorDone := make(chan struct{})

	go func() {
		d.coordinate(done)
		close(coordinatorDone)
	}()

	stop := context.AfterFunc(ctx, d.Terminate)

	var g errgroup.Group
	for _, p := range processes {
		g.Go(p.run)
	}

	err := g.Wait()
	stop()

	close(done)
	<-coordinatorDone

	d.finish()

	for _, r := range receivers {
		r.WrapUp()
	}

	if err == nil {
		err = ctx.Err()
	}

	d.log.WithField("time", d.CurrentTime()).Info("run finished")

	return err
}

func (d *Director) coordinate(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-d.changed:
			d.resolve()
		}
	}
}

// resolve handles the state in which every live process is blocked.
func (d *Director) resolve() {
	d.lock.Lock()
	if !d.allBlockedLocked() {
		d.lock.Unlock()
		return
	}

	writers := make([]*Receiver, 0, len(d.writeBlocks))
	for r, block := range d.writeBlocks {
		if !block.external {
			writers = append(writers, r)
		}
	}
	d.lock.Unlock()

	if d.maxCapacity > 0 && d.growCapacity(writers) {
		d.deadlockResolved(CapacityDeadlock, nil)
		return
	}

	d.lock.Lock()
	if !d.allBlockedLocked() {
		d.lock.Unlock()
		return
	}

	if d.requests.Len() > 0 {
		d.resolveTimeDeadlockLocked()
		return
	}

	if d.externalRead > 0 {
		d.deadlocks[ExternalDeadlock]++
		d.lock.Unlock()

		d.deadlockResolved(ExternalDeadlock, nil)

		return
	}

	d.deadlocks[RealDeadlock]++
	d.lock.Unlock()

	d.deadlockResolved(RealDeadlock, nil)
	d.Terminate()
}

// growCapacity grows the smallest write-blocked receiver.
func (d *Director) growCapacity(writers []*Receiver) bool {
	var target *Receiver

	smallest := 0
	for _, r := range writers {
		capacity := r.Capacity()
		if capacity >= d.maxCapacity {
			continue
		}

		if target == nil || capacity < smallest ||
			(capacity == smallest && r.Name() < target.Name()) {
			target = r
			smallest = capacity
		}
	}

	if target == nil {
		return false
	}

	if !target.GrowCapacity(d.maxCapacity) {
		return false
	}

	d.lock.Lock()
	d.deadlocks[CapacityDeadlock]++
	d.lock.Unlock()

	d.log.WithFields(logrus.Fields{
		"receiver": target.Name(),
		"capacity": target.Capacity(),
	}).Info("receiver capacity grown")

	return true
}

// resolveTimeDeadlockLocked advances the clock to the earliest request and
// grants every request at that time. It releases the lock.
func (d *Director) resolveTimeDeadlockLocked() {
	t := d.requests.Peek().Time()

	if t > d.stopTime {
		d.lock.Unlock()

		d.log.WithField("time", t).Info("stop time reached")
		d.Terminate()

		return
	}

	advanced := t > d.now
	if advanced {
		d.now = t
	}

	woken := 0
	for d.requests.Len() > 0 && d.requests.Peek().Time() == t {
		req := d.requests.Pop().(fireRequest)
		d.firePermits[req.process] = append(d.firePermits[req.process], t)

		if d.firing[req.process] {
			d.firing[req.process] = false
			d.timeWaits--
			woken++
		}
	}

	d.deadlocks[TimeDeadlock]++
	d.cond.Broadcast()

	if woken == 0 {
		d.signalLocked()
	}

	d.lock.Unlock()

	if advanced {
		d.log.WithField("time", t).Debug("time advanced")
		d.invoke(HookPosTimeAdvance, t, nil)
	}

	d.deadlockResolved(TimeDeadlock, t)
}

func (d *Director) deadlockResolved(kind DeadlockKind, item interface{}) {
	d.log.WithField("kind", kind.String()).Debug("all processes blocked")
	d.invoke(HookPosDeadlock, item, kind)
}

// Terminate ends the run. Every blocked process is woken and unwinds with
// ErrTerminated. Calling Terminate more than once has no further effect.
func (d *Director) Terminate() {
	d.terminateOnce.Do(func() {
		d.lock.Lock()
		if d.terminated {
			d.lock.Unlock()
			return
		}

		d.terminated = true
		receivers := append([]*Receiver(nil), d.receivers...)
		now := d.now
		d.cond.Broadcast()
		d.lock.Unlock()

		for _, r := range receivers {
			r.RequestFinish()
		}

		d.log.WithField("time", now).Info("run terminated")
		d.invoke(HookPosTerminate, now, nil)
	})
}

func (d *Director) finish() {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.terminated = true
	d.cond.Broadcast()
}

func (d *Director) invoke(
	pos *sim.HookPos,
	item interface{},
	detail interface{},
) {
	if d.NumHooks() == 0 {
		return
	}

	d.InvokeHook(sim.HookCtx{
		Domain: d,
		Pos:    pos,
		Item:   item,
		Detail: detail,
	})
}

// errTerminatedOrNil maps ErrTerminated to nil.
func errTerminatedOrNil(err error) error {
	if errors.Is(err, ErrTerminated) {
		return nil
	}

	return err
}
