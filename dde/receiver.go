package dde

import (
	"sync"

	"github.com/sarchlab/ddesim/sim"
)

// A Receiver is the blocking mailbox of one input channel of an actor. Get,
// Put, and HasToken suspend the caller until the time ordering across all the
// receivers of the owning actor allows a decision.
//
// Locks are always taken in the order receiver, then time keeper, then
// director.
type Receiver struct {
	sim.HookableBase

	name     string
	port     *Port
	director *Director
	keeper   *TimeKeeper

	lock  sync.Mutex
	cond  *sync.Cond
	queue timedQueue

	boundary      bool
	hideNulls     bool
	readPending   bool
	readExternal  bool
	writePending  bool
	ignoreNotSeen bool
	terminate     bool
}

// NewReceiver creates a blocking receiver. The keeper belongs to the actor
// that reads from the receiver.
func NewReceiver(
	name string,
	capacity int,
	director *Director,
	keeper *TimeKeeper,
) *Receiver {
	r := &Receiver{
		name:          name,
		director:      director,
		keeper:        keeper,
		queue:         newTimedQueue(name, capacity),
		hideNulls:     true,
		ignoreNotSeen: true,
	}
	r.cond = sync.NewCond(&r.lock)

	return r
}

// Name returns the name of the receiver.
func (r *Receiver) Name() string {
	return r.name
}

// Port returns the input port that the receiver belongs to.
func (r *Receiver) Port() *Port {
	return r.port
}

// SetBoundary marks the receiver as fed from outside of the model. Reads
// blocked on a boundary receiver count as external.
func (r *Receiver) SetBoundary(boundary bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.boundary = boundary
}

// IsBoundary returns true if the receiver is fed from outside of the model.
func (r *Receiver) IsBoundary() bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.boundary
}

// HideNullTokens decides whether HasToken silently consumes null tokens.
func (r *Receiver) HideNullTokens(hide bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.hideNulls = hide
}

// HidesNullTokens returns true if HasToken silently consumes null tokens.
func (r *Receiver) HidesNullTokens() bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.hideNulls
}

// HasToken returns true if Get will return the event that the owning actor
// must process next. It blocks while the receiver is empty and may be the
// next one to deliver.
func (r *Receiver) HasToken() (bool, error) {
	k := r.keeper

	for {
		k.ResortReceivers()

		r.lock.Lock()
		k.refresh(r.snapshotLocked())

		decided, ok, err := r.decideLocked(k)
		if decided {
			r.lock.Unlock()
			return ok, err
		}

		if r.queue.hasToken() {
			// The head is a hidden null token.
			evt, _ := r.dequeueLocked()
			r.lock.Unlock()

			r.invoke(HookPosGet, evt)
			k.advanceTo(evt.Time)

			if err := k.SendOutNullTokens(); err != nil {
				return false, err
			}

			continue
		}

		err = r.waitForDataLocked()
		r.lock.Unlock()

		if err != nil {
			return false, err
		}
	}
}

// decideLocked returns decided=false if the caller must consume a hidden
// null token or wait for data before deciding.
func (r *Receiver) decideLocked(k *TimeKeeper) (decided, ok bool, err error) {
	if r.terminate {
		return true, false, ErrTerminated
	}

	next := k.NextTime()
	if next == Inactive {
		r.requestFinishLocked()
		return true, false, ErrTerminated
	}

	own := r.queue.receiverTime
	switch own {
	case Inactive:
		return true, false, nil
	case Ignore:
		if r.ignoreNotSeen {
			r.ignoreNotSeen = false
			return true, false, nil
		}

		r.ignoreNotSeen = true
		r.clearIgnoredLocked()
		k.setIgnoredTokens(false)

		return true, false, nil
	}

	if own > next {
		return true, false, nil
	}

	if !r.queue.hasToken() {
		return false, false, nil
	}

	if !r.queue.hasNullToken() {
		if k.HasUniqueMinimumTime() || k.HighestPriorityReal() == r {
			return true, true, nil
		}

		return true, false, nil
	}

	if !k.HasUniqueMinimumTime() {
		if k.HighestPriorityReal() != nil || k.HighestPriorityNull() != r {
			return true, false, nil
		}
	}

	if !r.hideNulls {
		return true, true, nil
	}

	return false, false, nil
}

func (r *Receiver) waitForDataLocked() error {
	r.readPending = true
	r.readExternal = r.boundary

	if r.readExternal {
		r.director.AddExternalReadBlock()
	} else {
		r.director.AddInternalReadBlock()
	}

	for r.readPending && !r.terminate {
		r.cond.Wait()
	}

	if r.terminate {
		r.clearReadBlockLocked()
		return ErrTerminated
	}

	return nil
}

func (r *Receiver) clearReadBlockLocked() {
	if !r.readPending {
		return
	}

	r.readPending = false

	if r.readExternal {
		r.director.RemoveExternalReadBlock()
	} else {
		r.director.RemoveInternalReadBlock()
	}
}

// Get blocks until the receiver holds an event and removes it. It is meant to
// be called after HasToken returned true. A pending writer is woken and the
// owning actor advances to the time of the event.
func (r *Receiver) Get() (TimedEvent, error) {
	r.lock.Lock()

	for !r.queue.hasToken() && !r.terminate {
		if err := r.waitForDataLocked(); err != nil {
			r.lock.Unlock()
			return TimedEvent{}, err
		}
	}

	if r.terminate {
		r.lock.Unlock()
		return TimedEvent{}, ErrTerminated
	}

	evt, _ := r.dequeueLocked()
	r.lock.Unlock()

	r.invoke(HookPosGet, evt)

	if r.keeper == nil {
		return evt, nil
	}

	r.keeper.advanceTo(evt.Time)

	return evt, r.keeper.SendOutNullTokens()
}

// dequeueLocked removes the head event and wakes a writer blocked on the full
// queue.
func (r *Receiver) dequeueLocked() (TimedEvent, error) {
	evt, err := r.queue.get()
	if err != nil {
		return evt, err
	}

	r.releaseWriterLocked()

	return evt, nil
}

func (r *Receiver) releaseWriterLocked() {
	if !r.writePending {
		return
	}

	r.writePending = false
	r.director.RemoveWriteBlock(r)
	r.cond.Broadcast()
}

// Put stores an event, blocking while the receiver is full. Times beyond the
// completion horizon are stored as Inactive.
func (r *Receiver) Put(token Token, t sim.VTimeInSec) error {
	evt, err := r.put(token, t)
	if err != nil {
		return err
	}

	r.invoke(HookPosPut, evt)

	return nil
}

func (r *Receiver) put(token Token, t sim.VTimeInSec) (TimedEvent, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	for {
		if r.terminate {
			if r.writePending {
				r.writePending = false
				r.director.RemoveWriteBlock(r)
			}

			return TimedEvent{}, ErrTerminated
		}

		if r.queue.hasRoom() {
			evt, err := r.queue.put(token, t)
			if err != nil {
				return evt, err
			}

			if r.readPending {
				r.clearReadBlockLocked()
				r.cond.Broadcast()
			}

			return evt, nil
		}

		r.writePending = true
		r.director.AddWriteBlock(r)

		for r.writePending && !r.terminate {
			r.cond.Wait()
		}
	}
}

// ClearIgnoredTokens drops one event if the receiver time is Ignore.
func (r *Receiver) ClearIgnoredTokens() {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.clearIgnoredLocked()
}

func (r *Receiver) clearIgnoredLocked() {
	now := sim.VTimeInSec(0)
	if r.keeper != nil {
		now = r.keeper.CurrentTime()
	}

	size := r.queue.events.Size()
	r.queue.clearIgnored(now)

	if r.queue.events.Size() < size {
		r.releaseWriterLocked()
	}
}

// RequestFinish schedules the receiver to terminate. Every blocked and every
// later call returns ErrTerminated.
func (r *Receiver) RequestFinish() {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.requestFinishLocked()
}

func (r *Receiver) requestFinishLocked() {
	r.terminate = true
	r.cond.Broadcast()
}

// GrowCapacity doubles the capacity of a write-blocked receiver, up to
// maxCapacity, and wakes the blocked writer. It returns false if the receiver
// is not write-blocked or cannot grow.
func (r *Receiver) GrowCapacity(maxCapacity int) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	capacity := r.queue.events.Capacity()
	if !r.writePending || capacity >= maxCapacity {
		return false
	}

	newCapacity := capacity * 2
	if newCapacity > maxCapacity {
		newCapacity = maxCapacity
	}

	r.queue.events.SetCapacity(newCapacity)
	r.releaseWriterLocked()

	return true
}

// Reset clears the queue and all the blocking flags before a run.
func (r *Receiver) Reset() {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.queue.reset()
	r.terminate = false
	r.readPending = false
	r.writePending = false
	r.ignoreNotSeen = true
}

// WrapUp clears the queue and marks the receiver as not readable.
func (r *Receiver) WrapUp() {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.queue.wrapUp()
}

// ReceiverTime returns the time of the oldest event, or the time of the last
// removed event if the receiver is empty.
func (r *Receiver) ReceiverTime() sim.VTimeInSec {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.queue.receiverTime
}

// LastTime returns the time of the most recently put event.
func (r *Receiver) LastTime() sim.VTimeInSec {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.queue.lastTime
}

// CompletionTime returns the horizon of the receiver.
func (r *Receiver) CompletionTime() sim.VTimeInSec {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.queue.completionTime
}

// SetCompletionTime sets the horizon of the receiver. Eternity disables it.
func (r *Receiver) SetCompletionTime(t sim.VTimeInSec) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.queue.completionTime = t
}

// Priority returns the tie-break priority. Higher numbers win.
func (r *Receiver) Priority() int {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.queue.priority
}

// SetPriority sets the tie-break priority.
func (r *Receiver) SetPriority(priority int) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.queue.priority = priority
}

// Capacity returns the maximum number of events.
func (r *Receiver) Capacity() int {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.queue.events.Capacity()
}

// Size returns the number of buffered events.
func (r *Receiver) Size() int {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.queue.events.Size()
}

// HasRoom returns true if a put would not block.
func (r *Receiver) HasRoom() bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.queue.hasRoom()
}

// HasNullToken returns true if the head event carries the NullToken.
func (r *Receiver) HasNullToken() bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.queue.hasNullToken()
}

// IsReadBlocked returns true if a reader waits on the receiver.
func (r *Receiver) IsReadBlocked() bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.readPending
}

// IsWriteBlocked returns true if a writer waits on the receiver.
func (r *Receiver) IsWriteBlocked() bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.writePending
}

func (r *Receiver) snapshot() receiverSnapshot {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.snapshotLocked()
}

func (r *Receiver) snapshotLocked() receiverSnapshot {
	return receiverSnapshot{
		receiver: r,
		time:     r.queue.receiverTime,
		priority: r.queue.priority,
		nonEmpty: r.queue.hasToken(),
		headNull: r.queue.hasNullToken(),
	}
}

func (r *Receiver) invoke(pos *sim.HookPos, evt TimedEvent) {
	if r.NumHooks() == 0 {
		return
	}

	r.InvokeHook(sim.HookCtx{
		Domain: r,
		Pos:    pos,
		Item:   evt,
	})
}
