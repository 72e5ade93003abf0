package dde

import (
	"sync"

	"github.com/sarchlab/ddesim/sim"
)

// HookPosPut marks when an event is stored in a receiver.
var HookPosPut = &sim.HookPos{Name: "Receiver Put"}

// HookPosGet marks when an event is removed from a receiver.
var HookPosGet = &sim.HookPos{Name: "Receiver Get"}

// TimedReceiver is the behavior shared by the plain timed queue receiver and
// the blocking receiver.
type TimedReceiver interface {
	sim.Named
	sim.Hookable

	Put(token Token, t sim.VTimeInSec) error
	Get() (TimedEvent, error)
	HasToken() (bool, error)
	ClearIgnoredTokens()
	Reset()

	ReceiverTime() sim.VTimeInSec
	LastTime() sim.VTimeInSec
	CompletionTime() sim.VTimeInSec
	SetCompletionTime(t sim.VTimeInSec)
	Priority() int
	SetPriority(priority int)
	Capacity() int
	Size() int
	HasRoom() bool
}

// timedQueue holds the queue and the time bookkeeping of a receiver. It is
// not goroutine safe; the owning receiver guards it.
type timedQueue struct {
	events         sim.Buffer
	receiverTime   sim.VTimeInSec
	lastTime       sim.VTimeInSec
	completionTime sim.VTimeInSec
	priority       int
}

func newTimedQueue(name string, capacity int) timedQueue {
	return timedQueue{
		events:         sim.NewBuffer(name, capacity),
		completionTime: Eternity,
	}
}

// coerce replaces times beyond the completion horizon with Inactive.
func (q *timedQueue) coerce(t sim.VTimeInSec) sim.VTimeInSec {
	if q.completionTime != Eternity && t > q.completionTime {
		return Inactive
	}

	return t
}

func (q *timedQueue) put(token Token, t sim.VTimeInSec) (TimedEvent, error) {
	t = q.coerce(t)

	if IsConcrete(t) && IsConcrete(q.lastTime) && t < q.lastTime {
		return TimedEvent{}, ErrNonMonotonicTime
	}

	if !q.events.CanPush() {
		return TimedEvent{}, ErrNoRoom
	}

	evt := TimedEvent{Token: token, Time: t}
	q.events.Push(evt)
	q.lastTime = t

	if q.events.Size() == 1 {
		q.receiverTime = t
	}

	return evt, nil
}

// get removes the head event. An emptied queue keeps the time of the removed
// event as the lower bound of the channel.
func (q *timedQueue) get() (TimedEvent, error) {
	if q.events.Size() == 0 {
		return TimedEvent{}, ErrNoToken
	}

	evt := q.events.Pop().(TimedEvent)

	if head := q.events.Peek(); head != nil {
		q.receiverTime = head.(TimedEvent).Time
	} else {
		q.receiverTime = evt.Time
	}

	return evt, nil
}

func (q *timedQueue) head() (TimedEvent, bool) {
	head := q.events.Peek()
	if head == nil {
		return TimedEvent{}, false
	}

	return head.(TimedEvent), true
}

func (q *timedQueue) hasToken() bool {
	return q.events.Size() > 0
}

func (q *timedQueue) hasRoom() bool {
	return q.events.CanPush()
}

func (q *timedQueue) hasNullToken() bool {
	head, ok := q.head()
	return ok && head.IsNull()
}

// clearIgnored drops exactly one event if the receiver time is Ignore. If the
// queue becomes empty, the receiver time becomes now.
func (q *timedQueue) clearIgnored(now sim.VTimeInSec) bool {
	if q.receiverTime != Ignore {
		return false
	}

	if q.hasToken() {
		_, _ = q.get()
	}

	if q.receiverTime == Ignore && !q.hasToken() {
		q.receiverTime = now
	}

	return true
}

func (q *timedQueue) reset() {
	q.events.Clear()
	q.receiverTime = 0
	q.lastTime = 0
}

func (q *timedQueue) wrapUp() {
	q.events.Clear()
	q.receiverTime = ReceiverSentinel
}

// TimedQueueReceiver is a bounded FIFO of timed events attached to one input
// channel. It never blocks: a full queue rejects puts and an empty queue
// rejects gets.
type TimedQueueReceiver struct {
	sim.HookableBase

	name  string
	owner sim.TimeTeller
	lock  sync.Mutex
	queue timedQueue
}

// NewTimedQueueReceiver creates a receiver with the given capacity. The owner
// supplies the current time used when ignored events are cleared; it may be
// nil, in which case cleared receivers fall back to time 0.
func NewTimedQueueReceiver(
	name string,
	capacity int,
	owner sim.TimeTeller,
) *TimedQueueReceiver {
	return &TimedQueueReceiver{
		name:  name,
		owner: owner,
		queue: newTimedQueue(name, capacity),
	}
}

// Name returns the name of the receiver.
func (r *TimedQueueReceiver) Name() string {
	return r.name
}

// Put appends an event. Times beyond the completion horizon are stored as
// Inactive.
func (r *TimedQueueReceiver) Put(token Token, t sim.VTimeInSec) error {
	r.lock.Lock()
	evt, err := r.queue.put(token, t)
	r.lock.Unlock()

	if err != nil {
		return err
	}

	r.invoke(HookPosPut, evt)

	return nil
}

// Get removes and returns the oldest event, including inactive ones.
func (r *TimedQueueReceiver) Get() (TimedEvent, error) {
	r.lock.Lock()
	evt, err := r.queue.get()
	r.lock.Unlock()

	if err != nil {
		return evt, err
	}

	r.invoke(HookPosGet, evt)

	return evt, nil
}

// HasToken returns true if the queue is not empty.
func (r *TimedQueueReceiver) HasToken() (bool, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.queue.hasToken(), nil
}

// HasNullToken returns true if the head event carries the NullToken.
func (r *TimedQueueReceiver) HasNullToken() bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.queue.hasNullToken()
}

// ClearIgnoredTokens drops one event if the receiver time is Ignore.
func (r *TimedQueueReceiver) ClearIgnoredTokens() {
	now := sim.VTimeInSec(0)
	if r.owner != nil {
		now = r.owner.CurrentTime()
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	r.queue.clearIgnored(now)
}

// Reset empties the queue and rewinds the receiver to time 0.
func (r *TimedQueueReceiver) Reset() {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.queue.reset()
}

// WrapUp empties the queue and marks the receiver as not readable.
func (r *TimedQueueReceiver) WrapUp() {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.queue.wrapUp()
}

// ReceiverTime returns the time of the oldest event, or the time of the last
// removed event if the queue is empty.
func (r *TimedQueueReceiver) ReceiverTime() sim.VTimeInSec {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.queue.receiverTime
}

// LastTime returns the time of the most recently put event.
func (r *TimedQueueReceiver) LastTime() sim.VTimeInSec {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.queue.lastTime
}

// CompletionTime returns the horizon of the receiver.
func (r *TimedQueueReceiver) CompletionTime() sim.VTimeInSec {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.queue.completionTime
}

// SetCompletionTime sets the horizon of the receiver. Eternity disables it.
func (r *TimedQueueReceiver) SetCompletionTime(t sim.VTimeInSec) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.queue.completionTime = t
}

// Priority returns the tie-break priority. Higher numbers win.
func (r *TimedQueueReceiver) Priority() int {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.queue.priority
}

// SetPriority sets the tie-break priority.
func (r *TimedQueueReceiver) SetPriority(priority int) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.queue.priority = priority
}

// Capacity returns the maximum number of events.
func (r *TimedQueueReceiver) Capacity() int {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.queue.events.Capacity()
}

// SetCapacity changes the maximum number of events.
func (r *TimedQueueReceiver) SetCapacity(capacity int) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.queue.events.SetCapacity(capacity)
}

// Size returns the number of buffered events.
func (r *TimedQueueReceiver) Size() int {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.queue.events.Size()
}

// HasRoom returns true if one more event can be put.
func (r *TimedQueueReceiver) HasRoom() bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.queue.hasRoom()
}

func (r *TimedQueueReceiver) invoke(pos *sim.HookPos, evt TimedEvent) {
	if r.NumHooks() == 0 {
		return
	}

	r.InvokeHook(sim.HookCtx{
		Domain: r,
		Pos:    pos,
		Item:   evt,
	})
}
