package dde

import (
	"sort"
	"sync"

	"github.com/sarchlab/ddesim/sim"
)

type receiverSnapshot struct {
	receiver *Receiver
	time     sim.VTimeInSec
	priority int
	nonEmpty bool
	headNull bool
	order    int
}

// A TimeKeeper aggregates the times of the input receivers of one actor. It
// decides the next time the actor may fire and breaks ties by priority.
//
// The keeper is driven by the goroutine of its actor. Other goroutines only
// read its times.
type TimeKeeper struct {
	lock sync.RWMutex

	name          string
	currentTime   sim.VTimeInSec
	outputTime    sim.VTimeInSec
	inputs        []*Receiver
	outputs       []*Receiver
	sorted        []receiverSnapshot
	ignoredTokens bool
}

// NewTimeKeeper creates a time keeper for the named actor.
func NewTimeKeeper(name string) *TimeKeeper {
	return &TimeKeeper{name: name}
}

// Name returns the name of the actor that owns the keeper.
func (k *TimeKeeper) Name() string {
	return k.name
}

// AddInput registers an input receiver of the actor.
func (k *TimeKeeper) AddInput(r *Receiver) {
	k.lock.Lock()
	defer k.lock.Unlock()

	k.inputs = append(k.inputs, r)
}

// AddOutput registers a receiver that the actor writes to.
func (k *TimeKeeper) AddOutput(r *Receiver) {
	k.lock.Lock()
	defer k.lock.Unlock()

	k.outputs = append(k.outputs, r)
}

// Inputs returns the input receivers in registration order.
func (k *TimeKeeper) Inputs() []*Receiver {
	k.lock.RLock()
	defer k.lock.RUnlock()

	return append([]*Receiver(nil), k.inputs...)
}

// Reset rewinds the keeper to time 0.
func (k *TimeKeeper) Reset() {
	k.lock.Lock()
	defer k.lock.Unlock()

	k.currentTime = 0
	k.outputTime = 0
	k.sorted = nil
	k.ignoredTokens = false
}

// CurrentTime returns the local time of the actor.
func (k *TimeKeeper) CurrentTime() sim.VTimeInSec {
	k.lock.RLock()
	defer k.lock.RUnlock()

	return k.currentTime
}

// OutputTime returns the time stamped on tokens the actor sends without an
// explicit time. It is never behind the current time.
func (k *TimeKeeper) OutputTime() sim.VTimeInSec {
	k.lock.RLock()
	defer k.lock.RUnlock()

	if k.outputTime < k.currentTime {
		return k.currentTime
	}

	return k.outputTime
}

// SetOutputTime sets the output time. Times behind the current time are
// raised to the current time.
func (k *TimeKeeper) SetOutputTime(t sim.VTimeInSec) {
	k.lock.Lock()
	defer k.lock.Unlock()

	if t < k.currentTime {
		t = k.currentTime
	}

	k.outputTime = t
}

// advanceTo moves the current time forward to a concrete t.
func (k *TimeKeeper) advanceTo(t sim.VTimeInSec) {
	if !IsConcrete(t) {
		return
	}

	k.lock.Lock()
	defer k.lock.Unlock()

	if t > k.currentTime {
		k.currentTime = t
	}
}

// ResortReceivers snapshots every input receiver and orders them by time,
// with ties broken by descending priority and then registration order.
func (k *TimeKeeper) ResortReceivers() {
	inputs := k.Inputs()

	snapshots := make([]receiverSnapshot, len(inputs))
	for i, r := range inputs {
		snapshots[i] = r.snapshot()
		snapshots[i].order = i
	}

	k.lock.Lock()
	defer k.lock.Unlock()

	k.sorted = snapshots
	k.sortLocked()
}

// refresh replaces the snapshot of one receiver with a fresher one.
func (k *TimeKeeper) refresh(s receiverSnapshot) {
	k.lock.Lock()
	defer k.lock.Unlock()

	for i := range k.sorted {
		if k.sorted[i].receiver == s.receiver {
			s.order = k.sorted[i].order
			k.sorted[i] = s
			k.sortLocked()

			return
		}
	}
}

func (k *TimeKeeper) sortLocked() {
	sort.SliceStable(k.sorted, func(i, j int) bool {
		a, b := k.sorted[i], k.sorted[j]

		ka, kb := orderKey(a.time), orderKey(b.time)
		if ka != kb {
			return ka < kb
		}

		if a.priority != b.priority {
			return a.priority > b.priority
		}

		return a.order < b.order
	})

	k.ignoredTokens = false
	for _, s := range k.sorted {
		if s.time == Ignore {
			k.ignoredTokens = true
		}
	}
}

// SortedReceivers returns the receivers in the order of the last resort.
func (k *TimeKeeper) SortedReceivers() []*Receiver {
	k.lock.RLock()
	defer k.lock.RUnlock()

	receivers := make([]*Receiver, len(k.sorted))
	for i, s := range k.sorted {
		receivers[i] = s.receiver
	}

	return receivers
}

// NextTime returns the earliest time at which the actor may fire.
//
// Receivers at Ignore or Inactive do not bound the time. If only ignored
// receivers remain, the actor may fire at its current time. If every
// receiver is inactive, NextTime returns Inactive.
func (k *TimeKeeper) NextTime() sim.VTimeInSec {
	k.lock.RLock()
	defer k.lock.RUnlock()

	return k.nextTimeLocked()
}

func (k *TimeKeeper) nextTimeLocked() sim.VTimeInSec {
	if len(k.sorted) == 0 {
		return k.currentTime
	}

	found := false
	next := sim.VTimeInSec(0)
	inactive := 0

	for _, s := range k.sorted {
		switch {
		case s.time == Inactive:
			inactive++
		case IsConcrete(s.time):
			if !found || s.time < next {
				next = s.time
				found = true
			}
		}
	}

	if found {
		return next
	}

	if inactive == len(k.sorted) {
		return Inactive
	}

	return k.currentTime
}

// HasUniqueMinimumTime returns true if at most one receiver holds the next
// time.
func (k *TimeKeeper) HasUniqueMinimumTime() bool {
	k.lock.RLock()
	defer k.lock.RUnlock()

	next := k.nextTimeLocked()
	count := 0

	for _, s := range k.sorted {
		if s.time == next {
			count++
		}
	}

	return count <= 1
}

// HighestPriorityReceiverAt returns the receiver with the highest priority
// among those at time t, or nil if no receiver is at t.
func (k *TimeKeeper) HighestPriorityReceiverAt(t sim.VTimeInSec) *Receiver {
	k.lock.RLock()
	defer k.lock.RUnlock()

	return k.firstAtLocked(t, func(receiverSnapshot) bool { return true })
}

// HighestPriorityReal returns the highest-priority receiver at the next time
// whose head is a real token, or nil.
func (k *TimeKeeper) HighestPriorityReal() *Receiver {
	k.lock.RLock()
	defer k.lock.RUnlock()

	return k.firstAtLocked(k.nextTimeLocked(), func(s receiverSnapshot) bool {
		return s.nonEmpty && !s.headNull
	})
}

// HighestPriorityNull returns the highest-priority receiver at the next time
// whose head is a null token, or nil.
func (k *TimeKeeper) HighestPriorityNull() *Receiver {
	k.lock.RLock()
	defer k.lock.RUnlock()

	return k.firstAtLocked(k.nextTimeLocked(), func(s receiverSnapshot) bool {
		return s.nonEmpty && s.headNull
	})
}

func (k *TimeKeeper) firstAtLocked(
	t sim.VTimeInSec,
	match func(receiverSnapshot) bool,
) *Receiver {
	for _, s := range k.sorted {
		if s.time == t && match(s) {
			return s.receiver
		}
	}

	return nil
}

// HasIgnoredTokens returns true if the last resort found a receiver at
// Ignore.
func (k *TimeKeeper) HasIgnoredTokens() bool {
	k.lock.RLock()
	defer k.lock.RUnlock()

	return k.ignoredTokens
}

func (k *TimeKeeper) setIgnoredTokens(ignored bool) {
	k.lock.Lock()
	defer k.lock.Unlock()

	k.ignoredTokens = ignored
}

// UpdateIgnoredReceivers drains the ignore placeholders after a firing.
func (k *TimeKeeper) UpdateIgnoredReceivers() {
	if !k.HasIgnoredTokens() {
		return
	}

	for _, r := range k.Inputs() {
		r.ClearIgnoredTokens()
	}

	k.setIgnoredTokens(false)
}

// SendOutNullTokens puts a null token at the current time into every
// downstream receiver that lags behind the actor. Receivers that have been
// closed with Inactive are skipped.
func (k *TimeKeeper) SendOutNullTokens() error {
	k.lock.RLock()
	now := k.currentTime
	outputs := append([]*Receiver(nil), k.outputs...)
	k.lock.RUnlock()

	for _, r := range outputs {
		last := r.LastTime()
		if last == Inactive || last == ReceiverSentinel {
			continue
		}

		if last >= now {
			continue
		}

		if err := r.Put(NullToken, now); err != nil {
			return err
		}
	}

	return nil
}
