package dde

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/ddesim/sim"
)

// A Builder can build directors.
type Builder struct {
	log         logrus.FieldLogger
	maxCapacity int
	stopTime    sim.VTimeInSec
}

// MakeBuilder creates a new Builder with default parameters. By default the
// director never grows receivers and never stops on its own.
func MakeBuilder() Builder {
	return Builder{
		log:      logrus.StandardLogger(),
		stopTime: sim.Infinity,
	}
}

// WithLogger sets the logger of the director.
func (b Builder) WithLogger(log logrus.FieldLogger) Builder {
	b.log = log
	return b
}

// WithMaxCapacity lets the director double the capacity of write-blocked
// receivers, up to maxCapacity, to resolve capacity deadlocks. Zero disables
// the growth.
func (b Builder) WithMaxCapacity(maxCapacity int) Builder {
	b.maxCapacity = maxCapacity
	return b
}

// WithStopTime sets the time after which the director terminates the run
// instead of advancing the clock.
func (b Builder) WithStopTime(t sim.VTimeInSec) Builder {
	b.stopTime = t
	return b
}

// Build creates a director.
func (b Builder) Build(name string) *Director {
	sim.NameMustBeValid(name)

	d := &Director{
		name:          name,
		log:           b.log.WithField("director", name),
		maxCapacity:   b.maxCapacity,
		stopTime:      b.stopTime,
		writeBlocks:   make(map[*Receiver]*writeBlock),
		deadlocks:     make(map[DeadlockKind]int),
		requests:      sim.NewEventQueue(),
		firePermits:   make(map[*Process][]sim.VTimeInSec),
		firing:        make(map[*Process]bool),
		resumePermits: make(map[*Process]int),
		resuming:      make(map[*Process]bool),
		byActor:       make(map[Actor]*Process),
		changed:       make(chan struct{}, 1),
	}
	d.cond = sync.NewCond(&d.lock)

	return d
}
