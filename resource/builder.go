package resource

import (
	"github.com/sirupsen/logrus"

	"github.com/sarchlab/ddesim/dde"
	"github.com/sarchlab/ddesim/sim"
)

// A Builder can build resource schedulers.
type Builder struct {
	director    Director
	log         logrus.FieldLogger
	justMonitor bool
}

// MakeBuilder creates a new Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		log: logrus.StandardLogger(),
	}
}

// WithDirector sets the director that the scheduler calls back into.
func (b Builder) WithDirector(d Director) Builder {
	b.director = d
	return b
}

// WithLogger sets the logger of the scheduler.
func (b Builder) WithLogger(log logrus.FieldLogger) Builder {
	b.log = log
	return b
}

// WithJustMonitor makes the scheduler record requests without gating the
// actors.
func (b Builder) WithJustMonitor(justMonitor bool) Builder {
	b.justMonitor = justMonitor
	return b
}

// Build creates a scheduler.
func (b Builder) Build(name string) *Scheduler {
	sim.NameMustBeValid(name)

	if b.director == nil {
		panic("resource scheduler " + name + " needs a director")
	}

	s := &Scheduler{
		name:         name,
		director:     b.director,
		log:          b.log.WithField("scheduler", name),
		justMonitor:  b.justMonitor,
		ports:        make(map[string]RequestPort),
		requestPorts: make(map[dde.Actor]string),
		attributes:   make(map[dde.Actor]HasExecutionTime),
	}
	s.Initialize()

	return s
}
