package simulation

import (
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/sarchlab/ddesim/datarecording"
	"github.com/sarchlab/ddesim/dde"
	"github.com/sarchlab/ddesim/monitoring"
	"github.com/sarchlab/ddesim/sim"
	"github.com/sarchlab/ddesim/tracing"
)

// Builder can be used to build a simulation.
type Builder struct {
	log            logrus.FieldLogger
	monitorOn      bool
	monitorPort    int
	openBrowser    bool
	outputFileName string
	capacity       int
	maxCapacity    int
	stopTime       sim.VTimeInSec
	parallelIDs    bool
}

// MakeBuilder creates a new builder.
func MakeBuilder() Builder {
	return Builder{
		log:       logrus.StandardLogger(),
		monitorOn: true,
		capacity:  1,
		stopTime:  sim.Infinity,
	}
}

// WithLogger sets the logger shared by the director and the monitor.
func (b Builder) WithLogger(log logrus.FieldLogger) Builder {
	b.log = log
	return b
}

// WithoutMonitoring sets the simulation to not use monitoring.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithBrowser opens the monitor in a browser when the simulation starts.
func (b Builder) WithBrowser() Builder {
	b.openBrowser = true
	return b
}

// WithOutputFileName sets the custom output file name for the data recorder.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.outputFileName = filename
	return b
}

// WithCapacity sets the initial capacity of every receiver in the model.
func (b Builder) WithCapacity(capacity int) Builder {
	b.capacity = capacity
	return b
}

// WithMaxCapacity lets the director grow full receivers up to the given
// capacity.
func (b Builder) WithMaxCapacity(maxCapacity int) Builder {
	b.maxCapacity = maxCapacity
	return b
}

// WithStopTime sets the time at which the model completes. Every receiver
// treats events after the stop time as inactive.
func (b Builder) WithStopTime(t sim.VTimeInSec) Builder {
	b.stopTime = t
	return b
}

// WithParallelIDs makes the IDs of the run globally unique instead of
// sequential.
func (b Builder) WithParallelIDs() Builder {
	b.parallelIDs = true
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}

	if !b.monitorOn && b.openBrowser {
		panic("browser cannot be opened when monitoring is disabled")
	}

	if b.stopTime < 0 {
		panic("stop time cannot be negative")
	}
}

// Build builds the simulation of a model with the given name.
func (b Builder) Build(name string) *Simulation {
	b.parametersMustBeValid()

	if b.parallelIDs {
		sim.UseParallelIDGenerator()
	}

	s := &Simulation{
		id:       xid.New().String(),
		stopTime: b.stopTime,
		log:      b.log.WithField("simulation", name),
	}

	outputPath := b.outputFileName
	if outputPath == "" {
		outputPath = "ddesim_" + s.id
	}
	s.dataRecorder = datarecording.New(outputPath)
	s.execRecorder = datarecording.NewExecRecorder(s.dataRecorder)
	s.executionRecorder = datarecording.NewExecutionRecorder(s.dataRecorder)

	s.director = dde.MakeBuilder().
		WithLogger(b.log).
		WithMaxCapacity(b.maxCapacity).
		WithStopTime(b.stopTime).
		Build("Director")
	s.director.AcceptHook(datarecording.NewDeadlockRecorder(s.dataRecorder))

	s.model = dde.NewModel(name, s.director, b.capacity)

	s.visTracer = tracing.NewDBTracer(s.dataRecorder)
	s.taskStats = tracing.NewTimeTracer(nil)
	s.tracer = tracing.Tracers{s.visTracer, s.taskStats}

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor().WithLogger(b.log)
		if b.monitorPort > 0 {
			s.monitor.WithPortNumber(b.monitorPort)
		}
		s.monitor.WithBrowser(b.openBrowser)
		s.monitor.RegisterDirector(s.director)
		s.monitor.RegisterTaskStats(s.taskStats)
		s.monitor.StartServer()
	}

	return s
}
