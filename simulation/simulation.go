// Package simulation assembles a model run with the services around it: the
// data recorder, the trace database, and the monitoring server.
package simulation

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/ddesim/datarecording"
	"github.com/sarchlab/ddesim/dde"
	"github.com/sarchlab/ddesim/monitoring"
	"github.com/sarchlab/ddesim/resource"
	"github.com/sarchlab/ddesim/sim"
	"github.com/sarchlab/ddesim/tracing"
)

// A Simulation provides the services required to run a model.
type Simulation struct {
	id       string
	stopTime sim.VTimeInSec
	log      logrus.FieldLogger

	director *dde.Director
	model    *dde.Model

	dataRecorder      datarecording.DataRecorder
	execRecorder      *datarecording.ExecRecorder
	executionRecorder *datarecording.ExecutionRecorder
	monitor           *monitoring.Monitor
	visTracer         *tracing.DBTracer
	taskStats         *tracing.TimeTracer
	tracer            tracing.Tracer

	schedulers []*resource.Scheduler
	ran        bool
}

// ID returns the unique ID of the simulation.
func (s *Simulation) ID() string {
	return s.id
}

// Model returns the model that the simulation runs.
func (s *Simulation) Model() *dde.Model {
	return s.model
}

// Director returns the director of the model.
func (s *Simulation) Director() *dde.Director {
	return s.director
}

// GetDataRecorder returns the data recorder used in the simulation.
func (s *Simulation) GetDataRecorder() datarecording.DataRecorder {
	return s.dataRecorder
}

// GetMonitor returns the monitor used in the simulation. It is nil when
// monitoring is disabled.
func (s *Simulation) GetMonitor() *monitoring.Monitor {
	return s.monitor
}

// GetVisTracer returns the tracer used in the simulation.
func (s *Simulation) GetVisTracer() *tracing.DBTracer {
	return s.visTracer
}

// TaskStats returns the time statistics of the traced firings and resource
// executions.
func (s *Simulation) TaskStats() []tracing.TimeStats {
	return s.taskStats.Stats()
}

// SetProperty records a property of the run, such as a model parameter.
func (s *Simulation) SetProperty(property, value string) {
	s.execRecorder.Set(property, value)
}

// NewScheduler creates a resource scheduler that the simulation records and
// traces.
func (s *Simulation) NewScheduler(name string, justMonitor bool) *resource.Scheduler {
	scheduler := resource.MakeBuilder().
		WithDirector(s.director).
		WithLogger(s.log).
		WithJustMonitor(justMonitor).
		Build(name)

	s.RegisterScheduler(scheduler)

	return scheduler
}

// RegisterScheduler records and traces the execution events of a scheduler.
func (s *Simulation) RegisterScheduler(scheduler *resource.Scheduler) {
	for _, existing := range s.schedulers {
		if existing.Name() == scheduler.Name() {
			panic("scheduler " + scheduler.Name() + " already registered")
		}
	}

	s.schedulers = append(s.schedulers, scheduler)
	scheduler.AcceptHook(s.executionRecorder)
	tracing.TraceExecutions(scheduler, s.tracer)
}

// Schedulers returns the registered schedulers.
func (s *Simulation) Schedulers() []*resource.Scheduler {
	return append([]*resource.Scheduler(nil), s.schedulers...)
}

// Run runs the model once. Firings are traced, and with a finite stop time
// every receiver completes at the stop time so that feedback loops end.
func (s *Simulation) Run(ctx context.Context) error {
	if s.ran {
		panic("a simulation can only run once")
	}
	s.ran = true

	s.execRecorder.Start()
	s.execRecorder.Set("Model", s.model.Name())
	s.execRecorder.Set("Simulation ID", s.id)
	s.execRecorder.Set("Stop Time", fmt.Sprint(s.stopTime))

	for _, p := range s.director.Processes() {
		tracing.TraceFirings(p, s.tracer)
	}

	if s.stopTime != sim.Infinity {
		for _, r := range s.director.Receivers() {
			r.SetCompletionTime(s.stopTime)
		}
	}

	var bar *monitoring.ProgressBar
	if s.monitor != nil {
		bar = s.monitor.CreateProgressBar("Firings", 0)
		monitoring.NewFiringProgress(bar).Attach(s.director)
	}

	start := time.Now()
	err := s.model.Run(ctx)

	if bar != nil {
		s.monitor.CompleteProgressBar(bar)
	}

	s.taskStats.TerminateAllTasks(s.director.CurrentTime())
	s.recordTaskStats()

	s.execRecorder.Set("Virtual Time", fmt.Sprint(s.director.CurrentTime()))
	s.execRecorder.Set("Wall Time", time.Since(start).String())
	if err != nil {
		s.execRecorder.Set("Error", err.Error())
	}

	s.log.WithFields(logrus.Fields{
		"virtual_time": s.director.CurrentTime(),
		"wall_time":    time.Since(start),
	}).Info("simulation finished")

	return err
}

func (s *Simulation) recordTaskStats() {
	s.dataRecorder.CreateTable("task_stats", datarecording.TaskStatsEntry{})

	for _, st := range s.taskStats.Stats() {
		s.dataRecorder.InsertData("task_stats", datarecording.TaskStatsEntry{
			Kind:        st.Kind,
			Location:    st.Location,
			Count:       st.Count,
			TotalTime:   float64(st.TotalTime),
			BusyTime:    float64(st.BusyTime),
			AverageTime: float64(st.AverageTime),
		})
	}
}

// Terminate flushes the recorded data and stops the monitoring server.
func (s *Simulation) Terminate() {
	s.visTracer.Terminate()

	if s.ran {
		s.execRecorder.End()
	}

	if s.monitor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		if err := s.monitor.StopServer(ctx); err != nil {
			s.log.WithError(err).Warn("monitor did not stop cleanly")
		}
	}

	if err := s.dataRecorder.Close(); err != nil {
		s.log.WithError(err).Error("cannot close the data recorder")
	}
}
