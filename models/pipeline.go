package models

import (
	"fmt"

	"github.com/sarchlab/ddesim/actors"
	"github.com/sarchlab/ddesim/config"
	"github.com/sarchlab/ddesim/resource"
	"github.com/sarchlab/ddesim/sim"
	"github.com/sarchlab/ddesim/simulation"
)

// Pipeline is a chain of tasks that share one processor.
//
//	Source -> Stage[0] -> ... -> Stage[n-1] -> Sink
type Pipeline struct {
	Source    *actors.Clock
	Stages    []*actors.Task
	Processor *resource.Processor
	Scheduler *resource.Scheduler
	Recorder  *actors.Recorder
}

// BuildPipeline adds the pipeline model to the simulation. It reads TOKENS,
// PERIOD, STAGES, EXECUTION_TIME, and JUST_MONITOR. The priority of a stage
// is STAGE<i>_PRIORITY and defaults to its index, so that later stages drain
// first.
func BuildPipeline(
	s *simulation.Simulation,
	params *config.Params,
) (Demo, error) {
	tokens, err := params.Int("tokens", 3)
	if err != nil {
		return nil, err
	}

	period, err := params.Float("period", 1)
	if err != nil {
		return nil, err
	}

	stages, err := params.Int("stages", 2)
	if err != nil {
		return nil, err
	}

	executionTime, err := params.Float("execution_time", 1)
	if err != nil {
		return nil, err
	}

	justMonitor, err := params.Bool("just_monitor", false)
	if err != nil {
		return nil, err
	}

	if tokens <= 0 || stages <= 0 {
		return nil, fmt.Errorf(
			"pipeline needs tokens and stages, got %d tokens and %d stages",
			tokens, stages)
	}

	m := s.Model()
	p := &Pipeline{}

	p.Scheduler = s.NewScheduler("Scheduler", justMonitor)
	p.Processor = resource.NewProcessor("CPU", p.Scheduler)
	m.AddActor(p.Processor)

	p.Source = actors.MakeClockBuilder().
		WithPeriod(sim.VTimeInSec(period)).
		WithCount(tokens).
		Build("Source", m)

	upstream := p.Source.Output
	for i := 0; i < stages; i++ {
		stageParams := params.Scope(fmt.Sprintf("stage%d", i))

		priority, err := stageParams.Int("priority", i)
		if err != nil {
			return nil, err
		}

		stage := actors.MakeTaskBuilder().
			WithScheduler(p.Scheduler).
			WithRequestPort(p.Processor.RequestPort().Name()).
			WithExecutionTime(sim.VTimeInSec(executionTime)).
			WithPriority(priority).
			Build(sim.BuildNameWithIndex("", "Stage", i), m)

		m.Connect(upstream, stage.Input)
		upstream = stage.Output
		p.Stages = append(p.Stages, stage)
	}

	p.Recorder = actors.NewRecorder("Sink", m)
	m.Connect(upstream, p.Recorder.Input)

	return p, nil
}

// Sink returns the recorder after the last stage.
func (p *Pipeline) Sink() *actors.Recorder {
	return p.Recorder
}

// Summary reports the work of the processor.
func (p *Pipeline) Summary() map[string]string {
	return map[string]string{
		"sent":      fmt.Sprint(p.Source.Sent()),
		"recorded":  fmt.Sprint(len(p.Recorder.Records())),
		"served":    fmt.Sprint(p.Processor.Served()),
		"busy_time": fmt.Sprint(p.Processor.BusyTime()),
	}
}
