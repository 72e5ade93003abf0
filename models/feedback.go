package models

import (
	"fmt"

	"github.com/sarchlab/ddesim/actors"
	"github.com/sarchlab/ddesim/config"
	"github.com/sarchlab/ddesim/sim"
	"github.com/sarchlab/ddesim/simulation"
)

// Feedback is a loop in which a value circles through a delay until it counts
// down to zero. Every round of the loop reaches the sink.
//
//	Source -> Merge -> Sink
//	           ^  \
//	           |   Countdown
//	           |     |
//	           +- Delay
type Feedback struct {
	Source    *actors.Clock
	Merge     *actors.Merge
	Countdown *actors.Countdown
	Delay     *actors.FBDelay
	Recorder  *actors.Recorder
}

// BuildFeedback adds the feedback model to the simulation. It reads VALUE,
// COUNT, PERIOD, and DELAY.
func BuildFeedback(
	s *simulation.Simulation,
	params *config.Params,
) (Demo, error) {
	value, err := params.Int("value", 3)
	if err != nil {
		return nil, err
	}

	count, err := params.Int("count", 1)
	if err != nil {
		return nil, err
	}

	period, err := params.Float("period", 1)
	if err != nil {
		return nil, err
	}

	delay, err := params.Float("delay", 0.25)
	if err != nil {
		return nil, err
	}

	if count <= 0 {
		return nil, fmt.Errorf("feedback count must be positive, got %d", count)
	}

	m := s.Model()
	f := &Feedback{}

	f.Source = actors.MakeClockBuilder().
		WithPeriod(sim.VTimeInSec(period)).
		WithCount(count).
		WithValue(value).
		Build("Source", m)
	f.Merge = actors.NewMerge("Merge", m, 2)
	f.Countdown = actors.NewCountdown("Countdown", m)
	f.Delay = actors.MakeFBDelayBuilder().
		WithDelay(sim.VTimeInSec(delay)).
		WithRealDelay(true).
		Build("Delay", m)
	f.Recorder = actors.NewRecorder("Sink", m)

	m.Connect(f.Source.Output, f.Merge.Inputs[0])
	m.Connect(f.Merge.Output, f.Recorder.Input)
	m.Connect(f.Merge.Output, f.Countdown.Input)
	m.Connect(f.Countdown.Output, f.Delay.Input)
	m.Connect(f.Delay.Output, f.Merge.Inputs[1])

	return f, nil
}

// Sink returns the recorder behind the merge.
func (f *Feedback) Sink() *actors.Recorder {
	return f.Recorder
}

// Summary reports how many values left the loop.
func (f *Feedback) Summary() map[string]string {
	return map[string]string{
		"sent":     fmt.Sprint(f.Source.Sent()),
		"recorded": fmt.Sprint(len(f.Recorder.Records())),
		"dropped":  fmt.Sprint(f.Countdown.Dropped()),
	}
}
