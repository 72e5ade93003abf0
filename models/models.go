// Package models contains the demonstration models that the ddesim command
// can run.
package models

import (
	"fmt"
	"sort"

	"github.com/sarchlab/ddesim/actors"
	"github.com/sarchlab/ddesim/config"
	"github.com/sarchlab/ddesim/simulation"
)

// A Demo is a model built into a simulation. Its sink collects the tokens
// that leave the model.
type Demo interface {
	Sink() *actors.Recorder
	Summary() map[string]string
}

// BuildFunc adds a demo model to a simulation. The parameters are scoped to
// the model.
type BuildFunc func(s *simulation.Simulation, params *config.Params) (Demo, error)

var registry = map[string]BuildFunc{
	"feedback": BuildFeedback,
	"pipeline": BuildPipeline,
}

// Names lists the demo models.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Build adds the named demo to the simulation. Its parameters are read from
// the scope named after the model, so the feedback delay is FEEDBACK_DELAY.
func Build(
	name string,
	s *simulation.Simulation,
	params *config.Params,
) (Demo, error) {
	build, found := registry[name]
	if !found {
		return nil, fmt.Errorf("unknown model %q, available models are %v",
			name, Names())
	}

	scoped := params.Scope(name)
	for _, key := range scoped.Keys() {
		s.SetProperty(name+"."+key, scoped.String(key, ""))
	}

	return build(s, scoped)
}
