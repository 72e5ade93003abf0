package actors

import (
	"github.com/sarchlab/ddesim/dde"
	"github.com/sarchlab/ddesim/resource"
	"github.com/sarchlab/ddesim/sim"
)

// A Task is a pipeline stage that needs a resource. For every token, it
// waits until the resource has executed it and then forwards the token.
type Task struct {
	*dde.ActorBase

	Input  *dde.Port
	Output *dde.Port

	scheduler     *resource.Scheduler
	executionTime sim.VTimeInSec
	priority      int
}

// ExecutionTime returns how long each token occupies the resource.
func (t *Task) ExecutionTime() sim.VTimeInSec {
	return t.executionTime
}

// Priority returns the urgency of the task's requests.
func (t *Task) Priority() int {
	return t.priority
}

// Fire processes one token.
func (t *Task) Fire(p *dde.Process) error {
	_, evt, err := p.NextInput()
	if err != nil {
		return err
	}

	if err := resource.Acquire(p, t.scheduler); err != nil {
		return err
	}

	return p.SendAt(t.Output, evt.Token, p.CurrentTime())
}

// TaskBuilder builds tasks.
type TaskBuilder struct {
	scheduler     *resource.Scheduler
	requestPort   string
	executionTime sim.VTimeInSec
	priority      int
}

// MakeTaskBuilder returns a builder for tasks.
func MakeTaskBuilder() TaskBuilder {
	return TaskBuilder{}
}

// WithScheduler sets the scheduler that grants the resource.
func (b TaskBuilder) WithScheduler(s *resource.Scheduler) TaskBuilder {
	b.scheduler = s
	return b
}

// WithRequestPort sets the name of the request port the task is bound to.
func (b TaskBuilder) WithRequestPort(name string) TaskBuilder {
	b.requestPort = name
	return b
}

// WithExecutionTime sets how long each token occupies the resource.
func (b TaskBuilder) WithExecutionTime(t sim.VTimeInSec) TaskBuilder {
	b.executionTime = t
	return b
}

// WithPriority sets the urgency of the task's requests.
func (b TaskBuilder) WithPriority(priority int) TaskBuilder {
	b.priority = priority
	return b
}

// Build adds a task to the model and binds it to its request port.
func (b TaskBuilder) Build(name string, m *dde.Model) *Task {
	if b.scheduler == nil {
		panic("task " + name + " needs a scheduler")
	}

	t := &Task{
		ActorBase:     dde.NewActorBase(name),
		scheduler:     b.scheduler,
		executionTime: b.executionTime,
		priority:      b.priority,
	}

	m.AddActor(t)
	t.Input = m.AddInput(t, "Input")
	t.Output = m.AddOutput(t, "Output")

	if b.requestPort != "" {
		b.scheduler.SetRequestPort(t, b.requestPort)
	}

	return t
}
