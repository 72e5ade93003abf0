package tracing

// A Tracer can collect task traces.
type Tracer interface {
	StartTask(task Task)
	EndTask(task Task)
}

// Tracers forwards every task to each tracer in order.
type Tracers []Tracer

// StartTask forwards the start of a task.
func (ts Tracers) StartTask(task Task) {
	for _, t := range ts {
		t.StartTask(task)
	}
}

// EndTask forwards the end of a task.
func (ts Tracers) EndTask(task Task) {
	for _, t := range ts {
		t.EndTask(task)
	}
}
