package datarecording

import (
	"github.com/sarchlab/ddesim/dde"
	"github.com/sarchlab/ddesim/resource"
	"github.com/sarchlab/ddesim/sim"
)

// DeadlockEntry is a row of the deadlocks table.
type DeadlockEntry struct {
	Director string
	Time     float64
	Kind     string
}

// TaskStatsEntry is a row of the task_stats table. It summarizes the traced
// tasks of one kind at one location.
type TaskStatsEntry struct {
	Kind        string
	Location    string
	Count       uint64
	TotalTime   float64
	BusyTime    float64
	AverageTime float64
}

// A DeadlockRecorder is a director hook that records every state in which
// all processes were blocked, together with how it was resolved.
type DeadlockRecorder struct {
	recorder  DataRecorder
	tableName string
}

// NewDeadlockRecorder creates the deadlocks table in the recorder.
func NewDeadlockRecorder(recorder DataRecorder) *DeadlockRecorder {
	h := &DeadlockRecorder{
		recorder:  recorder,
		tableName: "deadlocks",
	}

	recorder.CreateTable(h.tableName, DeadlockEntry{})

	return h
}

// Func records deadlock resolutions.
func (h *DeadlockRecorder) Func(ctx sim.HookCtx) {
	if ctx.Pos != dde.HookPosDeadlock {
		return
	}

	kind, ok := ctx.Detail.(dde.DeadlockKind)
	if !ok {
		return
	}

	entry := DeadlockEntry{Kind: kind.String()}

	if named, ok := ctx.Domain.(sim.Named); ok {
		entry.Director = named.Name()
	}

	switch t := ctx.Item.(type) {
	case sim.VTimeInSec:
		entry.Time = float64(t)
	default:
		if teller, ok := ctx.Domain.(sim.TimeTeller); ok {
			entry.Time = float64(teller.CurrentTime())
		}
	}

	h.recorder.InsertData(h.tableName, entry)
}

// ExecutionEntry is a row of the executions table.
type ExecutionEntry struct {
	Scheduler string
	Subject   string
	Type      string
	Time      float64
}

// An ExecutionRecorder is a resource scheduler hook that records when actors
// start and stop executing.
type ExecutionRecorder struct {
	recorder  DataRecorder
	tableName string
}

// NewExecutionRecorder creates the executions table in the recorder.
func NewExecutionRecorder(recorder DataRecorder) *ExecutionRecorder {
	h := &ExecutionRecorder{
		recorder:  recorder,
		tableName: "executions",
	}

	recorder.CreateTable(h.tableName, ExecutionEntry{})

	return h
}

// Func records execution events.
func (h *ExecutionRecorder) Func(ctx sim.HookCtx) {
	if ctx.Pos != resource.HookPosExecution {
		return
	}

	evt, ok := ctx.Item.(resource.ExecutionEvent)
	if !ok {
		return
	}

	h.recorder.InsertData(h.tableName, ExecutionEntry{
		Scheduler: evt.Scheduler,
		Subject:   evt.Subject,
		Type:      evt.Type.String(),
		Time:      float64(evt.Time),
	})
}
