package tracing

import (
	"sync"

	"github.com/tebeka/atexit"

	"github.com/sarchlab/ddesim/datarecording"
	"github.com/sarchlab/ddesim/sim"
)

type taskTableEntry struct {
	ID        string
	ParentID  string
	Kind      string
	What      string
	Location  string
	StartTime float64
	EndTime   float64
}

// DBTracer is a tracer that can store tasks into a database.
//
// The tracer keeps the times that the tasks carry, so many actors, each with
// its own clock, can be traced into one table.
type DBTracer struct {
	lock      sync.Mutex
	backend   datarecording.DataRecorder
	tableName string

	startTime, endTime sim.VTimeInSec
	latest             sim.VTimeInSec

	tracingTasks map[string]Task
	terminated   bool
}

// NewDBTracer creates a new DBTracer that writes into the trace table of the
// recorder.
func NewDBTracer(dataRecorder datarecording.DataRecorder) *DBTracer {
	t := &DBTracer{
		backend:      dataRecorder,
		tableName:    "trace",
		endTime:      -1,
		tracingTasks: make(map[string]Task),
	}

	dataRecorder.CreateTable(t.tableName, taskTableEntry{})

	atexit.Register(func() {
		t.Terminate()
	})

	return t
}

// SetTimeRange limits the tracer to tasks that overlap with the range. A
// negative end time means no limit.
func (t *DBTracer) SetTimeRange(startTime, endTime sim.VTimeInSec) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.startTime = startTime
	t.endTime = endTime
}

func (t *DBTracer) now(carried sim.VTimeInSec) sim.VTimeInSec {
	if carried > t.latest {
		t.latest = carried
	}

	return carried
}

// StartTask marks the start of a task.
func (t *DBTracer) StartTask(task Task) {
	startingTaskMustBeValid(task)

	t.lock.Lock()
	defer t.lock.Unlock()

	task.StartTime = t.now(task.StartTime)
	if t.endTime >= 0 && task.StartTime > t.endTime {
		return
	}

	t.tracingTasks[task.ID] = task
}

func startingTaskMustBeValid(task Task) {
	if task.ID == "" {
		panic("task ID must be set")
	}

	if task.Kind == "" {
		panic("task kind must be set")
	}

	if task.What == "" {
		panic("task what must be set")
	}

	if task.Location == "" {
		panic("task location must be set")
	}
}

// EndTask marks the end of a task and writes it.
func (t *DBTracer) EndTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	originalTask, ok := t.tracingTasks[task.ID]
	if !ok {
		return
	}

	delete(t.tracingTasks, task.ID)

	originalTask.EndTime = t.now(task.EndTime)
	if originalTask.EndTime < t.startTime {
		return
	}

	t.write(originalTask)
}

// Terminate writes the unfinished tasks, ending them at the latest time the
// tracer has seen, and flushes the recorder.
func (t *DBTracer) Terminate() {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.terminated {
		return
	}

	t.terminated = true

	end := t.now(t.latest)
	for _, task := range t.tracingTasks {
		task.EndTime = end
		t.write(task)
	}

	t.tracingTasks = nil
	t.backend.Flush()
}

func (t *DBTracer) write(task Task) {
	t.backend.InsertData(t.tableName, taskTableEntry{
		ID:        task.ID,
		ParentID:  task.ParentID,
		Kind:      task.Kind,
		What:      task.What,
		Location:  task.Location,
		StartTime: float64(task.StartTime),
		EndTime:   float64(task.EndTime),
	})
}
