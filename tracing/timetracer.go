package tracing

import (
	"sort"
	"sync"

	"github.com/sarchlab/ddesim/sim"
)

// TimeStats summarizes the finished tasks of one kind at one location.
type TimeStats struct {
	Kind        string         `json:"kind"`
	Location    string         `json:"location"`
	Count       uint64         `json:"count"`
	TotalTime   sim.VTimeInSec `json:"total_time"`
	BusyTime    sim.VTimeInSec `json:"busy_time"`
	AverageTime sim.VTimeInSec `json:"average_time"`
}

type interval struct {
	start, end sim.VTimeInSec
}

type statsKey struct {
	kind, location string
}

type statsEntry struct {
	count uint64
	total sim.VTimeInSec

	// Sorted and disjoint.
	busy []interval
}

// TimeTracer collects how long tasks last, per kind and location. The total
// time adds overlapping tasks up, while the busy time counts an overlap once.
//
// The tracer uses the times that the tasks carry. Every actor has its own
// clock, so one tracer can follow many actors.
type TimeTracer struct {
	filter TaskFilter

	lock     sync.Mutex
	inflight map[string]Task
	entries  map[statsKey]*statsEntry
}

// NewTimeTracer creates a tracer that keeps the tasks that pass the filter. A
// nil filter keeps every task.
func NewTimeTracer(filter TaskFilter) *TimeTracer {
	return &TimeTracer{
		filter:   filter,
		inflight: make(map[string]Task),
		entries:  make(map[statsKey]*statsEntry),
	}
}

// StartTask records the start of a task.
func (t *TimeTracer) StartTask(task Task) {
	if !keep(t.filter, task) {
		return
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	t.inflight[task.ID] = task
}

// EndTask records the end of a task.
func (t *TimeTracer) EndTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	original, ok := t.inflight[task.ID]
	if !ok {
		return
	}

	delete(t.inflight, task.ID)
	t.finishLocked(original, task.EndTime)
}

// TerminateAllTasks ends the unfinished tasks at now.
func (t *TimeTracer) TerminateAllTasks(now sim.VTimeInSec) {
	t.lock.Lock()
	defer t.lock.Unlock()

	for _, task := range t.inflight {
		t.finishLocked(task, now)
	}

	t.inflight = make(map[string]Task)
}

// InflightCount returns the number of unfinished tasks.
func (t *TimeTracer) InflightCount() int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return len(t.inflight)
}

func (t *TimeTracer) finishLocked(task Task, end sim.VTimeInSec) {
	if end < task.StartTime {
		end = task.StartTime
	}

	key := statsKey{kind: task.Kind, location: task.Location}

	e, found := t.entries[key]
	if !found {
		e = &statsEntry{}
		t.entries[key] = e
	}

	e.count++
	e.total += end - task.StartTime
	e.busy = addInterval(e.busy, interval{start: task.StartTime, end: end})
}

// addInterval inserts iv into the sorted disjoint intervals and merges the
// intervals that it touches.
func addInterval(intervals []interval, iv interval) []interval {
	merged := make([]interval, 0, len(intervals)+1)

	i := 0
	for ; i < len(intervals) && intervals[i].end < iv.start; i++ {
		merged = append(merged, intervals[i])
	}

	for ; i < len(intervals) && intervals[i].start <= iv.end; i++ {
		if intervals[i].start < iv.start {
			iv.start = intervals[i].start
		}

		if intervals[i].end > iv.end {
			iv.end = intervals[i].end
		}
	}

	merged = append(merged, iv)

	return append(merged, intervals[i:]...)
}

// Stats returns the statistics ordered by kind and location.
func (t *TimeTracer) Stats() []TimeStats {
	t.lock.Lock()
	defer t.lock.Unlock()

	stats := make([]TimeStats, 0, len(t.entries))
	for key, e := range t.entries {
		s := TimeStats{
			Kind:      key.kind,
			Location:  key.location,
			Count:     e.count,
			TotalTime: e.total,
		}

		for _, iv := range e.busy {
			s.BusyTime += iv.end - iv.start
		}

		if e.count > 0 {
			s.AverageTime = e.total / sim.VTimeInSec(e.count)
		}

		stats = append(stats, s)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Kind != stats[j].Kind {
			return stats[i].Kind < stats[j].Kind
		}

		return stats[i].Location < stats[j].Location
	})

	return stats
}
