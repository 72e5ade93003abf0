package tracing

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/sarchlab/ddesim/dde"
	"github.com/sarchlab/ddesim/resource"
	"github.com/sarchlab/ddesim/sim"
)

// The task kinds created from DDE hooks.
const (
	KindFire      = "fire"
	KindExecution = "execution"
)

// TraceFirings reports every firing of the process to the tracer as a task
// of kind "fire". The tasks carry the local time of the actor.
func TraceFirings(p *dde.Process, tracer Tracer) {
	p.AcceptHook(&firingHook{
		process: p,
		what:    actorKind(p.Actor()),
		tracer:  tracer,
	})
}

type firingHook struct {
	process *dde.Process
	what    string
	tracer  Tracer
}

func (h *firingHook) Func(ctx sim.HookCtx) {
	iteration, _ := ctx.Detail.(uint64)
	id := fmt.Sprintf("%s#%d", h.process.Name(), iteration)

	switch ctx.Pos {
	case dde.HookPosFireStart:
		h.tracer.StartTask(Task{
			ID:        id,
			Kind:      KindFire,
			What:      h.what,
			Location:  h.process.Name(),
			StartTime: h.process.CurrentTime(),
			Detail:    ctx.Item,
		})
	case dde.HookPosFireEnd:
		h.tracer.EndTask(Task{ID: id, EndTime: h.process.CurrentTime()})
	}
}

func actorKind(a dde.Actor) string {
	t := reflect.TypeOf(a)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	return t.Name()
}

// TraceExecutions reports the time each actor holds the resource of the
// scheduler to the tracer as a task of kind "execution". The tasks carry the
// times of the execution events.
func TraceExecutions(s *resource.Scheduler, tracer Tracer) {
	s.AcceptHook(&executionHook{
		tracer: tracer,
		open:   make(map[string]string),
		count:  make(map[string]int),
	})
}

type executionHook struct {
	tracer Tracer

	lock  sync.Mutex
	open  map[string]string
	count map[string]int
}

func (h *executionHook) Func(ctx sim.HookCtx) {
	evt, ok := ctx.Item.(resource.ExecutionEvent)
	if !ok || evt.Subject == evt.Scheduler {
		return
	}

	switch evt.Type {
	case resource.EventStart:
		h.start(evt)
	case resource.EventStop, resource.EventPreempted:
		h.stop(evt)
	}
}

func (h *executionHook) start(evt resource.ExecutionEvent) {
	h.lock.Lock()
	if _, running := h.open[evt.Subject]; running {
		h.lock.Unlock()
		return
	}

	id := fmt.Sprintf("%s@%s#%d", evt.Subject, evt.Scheduler,
		h.count[evt.Subject])
	h.count[evt.Subject]++
	h.open[evt.Subject] = id
	h.lock.Unlock()

	h.tracer.StartTask(Task{
		ID:        id,
		Kind:      KindExecution,
		What:      evt.Subject,
		Location:  evt.Scheduler,
		StartTime: evt.Time,
	})
}

func (h *executionHook) stop(evt resource.ExecutionEvent) {
	h.lock.Lock()
	id, running := h.open[evt.Subject]
	delete(h.open, evt.Subject)
	h.lock.Unlock()

	if running {
		h.tracer.EndTask(Task{ID: id, EndTime: evt.Time})
	}
}
