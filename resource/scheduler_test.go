package resource

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/ddesim/dde"
	"github.com/sarchlab/ddesim/sim"
)

type taskActor struct {
	*dde.ActorBase

	fire func(p *dde.Process) error
	runs int
}

func newTaskActor(name string) *taskActor {
	return &taskActor{ActorBase: dde.NewActorBase(name)}
}

func (a *taskActor) Fire(p *dde.Process) error {
	a.runs++

	if a.fire == nil {
		return nil
	}

	return a.fire(p)
}

type eventRecorder struct {
	lock   sync.Mutex
	events []ExecutionEvent
}

func (r *eventRecorder) Func(ctx sim.HookCtx) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.events = append(r.events, ctx.Item.(ExecutionEvent))
}

func (r *eventRecorder) of(subject string) []ExecutionEvent {
	r.lock.Lock()
	defer r.lock.Unlock()

	var events []ExecutionEvent
	for _, e := range r.events {
		if e.Subject == subject {
			events = append(events, e)
		}
	}

	return events
}

var _ = Describe("Scheduler", func() {
	var (
		mockCtrl  *gomock.Controller
		director  *MockDirector
		port      *MockRequestPort
		owner     *taskActor
		actor     *taskActor
		scheduler *Scheduler
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		director = NewMockDirector(mockCtrl)
		port = NewMockRequestPort(mockCtrl)
		owner = newTaskActor("CPU")
		actor = newTaskActor("Task")

		director.EXPECT().CurrentTime().Return(sim.VTimeInSec(3)).AnyTimes()
		port.EXPECT().Name().Return("CPU.Request").AnyTimes()
		port.EXPECT().Owner().Return(owner).AnyTimes()

		scheduler = MakeBuilder().
			WithDirector(director).
			Build("Scheduler")
		scheduler.AddRequestPort(port)
		scheduler.SetRequestPort(actor, "CPU.Request")
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should panic without a director", func() {
		Expect(func() { MakeBuilder().Build("Scheduler") }).To(Panic())
	})

	It("should post a request and fire the owner", func() {
		scheduler.SetAttributes(actor, Attributes{Execution: 2, Urgency: 5})

		port.EXPECT().Post(gomock.Any()).DoAndReturn(func(req Request) error {
			Expect(req.ID).NotTo(BeEmpty())
			Expect(req.Actor).To(BeIdenticalTo(actor))
			Expect(req.ExecutionTime).To(Equal(sim.VTimeInSec(2)))
			Expect(req.Priority).To(Equal(5))
			Expect(req.Time).To(Equal(sim.VTimeInSec(3)))
			return nil
		})
		director.EXPECT().FireAtCurrentTime(owner).Return(nil)

		t, err := scheduler.Schedule(actor, 3, 10)

		Expect(err).NotTo(HaveOccurred())
		Expect(t).To(Equal(sim.Infinity))
		Expect(scheduler.IsWaitingForResource(actor)).To(BeTrue())
		Expect(scheduler.LastScheduledActorFinished()).To(BeFalse())
	})

	It("should not repost while the actor executes", func() {
		port.EXPECT().Post(gomock.Any()).Return(nil).Times(1)
		director.EXPECT().FireAtCurrentTime(owner).Return(nil).Times(1)

		_, err := scheduler.Schedule(actor, 3, sim.Infinity)
		Expect(err).NotTo(HaveOccurred())

		_, err = scheduler.Schedule(actor, 4, sim.Infinity)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should use the actor's own execution time", func() {
		other := &timedTask{taskActor: newTaskActor("Timed"), exec: 7}
		scheduler.SetRequestPort(other, "CPU.Request")

		port.EXPECT().Post(gomock.Any()).DoAndReturn(func(req Request) error {
			Expect(req.ExecutionTime).To(Equal(sim.VTimeInSec(7)))
			return nil
		})
		director.EXPECT().FireAtCurrentTime(owner).Return(nil)

		_, err := scheduler.Schedule(other, 3, sim.Infinity)

		Expect(err).NotTo(HaveOccurred())
	})

	It("should clamp a negative execution time", func() {
		scheduler.SetAttributes(actor, Attributes{Execution: -1})

		port.EXPECT().Post(gomock.Any()).DoAndReturn(func(req Request) error {
			Expect(req.ExecutionTime).To(Equal(sim.VTimeInSec(0)))
			return nil
		})
		director.EXPECT().FireAtCurrentTime(owner).Return(nil)

		_, err := scheduler.Schedule(actor, 3, sim.Infinity)

		Expect(err).NotTo(HaveOccurred())
	})

	It("should report an actor without a request port", func() {
		stranger := newTaskActor("Stranger")

		_, err := scheduler.Schedule(stranger, 3, sim.Infinity)

		Expect(dde.IsConfigError(err)).To(BeTrue())
		Expect(scheduler.IsWaitingForResource(stranger)).To(BeFalse())
	})

	It("should report a missing request port", func() {
		scheduler.SetRequestPort(actor, "GPU.Request")

		_, err := scheduler.Schedule(actor, 3, sim.Infinity)

		Expect(dde.IsConfigError(err)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("GPU.Request"))
	})

	It("should resume served actors on postfire", func() {
		port.EXPECT().Post(gomock.Any()).Return(nil)
		director.EXPECT().FireAtCurrentTime(owner).Return(nil)
		director.EXPECT().ResumeActor(actor).Return(nil)

		_, err := scheduler.Schedule(actor, 3, sim.Infinity)
		Expect(err).NotTo(HaveOccurred())

		scheduler.Complete(Completion{Request: Request{Actor: actor}, Time: 5})
		Expect(scheduler.Postfire()).To(Succeed())

		Expect(scheduler.IsWaitingForResource(actor)).To(BeFalse())
		Expect(scheduler.LastScheduledActorFinished()).To(BeTrue())
	})

	It("should emit execution events", func() {
		recorder := &eventRecorder{}
		scheduler.AcceptHook(recorder)

		port.EXPECT().Post(gomock.Any()).Return(nil)
		director.EXPECT().FireAtCurrentTime(owner).Return(nil)
		director.EXPECT().ResumeActor(actor).Return(nil)

		_, err := scheduler.Schedule(actor, 3, sim.Infinity)
		Expect(err).NotTo(HaveOccurred())
		scheduler.Complete(Completion{Request: Request{Actor: actor}, Time: 5})
		Expect(scheduler.Postfire()).To(Succeed())

		events := recorder.of("Task")
		Expect(events).To(HaveLen(2))
		Expect(events[0].Type).To(Equal(EventStart))
		Expect(events[0].Time).To(Equal(sim.VTimeInSec(3)))
		Expect(events[1].Type).To(Equal(EventStop))
		Expect(events[1].Time).To(Equal(sim.VTimeInSec(5)))

		Expect(recorder.of("Scheduler")).To(HaveLen(2))
	})

	Context("when only monitoring", func() {
		BeforeEach(func() {
			scheduler = MakeBuilder().
				WithDirector(director).
				WithJustMonitor(true).
				Build("Monitor")
			scheduler.AddRequestPort(port)
			scheduler.SetRequestPort(actor, "CPU.Request")
		})

		It("should not gate the actor", func() {
			port.EXPECT().Post(gomock.Any()).Return(nil)
			director.EXPECT().FireAtCurrentTime(owner).Return(nil)

			t, err := scheduler.Schedule(actor, 3, sim.Infinity)

			Expect(err).NotTo(HaveOccurred())
			Expect(t).To(Equal(sim.VTimeInSec(0)))
			Expect(scheduler.LastScheduledActorFinished()).To(BeTrue())
		})

		It("should post once per time", func() {
			port.EXPECT().Post(gomock.Any()).Return(nil).Times(2)
			director.EXPECT().FireAtCurrentTime(owner).Return(nil).Times(2)

			for _, t := range []sim.VTimeInSec{3, 3, 4} {
				_, err := scheduler.Schedule(actor, t, sim.Infinity)
				Expect(err).NotTo(HaveOccurred())
			}
		})
	})
})

type timedTask struct {
	*taskActor
	exec sim.VTimeInSec
}

func (t *timedTask) ExecutionTime() sim.VTimeInSec {
	return t.exec
}
