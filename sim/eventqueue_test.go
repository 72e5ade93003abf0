package sim

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type timedEvent struct {
	time VTimeInSec
	id   int
}

func (e timedEvent) Time() VTimeInSec {
	return e.time
}

var _ = Describe("EventQueueImpl", func() {
	var (
		queue *EventQueueImpl
	)

	BeforeEach(func() {
		queue = NewEventQueue()
	})

	It("should pop in order", func() {
		numEvents := 100
		for i := 0; i < numEvents; i++ {
			queue.Push(timedEvent{time: VTimeInSec(rand.Float64())})
		}

		Expect(queue.Len()).To(Equal(numEvents))

		now := VTimeInSec(-1)
		for i := 0; i < numEvents; i++ {
			event := queue.Pop()
			Expect(event.Time() >= now).To(BeTrue())
			now = event.Time()
		}

		Expect(queue.Pop()).To(BeNil())
		Expect(queue.Peek()).To(BeNil())
	})

	It("should keep push order for equal times", func() {
		for i := 0; i < 10; i++ {
			queue.Push(timedEvent{time: 1, id: i})
		}
		queue.Push(timedEvent{time: 0.5, id: 99})

		Expect(queue.Peek().(timedEvent).id).To(Equal(99))
		queue.Pop()

		for i := 0; i < 10; i++ {
			Expect(queue.Pop().(timedEvent).id).To(Equal(i))
		}
	})
})

var _ = Describe("IDGenerator", func() {
	It("should generate sequential ids", func() {
		g := &sequentialIDGenerator{}
		Expect(g.Generate()).To(Equal("1"))
		Expect(g.Generate()).To(Equal("2"))
	})

	It("should generate unique parallel ids", func() {
		g := &parallelIDGenerator{}
		Expect(g.Generate()).NotTo(Equal(g.Generate()))
	})
})
