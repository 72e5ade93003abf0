package dde

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Receiver", func() {
	var (
		d *Director
		k *TimeKeeper
	)

	newInput := func(name string, capacity, priority int) *Receiver {
		r := NewReceiver(name, capacity, d, k)
		r.SetPriority(priority)
		k.AddInput(r)
		d.addReceiver(r)

		return r
	}

	BeforeEach(func() {
		d = MakeBuilder().Build("Director")
		k = NewTimeKeeper("Actor")
	})

	It("should deliver events in fifo order", func() {
		r := newInput("R", 8, 0)
		for i := 0; i < 5; i++ {
			Expect(r.Put(i, 1)).To(Succeed())
		}

		for i := 0; i < 5; i++ {
			ok, err := r.HasToken()
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			evt, err := r.Get()
			Expect(err).NotTo(HaveOccurred())
			Expect(evt.Token).To(Equal(i))
		}
	})

	It("should advance the owner to the time of the event", func() {
		r := newInput("R", 8, 0)
		Expect(r.Put("a", 2.5)).To(Succeed())

		_, err := r.Get()

		Expect(err).NotTo(HaveOccurred())
		Expect(k.CurrentTime()).To(BeNumerically("==", 2.5))
	})

	It("should break ties by priority", func() {
		r1 := newInput("R1", 4, 1)
		r2 := newInput("R2", 4, 2)
		Expect(r1.Put("low", 5)).To(Succeed())
		Expect(r2.Put("high", 5)).To(Succeed())

		for i := 0; i < 100; i++ {
			ok, err := r1.HasToken()
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())

			ok, err = r2.HasToken()
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		}
	})

	It("should break ties by registration order with equal priorities", func() {
		r1 := newInput("R1", 4, 0)
		r2 := newInput("R2", 4, 0)
		Expect(r1.Put("first", 5)).To(Succeed())
		Expect(r2.Put("second", 5)).To(Succeed())

		ok, _ := r2.HasToken()
		Expect(ok).To(BeFalse())

		ok, _ = r1.HasToken()
		Expect(ok).To(BeTrue())
	})

	It("should not deliver a later receiver", func() {
		r1 := newInput("R1", 4, 0)
		r2 := newInput("R2", 4, 0)
		Expect(r1.Put("early", 1)).To(Succeed())
		Expect(r2.Put("late", 3)).To(Succeed())

		ok, _ := r2.HasToken()
		Expect(ok).To(BeFalse())

		ok, _ = r1.HasToken()
		Expect(ok).To(BeTrue())
	})

	It("should let a real token win over a null token at the same time", func() {
		rNull := newInput("RNull", 4, 2)
		rReal := newInput("RReal", 4, 1)
		Expect(rNull.Put(NullToken, 3)).To(Succeed())
		Expect(rReal.Put("real", 3)).To(Succeed())

		ok, _ := rNull.HasToken()
		Expect(ok).To(BeFalse())

		ok, _ = rReal.HasToken()
		Expect(ok).To(BeTrue())
	})

	It("should only let the highest priority null qualify", func() {
		r1 := newInput("R1", 4, 1)
		r2 := newInput("R2", 4, 2)
		r1.HideNullTokens(false)
		r2.HideNullTokens(false)
		Expect(r1.Put(NullToken, 3)).To(Succeed())
		Expect(r2.Put(NullToken, 3)).To(Succeed())

		ok, _ := r1.HasToken()
		Expect(ok).To(BeFalse())

		ok, _ = r2.HasToken()
		Expect(ok).To(BeTrue())
	})

	It("should consume hidden null tokens", func() {
		r := newInput("R", 4, 0)
		Expect(r.Put(NullToken, 1)).To(Succeed())
		Expect(r.Put("real", 2)).To(Succeed())

		ok, err := r.HasToken()

		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(r.Size()).To(Equal(1))
		Expect(k.CurrentTime()).To(BeNumerically("==", 1))

		evt, _ := r.Get()
		Expect(evt.Token).To(Equal("real"))
	})

	It("should deliver null tokens when they are not hidden", func() {
		r := newInput("R", 4, 0)
		r.HideNullTokens(false)
		Expect(r.Put(NullToken, 1)).To(Succeed())

		ok, _ := r.HasToken()
		Expect(ok).To(BeTrue())

		evt, _ := r.Get()
		Expect(evt.IsNull()).To(BeTrue())
	})

	It("should alternate on ignored receivers", func() {
		rIgnore := newInput("RIgnore", 4, 0)
		rReal := newInput("RReal", 4, 0)
		Expect(rIgnore.Put(NullToken, Ignore)).To(Succeed())
		Expect(rReal.Put("real", 2)).To(Succeed())

		ok, err := rIgnore.HasToken()
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
		Expect(rIgnore.Size()).To(Equal(1))

		ok, err = rIgnore.HasToken()
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
		Expect(rIgnore.Size()).To(Equal(0))
		Expect(rIgnore.ReceiverTime()).To(BeNumerically("==", 0))
	})

	It("should not let an ignored receiver bound the next time", func() {
		rIgnore := newInput("RIgnore", 4, 0)
		rReal := newInput("RReal", 4, 0)
		Expect(rIgnore.Put(NullToken, Ignore)).To(Succeed())
		Expect(rReal.Put("real", 2)).To(Succeed())

		ok, _ := rReal.HasToken()
		Expect(ok).To(BeTrue())
	})

	It("should terminate when every receiver is inactive", func() {
		r := newInput("R", 2, 0)
		r.SetCompletionTime(10)
		Expect(r.Put("A", 3)).To(Succeed())
		Expect(r.Put("B", 11)).To(Succeed())

		ok, err := r.HasToken()
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		evt, _ := r.Get()
		Expect(evt.Token).To(Equal("A"))

		_, err = r.HasToken()
		Expect(err).To(MatchError(ErrTerminated))
		Expect(r.Size()).To(Equal(1))
	})

	It("should not deliver an inactive receiver while others are active", func() {
		rInactive := newInput("RInactive", 2, 0)
		rActive := newInput("RActive", 2, 0)
		Expect(rInactive.Put(NullToken, Inactive)).To(Succeed())
		Expect(rActive.Put("a", 1)).To(Succeed())

		ok, err := rInactive.HasToken()
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		ok, _ = rActive.HasToken()
		Expect(ok).To(BeTrue())
	})

	It("should wake a blocked reader on put", func() {
		r := newInput("R", 4, 0)
		got := make(chan TimedEvent, 1)

		go func() {
			defer GinkgoRecover()

			ok, err := r.HasToken()
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			evt, err := r.Get()
			Expect(err).NotTo(HaveOccurred())
			got <- evt
		}()

		Eventually(func() int { return d.Counts().InternalRead }).
			Should(Equal(1))
		Expect(r.IsReadBlocked()).To(BeTrue())

		Expect(r.Put("wake", 1)).To(Succeed())

		Eventually(got, time.Second).Should(Receive(HaveField("Token", "wake")))
		Expect(d.Counts().InternalRead).To(Equal(0))
	})

	It("should count reads on boundary receivers as external", func() {
		r := newInput("R", 4, 0)
		r.SetBoundary(true)
		done := make(chan struct{})

		go func() {
			defer GinkgoRecover()
			_, err := r.Get()
			Expect(err).NotTo(HaveOccurred())
			close(done)
		}()

		Eventually(func() int { return d.Counts().ExternalRead }).
			Should(Equal(1))
		Expect(d.Counts().InternalRead).To(Equal(0))

		Expect(r.Put("x", 1)).To(Succeed())

		Eventually(done).Should(BeClosed())
		Expect(d.Counts().ExternalRead).To(Equal(0))
	})

	It("should block writers on a full receiver", func() {
		r := newInput("R", 1, 0)
		Expect(r.Put("a", 1)).To(Succeed())

		written := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			Expect(r.Put("b", 2)).To(Succeed())
			close(written)
		}()

		Eventually(func() int { return d.Counts().Write }).Should(Equal(1))
		Consistently(written, 50*time.Millisecond).ShouldNot(BeClosed())

		evt, err := r.Get()
		Expect(err).NotTo(HaveOccurred())
		Expect(evt.Token).To(Equal("a"))

		Eventually(written).Should(BeClosed())
		Expect(d.Counts().Write).To(Equal(0))
		Expect(r.Size()).To(Equal(1))
	})

	It("should release a blocked writer when a hidden null is consumed", func() {
		r := newInput("R", 1, 0)
		Expect(r.Put(NullToken, 1)).To(Succeed())

		written := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			Expect(r.Put("x", 2)).To(Succeed())
			close(written)
		}()

		Eventually(r.IsWriteBlocked).Should(BeTrue())

		ok, err := r.HasToken()
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		Eventually(written).Should(BeClosed())
		Expect(d.Counts().Write).To(Equal(0))

		evt, err := r.Get()
		Expect(err).NotTo(HaveOccurred())
		Expect(evt.Token).To(Equal("x"))
	})

	It("should release a blocked writer when an ignored event is dropped", func() {
		rIgnore := newInput("RIgnore", 1, 0)
		rReal := newInput("RReal", 4, 0)
		Expect(rIgnore.Put(NullToken, Ignore)).To(Succeed())
		Expect(rReal.Put("real", 2)).To(Succeed())

		written := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			Expect(rIgnore.Put("late", 3)).To(Succeed())
			close(written)
		}()

		Eventually(rIgnore.IsWriteBlocked).Should(BeTrue())

		ok, err := rIgnore.HasToken()
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
		Consistently(written, 50*time.Millisecond).ShouldNot(BeClosed())

		ok, err = rIgnore.HasToken()
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		Eventually(written).Should(BeClosed())
		Expect(d.Counts().Write).To(Equal(0))
		Expect(rIgnore.Size()).To(Equal(1))
	})

	It("should keep the kind of a write block when the boundary changes", func() {
		r := newInput("R", 1, 0)
		r.SetBoundary(true)
		Expect(r.Put("a", 1)).To(Succeed())

		written := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			Expect(r.Put("b", 2)).To(Succeed())
			close(written)
		}()

		Eventually(func() int { return d.Counts().ExternalWrite }).
			Should(Equal(1))
		r.SetBoundary(false)

		_, err := r.Get()
		Expect(err).NotTo(HaveOccurred())

		Eventually(written).Should(BeClosed())
		Expect(d.Counts().ExternalWrite).To(Equal(0))
		Expect(d.Counts().Write).To(Equal(0))
	})

	It("should grow a write-blocked receiver", func() {
		r := newInput("R", 1, 0)
		Expect(r.Put("a", 1)).To(Succeed())
		Expect(r.GrowCapacity(4)).To(BeFalse())

		written := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			Expect(r.Put("b", 2)).To(Succeed())
			close(written)
		}()

		Eventually(r.IsWriteBlocked).Should(BeTrue())
		Expect(r.GrowCapacity(4)).To(BeTrue())

		Eventually(written).Should(BeClosed())
		Expect(r.Capacity()).To(Equal(2))
		Expect(d.Counts().Write).To(Equal(0))
	})

	It("should unwind blocked readers on termination", func() {
		r := newInput("R", 4, 0)
		errs := make(chan error, 1)

		go func() {
			_, err := r.HasToken()
			errs <- err
		}()

		Eventually(func() int { return d.Counts().InternalRead }).
			Should(Equal(1))

		r.RequestFinish()

		Eventually(errs).Should(Receive(MatchError(ErrTerminated)))
		Expect(d.Counts().InternalRead).To(Equal(0))
	})

	It("should unwind blocked writers on termination", func() {
		r := newInput("R", 1, 0)
		Expect(r.Put("a", 1)).To(Succeed())
		errs := make(chan error, 1)

		go func() {
			errs <- r.Put("b", 2)
		}()

		Eventually(func() int { return d.Counts().Write }).Should(Equal(1))

		d.Terminate()

		Eventually(errs).Should(Receive(MatchError(ErrTerminated)))
		Expect(d.Counts().Write).To(Equal(0))
	})

	It("should reject decreasing times", func() {
		r := newInput("R", 4, 0)
		Expect(r.Put("a", 3)).To(Succeed())
		Expect(r.Put("b", 1)).To(MatchError(ErrNonMonotonicTime))
	})

	It("should send null tokens downstream after a get", func() {
		r := newInput("R", 4, 0)

		downKeeper := NewTimeKeeper("Downstream")
		down := NewReceiver("Down", 4, d, downKeeper)
		k.AddOutput(down)

		Expect(r.Put("a", 4)).To(Succeed())
		_, err := r.Get()
		Expect(err).NotTo(HaveOccurred())

		Expect(down.Size()).To(Equal(1))
		Expect(down.HasNullToken()).To(BeTrue())
		Expect(down.LastTime()).To(BeNumerically("==", 4))
	})
})
