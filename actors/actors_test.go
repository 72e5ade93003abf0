package actors

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ddesim/dde"
	"github.com/sarchlab/ddesim/resource"
	"github.com/sarchlab/ddesim/sim"
)

func tokens(r *Recorder) []dde.Token {
	var tokens []dde.Token
	for _, rec := range r.Records() {
		tokens = append(tokens, rec.Token)
	}

	return tokens
}

var _ = Describe("Actors", func() {
	var (
		director *dde.Director
		model    *dde.Model
	)

	BeforeEach(func() {
		director = dde.MakeBuilder().Build("Director")
		model = dde.NewModel("Model", director, 4)
	})

	It("should tick", func() {
		clock := MakeClockBuilder().
			WithPeriod(2).
			WithCount(3).
			Build("Clock", model)
		sink := NewRecorder("Sink", model)
		model.Connect(clock.Output, sink.Input)

		Expect(model.Run(context.Background())).To(Succeed())

		Expect(clock.Sent()).To(Equal(3))
		Expect(sink.Times()).To(Equal([]sim.VTimeInSec{0, 2, 4}))
		Expect(tokens(sink)).To(Equal([]dde.Token{0, 1, 2}))
		Expect(sink.Records()[0].Port).To(Equal("Sink.Input"))
	})

	It("should emit a fixed value", func() {
		clock := MakeClockBuilder().
			WithStart(1).
			WithCount(2).
			WithValue("Tick").
			Build("Clock", model)
		sink := NewRecorder("Sink", model)
		model.Connect(clock.Output, sink.Input)

		Expect(model.Run(context.Background())).To(Succeed())

		Expect(sink.Times()).To(Equal([]sim.VTimeInSec{1, 2}))
		Expect(tokens(sink)).To(Equal([]dde.Token{"Tick", "Tick"}))
	})

	It("should reject a clock without a period", func() {
		clock := MakeClockBuilder().WithPeriod(0).Build("Clock", model)
		sink := NewRecorder("Sink", model)
		model.Connect(clock.Output, sink.Input)

		err := model.Run(context.Background())

		Expect(dde.IsConfigError(err)).To(BeTrue())
	})

	It("should merge in timestamp order", func() {
		even := MakeClockBuilder().
			WithPeriod(2).
			WithCount(3).
			WithValue("Even").
			Build("Even", model)
		odd := MakeClockBuilder().
			WithStart(1).
			WithPeriod(2).
			WithCount(3).
			WithValue("Odd").
			Build("Odd", model)
		merge := NewMerge("Merge", model, 2)
		sink := NewRecorder("Sink", model)

		model.Connect(even.Output, merge.Inputs[0])
		model.Connect(odd.Output, merge.Inputs[1])
		model.Connect(merge.Output, sink.Input)

		Expect(model.Run(context.Background())).To(Succeed())

		Expect(sink.Times()).To(Equal([]sim.VTimeInSec{0, 1, 2, 3, 4, 5}))
		Expect(tokens(sink)).To(Equal([]dde.Token{
			"Even", "Odd", "Even", "Odd", "Even", "Odd",
		}))
	})

	It("should count down and drop", func() {
		clock := MakeClockBuilder().
			WithCount(3).
			Build("Clock", model)
		countdown := NewCountdown("Countdown", model)
		sink := NewRecorder("Sink", model)
		model.Connect(clock.Output, countdown.Input)
		model.Connect(countdown.Output, sink.Input)

		Expect(model.Run(context.Background())).To(Succeed())

		Expect(countdown.Dropped()).To(Equal(1))
		Expect(tokens(sink)).To(Equal([]dde.Token{0, 1}))
		Expect(sink.Times()).To(Equal([]sim.VTimeInSec{1, 2}))
	})

	It("should reject tokens that are not counts", func() {
		clock := MakeClockBuilder().
			WithCount(1).
			WithValue("Tick").
			Build("Clock", model)
		countdown := NewCountdown("Countdown", model)
		sink := NewRecorder("Sink", model)
		model.Connect(clock.Output, countdown.Input)
		model.Connect(countdown.Output, sink.Input)

		err := model.Run(context.Background())

		Expect(dde.IsConfigError(err)).To(BeTrue())
	})

	Context("FBDelay", func() {
		It("should use the default parameters", func() {
			delay := MakeFBDelayBuilder().Build("Delay", model)

			Expect(delay.Delay()).To(Equal(sim.VTimeInSec(4)))
			Expect(delay.nullDelay).To(BeTrue())
			Expect(delay.realDelay).To(BeFalse())
		})

		It("should seed ignored tokens and show null tokens", func() {
			clock := MakeClockBuilder().WithCount(1).Build("Clock", model)
			delay := MakeFBDelayBuilder().Build("Delay", model)
			sink := NewRecorder("Sink", model)
			in := model.Connect(clock.Output, delay.Input)
			out := model.Connect(delay.Output, sink.Input)

			Expect(delay.Initialize(nil)).To(Succeed())

			Expect(out.LastTime()).To(Equal(dde.Ignore))
			Expect(out.ReceiverTime()).To(Equal(dde.Ignore))
			Expect(in.HidesNullTokens()).To(BeFalse())
			Expect(out.HidesNullTokens()).To(BeTrue())
		})

		It("should reject a negative delay", func() {
			delay := MakeFBDelayBuilder().WithDelay(-1).Build("Delay", model)

			err := delay.Initialize(nil)

			Expect(dde.IsConfigError(err)).To(BeTrue())
		})

		It("should keep the time of real tokens by default", func() {
			clock := MakeClockBuilder().WithCount(3).Build("Clock", model)
			delay := MakeFBDelayBuilder().Build("Delay", model)
			sink := NewRecorder("Sink", model)
			model.Connect(clock.Output, delay.Input)
			model.Connect(delay.Output, sink.Input)

			Expect(model.Run(context.Background())).To(Succeed())

			Expect(sink.Times()).To(Equal([]sim.VTimeInSec{0, 1, 2}))
		})

		It("should delay real tokens when asked", func() {
			clock := MakeClockBuilder().WithCount(3).Build("Clock", model)
			delay := MakeFBDelayBuilder().
				WithDelay(0.5).
				WithRealDelay(true).
				Build("Delay", model)
			sink := NewRecorder("Sink", model)
			model.Connect(clock.Output, delay.Input)
			model.Connect(delay.Output, sink.Input)

			Expect(model.Run(context.Background())).To(Succeed())

			Expect(sink.Times()).To(Equal([]sim.VTimeInSec{0.5, 1.5, 2.5}))
			Expect(tokens(sink)).To(Equal([]dde.Token{0, 1, 2}))
		})
	})

	It("should hold tokens on a shared resource", func() {
		scheduler := resource.MakeBuilder().
			WithDirector(director).
			Build("Scheduler")
		cpu := resource.NewProcessor("CPU", scheduler)
		model.AddActor(cpu)

		clock := MakeClockBuilder().WithCount(3).Build("Clock", model)
		task := MakeTaskBuilder().
			WithScheduler(scheduler).
			WithRequestPort(cpu.RequestPort().Name()).
			WithExecutionTime(2).
			Build("Task", model)
		sink := NewRecorder("Sink", model)
		model.Connect(clock.Output, task.Input)
		model.Connect(task.Output, sink.Input)

		Expect(model.Run(context.Background())).To(Succeed())

		Expect(sink.Times()).To(Equal([]sim.VTimeInSec{2, 4, 6}))
		Expect(tokens(sink)).To(Equal([]dde.Token{0, 1, 2}))
		Expect(cpu.Served()).To(Equal(3))
	})

	It("should delay ticks behind a slow task on full receivers", func() {
		model = dde.NewModel("Model", director, 1)

		scheduler := resource.MakeBuilder().
			WithDirector(director).
			Build("Scheduler")
		cpu := resource.NewProcessor("CPU", scheduler)
		model.AddActor(cpu)

		clock := MakeClockBuilder().WithCount(5).Build("Clock", model)
		task := MakeTaskBuilder().
			WithScheduler(scheduler).
			WithRequestPort(cpu.RequestPort().Name()).
			WithExecutionTime(5).
			Build("Task", model)
		sink := NewRecorder("Sink", model)
		model.Connect(clock.Output, task.Input)
		model.Connect(task.Output, sink.Input)

		Expect(model.Run(context.Background())).To(Succeed())

		Expect(clock.Sent()).To(Equal(5))
		Expect(tokens(sink)).To(Equal([]dde.Token{0, 1, 2, 3, 4}))
		Expect(sink.Times()).To(Equal(
			[]sim.VTimeInSec{5, 10, 15, 20, 25}))
		Expect(cpu.Served()).To(Equal(5))
	})
})
