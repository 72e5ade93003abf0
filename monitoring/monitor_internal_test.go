package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ddesim/actors"
	"github.com/sarchlab/ddesim/dde"
	"github.com/sarchlab/ddesim/sim"
	"github.com/sarchlab/ddesim/tracing"
)

func get(m *Monitor, url string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	m.router().ServeHTTP(rec, req)

	return rec
}

var _ = Describe("Monitor", func() {
	var (
		m        *Monitor
		director *dde.Director
		model    *dde.Model
	)

	BeforeEach(func() {
		director = dde.MakeBuilder().Build("Director")
		model = dde.NewModel("Model", director, 4)

		clock := actors.MakeClockBuilder().WithCount(2).Build("Clock", model)
		sink := actors.NewRecorder("Sink", model)
		model.Connect(clock.Output, sink.Input)

		m = NewMonitor()
		m.RegisterDirector(director)
	})

	Context("after a run", func() {
		BeforeEach(func() {
			Expect(model.Run(context.Background())).To(Succeed())
		})

		It("should report the time", func() {
			rsp := get(m, "/api/now")

			Expect(rsp.Code).To(Equal(http.StatusOK))
			Expect(rsp.Body.String()).To(Equal("{\"now\":1.0000000000}"))
		})

		It("should report the block counters", func() {
			rsp := get(m, "/api/blocks")

			counts := dde.BlockCounts{}
			Expect(json.Unmarshal(rsp.Body.Bytes(), &counts)).To(Succeed())
			Expect(counts.Terminated).To(BeTrue())
			Expect(counts.Now).To(Equal(sim.VTimeInSec(1)))
			Expect(counts.Deadlocks).To(HaveKey("time"))
		})

		It("should list actors", func() {
			rsp := get(m, "/api/actors")

			Expect(rsp.Body.String()).To(Equal("[\"Clock\",\"Sink\"]"))
		})

		It("should report the process state of an actor", func() {
			rsp := get(m, "/api/actor/Clock?state=process")

			state := actorRsp{}
			Expect(json.Unmarshal(rsp.Body.Bytes(), &state)).To(Succeed())
			Expect(state.Name).To(Equal("Clock"))
			Expect(state.Iterations).To(Equal(uint64(2)))
			Expect(state.Done).To(BeTrue())
		})

		It("should return 404 for an unknown actor", func() {
			rsp := get(m, "/api/actor/Nobody")

			Expect(rsp.Code).To(Equal(http.StatusNotFound))
		})

		It("should list receivers", func() {
			rsp := get(m, "/api/hangdetector/receivers?sort=level")

			var receivers []receiverRsp
			Expect(json.Unmarshal(rsp.Body.Bytes(), &receivers)).To(Succeed())
			Expect(receivers).To(HaveLen(1))
			Expect(receivers[0].Receiver).To(Equal("Sink.Input.Receiver[0]"))
			Expect(receivers[0].Cap).To(Equal(4))
			Expect(receivers[0].Level).To(Equal(0))
		})
	})

	It("should reject an unknown sort method", func() {
		rsp := get(m, "/api/hangdetector/receivers?sort=name")

		Expect(rsp.Code).To(Equal(http.StatusBadRequest))
	})

	It("should reject a malformed limit", func() {
		rsp := get(m, "/api/hangdetector/receivers?limit=many")

		Expect(rsp.Code).To(Equal(http.StatusBadRequest))
	})

	It("should page receivers", func() {
		receivers := director.Receivers()

		Expect(sortAndSelectReceivers(receivers, "percent", 0, 0)).
			To(HaveLen(1))
		Expect(sortAndSelectReceivers(receivers, "percent", 1, 1)).
			To(BeEmpty())
		Expect(sortAndSelectReceivers(receivers, "level", 5, 0)).
			To(HaveLen(1))
	})

	It("should terminate the director", func() {
		rsp := get(m, "/api/terminate")

		Expect(rsp.Code).To(Equal(http.StatusOK))
		Expect(director.IsTerminated()).To(BeTrue())
	})

	It("should track progress bars", func() {
		bar := m.CreateProgressBar("Firings", 10)
		bar.IncrementInProgress(3)
		bar.MoveInProgressToFinished(2)
		bar.IncrementFinished(1)

		rsp := get(m, "/api/progress")

		var bars []progressBarRsp
		Expect(json.Unmarshal(rsp.Body.Bytes(), &bars)).To(Succeed())
		Expect(bars).To(HaveLen(1))
		Expect(bars[0].Name).To(Equal("Firings"))
		Expect(bars[0].Total).To(Equal(uint64(10)))
		Expect(bars[0].InProgress).To(Equal(uint64(1)))
		Expect(bars[0].Finished).To(Equal(uint64(3)))

		m.CompleteProgressBar(bar)

		rsp = get(m, "/api/progress")
		Expect(rsp.Body.String()).To(Equal("[]"))
	})

	It("should count firings on a progress bar", func() {
		bar := m.CreateProgressBar("Firings", 0)
		NewFiringProgress(bar).Attach(director)

		Expect(model.Run(context.Background())).To(Succeed())

		snapshot := bar.snapshot()
		Expect(snapshot.InProgress).To(BeZero())
		Expect(snapshot.Finished).To(BeNumerically(">=", 4))
	})

	It("should report task statistics", func() {
		Expect(get(m, "/api/tasks").Body.String()).To(Equal("[]"))

		stats := tracing.NewTimeTracer(nil)
		m.RegisterTaskStats(stats)
		tracing.TraceFirings(model.Process("Clock"), stats)
		Expect(model.Run(context.Background())).To(Succeed())

		var rsp []tracing.TimeStats
		Expect(json.Unmarshal(get(m, "/api/tasks").Body.Bytes(), &rsp)).
			To(Succeed())
		Expect(rsp).To(HaveLen(1))
		Expect(rsp[0].Kind).To(Equal(tracing.KindFire))
		Expect(rsp[0].Location).To(Equal("Clock"))
		Expect(rsp[0].Count).To(Equal(uint64(2)))
	})

	It("should report process resources", func() {
		rsp := get(m, "/api/resource")

		res := resourceRsp{}
		Expect(json.Unmarshal(rsp.Body.Bytes(), &res)).To(Succeed())
		Expect(res.MemorySize).To(BeNumerically(">", 0))
	})

	It("should fall back to a random port", func() {
		m.WithPortNumber(80)

		Expect(m.portNumber).To(Equal(0))
	})

	It("should serve over http", func() {
		addr := m.StartServer()
		defer func() {
			Expect(m.StopServer(context.Background())).To(Succeed())
		}()

		rsp, err := http.Get("http://" + addr + "/api/actors")
		Expect(err).NotTo(HaveOccurred())
		defer rsp.Body.Close()

		Expect(rsp.StatusCode).To(Equal(http.StatusOK))
	})
})
