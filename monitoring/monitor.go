package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/sarchlab/ddesim/dde"
	"github.com/sarchlab/ddesim/sim"
	"github.com/sarchlab/ddesim/tracing"
	"github.com/shirou/gopsutil/process"
	"github.com/sirupsen/logrus"
	"github.com/syifan/goseth"
)

// Monitor turns a running model into a server and allows external monitoring
// and termination of the run.
type Monitor struct {
	director    *dde.Director
	taskStats   *tracing.TimeTracer
	portNumber  int
	openBrowser bool
	log         logrus.FieldLogger

	server *http.Server

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		log: logrus.StandardLogger(),
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		m.log.Warnf("Port number %d is assigned to the monitoring server, "+
			"which is not allowed. Using a random port instead.", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowser makes the monitor open the API root in a browser once the
// server is listening.
func (m *Monitor) WithBrowser(open bool) *Monitor {
	m.openBrowser = open
	return m
}

// WithLogger sets the logger of the monitor.
func (m *Monitor) WithLogger(log logrus.FieldLogger) *Monitor {
	m.log = log
	return m
}

// RegisterDirector registers the director that coordinates the monitored
// model.
func (m *Monitor) RegisterDirector(d *dde.Director) {
	m.director = d
}

// RegisterTaskStats lets the monitor report the time statistics of the
// traced tasks.
func (m *Monitor) RegisterTaskStats(stats *tracing.TimeTracer) {
	m.taskStats = stats
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        sim.GetIDGenerator().Generate(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

func (m *Monitor) router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/blocks", m.blocks)
	r.HandleFunc("/api/actors", m.listActors)
	r.HandleFunc("/api/actor/{name}", m.listActorDetails)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/hangdetector/receivers", m.hangDetectorReceivers)
	r.HandleFunc("/api/terminate", m.terminate)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/tasks", m.listTaskStats)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)

	return r
}

// StartServer starts the monitor as a web server with a custom port if wanted.
// It returns the address that the server listens on.
func (m *Monitor) StartServer() string {
	if m.director == nil {
		panic("monitor has no director registered")
	}

	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	m.server = &http.Server{
		Handler:           m.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	addr := fmt.Sprintf("localhost:%d", listener.Addr().(*net.TCPAddr).Port)
	url := "http://" + addr + "/api/blocks"
	m.log.WithField("url", url).Info("monitoring simulation")

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			dieOnErr(err)
		}
	}()

	if m.openBrowser {
		if err := browser.OpenURL(url); err != nil {
			m.log.WithError(err).Warn("cannot open browser")
		}
	}

	return addr
}

// StopServer shuts the server down.
func (m *Monitor) StopServer(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	now := m.director.CurrentTime()
	fmt.Fprintf(w, "{\"now\":%.10f}", now)
}

func (m *Monitor) blocks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.director.Counts())
}

func (m *Monitor) terminate(w http.ResponseWriter, _ *http.Request) {
	m.log.Info("termination requested through the monitor")
	m.director.Terminate()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) listActors(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprint(w, "[")
	for i, p := range m.director.Processes() {
		if i > 0 {
			fmt.Fprint(w, ",")
		}

		fmt.Fprintf(w, "\"%s\"", p.Name())
	}
	fmt.Fprint(w, "]")
}

type actorRsp struct {
	Name       string  `json:"name"`
	Time       float64 `json:"time"`
	Iterations uint64  `json:"iterations"`
	Done       bool    `json:"done"`
	Waiting    bool    `json:"waiting_for_resume"`
}

func (m *Monitor) listActorDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	p := m.findProcessOr404(w, name)
	if p == nil {
		return
	}

	if r.URL.Query().Get("state") == "process" {
		writeJSON(w, actorRsp{
			Name:       p.Name(),
			Time:       float64(p.CurrentTime()),
			Iterations: p.Iterations(),
			Done:       p.IsDone(),
			Waiting:    p.IsWaitingForResume(),
		})

		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(p.Actor())
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

type fieldReq struct {
	ActorName string `json:"actor_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	jsonString := mux.Vars(r)["json"]
	req := fieldReq{}

	err := json.Unmarshal([]byte(jsonString), &req)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	p := m.findProcessOr404(w, req.ActorName)
	if p == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(p.Actor())
	serializer.SetMaxDepth(1)

	err = serializer.SetEntryPoint(strings.Split(req.FieldName, "."))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	err = serializer.Serialize(w)
	dieOnErr(err)
}

type receiverRsp struct {
	Receiver     string  `json:"receiver"`
	Level        int     `json:"level"`
	Cap          int     `json:"cap"`
	ReceiverTime float64 `json:"receiver_time"`
	ReadBlocked  bool    `json:"read_blocked"`
	WriteBlocked bool    `json:"write_blocked"`
}

func (m *Monitor) hangDetectorReceivers(w http.ResponseWriter, r *http.Request) {
	sortMethod, limit, offset, err := receiversParseParams(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	selected := sortAndSelectReceivers(
		m.director.Receivers(), sortMethod, limit, offset)

	rsp := make([]receiverRsp, 0, len(selected))
	for _, rcv := range selected {
		rsp = append(rsp, receiverRsp{
			Receiver:     rcv.Name(),
			Level:        rcv.Size(),
			Cap:          rcv.Capacity(),
			ReceiverTime: float64(rcv.ReceiverTime()),
			ReadBlocked:  rcv.IsReadBlocked(),
			WriteBlocked: rcv.IsWriteBlocked(),
		})
	}

	writeJSON(w, rsp)
}

func receiversParseParams(
	r *http.Request,
) (sort string, limit, offset int, err error) {
	sortMethod := r.URL.Query().Get("sort")
	if sortMethod == "" {
		sortMethod = "percent"
	}

	if sortMethod != "level" && sortMethod != "percent" {
		errStr := fmt.Sprintf(
			"Invalid sort method: %s. Allowed values are `level` and `percent`",
			sortMethod)
		return "", 0, 0, errors.New(errStr)
	}

	limitNumber, err := intParam(r, "limit")
	if err != nil {
		return sortMethod, 0, 0, err
	}

	offsetNumber, err := intParam(r, "offset")
	if err != nil {
		return sortMethod, limitNumber, 0, err
	}

	if limitNumber < 0 || offsetNumber < 0 {
		return sortMethod, 0, 0, errors.New("limit and offset must not be negative")
	}

	return sortMethod, limitNumber, offsetNumber, nil
}

func intParam(r *http.Request, name string) (int, error) {
	str := r.URL.Query().Get(name)
	if str == "" {
		return 0, nil
	}

	return strconv.Atoi(str)
}

type sizedReceiver interface {
	Size() int
	Capacity() int
}

func receiverPercent(r sizedReceiver) float64 {
	return float64(r.Size()) / float64(r.Capacity())
}

// sortAndSelectReceivers orders receivers from the fullest to the emptiest and
// returns a page of them. A zero limit returns everything after the offset.
func sortAndSelectReceivers(
	receivers []*dde.Receiver,
	sortMethod string,
	limit, offset int,
) []*dde.Receiver {
	sorted := make([]*dde.Receiver, len(receivers))
	copy(sorted, receivers)

	sizes := make(map[*dde.Receiver]int, len(sorted))
	percents := make(map[*dde.Receiver]float64, len(sorted))
	for _, r := range sorted {
		sizes[r] = r.Size()
		percents[r] = receiverPercent(r)
	}

	switch sortMethod {
	case "level":
		sort.SliceStable(sorted, func(i, j int) bool {
			si, sj := sizes[sorted[i]], sizes[sorted[j]]
			if si != sj {
				return si > sj
			}

			return percents[sorted[i]] > percents[sorted[j]]
		})
	case "percent":
		sort.SliceStable(sorted, func(i, j int) bool {
			pi, pj := percents[sorted[i]], percents[sorted[j]]
			if pi != pj {
				return pi > pj
			}

			return sizes[sorted[i]] > sizes[sorted[j]]
		})
	default:
		panic("Invalid sort method " + sortMethod)
	}

	if offset > len(sorted) {
		offset = len(sorted)
	}

	end := len(sorted)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	return sorted[offset:end]
}

func (m *Monitor) findProcessOr404(
	w http.ResponseWriter,
	name string,
) *dde.Process {
	for _, p := range m.director.Processes() {
		if p.Name() == name {
			return p
		}
	}

	w.WriteHeader(http.StatusNotFound)
	_, err := w.Write([]byte("Actor not found"))
	dieOnErr(err)

	return nil
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	bars := make([]progressBarRsp, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.snapshot())
	}
	m.progressBarsLock.Unlock()

	writeJSON(w, bars)
}

func (m *Monitor) listTaskStats(w http.ResponseWriter, _ *http.Request) {
	if m.taskStats == nil {
		writeJSON(w, []tracing.TimeStats{})
		return
	}

	writeJSON(w, m.taskStats.Stats())
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
