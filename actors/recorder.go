package actors

import (
	"sync"

	"github.com/sarchlab/ddesim/dde"
	"github.com/sarchlab/ddesim/sim"
)

// A Record is a token that reached a recorder.
type Record struct {
	Port  string
	Time  sim.VTimeInSec
	Token dde.Token
}

// A Recorder is a sink that keeps every token it receives.
type Recorder struct {
	*dde.ActorBase

	Input *dde.Port

	lock    sync.Mutex
	records []Record
}

// NewRecorder adds a recorder to the model.
func NewRecorder(name string, m *dde.Model) *Recorder {
	r := &Recorder{ActorBase: dde.NewActorBase(name)}

	m.AddActor(r)
	r.Input = m.AddInput(r, "Input")

	return r
}

// Initialize forgets the records of a previous run.
func (r *Recorder) Initialize(_ *dde.Process) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.records = nil

	return nil
}

// Fire records one token.
func (r *Recorder) Fire(p *dde.Process) error {
	receiver, evt, err := p.NextInput()
	if err != nil {
		return err
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	r.records = append(r.records, Record{
		Port:  receiver.Port().Name(),
		Time:  p.CurrentTime(),
		Token: evt.Token,
	})

	return nil
}

// Records returns a copy of the received tokens in arrival order.
func (r *Recorder) Records() []Record {
	r.lock.Lock()
	defer r.lock.Unlock()

	return append([]Record(nil), r.records...)
}

// Times returns the arrival times of the tokens.
func (r *Recorder) Times() []sim.VTimeInSec {
	var times []sim.VTimeInSec
	for _, rec := range r.Records() {
		times = append(times, rec.Time)
	}

	return times
}
