package monitoring

import (
	"sync"
	"time"

	"github.com/sarchlab/ddesim/dde"
	"github.com/sarchlab/ddesim/sim"
)

// A ProgressBar is a tracker of the progress
type ProgressBar struct {
	sync.Mutex
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	Total      uint64    `json:"total"`
	Finished   uint64    `json:"finished"`
	InProgress uint64    `json:"in_progress"`
}

type progressBarRsp struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	Total      uint64    `json:"total"`
	Finished   uint64    `json:"finished"`
	InProgress uint64    `json:"in_progress"`
}

func (b *ProgressBar) snapshot() progressBarRsp {
	b.Lock()
	defer b.Unlock()

	return progressBarRsp{
		ID:         b.ID,
		Name:       b.Name,
		StartTime:  b.StartTime,
		Total:      b.Total,
		Finished:   b.Finished,
		InProgress: b.InProgress,
	}
}

// IncrementInProgress adds the number of in-progress element.
func (b *ProgressBar) IncrementInProgress(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.InProgress += amount
}

// IncrementFinished add a certain amount to finished element.
func (b *ProgressBar) IncrementFinished(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.Finished += amount
}

// MoveInProgressToFinished reduces the number of in progress item by a certain
// amount and increase the finished item by the same amount.
func (b *ProgressBar) MoveInProgressToFinished(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.InProgress -= amount
	b.Finished += amount
}

// FiringProgress is a hook that counts actor firings on a progress bar. A
// firing is in progress between its start and its end.
type FiringProgress struct {
	bar *ProgressBar
}

// NewFiringProgress creates a hook that reports firings to the bar.
func NewFiringProgress(bar *ProgressBar) *FiringProgress {
	return &FiringProgress{bar: bar}
}

// Attach registers the hook on every process of the director.
func (h *FiringProgress) Attach(d *dde.Director) {
	for _, p := range d.Processes() {
		p.AcceptHook(h)
	}
}

// Func updates the bar.
func (h *FiringProgress) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case dde.HookPosFireStart:
		h.bar.IncrementInProgress(1)
	case dde.HookPosFireEnd:
		h.bar.MoveInProgressToFinished(1)
	}
}
