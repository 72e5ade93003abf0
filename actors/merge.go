package actors

import (
	"fmt"

	"github.com/sarchlab/ddesim/dde"
)

// A Merge forwards the tokens of all its inputs in timestamp order.
type Merge struct {
	*dde.ActorBase

	Inputs []*dde.Port
	Output *dde.Port
}

// NewMerge adds a merge with the given number of inputs to the model. The
// inputs are named In0, In1, and so on.
func NewMerge(name string, m *dde.Model, inputs int) *Merge {
	merge := &Merge{ActorBase: dde.NewActorBase(name)}

	m.AddActor(merge)

	for i := 0; i < inputs; i++ {
		merge.Inputs = append(merge.Inputs,
			m.AddInput(merge, fmt.Sprintf("In%d", i)))
	}

	merge.Output = m.AddOutput(merge, "Output")

	return merge
}

// Fire forwards the earliest token.
func (m *Merge) Fire(p *dde.Process) error {
	_, evt, err := p.NextInput()
	if err != nil {
		return err
	}

	return p.SendAt(m.Output, evt.Token, p.CurrentTime())
}
