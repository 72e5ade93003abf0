package actors

import (
	"github.com/sarchlab/ddesim/dde"
	"github.com/sarchlab/ddesim/sim"
)

// An FBDelay breaks the symmetry of a feedback loop. It seeds its
// downstream receivers with ignored tokens so that the loop can start, and
// it adds a delay to the timestamps of the tokens it forwards so that null
// tokens cannot circulate without time passing.
type FBDelay struct {
	*dde.ActorBase

	Input  *dde.Port
	Output *dde.Port

	delay     sim.VTimeInSec
	nullDelay bool
	realDelay bool
}

// Delay returns the delay added to timestamps.
func (d *FBDelay) Delay() sim.VTimeInSec {
	return d.delay
}

// Initialize seeds the loop.
func (d *FBDelay) Initialize(_ *dde.Process) error {
	if d.delay < 0 {
		return dde.NewConfigError(d.Name(), "delay %v is negative", d.delay)
	}

	for _, r := range d.Output.Remotes() {
		if err := r.Put(dde.NullToken, dde.Ignore); err != nil {
			return err
		}
	}

	for _, r := range d.Input.Receivers() {
		r.HideNullTokens(false)
	}

	return nil
}

// Fire forwards one token, real or null.
func (d *FBDelay) Fire(p *dde.Process) error {
	_, evt, err := p.NextInput()
	if err != nil {
		return err
	}

	t := p.CurrentTime()
	if (evt.IsNull() && d.nullDelay) || (!evt.IsNull() && d.realDelay) {
		t += d.delay
	}

	return p.SendAt(d.Output, evt.Token, t)
}

// FBDelayBuilder builds FBDelay actors.
type FBDelayBuilder struct {
	delay     sim.VTimeInSec
	nullDelay bool
	realDelay bool
}

// MakeFBDelayBuilder returns a builder for an FBDelay that delays null
// tokens by 4 seconds.
func MakeFBDelayBuilder() FBDelayBuilder {
	return FBDelayBuilder{
		delay:     4,
		nullDelay: true,
	}
}

// WithDelay sets the delay.
func (b FBDelayBuilder) WithDelay(delay sim.VTimeInSec) FBDelayBuilder {
	b.delay = delay
	return b
}

// WithNullDelay sets whether null tokens are delayed.
func (b FBDelayBuilder) WithNullDelay(delayed bool) FBDelayBuilder {
	b.nullDelay = delayed
	return b
}

// WithRealDelay sets whether real tokens are delayed.
func (b FBDelayBuilder) WithRealDelay(delayed bool) FBDelayBuilder {
	b.realDelay = delayed
	return b
}

// Build adds an FBDelay to the model.
func (b FBDelayBuilder) Build(name string, m *dde.Model) *FBDelay {
	d := &FBDelay{
		ActorBase: dde.NewActorBase(name),
		delay:     b.delay,
		nullDelay: b.nullDelay,
		realDelay: b.realDelay,
	}

	m.AddActor(d)
	d.Input = m.AddInput(d, "Input")
	d.Output = m.AddOutput(d, "Output")

	return d
}
