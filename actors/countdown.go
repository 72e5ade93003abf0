package actors

import "github.com/sarchlab/ddesim/dde"

// A Countdown forwards an integer token decremented by one and drops it when
// it reaches zero.
type Countdown struct {
	*dde.ActorBase

	Input  *dde.Port
	Output *dde.Port

	dropped int
}

// NewCountdown adds a countdown to the model.
func NewCountdown(name string, m *dde.Model) *Countdown {
	c := &Countdown{ActorBase: dde.NewActorBase(name)}

	m.AddActor(c)
	c.Input = m.AddInput(c, "Input")
	c.Output = m.AddOutput(c, "Output")

	return c
}

// Dropped returns the number of tokens that reached zero.
func (c *Countdown) Dropped() int {
	return c.dropped
}

// Fire counts one token down.
func (c *Countdown) Fire(p *dde.Process) error {
	_, evt, err := p.NextInput()
	if err != nil {
		return err
	}

	n, ok := evt.Token.(int)
	if !ok {
		return dde.NewConfigError(c.Name(), "token %v is not a count", evt.Token)
	}

	if n <= 0 {
		c.dropped++
		return nil
	}

	return p.SendAt(c.Output, n-1, p.CurrentTime())
}
