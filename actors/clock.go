package actors

import (
	"github.com/sarchlab/ddesim/dde"
	"github.com/sarchlab/ddesim/sim"
)

// A Clock emits one token every period on its output port.
type Clock struct {
	*dde.ActorBase

	Output *dde.Port

	start  sim.VTimeInSec
	period sim.VTimeInSec
	count  int
	value  dde.Token

	sent int
}

// Initialize rewinds the clock.
func (c *Clock) Initialize(_ *dde.Process) error {
	if c.period <= 0 {
		return dde.NewConfigError(c.Name(), "period must be positive")
	}

	c.sent = 0

	return nil
}

// Fire sleeps until the next tick and emits the token. A tick delayed by a
// blocked write is emitted at the time the clock wakes up.
func (c *Clock) Fire(p *dde.Process) error {
	t := c.start + sim.VTimeInSec(c.sent)*c.period

	if err := p.WaitUntil(t); err != nil {
		return err
	}

	if now := p.CurrentTime(); now > t {
		t = now
	}

	var token dde.Token = c.sent
	if c.value != nil {
		token = c.value
	}

	if err := p.SendAt(c.Output, token, t); err != nil {
		return err
	}

	c.sent++

	return nil
}

// Postfire stops the clock after count ticks. A zero count never stops.
func (c *Clock) Postfire(_ *dde.Process) (bool, error) {
	return c.count == 0 || c.sent < c.count, nil
}

// Sent returns the number of emitted tokens.
func (c *Clock) Sent() int {
	return c.sent
}

// ClockBuilder builds clocks.
type ClockBuilder struct {
	start  sim.VTimeInSec
	period sim.VTimeInSec
	count  int
	value  dde.Token
}

// MakeClockBuilder returns a builder for a clock that ticks every second.
func MakeClockBuilder() ClockBuilder {
	return ClockBuilder{period: 1}
}

// WithStart sets the time of the first tick.
func (b ClockBuilder) WithStart(t sim.VTimeInSec) ClockBuilder {
	b.start = t
	return b
}

// WithPeriod sets the time between ticks.
func (b ClockBuilder) WithPeriod(period sim.VTimeInSec) ClockBuilder {
	b.period = period
	return b
}

// WithCount sets the number of ticks.
func (b ClockBuilder) WithCount(count int) ClockBuilder {
	b.count = count
	return b
}

// WithValue sets the token to emit. By default the tick index is emitted.
func (b ClockBuilder) WithValue(value dde.Token) ClockBuilder {
	b.value = value
	return b
}

// Build adds a clock to the model.
func (b ClockBuilder) Build(name string, m *dde.Model) *Clock {
	c := &Clock{
		ActorBase: dde.NewActorBase(name),
		start:     b.start,
		period:    b.period,
		count:     b.count,
		value:     b.value,
	}

	m.AddActor(c)
	c.Output = m.AddOutput(c, "Output")

	return c
}
