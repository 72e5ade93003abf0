package dde

import (
	"strconv"

	"github.com/sarchlab/ddesim/sim"
)

// A Token is an opaque payload carried between actors.
type Token interface{}

type nullToken struct{}

func (nullToken) String() string {
	return "NullToken"
}

// NullToken is the placeholder payload. It advances the time of a channel
// without delivering data.
var NullToken Token = nullToken{}

// IsNull returns true if the token is the NullToken.
func IsNull(t Token) bool {
	_, ok := t.(nullToken)
	return ok
}

// A TimedEvent is a token together with its timestamp.
type TimedEvent struct {
	Token Token
	Time  sim.VTimeInSec
}

// IsNull returns true if the event carries the NullToken.
func (e TimedEvent) IsNull() bool {
	return IsNull(e.Token)
}

// IsInactive returns true if the event is beyond the completion horizon of
// the receiver it was put into. Consumers must discard inactive events.
func (e TimedEvent) IsInactive() bool {
	return e.Time == Inactive
}

// IsIgnore returns true if the event is an ignore placeholder.
func (e TimedEvent) IsIgnore() bool {
	return e.Time == Ignore
}

func formatTime(t sim.VTimeInSec) string {
	return strconv.FormatFloat(float64(t), 'g', -1, 64)
}
