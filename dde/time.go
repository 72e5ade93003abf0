package dde

import (
	"math"

	"github.com/sarchlab/ddesim/sim"
)

// Reserved receiver times. None of them is a valid simulated time.
const (
	// Ignore marks a placeholder event that should not stall the ordering
	// of the other receivers of an actor.
	Ignore sim.VTimeInSec = -1

	// Inactive marks an event beyond the completion horizon of a receiver.
	// Inactive events are never delivered by a blocking receiver.
	Inactive sim.VTimeInSec = -2

	// ReceiverSentinel is the time of a receiver that has been wrapped up
	// and must not be read until it is reset.
	ReceiverSentinel sim.VTimeInSec = -3

	// Eternity is the completion time of a receiver without a horizon.
	Eternity sim.VTimeInSec = -5
)

// IsConcrete returns true if t is a simulated time rather than a reserved
// marker.
func IsConcrete(t sim.VTimeInSec) bool {
	return t >= 0
}

// orderKey maps a receiver time to the value used to sort the receivers of
// an actor. Ignore sorts before every concrete time; Inactive and the wrap-up
// sentinel sort after.
func orderKey(t sim.VTimeInSec) float64 {
	switch t {
	case Ignore:
		return math.Inf(-1)
	case Inactive, ReceiverSentinel:
		return math.Inf(1)
	}

	return float64(t)
}

// TimeString renders a time for logs, naming the reserved markers.
func TimeString(t sim.VTimeInSec) string {
	switch t {
	case Ignore:
		return "IGNORE"
	case Inactive:
		return "INACTIVE"
	case ReceiverSentinel:
		return "RECEIVER_SENTINEL"
	case Eternity:
		return "ETERNITY"
	}

	return formatTime(t)
}
