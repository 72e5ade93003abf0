package dde

import (
	"errors"
	"fmt"
)

var (
	// ErrTerminated is returned by every blocking call once the run is
	// scheduled to terminate. It unwinds the calling actor and is never a
	// fault.
	ErrTerminated = errors.New("dde: process terminated")

	// ErrNoToken is returned when reading from an empty timed queue.
	ErrNoToken = errors.New("dde: no token available")

	// ErrNoRoom is returned when writing to a full timed queue.
	ErrNoRoom = errors.New("dde: no room in receiver")

	// ErrNonMonotonicTime is returned when a concrete time is put behind the
	// last time of the same receiver.
	ErrNonMonotonicTime = errors.New("dde: time stamps must not decrease")
)

// A ConfigError reports a configuration fault. It is reported at the point of
// detection and never retried.
type ConfigError struct {
	Subject string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("dde: bad configuration of %s: %s", e.Subject, e.Reason)
}

// NewConfigError creates a ConfigError about the named subject.
func NewConfigError(subject, format string, args ...interface{}) error {
	return &ConfigError{
		Subject: subject,
		Reason:  fmt.Sprintf(format, args...),
	}
}

// IsConfigError returns true if err wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
