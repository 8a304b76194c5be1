package autotrace

import (
	"errors"
	"fmt"
)

var (
	ErrSessionClosed  = errors.New("autotrace: session is closed")
	ErrSessionRunning = errors.New("autotrace: session is already running")
	ErrNoMemory       = errors.New("autotrace: target memory is required")
	ErrNoPropagators  = errors.New("autotrace: no propagators configured")
)

// ErrInvalidOption is returned by NewSession when an option is out of range.
type ErrInvalidOption interface {
	Option() string
	error
}

type invalidOptionError struct {
	option string
	value  interface{}
}

func newErrInvalidOption(option string, value interface{}) ErrInvalidOption {
	return invalidOptionError{option: option, value: value}
}

func (e invalidOptionError) Option() string {
	return e.option
}

func (e invalidOptionError) Error() string {
	return fmt.Sprintf("autotrace: invalid %s: %v", e.option, e.value)
}
