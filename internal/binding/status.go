package binding

import (
	"errors"

	"github.com/danmuck/ohuakv/internal/client"
)

// Status is the outcome reported to the harness for one operation.
type Status int

const (
	StatusOK Status = iota
	StatusError
	StatusNotImplemented
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNotImplemented:
		return "NOT_IMPLEMENTED"
	default:
		return "ERROR"
	}
}

// StatusOf maps an operation error to its harness status.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, client.ErrNotImplemented):
		return StatusNotImplemented
	default:
		return StatusError
	}
}
