package client

import (
	"errors"
	"fmt"

	"github.com/danmuck/ohuakv/internal/protocol"
)

var ErrNotImplemented = errors.New("client: operation not implemented")

// Stage names the point of an exchange where a transport failure happened.
type Stage string

const (
	StageDial  Stage = "dial"
	StageWrite Stage = "write"
	StageRead  Stage = "read"
)

// TransportError is a connect or I/O failure for one operation.
type TransportError struct {
	Op    protocol.Op
	Key   string
	Addr  string
	Stage Stage
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("client: %s key=%q %s %s: %v", e.Op, e.Key, e.Stage, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
