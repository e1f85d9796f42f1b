package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownOp         = errors.New("protocol: unknown operation")
	ErrMissingTable      = errors.New("protocol: missing table")
	ErrMissingKey        = errors.New("protocol: missing key")
	ErrMissingValue      = errors.New("protocol: missing value payload")
	ErrInvalidUTF8       = errors.New("protocol: table or key is not valid UTF-8")
	ErrMalformedRequest  = errors.New("protocol: malformed request envelope")
	ErrMalformedResponse = errors.New("protocol: malformed response")
	ErrMissingValueField = errors.New("protocol: response missing value object")
	ErrFieldType         = errors.New("protocol: field value is not a string")
	ErrNotOK             = errors.New("protocol: server did not answer OK")
)

// ResponseError reports a response that could not be mapped to a successful result.
// Response holds the raw server payload for diagnostics.
type ResponseError struct {
	Op       Op
	Key      string
	Response string
	Err      error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("protocol: %s key=%q: %v (response=%q)", e.Op, e.Key, e.Err, e.Response)
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}
