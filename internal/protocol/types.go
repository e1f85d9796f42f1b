package protocol

import "unicode/utf8"

// Op is the envelope tag naming one remote operation.
type Op string

const (
	OpRead   Op = "Read"
	OpUpdate Op = "Update"
	OpWrite  Op = "Write"
	OpDelete Op = "Delete"
)

// ResponseKind selects how an operation's reply is decoded.
type ResponseKind int

const (
	// ResponseText is a raw text reply, "OK" on success.
	ResponseText ResponseKind = iota
	// ResponseJSON is a JSON object carrying a "value" record.
	ResponseJSON
)

// StatusOK is the exact mutation reply meaning success.
const StatusOK = "OK"

// KeySeparator joins table and record identifiers.
const KeySeparator = "-"

func (op Op) String() string {
	return string(op)
}

func (op Op) Valid() bool {
	switch op {
	case OpRead, OpUpdate, OpWrite, OpDelete:
		return true
	default:
		return false
	}
}

func (op Op) ResponseKind() ResponseKind {
	if op == OpRead {
		return ResponseJSON
	}
	return ResponseText
}

// HasValue reports whether the envelope for op carries a value payload.
func (op Op) HasValue() bool {
	return op == OpWrite || op == OpUpdate
}

// QualifiedKey returns the wire-level record identifier for key in table.
// Every operation addressing a record uses it, so reads see what writes stored.
func QualifiedKey(table, key string) string {
	return table + KeySeparator + key
}

// Request is one operation addressed to the server. Key is already qualified.
type Request struct {
	Op    Op
	Table string
	Key   string
	Value map[string]string
}

func (r Request) Validate() error {
	if !r.Op.Valid() {
		return ErrUnknownOp
	}
	if r.Table == "" {
		return ErrMissingTable
	}
	if r.Key == "" {
		return ErrMissingKey
	}
	// the encoder rewrites invalid bytes to U+FFFD, which would merge distinct keys
	if !utf8.ValidString(r.Table) || !utf8.ValidString(r.Key) {
		return ErrInvalidUTF8
	}
	if r.Op.HasValue() && len(r.Value) == 0 {
		return ErrMissingValue
	}
	return nil
}

// Response is one decoded server reply. Fields is set for reads, Text for mutations.
type Response struct {
	Op     Op
	Fields map[string]string
	Text   string
}
