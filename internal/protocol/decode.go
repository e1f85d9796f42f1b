package protocol

import (
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// DecodeResponse maps raw, the full reply to req, onto the op's result shape.
// Reads take the JSON path and mutations the text path.
func DecodeResponse(op Op, key string, raw []byte) (Response, error) {
	if !op.Valid() {
		return Response{}, ErrUnknownOp
	}
	switch op.ResponseKind() {
	case ResponseJSON:
		fields, err := DecodeReadResponse(raw)
		if err != nil {
			return Response{}, &ResponseError{Op: op, Key: key, Response: string(raw), Err: err}
		}
		return Response{Op: op, Fields: fields}, nil
	default:
		if err := DecodeStatusResponse(raw); err != nil {
			return Response{}, &ResponseError{Op: op, Key: key, Response: string(raw), Err: err}
		}
		return Response{Op: op, Text: string(raw)}, nil
	}
}

// DecodeReadResponse extracts the "value" record of a read reply.
// Null entries are dropped; any other non-string entry is an error.
func DecodeReadResponse(raw []byte) (map[string]string, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrMalformedResponse
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, errors.Wrapf(ErrMalformedResponse, "top level is %s", root.Type)
	}
	value := root.Get("value")
	if !value.IsObject() {
		return nil, ErrMissingValueField
	}

	fields := make(map[string]string)
	var typeErr error
	value.ForEach(func(k, v gjson.Result) bool {
		switch v.Type {
		case gjson.Null:
		case gjson.String:
			fields[k.String()] = v.String()
		default:
			typeErr = errors.Wrapf(ErrFieldType, "field %q is %s", k.String(), v.Type)
			return false
		}
		return true
	})
	if typeErr != nil {
		return nil, typeErr
	}
	return fields, nil
}

// DecodeStatusResponse accepts exactly "OK"; no trimming or case folding.
func DecodeStatusResponse(raw []byte) error {
	if string(raw) != StatusOK {
		return ErrNotOK
	}
	return nil
}

// ReadRequest decodes exactly one JSON envelope from r without waiting for EOF.
func ReadRequest(r io.Reader) (Request, []byte, error) {
	var raw jsoniter.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return Request{}, nil, errors.Wrap(ErrMalformedRequest, err.Error())
	}
	req, err := DecodeRequest(raw)
	return req, raw, err
}

// DecodeRequest parses one request envelope.
func DecodeRequest(raw []byte) (Request, error) {
	if !gjson.ValidBytes(raw) {
		return Request{}, ErrMalformedRequest
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return Request{}, errors.Wrapf(ErrMalformedRequest, "top level is %s", root.Type)
	}

	var (
		tag   string
		inner gjson.Result
		tags  int
	)
	root.ForEach(func(k, v gjson.Result) bool {
		tags++
		tag = k.String()
		inner = v
		return true
	})
	if tags != 1 {
		return Request{}, errors.Wrapf(ErrMalformedRequest, "expected one operation tag, got %d", tags)
	}
	op := Op(tag)
	if !op.Valid() {
		return Request{}, errors.Wrapf(ErrUnknownOp, "%q", tag)
	}
	if !inner.IsObject() {
		return Request{}, errors.Wrapf(ErrMalformedRequest, "%s body is %s", op, inner.Type)
	}

	req := Request{
		Op:    op,
		Table: inner.Get("table").String(),
		Key:   inner.Get("key").String(),
	}
	if op.HasValue() {
		value := inner.Get("value")
		if value.IsObject() {
			req.Value = make(map[string]string)
			var typeErr error
			value.ForEach(func(k, v gjson.Result) bool {
				if v.Type != gjson.String {
					typeErr = errors.Wrapf(ErrFieldType, "field %q is %s", k.String(), v.Type)
					return false
				}
				req.Value[k.String()] = v.String()
				return true
			})
			if typeErr != nil {
				return Request{}, typeErr
			}
		}
	}
	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}
