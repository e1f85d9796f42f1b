package protocol

import (
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// body is the operation object carried under the envelope tag.
type body struct {
	Table string            `json:"table"`
	Key   string            `json:"key"`
	Value map[string]string `json:"value,omitempty"`
}

type readReply struct {
	Value map[string]*string `json:"value"`
}

// EncodeRequest serializes req as {"<Op>":{"table":...,"key":...[,"value":{...}]}}.
func EncodeRequest(req Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	b := body{Table: req.Table, Key: req.Key}
	if req.Op.HasValue() {
		b.Value = req.Value
	}
	out, err := json.Marshal(map[string]body{req.Op.String(): b})
	if err != nil {
		return nil, errors.Wrapf(err, "protocol: encode %s", req.Op)
	}
	return out, nil
}

// WriteRequest encodes req and writes it to w in a single call.
func WriteRequest(w io.Writer, req Request) error {
	payload, err := EncodeRequest(req)
	if err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// EncodeReadResponse renders a read reply. Nil entries encode as JSON null.
func EncodeReadResponse(fields map[string]*string) ([]byte, error) {
	if fields == nil {
		fields = map[string]*string{}
	}
	out, err := json.Marshal(readReply{Value: fields})
	if err != nil {
		return nil, errors.Wrap(err, "protocol: encode read response")
	}
	return out, nil
}
