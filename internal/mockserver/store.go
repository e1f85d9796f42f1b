package mockserver

import (
	"github.com/danmuck/ohuakv/internal/protocol"
	"github.com/puzpuzpuz/xsync/v3"
)

// Store is an in-memory record map keyed by qualified key.
type Store struct {
	records *xsync.MapOf[string, map[string]string]
}

func NewStore() *Store {
	return &Store{records: xsync.NewMapOf[string, map[string]string]()}
}

// Handle applies req and returns the wire reply.
// Write replaces the record, Update merges into it (creating it if absent),
// Delete is idempotent, and Read of a missing record returns an empty value.
func (s *Store) Handle(req protocol.Request) []byte {
	switch req.Op {
	case protocol.OpWrite:
		s.records.Store(req.Key, cloneFields(req.Value))
	case protocol.OpUpdate:
		s.records.Compute(req.Key, func(old map[string]string, loaded bool) (map[string]string, bool) {
			merged := cloneFields(old)
			for field, v := range req.Value {
				merged[field] = v
			}
			return merged, false
		})
	case protocol.OpDelete:
		s.records.Delete(req.Key)
	case protocol.OpRead:
		record, _ := s.records.Load(req.Key)
		fields := make(map[string]*string, len(record))
		for field, v := range record {
			fields[field] = &v
		}
		reply, err := protocol.EncodeReadResponse(fields)
		if err != nil {
			return []byte("ERR " + err.Error())
		}
		return reply
	default:
		return []byte("ERR " + protocol.ErrUnknownOp.Error())
	}
	return []byte(protocol.StatusOK)
}

// Get returns a copy of the record stored under the qualified key.
func (s *Store) Get(key string) (map[string]string, bool) {
	record, ok := s.records.Load(key)
	if !ok {
		return nil, false
	}
	return cloneFields(record), true
}

func (s *Store) Len() int {
	return s.records.Size()
}

func cloneFields(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
