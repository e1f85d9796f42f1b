package binding

import (
	"context"
	"errors"
	"time"

	"github.com/danmuck/ohuakv/internal/client"
	"github.com/danmuck/ohuakv/internal/config"
	"github.com/danmuck/ohuakv/internal/observability"
	"github.com/danmuck/ohuakv/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Store is the protocol client surface driven by DB. *client.Client satisfies it.
type Store interface {
	Read(ctx context.Context, table, key string, fields []string) (map[string]string, error)
	Scan(ctx context.Context, table, startKey string, count int, fields []string) ([]map[string]string, error)
	Update(ctx context.Context, table, key string, values map[string]string) error
	Insert(ctx context.Context, table, key string, values map[string]string) error
	Delete(ctx context.Context, table, key string) error
}

const opScan = "Scan"

type Option func(*DB)

func WithLogger(logger zerolog.Logger) Option {
	return func(db *DB) {
		db.logger = &logger
	}
}

// WithMetrics toggles prometheus recording; it is on by default.
func WithMetrics(enabled bool) Option {
	return func(db *DB) {
		db.metrics = enabled
	}
}

// DB is the harness-facing adapter over one Store.
type DB struct {
	store   Store
	logger  *zerolog.Logger
	metrics bool
}

func New(store Store, opts ...Option) *DB {
	db := &DB{store: store, metrics: true}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Open builds a DB over a protocol client for cfg.
func Open(cfg config.ClientConfig, opts ...client.Option) (*DB, error) {
	c, err := client.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return New(c), nil
}

// Read copies the record's non-null fields, restricted to fields when that is
// non-empty, into result. Existing entries of result are never removed, and
// nothing is inserted when the read fails. A nil result discards the record.
func (db *DB) Read(ctx context.Context, table, key string, fields []string, result map[string][]byte) (status Status) {
	start := time.Now()
	defer db.recoverStatus(protocol.OpRead.String(), table, key, &status)

	record, err := db.store.Read(ctx, table, key, fields)
	status = db.finish(protocol.OpRead.String(), table, key, start, err)
	if status == StatusOK && result != nil {
		for field, v := range record {
			result[field] = []byte(v)
		}
	}
	return status
}

// Scan is unsupported by the wire protocol and always reports NOT_IMPLEMENTED.
// result is left untouched.
func (db *DB) Scan(ctx context.Context, table, startKey string, count int, fields []string, result *[]map[string][]byte) (status Status) {
	start := time.Now()
	defer db.recoverStatus(opScan, table, startKey, &status)

	_, err := db.store.Scan(ctx, table, startKey, count, fields)
	return db.finish(opScan, table, startKey, start, err)
}

// Update coerces values to strings (see protocol.StringValues) and sends an Update.
func (db *DB) Update(ctx context.Context, table, key string, values map[string][]byte) (status Status) {
	start := time.Now()
	defer db.recoverStatus(protocol.OpUpdate.String(), table, key, &status)

	err := db.store.Update(ctx, table, key, protocol.StringValues(values))
	return db.finish(protocol.OpUpdate.String(), table, key, start, err)
}

// Insert coerces values to strings and sends a Write.
func (db *DB) Insert(ctx context.Context, table, key string, values map[string][]byte) (status Status) {
	start := time.Now()
	defer db.recoverStatus(protocol.OpWrite.String(), table, key, &status)

	err := db.store.Insert(ctx, table, key, protocol.StringValues(values))
	return db.finish(protocol.OpWrite.String(), table, key, start, err)
}

func (db *DB) Delete(ctx context.Context, table, key string) (status Status) {
	start := time.Now()
	defer db.recoverStatus(protocol.OpDelete.String(), table, key, &status)

	err := db.store.Delete(ctx, table, key)
	return db.finish(protocol.OpDelete.String(), table, key, start, err)
}

func (db *DB) finish(op, table, key string, start time.Time, err error) Status {
	status := StatusOf(err)
	elapsed := time.Since(start)
	if db.metrics {
		if status == StatusNotImplemented {
			elapsed = 0
		}
		observability.RecordOperation(op, status.String(), elapsed)
	}

	event := observability.OperationEvent(db.log(), op, protocol.QualifiedKey(table, key), status.String(), elapsed, err)
	var respErr *protocol.ResponseError
	if errors.As(err, &respErr) {
		event = event.Str("response", respErr.Response)
	}
	if status == StatusError {
		event.Msg("error encountered for key")
	} else {
		event.Msg("operation complete")
	}
	return status
}

func (db *DB) recoverStatus(op, table, key string, status *Status) {
	if r := recover(); r != nil {
		logger := db.log()
		logger.Error().
			Str("op", op).
			Str("key", protocol.QualifiedKey(table, key)).
			Interface("panic", r).
			Msg("recovered panic in operation")
		*status = StatusError
	}
}

func (db *DB) log() zerolog.Logger {
	if db.logger != nil {
		return *db.logger
	}
	return log.Logger
}
