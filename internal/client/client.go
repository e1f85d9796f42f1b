package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"
	"unicode/utf8"

	"github.com/danmuck/ohuakv/internal/config"
	"github.com/danmuck/ohuakv/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Dialer opens one transport connection. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

type Option func(*Client)

// WithDialer replaces the TCP dialer, e.g. with a test double.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

type Client struct {
	cfg    config.ClientConfig
	addr   string
	dialer Dialer
}

func New(cfg config.ClientConfig, opts ...Option) (*Client, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		cfg:    cfg,
		addr:   cfg.Addr(),
		dialer: &net.Dialer{Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Addr() string {
	return c.addr
}

// Read fetches the record at key. A non-empty fields list keeps only those
// fields; fields absent from the reply are simply missing from the result.
func (c *Client) Read(ctx context.Context, table, key string, fields []string) (map[string]string, error) {
	req, err := newRequest(protocol.OpRead, table, key, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	return filterFields(resp.Fields, fields), nil
}

// Scan is not part of the wire protocol. It never dials.
func (c *Client) Scan(ctx context.Context, table, startKey string, count int, fields []string) ([]map[string]string, error) {
	return nil, ErrNotImplemented
}

func (c *Client) Update(ctx context.Context, table, key string, values map[string]string) error {
	return c.mutate(ctx, protocol.OpUpdate, table, key, values)
}

// Insert writes a record with the "Write" tag. Pre-existence is not checked locally.
func (c *Client) Insert(ctx context.Context, table, key string, values map[string]string) error {
	return c.mutate(ctx, protocol.OpWrite, table, key, values)
}

func (c *Client) Delete(ctx context.Context, table, key string) error {
	return c.mutate(ctx, protocol.OpDelete, table, key, nil)
}

func (c *Client) mutate(ctx context.Context, op protocol.Op, table, key string, values map[string]string) error {
	req, err := newRequest(op, table, key, values)
	if err != nil {
		return err
	}
	_, err = c.Do(ctx, req)
	return err
}

// Do performs one exchange for req and decodes the reply along the op's path.
func (c *Client) Do(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	payload, err := protocol.EncodeRequest(req)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("client: encode %s key=%q: %w", req.Op, req.Key, err)
	}
	raw, err := c.roundTrip(ctx, req, payload)
	if err != nil {
		return protocol.Response{}, err
	}
	return protocol.DecodeResponse(req.Op, req.Key, raw)
}

// roundTrip owns the connection for exactly one write and one read-to-EOF.
func (c *Client) roundTrip(ctx context.Context, req protocol.Request, payload []byte) ([]byte, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, c.transportErr(ctx, req, StageDial, err)
	}
	defer conn.Close()

	if deadline, ok := c.deadline(ctx); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, c.transportErr(ctx, req, StageWrite, err)
		}
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := conn.Write(payload); err != nil {
		return nil, c.transportErr(ctx, req, StageWrite, err)
	}
	if c.cfg.HalfClose {
		if cw, ok := conn.(interface{ CloseWrite() error }); ok {
			if err := cw.CloseWrite(); err != nil {
				return nil, c.transportErr(ctx, req, StageWrite, err)
			}
		}
	}

	raw, err := io.ReadAll(conn)
	if err != nil {
		return nil, c.transportErr(ctx, req, StageRead, err)
	}
	log.Trace().
		Str("op", req.Op.String()).
		Str("key", req.Key).
		Str("addr", c.addr).
		Int("sent", len(payload)).
		Int("received", len(raw)).
		Msg("client.roundtrip")
	return raw, nil
}

// deadline is the earlier of the configured timeout and the context deadline.
func (c *Client) deadline(ctx context.Context) (time.Time, bool) {
	var deadline time.Time
	if c.cfg.Timeout > 0 {
		deadline = time.Now().Add(c.cfg.Timeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (deadline.IsZero() || ctxDeadline.Before(deadline)) {
		deadline = ctxDeadline
	}
	return deadline, !deadline.IsZero()
}

func (c *Client) transportErr(ctx context.Context, req protocol.Request, stage Stage, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("%w: %v", ctxErr, err)
	}
	return &TransportError{Op: req.Op, Key: req.Key, Addr: c.addr, Stage: stage, Err: err}
}

func newRequest(op protocol.Op, table, key string, values map[string]string) (protocol.Request, error) {
	if table == "" {
		return protocol.Request{}, fmt.Errorf("client: %s: %w", op, protocol.ErrMissingTable)
	}
	if key == "" {
		return protocol.Request{}, fmt.Errorf("client: %s: %w", op, protocol.ErrMissingKey)
	}
	if !utf8.ValidString(table) || !utf8.ValidString(key) {
		return protocol.Request{}, fmt.Errorf("client: %s: %w", op, protocol.ErrInvalidUTF8)
	}
	return protocol.Request{
		Op:    op,
		Table: table,
		Key:   protocol.QualifiedKey(table, key),
		Value: values,
	}, nil
}

func filterFields(record map[string]string, fields []string) map[string]string {
	if len(fields) == 0 {
		return record
	}
	out := make(map[string]string, len(fields))
	for _, field := range fields {
		if v, ok := record[field]; ok {
			out[field] = v
		}
	}
	return out
}
