package mockserver

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/ohuakv/internal/observability"
	"github.com/danmuck/ohuakv/internal/protocol"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"
)

// Handler produces the raw reply for one decoded request.
type Handler func(req protocol.Request) []byte

// Static answers every request with reply, e.g. a canned read body.
func Static(reply string) Handler {
	return func(protocol.Request) []byte {
		return []byte(reply)
	}
}

// Received is one request as the server saw it.
type Received struct {
	Request protocol.Request
	Raw     []byte
	Err     error
}

type Option func(*Server)

// WithHandler replaces the store-backed handler.
func WithHandler(h Handler) Option {
	return func(s *Server) {
		if h != nil {
			s.handler = h
		}
	}
}

func WithStore(store *Store) Option {
	return func(s *Server) {
		if store != nil {
			s.store = store
		}
	}
}

// WithReadTimeout bounds how long a connection may take to deliver its request.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = d
	}
}

// Server speaks the ohua wire contract: one request per connection, one reply,
// then close.
type Server struct {
	store       *Store
	handler     Handler
	readTimeout time.Duration

	ln     net.Listener
	conns  sync.WaitGroup
	counts *xsync.MapOf[protocol.Op, *xsync.Counter]
	done   chan struct{}

	// mu guards closed and received; conns.Add happens under it so Close
	// never waits concurrently with a new Add.
	mu       sync.Mutex
	closed   bool
	received []Received
}

func New(opts ...Option) *Server {
	s := &Server{
		store:       NewStore(),
		readTimeout: 30 * time.Second,
		counts:      xsync.NewMapOf[protocol.Op, *xsync.Counter](),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.handler == nil {
		s.handler = s.store.Handle
	}
	return s
}

func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", strings.TrimSpace(addr))
	if err != nil {
		return err
	}
	s.ln = ln
	return nil
}

// Addr is the bound listen address, valid after Listen.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) Store() *Store {
	return s.store
}

// Serve accepts connections until ctx is done or the listener closes.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		return errors.New("mockserver: Serve before Listen")
	}
	log.Info().Str("addr", s.Addr()).Msg("mockserver listening")

	go func() {
		select {
		case <-ctx.Done():
			_ = s.ln.Close()
		case <-s.done:
		}
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if !s.track() {
			_ = conn.Close()
			return nil
		}
		go s.handleConn(conn)
	}
}

// track registers an accepted connection unless Close has begun.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns.Add(1)
	return true
}

// Close stops accepting and waits for in-flight connections.
func (s *Server) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	s.mu.Unlock()

	var err error
	if s.ln != nil {
		err = s.ln.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	}
	s.conns.Wait()
	return err
}

// Received returns every request seen so far, in arrival order.
func (s *Server) Received() []Received {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Received, len(s.received))
	copy(out, s.received)
	return out
}

// Count reports how many well-formed requests carried op.
func (s *Server) Count(op protocol.Op) int64 {
	counter, ok := s.counts.Load(op)
	if !ok {
		return 0
	}
	return counter.Value()
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.conns.Done()
	defer conn.Close()

	if s.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
	req, raw, err := protocol.ReadRequest(conn)
	s.record(Received{Request: req, Raw: raw, Err: err})

	var reply []byte
	if err != nil {
		log.Warn().Str("remote", conn.RemoteAddr().String()).Err(err).Msg("mockserver bad request")
		observability.RecordMockRequest("invalid", "error")
		reply = []byte("ERR " + err.Error())
	} else {
		counter, _ := s.counts.LoadOrCompute(req.Op, xsync.NewCounter)
		counter.Inc()
		reply = s.handler(req)
		observability.RecordMockRequest(req.Op.String(), "ok")
		log.Debug().
			Str("op", req.Op.String()).
			Str("key", req.Key).
			Int("reply_bytes", len(reply)).
			Msg("mockserver request")
	}
	if _, err := conn.Write(reply); err != nil {
		log.Warn().Str("remote", conn.RemoteAddr().String()).Err(err).Msg("mockserver write reply")
	}
}

func (s *Server) record(r Received) {
	s.mu.Lock()
	s.received = append(s.received, r)
	s.mu.Unlock()
}
