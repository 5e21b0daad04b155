// Package tcp implements the client connection multiplexer. A single loop
// goroutine owns all connection state; each connection has one goroutine
// that frames its requests and writes its responses, and request handling
// runs on a worker pool.
package tcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcoot/wordquizzle/internal/model"
	"github.com/mcoot/wordquizzle/internal/protocol"
	"github.com/mcoot/wordquizzle/internal/workerpool"
)

// Config holds the multiplexer settings
type Config struct {
	Addr             string
	MaxMessageLength int
	WriteTimeout     time.Duration
}

// DefaultConfig returns the default multiplexer configuration
func DefaultConfig() Config {
	return Config{
		Addr:             ":1919",
		MaxMessageLength: 1024,
		WriteTimeout:     5 * time.Second,
	}
}

// Processor turns a request into a response. It runs on the worker pool.
type Processor interface {
	Process(ctx context.Context, req Request) Response
	Disconnected(ctx context.Context, user, connID string)
}

// Request is a complete request read from a connection
type Request struct {
	ConnID string
	Remote netip.AddrPort
	// User is the name logged in on this connection, if any
	User string
	Line string
	// Err is set when the request could not be framed
	Err error
}

// Response is the payload to write back plus session changes
type Response struct {
	Payload   []byte
	LoggedIn  string
	LoggedOut string
}

type eventKind int

const (
	eventOpened eventKind = iota
	eventRequest
	eventCompleted
	eventWritten
	eventClosed
)

type event struct {
	kind eventKind
	conn *conn
	req  Request
	resp Response
	err  error
}

// Server accepts client connections and multiplexes them through one loop
type Server struct {
	cfg       Config
	processor Processor
	pool      *workerpool.Pool
	logger    *slog.Logger

	listener net.Listener
	events   chan event
	done     chan struct{}
	conns    map[string]*conn

	readers sync.WaitGroup
}

// NewServer creates a server. Listen must be called before Serve.
func NewServer(cfg Config, processor Processor, pool *workerpool.Pool, logger *slog.Logger) *Server {
	return &Server{
		cfg:       cfg,
		processor: processor,
		pool:      pool,
		logger:    logger.With(slog.String("component", "tcp")),
		events:    make(chan event, 256),
		done:      make(chan struct{}),
		conns:     make(map[string]*conn),
	}
}

// Listen binds the listening socket
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen tcp %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln
	s.logger.Info("tcp server listening", slog.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve runs the accept goroutine and the loop until ctx is cancelled
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("tcp server: Serve called before Listen")
	}

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		s.accept()
	}()

	s.loop(ctx)

	_ = s.listener.Close()
	close(s.done)
	<-acceptDone
	for _, c := range s.conns {
		s.drop(c)
	}
	s.drainOpened()
	s.readers.Wait()
	s.logger.Info("tcp server stopped")
	return nil
}

func (s *Server) accept() {
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("accept failed", slog.String("error", err.Error()))
			time.Sleep(10 * time.Millisecond)
			continue
		}
		c := newConn(uuid.NewString(), nc, s.logger)
		if !s.send(event{kind: eventOpened, conn: c}) {
			_ = nc.Close()
			return
		}
	}
}

// drainOpened closes connections accepted after the loop stopped
func (s *Server) drainOpened() {
	for {
		select {
		case ev := <-s.events:
			if ev.kind == eventOpened {
				_ = ev.conn.netConn.Close()
			}
		default:
			return
		}
	}
}

// send delivers an event to the loop unless the server has stopped
func (s *Server) send(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *Server) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			switch ev.kind {
			case eventOpened:
				s.open(ev.conn)
			case eventRequest:
				s.submit(ev.conn, ev.req)
			case eventCompleted:
				s.complete(ev.conn, ev.resp)
			case eventWritten:
				s.written(ev.conn)
			case eventClosed:
				s.close(ev.conn, ev.err)
			}
		}
	}
}

func (s *Server) open(c *conn) {
	s.conns[c.id] = c
	c.logger.Info("client connected", slog.Int("clients", len(s.conns)))
	s.readers.Add(1)
	go s.read(c)
}

// read frames requests off the socket and writes back their responses. It
// parks in the netpoller until a full line is available and reads the next
// one only after the previous response has been written.
func (s *Server) read(c *conn) {
	defer s.readers.Done()
	r := bufio.NewReaderSize(c.netConn, s.cfg.MaxMessageLength+2)
	for {
		line, err := protocol.ReadLine(r, s.cfg.MaxMessageLength)
		req := Request{ConnID: c.id, Remote: c.remote, Line: line}
		if err != nil {
			if !errors.Is(err, model.ErrMalformedRequest) {
				s.send(event{kind: eventClosed, conn: c, err: err})
				return
			}
			req.Err = err
		}

		if !s.send(event{kind: eventRequest, conn: c, req: req}) {
			return
		}

		var payload []byte
		select {
		case payload = <-c.reply:
		case <-c.done:
			return
		}
		_ = c.netConn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		if err := protocol.WriteFrame(c.netConn, payload); err != nil {
			s.send(event{kind: eventClosed, conn: c, err: err})
			return
		}
		if !s.send(event{kind: eventWritten, conn: c}) {
			return
		}
	}
}

func (s *Server) submit(c *conn, req Request) {
	if c.closed {
		return
	}
	if !c.beginProcessing() {
		c.logger.Error("request received while processing")
		return
	}
	req.User = c.user

	err := s.pool.Submit(func(ctx context.Context) {
		resp := s.processor.Process(ctx, req)
		s.send(event{kind: eventCompleted, conn: c, resp: resp})
	})
	if err != nil {
		c.logger.Warn("request rejected", slog.String("error", err.Error()))
		s.close(c, err)
	}
}

func (s *Server) complete(c *conn, resp Response) {
	if c.closed {
		// the client went away while its request was processed
		if resp.LoggedIn != "" {
			s.disconnected(resp.LoggedIn, c.id)
		}
		return
	}

	if resp.LoggedIn != "" {
		c.user = resp.LoggedIn
	}
	if resp.LoggedOut != "" && resp.LoggedOut == c.user {
		c.user = ""
	}
	c.reply <- resp.Payload
}

// written rearms the connection once its response is on the wire
func (s *Server) written(c *conn) {
	if c.closed {
		return
	}
	c.finishProcessing()
}

func (s *Server) close(c *conn, cause error) {
	if c.closed {
		return
	}
	s.drop(c)
	delete(s.conns, c.id)

	attrs := []any{
		slog.Duration("connection_duration", time.Since(c.connectedAt)),
		slog.Int("clients", len(s.conns)),
	}
	if cause != nil && !errors.Is(cause, io.EOF) {
		attrs = append(attrs, slog.String("error", cause.Error()))
	}
	c.logger.Info("client disconnected", attrs...)

	if c.user != "" {
		s.disconnected(c.user, c.id)
	}
}

// drop closes the socket and releases the reader
func (s *Server) drop(c *conn) {
	c.closed = true
	_ = c.netConn.Close()
	close(c.done)
}

func (s *Server) disconnected(user, connID string) {
	err := s.pool.Submit(func(ctx context.Context) {
		s.processor.Disconnected(ctx, user, connID)
	})
	if err != nil {
		s.logger.Warn("could not log out disconnected user",
			slog.String("user", user),
			slog.String("error", err.Error()),
		)
	}
}
