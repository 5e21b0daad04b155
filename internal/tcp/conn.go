package tcp

import (
	"log/slog"
	"net"
	"net/netip"
	"sync/atomic"
	"time"
)

// State is the processing state of a connection
type State int32

const (
	// StateIO means the connection is reading a request or writing a response
	StateIO State = iota
	// StateProcessing means a request is being handled by the worker pool
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateIO:
		return "io"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// conn is one client connection. state and submitted may be read from any
// goroutine; user and closed belong to the server loop.
type conn struct {
	id          string
	netConn     net.Conn
	remote      netip.AddrPort
	logger      *slog.Logger
	connectedAt time.Time

	state     atomic.Int32
	submitted atomic.Bool

	// reply carries the response payload from the loop to the connection
	// goroutine, which writes it before reading the next request
	reply chan []byte
	// done is closed when the loop drops the connection
	done chan struct{}

	user   string
	closed bool
}

func newConn(id string, nc net.Conn, logger *slog.Logger) *conn {
	var remote netip.AddrPort
	if addr, ok := nc.RemoteAddr().(*net.TCPAddr); ok {
		ap := addr.AddrPort()
		remote = netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	}
	return &conn{
		id:          id,
		netConn:     nc,
		remote:      remote,
		connectedAt: time.Now(),
		logger: logger.With(
			slog.String("conn_id", id),
			slog.String("remote", remote.String()),
		),
		reply: make(chan []byte, 1),
		done:  make(chan struct{}),
	}
}

func (c *conn) State() State {
	return State(c.state.Load())
}

// beginProcessing moves the connection to StateProcessing. It succeeds once
// per request; further calls return false until finishProcessing.
func (c *conn) beginProcessing() bool {
	if !c.submitted.CompareAndSwap(false, true) {
		return false
	}
	c.state.Store(int32(StateProcessing))
	return true
}

// finishProcessing rearms the guard after the response has been written
func (c *conn) finishProcessing() {
	c.state.Store(int32(StateIO))
	c.submitted.Store(false)
}
