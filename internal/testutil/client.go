package testutil

import (
	"bufio"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/mcoot/wordquizzle/internal/protocol"
)

// ioTimeout bounds every read in the test clients
const ioTimeout = 5 * time.Second

// Client is a TCP client speaking the line request / framed response protocol
type Client struct {
	t    testing.TB
	conn net.Conn
	r    *bufio.Reader
}

// Dial connects to addr and closes the connection when the test ends
func Dial(t testing.TB, addr string) *Client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, ioTimeout)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	c := &Client{t: t, conn: conn, r: bufio.NewReader(conn)}
	t.Cleanup(func() { _ = conn.Close() })
	return c
}

// Send writes one request line
func (c *Client) Send(line string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(ioTimeout))
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		c.t.Fatalf("send %q: %v", line, err)
	}
}

// Read reads one framed response
func (c *Client) Read() string {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(ioTimeout))
	payload, err := protocol.ReadFrame(c.r, 0)
	if err != nil {
		c.t.Fatalf("read response: %v", err)
	}
	return string(payload)
}

// Do sends a request and returns its response
func (c *Client) Do(line string) string {
	c.t.Helper()
	c.Send(line)
	return c.Read()
}

// Close closes the connection
func (c *Client) Close() {
	_ = c.conn.Close()
}

// Peer is a UDP socket standing in for a client's challenge endpoint
type Peer struct {
	t    testing.TB
	conn *net.UDPConn
}

// ListenPeer binds a UDP socket on the loopback interface
func ListenPeer(t testing.TB) *Peer {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &Peer{t: t, conn: conn}
}

// Endpoint returns the bound address
func (p *Peer) Endpoint() netip.AddrPort {
	ap := p.conn.LocalAddr().(*net.UDPAddr).AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// Port returns the bound port
func (p *Peer) Port() uint16 {
	return p.Endpoint().Port()
}

// SendTo writes one datagram to addr
func (p *Peer) SendTo(addr netip.AddrPort, msg string) {
	p.t.Helper()
	if _, err := p.conn.WriteToUDPAddrPort([]byte(msg), addr); err != nil {
		p.t.Fatalf("send %q: %v", msg, err)
	}
}

// Recv waits for one datagram
func (p *Peer) Recv() string {
	p.t.Helper()
	msg, ok := p.recv(ioTimeout)
	if !ok {
		p.t.Fatalf("no datagram within %s", ioTimeout)
	}
	return msg
}

// ExpectSilence fails if a datagram arrives within d
func (p *Peer) ExpectSilence(d time.Duration) {
	p.t.Helper()
	if msg, ok := p.recv(d); ok {
		p.t.Fatalf("unexpected datagram %q", msg)
	}
}

func (p *Peer) recv(d time.Duration) (string, bool) {
	buf := make([]byte, 2048)
	_ = p.conn.SetReadDeadline(time.Now().Add(d))
	n, _, err := p.conn.ReadFromUDPAddrPort(buf)
	if err != nil {
		return "", false
	}
	return string(buf[:n]), true
}
