// Package driver implements the protocol-agnostic accept/recv/send/
// sendfile/keep/close vtable that the connection dispatcher runs on top
// of, plus a name+port+protocol driver registry.
package driver

import (
	"io"
	"net"
	"os"
	"time"
)

// State is a Sock's place in the accept/read/write/close lifecycle.
type State int

const (
	StateAccepting State = iota
	StateReading
	StateWriting
	StateClosing
	StateClosed
)

// Flag is a bitset of per-socket behavior switches.
type Flag uint32

const (
	FlagKeepalive Flag = 1 << iota
	FlagNonBlocking
	FlagCorked
)

// Driver is the vtable every transport (plain TCP, TLS, ...) implements.
// The driver vtable is the only boundary the dispatcher depends on for
// I/O, so swapping TLS in for plain TCP requires no dispatcher change.
type Driver interface {
	// Name is the driver's registered name (e.g. "nssock").
	Name() string
	// DefaultPort is the port registered with the driver; Listen does not
	// substitute it when addr omits a port.
	DefaultPort() int
	// Protocol is the wire protocol label (e.g. "http", "https").
	Protocol() string
	// Listen opens a listen socket on addr (host:port).
	Listen(addr string) (Listener, error)
}

// Listener accepts Socks off one bound address.
type Listener interface {
	Accept() (*Sock, error)
	Close() error
	Addr() net.Addr
}

// Sock wraps one accepted connection with the driver that owns it and its
// bit-flag/state bookkeeping.
type Sock struct {
	conn   net.Conn
	driver Driver
	flags  Flag
	state  State

	sendErrno error
}

// NewSock wraps conn as a Sock owned by d, in the StateAccepting state.
func NewSock(conn net.Conn, d Driver) *Sock {
	return &Sock{conn: conn, driver: d, state: StateAccepting}
}

// Driver returns the owning driver.
func (s *Sock) Driver() Driver { return s.driver }

// State returns the socket's current lifecycle state.
func (s *Sock) State() State { return s.state }

// SetState transitions the socket to a new lifecycle state.
func (s *Sock) SetState(st State) { s.state = st }

// RemoteAddr returns the peer address.
func (s *Sock) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// LocalAddr returns the local bound address.
func (s *Sock) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// SetDeadline forwards to the underlying connection, used by the reactor
// to bound a task's READ/WRITE wait.
func (s *Sock) SetDeadline(t time.Time) error { return s.conn.SetDeadline(t) }

// Recv reads into buf. A negative-sized return never happens in the Go
// mapping; errors are surfaced through the error return instead of the
// sentinel INVALID_SOCKET the original vtable used.
func (s *Sock) Recv(buf []byte) (int, error) {
	s.state = StateReading
	n, err := s.conn.Read(buf)
	return n, err
}

// Send writes data. On error, the error is retained on sendErrno (readable
// via LastSendError) as well as returned, mirroring the vtable's send_errno
// field used for diagnostics after a failed send.
func (s *Sock) Send(data []byte) (int, error) {
	s.state = StateWriting
	n, err := s.conn.Write(data)
	s.sendErrno = err
	return n, err
}

// LastSendError returns the error (if any) from the most recent Send.
func (s *Sock) LastSendError() error { return s.sendErrno }

// SendFile streams n bytes of f starting at offset to the socket. It
// prefers the kernel-assisted path (ReadFrom on a *net.TCPConn triggers
// sendfile(2) on Linux) and falls back to io.CopyN otherwise.
func (s *Sock) SendFile(f *os.File, offset, n int64) (int64, error) {
	s.state = StateWriting
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}
	if rf, ok := s.conn.(io.ReaderFrom); ok {
		return rf.ReadFrom(io.LimitReader(f, n))
	}
	return io.CopyN(s.conn, f, n)
}

// Keep marks the socket for keepalive and applies TCP keepalive at the
// transport level when supported.
func (s *Sock) Keep(enable bool) error {
	if enable {
		s.flags |= FlagKeepalive
	} else {
		s.flags &^= FlagKeepalive
	}
	if tc, ok := s.conn.(*net.TCPConn); ok {
		return tc.SetKeepAlive(enable)
	}
	return nil
}

// Flags returns the socket's current flag bitset.
func (s *Sock) Flags() Flag { return s.flags }

// Close closes the underlying connection.
func (s *Sock) Close() error {
	s.state = StateClosed
	return s.conn.Close()
}
