//go:build linux

package driver

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// TCPDriver is the plain-TCP driver: a thin vtable wrapper around net.Listen
// that also applies Linux-specific socket options (TCP_DEFER_ACCEPT to
// avoid waking the acceptor until data has actually arrived, TCP_CORK via
// Cork/Uncork for batched small writes) via golang.org/x/sys/unix, which
// the standard net package has no portable way to express.
type TCPDriver struct {
	name        string
	defaultPort int
	protocol    string
	deferAccept bool
}

// NewTCPDriver creates a plain-TCP driver registered under name, serving
// protocol (e.g. "http") and reporting defaultPort from DefaultPort.
// Listen does not substitute defaultPort for a missing port.
func NewTCPDriver(name string, defaultPort int, protocol string) *TCPDriver {
	return &TCPDriver{name: name, defaultPort: defaultPort, protocol: protocol, deferAccept: true}
}

func (d *TCPDriver) Name() string     { return d.name }
func (d *TCPDriver) DefaultPort() int { return d.defaultPort }
func (d *TCPDriver) Protocol() string { return d.protocol }

func (d *TCPDriver) Listen(addr string) (Listener, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			if !d.deferAccept {
				return nil
			}
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				ctrlErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_DEFER_ACCEPT, 1)
			})
			if err != nil {
				return err
			}
			// TCP_DEFER_ACCEPT is an optimization; ignore failures on
			// kernels/namespaces that don't support it.
			_ = ctrlErr
			return nil
		},
	}
	ln, err := lc.Listen(nil, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &tcpListener{ln: ln.(*net.TCPListener), driver: d}, nil
}

type tcpListener struct {
	ln     *net.TCPListener
	driver Driver
}

func (l *tcpListener) Accept() (*Sock, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return NewSock(conn, l.driver), nil
}

func (l *tcpListener) Close() error   { return l.ln.Close() }
func (l *tcpListener) Addr() net.Addr { return l.ln.Addr() }

// cork enables or disables TCP_CORK on the socket backing s, batching
// subsequent small writes into fewer segments until uncorked.
func cork(s *Sock, on bool) error {
	tc, ok := s.conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	raw, err := tc.SyscallConn()
	if err != nil {
		return err
	}
	val := 0
	if on {
		val = 1
		s.flags |= FlagCorked
	} else {
		s.flags &^= FlagCorked
	}
	var ctrlErr error
	err = raw.Control(func(fd uintptr) {
		ctrlErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_CORK, val)
	})
	if err != nil {
		return err
	}
	return ctrlErr
}

// Cork enables TCP_CORK on s for batched small writes.
func Cork(s *Sock) error { return cork(s, true) }

// Uncork disables TCP_CORK on s, flushing any corked data.
func Uncork(s *Sock) error { return cork(s, false) }
