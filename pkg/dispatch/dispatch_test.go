package dispatch

import (
	"bufio"
	"io"
	"net"
	"net/netip"
	"strings"
	"testing"

	"github.com/navispace/navid/pkg/container/set"
	"github.com/navispace/navid/pkg/driver"
	"github.com/navispace/navid/pkg/status"
	"github.com/navispace/navid/pkg/urlspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestLinePlain(t *testing.T) {
	req, err := ParseRequestLine("GET /a/b?x=1 HTTP/1.1\r\n", DefaultLimits)
	require.NoError(t, err)
	assert.Equal(t, RequestPlain, req.Type)
	assert.Equal(t, "/a/b", req.Path)
	assert.Equal(t, "x=1", req.Query)
	assert.Equal(t, []string{"a", "b"}, req.Segments)
	assert.Equal(t, "1.1", req.Version)
}

func TestParseRequestLineConnect(t *testing.T) {
	req, err := ParseRequestLine("CONNECT example.com:443 HTTP/1.1\r\n", DefaultLimits)
	require.NoError(t, err)
	assert.Equal(t, RequestConnect, req.Type)
	assert.Equal(t, "example.com", req.Host)
	assert.Equal(t, "443", req.Port)
}

func TestParseRequestLineAsterisk(t *testing.T) {
	req, err := ParseRequestLine("OPTIONS * HTTP/1.1\r\n", DefaultLimits)
	require.NoError(t, err)
	assert.Equal(t, RequestAsterisk, req.Type)
}

func TestParseRequestLineTooLong(t *testing.T) {
	_, err := ParseRequestLine("GET /x HTTP/1.1\r\n", Limits{MaxLineLength: 5})
	assert.ErrorIs(t, err, ErrLineTooLong)
}

func TestParseHeadersFoldedContinuation(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("X-Foo: bar\r\n  baz\r\nHost: example.com\r\n\r\n"))
	h, err := ParseHeaders(r, DefaultLimits)
	require.NoError(t, err)
	v, ok := h.Get("X-Foo")
	require.True(t, ok)
	assert.Equal(t, "bar baz", v)
}

func TestDispatchResolvesAndRunsOp(t *testing.T) {
	junction := urlspace.NewJunction()
	var ran bool
	junction.Set("nsd", "/hello", OpFunc(func(c *Conn) status.Status {
		ran = true
		c.Stream.WriteInline([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"))
		return status.OK
	}), urlspace.SetOptions{})

	d := New(junction, "nsd")

	server, client := net.Pipe()
	defer client.Close()
	sock := driver.NewSock(server, nil)

	go func() {
		client.Write([]byte("GET /hello HTTP/1.1\r\nHost: x\r\n\r\n"))
	}()

	done := make(chan status.Status, 1)
	go func() { done <- d.Dispatch(sock) }()

	buf := make([]byte, len("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"))
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n", string(buf[:n]))

	assert.Equal(t, status.OK, <-done)
	assert.True(t, ran)
}

func TestDispatchUnresolvedPathFails(t *testing.T) {
	junction := urlspace.NewJunction()
	d := New(junction, "nsd")

	server, client := net.Pipe()
	defer client.Close()
	sock := driver.NewSock(server, nil)

	go func() {
		client.Write([]byte("GET /missing HTTP/1.1\r\nHost: x\r\n\r\n"))
	}()

	done := make(chan status.Status, 1)
	go func() { done <- d.Dispatch(sock) }()

	r := bufio.NewReader(client)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "500")
	assert.Equal(t, status.Error, <-done)
}

func TestPreAuthFilterBreakSkipsRestOfPhase(t *testing.T) {
	junction := urlspace.NewJunction()
	junction.Set("nsd", "/op", OpFunc(func(c *Conn) status.Status {
		c.Stream.WriteInline([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"))
		return status.OK
	}), urlspace.SetOptions{})

	d := New(junction, "nsd")
	var second bool
	d.RegisterPreAuth(func(c *Conn) status.Status { return status.FilterBreak })
	d.RegisterPreAuth(func(c *Conn) status.Status { second = true; return status.OK })

	server, client := net.Pipe()
	defer client.Close()
	sock := driver.NewSock(server, nil)

	go func() { client.Write([]byte("GET /op HTTP/1.1\r\nHost: x\r\n\r\n")) }()

	done := make(chan status.Status, 1)
	go func() { done <- d.Dispatch(sock) }()

	buf := make([]byte, 64)
	client.Read(buf)

	assert.Equal(t, status.OK, <-done)
	assert.False(t, second, "filter after a FilterBreak must not run")
}

func TestAuthorizerForbiddenSkipsOp(t *testing.T) {
	junction := urlspace.NewJunction()
	var opRan bool
	junction.Set("nsd", "/op", OpFunc(func(c *Conn) status.Status {
		opRan = true
		return status.OK
	}), urlspace.SetOptions{})

	d := New(junction, "nsd")
	d.RegisterAuthorizer(func(c *Conn) status.Status { return status.Forbidden })

	server, client := net.Pipe()
	defer client.Close()
	sock := driver.NewSock(server, nil)

	go func() { client.Write([]byte("GET /op HTTP/1.1\r\nHost: x\r\n\r\n")) }()

	done := make(chan status.Status, 1)
	go func() { done <- d.Dispatch(sock) }()

	r := bufio.NewReader(client)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "403")
	assert.Equal(t, status.Forbidden, <-done)
	assert.False(t, opRan)
}

func TestServeKeepsConnectionOpenAcrossRequests(t *testing.T) {
	junction := urlspace.NewJunction()
	var seen []string
	junction.Set("nsd", "/hello", OpFunc(func(c *Conn) status.Status {
		seen = append(seen, c.Request.Path)
		c.Stream.WriteInline([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"))
		return status.OK
	}), urlspace.SetOptions{})

	d := New(junction, "nsd").WithKeepalive(3)

	server, client := net.Pipe()
	defer client.Close()
	sock := driver.NewSock(server, nil)

	go func() {
		client.Write([]byte("GET /hello HTTP/1.1\r\nHost: x\r\n\r\n"))
		client.Write([]byte("GET /hello HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"))
	}()

	done := make(chan status.Status, 1)
	go func() { done <- d.Serve(sock) }()

	r := bufio.NewReader(client)
	for i := 0; i < 2; i++ {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		assert.Contains(t, line, "200")
		for {
			l, err := r.ReadString('\n')
			require.NoError(t, err)
			if l == "\r\n" {
				break
			}
		}
	}

	assert.Equal(t, status.OK, <-done)
	assert.Equal(t, []string{"/hello", "/hello"}, seen)

	_, err := client.Write([]byte("x"))
	assert.Error(t, err, "Serve must close sock once keepalive ends")
}

func TestServeStopsAtMaxKeepaliveRequests(t *testing.T) {
	junction := urlspace.NewJunction()
	var count int
	junction.Set("nsd", "/hello", OpFunc(func(c *Conn) status.Status {
		count++
		c.Stream.WriteInline([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"))
		return status.OK
	}), urlspace.SetOptions{})

	d := New(junction, "nsd").WithKeepalive(1)

	server, client := net.Pipe()
	defer client.Close()
	sock := driver.NewSock(server, nil)

	go func() {
		client.Write([]byte("GET /hello HTTP/1.1\r\nHost: x\r\n\r\n"))
	}()

	done := make(chan status.Status, 1)
	go func() { done <- d.Serve(sock) }()

	buf := make([]byte, 64)
	client.Read(buf)

	assert.Equal(t, status.OK, <-done)
	assert.Equal(t, 1, count, "MaxKeepaliveRequests=1 must serve exactly one request")
}

func TestDispatchReadsBodyAndEnforcesMaxSize(t *testing.T) {
	junction := urlspace.NewJunction()
	var gotBody string
	junction.Set("nsd", "/upload", OpFunc(func(c *Conn) status.Status {
		b, _ := io.ReadAll(c.Body.Reader())
		gotBody = string(b)
		c.Stream.WriteInline([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"))
		return status.OK
	}), urlspace.SetOptions{})

	d := New(junction, "nsd").WithBodyLimits(1<<20, 1<<16, t.TempDir())

	server, client := net.Pipe()
	defer client.Close()
	sock := driver.NewSock(server, nil)

	go func() {
		client.Write([]byte("POST /upload HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\n\r\nhello"))
	}()

	done := make(chan status.Status, 1)
	go func() { done <- d.Dispatch(sock) }()

	buf := make([]byte, 64)
	client.Read(buf)

	assert.Equal(t, status.OK, <-done)
	assert.Equal(t, "hello", gotBody)
}

func TestDispatchRejectsOversizedBody(t *testing.T) {
	junction := urlspace.NewJunction()
	junction.Set("nsd", "/upload", OpFunc(func(c *Conn) status.Status {
		return status.OK
	}), urlspace.SetOptions{})

	d := New(junction, "nsd").WithBodyLimits(4, 1<<16, t.TempDir())

	server, client := net.Pipe()
	defer client.Close()
	sock := driver.NewSock(server, nil)

	go func() {
		client.Write([]byte("POST /upload HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\n\r\nhello"))
	}()

	done := make(chan status.Status, 1)
	go func() { done <- d.Dispatch(sock) }()

	r := bufio.NewReader(client)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "413")
	assert.Equal(t, status.EntityTooLarge, <-done)
}

func TestDispatchSpoolsLargeBodyToTempFile(t *testing.T) {
	junction := urlspace.NewJunction()
	var gotSize int64
	junction.Set("nsd", "/upload", OpFunc(func(c *Conn) status.Status {
		gotSize = c.Body.Size()
		n, _ := io.Copy(io.Discard, c.Body.Reader())
		assert.Equal(t, gotSize, n)
		c.Stream.WriteInline([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"))
		return status.OK
	}), urlspace.SetOptions{})

	payload := strings.Repeat("a", 128)
	d := New(junction, "nsd").WithBodyLimits(1<<20, 16, t.TempDir())

	server, client := net.Pipe()
	defer client.Close()
	sock := driver.NewSock(server, nil)

	go func() {
		client.Write([]byte("POST /upload HTTP/1.1\r\nHost: x\r\nContent-Length: 128\r\n\r\n" + payload))
	}()

	done := make(chan status.Status, 1)
	go func() { done <- d.Dispatch(sock) }()

	buf := make([]byte, 64)
	client.Read(buf)

	assert.Equal(t, status.OK, <-done)
	assert.Equal(t, int64(128), gotSize)
}

func TestResolvePeerHonorsTrustedProxyChainRightmostUntrustedHop(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("127.0.0.0/8")}
	headers := newTestHeaders(t, map[string]string{
		"X-Forwarded-For": "203.0.113.9, 127.0.0.1",
	})

	direct := mustSockFromLoopback(t)
	defer direct.Close()

	addr := resolvePeer(direct, headers, "X-Forwarded-For", trusted)
	assert.Equal(t, "203.0.113.9", addr.String())
}

func TestResolvePeerIgnoresHeaderFromUntrustedDirectPeer(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	headers := newTestHeaders(t, map[string]string{
		"X-Forwarded-For": "203.0.113.9",
	})

	direct := mustSockFromLoopback(t)
	defer direct.Close()

	addr := resolvePeer(direct, headers, "X-Forwarded-For", trusted)
	assert.NotEqual(t, "203.0.113.9", addr.String())
}

func newTestHeaders(t *testing.T, kv map[string]string) *set.Set {
	t.Helper()
	s := set.New("headers")
	for k, v := range kv {
		s.Put(k, v)
	}
	return s
}

// mustSockFromLoopback returns a Sock whose RemoteAddr is a real loopback
// TCP address (net.Pipe's synthetic "pipe" address won't parse as an IP),
// so resolvePeer's direct-peer CIDR gate has something to match against.
func mustSockFromLoopback(t *testing.T) *driver.Sock {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	server := <-accepted
	t.Cleanup(func() { server.Close() })
	return driver.NewSock(server, nil)
}
