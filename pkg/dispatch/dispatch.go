package dispatch

import (
	"bufio"
	"fmt"
	"net/netip"
	"strings"

	"github.com/navispace/navid/pkg/container/set"
	"github.com/navispace/navid/pkg/driver"
	"github.com/navispace/navid/pkg/status"
	"github.com/navispace/navid/pkg/urlspace"
	"github.com/navispace/navid/pkg/writer"
)

// OpFunc is a registered URL Space handler: the thing Set(key, url, op, ...)
// installs as its data payload.
type OpFunc func(c *Conn) status.Status

// FilterFunc is one pre-auth/post-auth/trace/void-trace filter.
type FilterFunc func(c *Conn) status.Status

// AuthFunc is one authorizer, run after pre-auth filters and before
// post-auth filters.
type AuthFunc func(c *Conn) status.Status

// Conn is the per-request context threaded through the filter chain:
// the parsed request, the response stream, the resolved op, and the
// URL Space match that produced it.
type Conn struct {
	Request   *Request
	Body      *Body
	Response  *set.Set
	Stream    *writer.Stream
	Sock      *driver.Sock
	Peer      netip.Addr
	Op        OpFunc
	MatchInfo *urlspace.MatchInfo
}

// bodySent reports whether the op (or an earlier filter) already wrote
// response bytes, so void-trace filters (bodyless requests only) know
// whether to run.
func (c *Conn) bodySent() bool {
	return c.Stream.Flags()&(writer.FlagHeadersSent|writer.FlagSentViaWriter) != 0
}

// Dispatcher resolves each accepted connection's request against a URL
// Space junction and runs it through the pre-auth / authorize / post-auth
// / op / trace / void-trace filter chain. There is no separate
// connection-cleanup trace phase.
type Dispatcher struct {
	junction *urlspace.Junction
	key      string
	limits   Limits

	trustedProxyHeader string
	trustedProxyCIDRs  []netip.Prefix

	maxKeepaliveRequests int
	spoolThreshold       int64
	maxBodySize          int64
	tmpDir               string

	preAuth     []FilterFunc
	authorizers []AuthFunc
	postAuth    []FilterFunc
	trace       []FilterFunc
	voidTrace   []FilterFunc
}

// New creates a Dispatcher resolving requests against junction under the
// given server key (e.g. a virtual-host or driver name).
func New(junction *urlspace.Junction, key string) *Dispatcher {
	return &Dispatcher{junction: junction, key: key, limits: DefaultLimits}
}

// WithLimits overrides the default request-line/header limits.
func (d *Dispatcher) WithLimits(l Limits) *Dispatcher { d.limits = l; return d }

// WithBodyLimits configures request-body handling: bodies up to
// spoolThreshold buffer in memory, larger bodies spool to a temp file
// under tmpDir, and bodies beyond maxBodySize fail with ENTITYTOOLARGE (0
// disables that check).
func (d *Dispatcher) WithBodyLimits(maxBodySize, spoolThreshold int64, tmpDir string) *Dispatcher {
	d.maxBodySize = maxBodySize
	d.spoolThreshold = spoolThreshold
	d.tmpDir = tmpDir
	return d
}

// WithKeepalive bounds how many requests Serve will run on one connection
// before closing it (0 or 1 disables keepalive: one request per socket).
func (d *Dispatcher) WithKeepalive(maxRequests int) *Dispatcher {
	d.maxKeepaliveRequests = maxRequests
	return d
}

// TrustProxyHeader names a header (e.g. "X-Forwarded-For") trusted to
// carry the real client address, honored only when the socket's immediate
// peer falls within cidrs.
func (d *Dispatcher) TrustProxyHeader(header string, cidrs []netip.Prefix) *Dispatcher {
	d.trustedProxyHeader = header
	d.trustedProxyCIDRs = cidrs
	return d
}

func (d *Dispatcher) RegisterPreAuth(f FilterFunc)    { d.preAuth = append(d.preAuth, f) }
func (d *Dispatcher) RegisterAuthorizer(f AuthFunc)   { d.authorizers = append(d.authorizers, f) }
func (d *Dispatcher) RegisterPostAuth(f FilterFunc)   { d.postAuth = append(d.postAuth, f) }
func (d *Dispatcher) RegisterTrace(f FilterFunc)      { d.trace = append(d.trace, f) }
func (d *Dispatcher) RegisterVoidTrace(f FilterFunc)  { d.voidTrace = append(d.voidTrace, f) }

// sockReader adapts Sock.Recv to io.Reader for bufio.
type sockReader struct{ sock *driver.Sock }

func (r sockReader) Read(p []byte) (int, error) { return r.sock.Recv(p) }

// Dispatch reads one request off sock, resolves and runs it, and writes a
// response. It returns the outcome so the caller's connection loop can
// decide whether to keep the socket open for the next request. Dispatch
// always serves exactly one request and never closes sock; Serve drives
// the keepalive loop that may call it (via serveOne) more than once per
// connection.
func (d *Dispatcher) Dispatch(sock *driver.Sock) status.Status {
	br := bufio.NewReader(sockReader{sock})
	outcome, _ := d.serveOne(sock, br)
	return outcome
}

// Serve runs the keepalive loop on sock: it dispatches requests one after
// another off a single buffered reader shared across the connection's
// lifetime, honoring each request's Connection header and the
// dispatcher's keepalive request budget, and closes sock once keepalive
// ends.
func (d *Dispatcher) Serve(sock *driver.Sock) status.Status {
	defer sock.Close()
	br := bufio.NewReader(sockReader{sock})

	max := d.maxKeepaliveRequests
	if max <= 0 {
		max = 1
	}

	var last status.Status
	for n := 0; n < max; n++ {
		sock.Keep(n+1 < max)
		outcome, keepalive := d.serveOne(sock, br)
		last = outcome
		if outcome != status.OK && outcome != status.FilterReturn {
			return outcome
		}
		if !keepalive {
			return outcome
		}
	}
	return last
}

// serveOne parses and runs one request off br, reports the outcome, and
// reports whether the connection should serve another request afterward.
func (d *Dispatcher) serveOne(sock *driver.Sock, br *bufio.Reader) (status.Status, bool) {
	line, err := br.ReadString('\n')
	if err != nil {
		return status.Error, false
	}
	req, err := ParseRequestLine(line, d.limits)
	if err != nil {
		return d.fail(sock, status.Wrap(status.Error, err)), false
	}
	headers, err := ParseHeaders(br, d.limits)
	if err != nil {
		return d.fail(sock, status.Wrap(status.Error, err)), false
	}
	req.Headers = headers

	body := &Body{}
	if n, ok := req.ContentLength(); ok && n > 0 {
		b, s := readBody(br, n, d.spoolThreshold, d.maxBodySize, d.tmpDir)
		if s != status.OK {
			return d.fail(sock, status.New(s)), false
		}
		body = b
	}
	defer body.Close()

	peer := resolvePeer(sock, headers, d.trustedProxyHeader, d.trustedProxyCIDRs)

	ctx := urlspace.Context{Peer: peer, Headers: headers}
	data, info, found := d.junction.Get(d.key, req.Path, ctx, false)
	if !found {
		return d.fail(sock, status.New(status.Error)), false
	}
	op, ok := data.(OpFunc)
	if !ok {
		return d.fail(sock, status.New(status.Error)), false
	}

	// Ops compose their own status line and headers via Stream.WriteInline
	// and opt into chunked body framing (via WriteChunk) themselves when
	// streaming; the dispatcher doesn't force transfer-encoding based on
	// the request's HTTP version.
	stream := writer.NewStream(sock, false, 0)

	conn := &Conn{
		Request:   req,
		Body:      body,
		Response:  set.New("response"),
		Stream:    stream,
		Sock:      sock,
		Peer:      peer,
		Op:        op,
		MatchInfo: info,
	}

	outcome := d.run(conn)

	for _, f := range d.trace {
		f(conn)
	}
	if !conn.bodySent() {
		for _, f := range d.voidTrace {
			f(conn)
		}
	}

	if outcome.Status != status.OK && outcome.Status != status.FilterReturn {
		d.writeError(conn, outcome.Status)
	}
	if stream.Flags()&writer.FlagChunked != 0 {
		stream.CloseChunked()
	}

	return outcome.Status, outcome.Status == status.OK && wantsKeepalive(req)
}

// wantsKeepalive reports whether req's Connection header (or, absent one,
// its HTTP version) calls for the socket to stay open for another
// request.
func wantsKeepalive(req *Request) bool {
	if v, ok := req.Headers.IGet("Connection"); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "close":
			return false
		case "keep-alive":
			return true
		}
	}
	return req.Version == "1.1"
}

// run executes the pre-auth/authorize/post-auth/op chain, short-circuiting
// on the first non-OK outcome (other than FilterBreak, which only skips the
// rest of its own phase).
func (d *Dispatcher) run(c *Conn) *status.Outcome {
	if o := runFilters(d.preAuth, c); o.Status != status.OK {
		return o
	}
	if o := d.runAuthorizers(c); o.Status != status.OK {
		return o
	}
	if o := runFilters(d.postAuth, c); o.Status != status.OK {
		return o
	}
	s := c.Op(c)
	return status.New(s)
}

func (d *Dispatcher) runAuthorizers(c *Conn) *status.Outcome {
	for _, a := range d.authorizers {
		s := a(c)
		if s != status.OK {
			return status.New(s)
		}
	}
	return status.New(status.OK)
}

// runFilters runs fs in order. FilterBreak stops the phase but reports OK
// to the caller (the request continues); any other non-OK status stops the
// whole chain.
func runFilters(fs []FilterFunc, c *Conn) *status.Outcome {
	for _, f := range fs {
		s := f(c)
		switch s {
		case status.OK:
			continue
		case status.FilterBreak:
			return status.New(status.OK)
		default:
			return status.New(s)
		}
	}
	return status.New(status.OK)
}

func (d *Dispatcher) fail(sock *driver.Sock, o *status.Outcome) status.Status {
	line := statusLine(o.Status)
	sock.Send([]byte(line))
	return o.Status
}

func (d *Dispatcher) writeError(c *Conn, s status.Status) {
	line := statusLine(s)
	c.Stream.WriteInline([]byte(line))
}

func statusLine(s status.Status) string {
	code, text := httpStatusFor(s)
	return fmt.Sprintf("HTTP/1.1 %d %s\r\nContent-Length: 0\r\nConnection: close\r\n\r\n", code, text)
}

func httpStatusFor(s status.Status) (int, string) {
	switch s {
	case status.OK:
		return 200, "OK"
	case status.Forbidden:
		return 403, "Forbidden"
	case status.Unauthorized:
		return 401, "Unauthorized"
	case status.Timeout:
		return 408, "Request Timeout"
	case status.EndData:
		return 204, "No Content"
	case status.EntityTooLarge:
		return 413, "Request Entity Too Large"
	default:
		return 500, "Internal Server Error"
	}
}

// resolvePeer returns the original client address. The socket's direct
// remote IP is authoritative unless header names a trusted reverse-proxy
// header AND the direct peer itself falls within trusted; in that case
// the header's comma-separated hop list is scanned right to left, and the
// first hop that is not itself a trusted proxy is returned (so a spoofed
// left-most hop behind a chain of trusted proxies can't impersonate the
// client). If every hop is trusted, or none parses, the direct peer wins.
func resolvePeer(sock *driver.Sock, headers *set.Set, header string, trusted []netip.Prefix) netip.Addr {
	direct := directPeer(sock)

	if header == "" || len(trusted) == 0 || !trustedAddr(direct, trusted) {
		return direct
	}
	v, ok := headers.IGet(header)
	if !ok {
		return direct
	}
	hops := strings.Split(v, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			continue
		}
		if !trustedAddr(addr, trusted) {
			return addr
		}
	}
	return direct
}

func directPeer(sock *driver.Sock) netip.Addr {
	host, _, err := splitHostPort(sock.RemoteAddr().String())
	if err != nil {
		return netip.Addr{}
	}
	addr, _ := netip.ParseAddr(host)
	return addr
}

func trustedAddr(addr netip.Addr, trusted []netip.Prefix) bool {
	if !addr.IsValid() {
		return false
	}
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func splitHostPort(hostport string) (string, string, error) {
	i := strings.LastIndex(hostport, ":")
	if i < 0 {
		return hostport, "", nil
	}
	host := hostport[:i]
	host = strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
	return host, hostport[i+1:], nil
}
