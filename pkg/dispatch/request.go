// Package dispatch implements the connection dispatcher: HTTP/1.x request
// line and header parsing, URL Space resolution, and the pre-auth /
// authorize / post-auth / op / trace filter chain.
package dispatch

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/navispace/navid/pkg/container/set"
)

// RequestType classifies the request-line form.
type RequestType int

const (
	RequestPlain RequestType = iota
	RequestProxy
	RequestConnect
	RequestAsterisk
)

// Limits bounds request-line/header parsing. Exceeding a limit makes the
// parse fail with ErrRequestURITooLong, ErrLineTooLong or
// ErrTooManyHeaders; the dispatcher answers every parse failure with a 500
// status line, not a distinct 414 or 431.
type Limits struct {
	MaxRequestURI int // ErrRequestURITooLong (0 disables the check)
	MaxLineLength int // ErrLineTooLong (0 disables the check)
	MaxHeaders    int
}

// DefaultLimits mirrors common httpd defaults.
var DefaultLimits = Limits{MaxRequestURI: 8 << 10, MaxLineLength: 8 << 10, MaxHeaders: 128}

// Request is one parsed HTTP/1.x request line plus headers.
type Request struct {
	Method      string
	Path        string   // raw (not percent-decoded) path, without query
	Query       string
	Segments    []string // "/"-split path segments
	Version     string   // "1.0" or "1.1"
	Type        RequestType
	Host        string // CONNECT / absolute-URI host
	Port        string
	Headers     *set.Set
}

var (
	ErrRequestURITooLong = errors.New("dispatch: request-uri too long")
	ErrLineTooLong       = errors.New("dispatch: line too long")
	ErrMalformedRequest  = errors.New("dispatch: malformed request line")
	ErrTooManyHeaders    = errors.New("dispatch: too many headers")
)

// ParseRequestLine parses one HTTP/1.x request line into a Request,
// leaving Headers nil (ParseHeaders fills it in separately).
func ParseRequestLine(line string, limits Limits) (*Request, error) {
	if limits.MaxLineLength > 0 && len(line) > limits.MaxLineLength {
		return nil, ErrLineTooLong
	}
	line = strings.TrimRight(line, "\r\n")
	parts := strings.Fields(line)
	if len(parts) != 3 {
		return nil, ErrMalformedRequest
	}
	method, uri, version := parts[0], parts[1], parts[2]

	if limits.MaxRequestURI > 0 && len(uri) > limits.MaxRequestURI {
		return nil, ErrRequestURITooLong
	}

	ver, ok := strings.CutPrefix(version, "HTTP/")
	if !ok {
		return nil, ErrMalformedRequest
	}

	req := &Request{Method: strings.ToUpper(method), Version: ver}

	switch {
	case method == "CONNECT" || strings.EqualFold(method, "CONNECT"):
		req.Type = RequestConnect
		host, port, found := strings.Cut(uri, ":")
		req.Host = host
		if found {
			req.Port = port
		}
	case uri == "*":
		req.Type = RequestAsterisk
	case strings.Contains(uri, "://"):
		req.Type = RequestProxy
		if err := fillFromAbsoluteURI(req, uri); err != nil {
			return nil, err
		}
	default:
		req.Type = RequestPlain
		path, query, _ := strings.Cut(uri, "?")
		req.Path = path
		req.Query = query
		req.Segments = splitPath(path)
	}

	return req, nil
}

func fillFromAbsoluteURI(req *Request, uri string) error {
	rest, ok := strings.CutPrefix(uri, "http://")
	if !ok {
		if rest, ok = strings.CutPrefix(uri, "https://"); !ok {
			return ErrMalformedRequest
		}
	}
	authority, pathAndQuery, _ := strings.Cut(rest, "/")
	host, port, hasPort := strings.Cut(authority, ":")
	req.Host = host
	if hasPort {
		req.Port = port
	}
	path, query, _ := strings.Cut("/"+pathAndQuery, "?")
	req.Path = path
	req.Query = query
	req.Segments = splitPath(path)
	return nil
}

// splitPath splits a "/"-separated path into non-empty segments.
func splitPath(p string) []string {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// ParseHeaders reads header lines from r until a blank line, honoring
// folded continuations (a line starting with space/tab extends the
// previous header's value).
func ParseHeaders(r *bufio.Reader, limits Limits) (*set.Set, error) {
	headers := set.New("headers")
	var lastKey string

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		if limits.MaxLineLength > 0 && len(line) > limits.MaxLineLength {
			return nil, ErrLineTooLong
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			break
		}

		if (line[0] == ' ' || line[0] == '\t') && lastKey != "" {
			if i := headers.Find(lastKey); i >= 0 {
				f := headers.At(i)
				headers.Update(lastKey, f.Value+" "+strings.TrimSpace(trimmed))
			}
			continue
		}

		k, v, ok := strings.Cut(trimmed, ":")
		if !ok {
			return nil, ErrMalformedRequest
		}
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		headers.Put(k, v)
		lastKey = k

		if limits.MaxHeaders > 0 && headers.Len() > limits.MaxHeaders {
			return nil, ErrTooManyHeaders
		}
	}

	return headers, nil
}

// String renders the request line, for access-log style summaries.
func (r *Request) String() string {
	uri := r.Path
	if r.Query != "" {
		uri += "?" + r.Query
	}
	return fmt.Sprintf("%s %s HTTP/%s", r.Method, uri, r.Version)
}

// ContentLength reads and parses the Content-Length header, if present.
func (r *Request) ContentLength() (int64, bool) {
	v, ok := r.Headers.IGet("Content-Length")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
