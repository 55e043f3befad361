package protocol

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Scheme is the only URI scheme a request may name.
const Scheme = "gemini-lite"

// DefaultPort is assumed when a resource names no port.
const DefaultPort = 1958

// Request names one resource. It is immutable; redirects and input answers
// produce new requests.
type Request struct {
	u *url.URL
}

// NewRequest validates u and returns a request for it. u is copied.
func NewRequest(u *url.URL) (*Request, error) {
	if u == nil {
		return nil, syntaxErrorf("missing uri")
	}
	if u.Scheme == "" {
		return nil, syntaxErrorf("missing scheme")
	}
	if !strings.EqualFold(u.Scheme, Scheme) {
		return nil, syntaxErrorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, syntaxErrorf("missing host")
	}
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 || n > 65535 {
			return nil, syntaxErrorf("invalid port %q", p)
		}
	}
	cp := *u
	return &Request{u: &cp}, nil
}

// ParseRequest parses a request line without its CRLF. Characters that cannot
// appear in a URI yield a *URIError; a wrong scheme or missing host yields
// ErrSyntax.
func ParseRequest(line string) (*Request, error) {
	if line == "" {
		return nil, syntaxErrorf("empty request line")
	}
	u, err := parseURI(line)
	if err != nil {
		return nil, err
	}
	return NewRequest(u)
}

// ReadRequest reads and parses one request line from r.
func ReadRequest(r io.ByteReader) (*Request, error) {
	line, err := ReadHeaderLine(r)
	if err != nil {
		return nil, err
	}
	return ParseRequest(line)
}

// URL returns a copy of the resource URI.
func (r *Request) URL() *url.URL {
	cp := *r.u
	return &cp
}

// Host returns the host without port or IPv6 brackets.
func (r *Request) Host() string {
	return r.u.Hostname()
}

// Port returns the explicit port or DefaultPort.
func (r *Request) Port() int {
	if p := r.u.Port(); p != "" {
		n, _ := strconv.Atoi(p)
		return n
	}
	return DefaultPort
}

// Address returns the host:port to dial for this resource.
func (r *Request) Address() string {
	return net.JoinHostPort(r.Host(), strconv.Itoa(r.Port()))
}

// Path returns the decoded path, "/" when empty.
func (r *Request) Path() string {
	if r.u.Path == "" {
		return "/"
	}
	return r.u.Path
}

// Query returns the raw (still escaped) query, without the '?'.
func (r *Request) Query() string {
	return r.u.RawQuery
}

// Line renders the canonical request line without CRLF:
// scheme://host[:port][path or "/"][?query]. The port is omitted when it is
// DefaultPort.
func (r *Request) Line() string {
	var sb strings.Builder
	sb.WriteString(Scheme)
	sb.WriteString("://")
	host := r.Host()
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	sb.WriteString(host)
	if port := r.Port(); port != DefaultPort {
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(port))
	}
	path := r.u.EscapedPath()
	if path == "" {
		path = "/"
	}
	sb.WriteString(path)
	if r.u.RawQuery != "" {
		sb.WriteByte('?')
		sb.WriteString(r.u.RawQuery)
	}
	return sb.String()
}

func (r *Request) String() string {
	return r.Line()
}

// Write sends the request line and CRLF, flushing w when it buffers.
func (r *Request) Write(w io.Writer) error {
	if _, err := io.WriteString(w, r.Line()+CRLF); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	if f, ok := w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("flush request: %w", err)
		}
	}
	return nil
}

// Resolve resolves ref relative to r, as a redirect target. Any failure,
// including a target outside the gemini-lite scheme, is ErrSyntax.
func (r *Request) Resolve(ref string) (*Request, error) {
	if ref == "" {
		return nil, syntaxErrorf("empty redirection target")
	}
	u, err := parseURI(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid redirection %q: %v", ErrSyntax, ref, err)
	}
	next, err := NewRequest(r.u.ResolveReference(u))
	if err != nil {
		return nil, fmt.Errorf("invalid redirection %q: %w", ref, err)
	}
	return next, nil
}

// WithQuery returns a request for the same resource with its query replaced by
// the percent-encoded input.
func (r *Request) WithQuery(input string) *Request {
	cp := *r.u
	cp.RawQuery = EscapeQuery(input)
	cp.ForceQuery = false
	cp.Fragment = ""
	cp.RawFragment = ""
	return &Request{u: &cp}
}

// EscapeQuery percent-encodes s for use as a query; spaces become %20.
func EscapeQuery(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func parseURI(s string) (*url.URL, error) {
	if err := validateURIChars(s); err != nil {
		return nil, err
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, &URIError{Input: s, Reason: err.Error()}
	}
	return u, nil
}

// validateURIChars enforces the RFC 3986 character set, which url.Parse does
// not (it accepts spaces in paths).
func validateURIChars(s string) error {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '%':
			if i+2 >= len(s) || !isHex(s[i+1]) || !isHex(s[i+2]) {
				return &URIError{Input: s, Reason: fmt.Sprintf("malformed escape at index %d", i)}
			}
			i += 2
		case isURIChar(c):
		default:
			return &URIError{Input: s, Reason: fmt.Sprintf("illegal character %q at index %d", c, i)}
		}
	}
	return nil
}

func isURIChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-._~:/?#[]@!$&'()*+,;=", c) >= 0
}

func isHex(c byte) bool {
	return isDigit(c) || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}
