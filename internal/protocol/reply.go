package protocol

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// MaxMetaLength is the longest meta accepted in a status line.
const MaxMetaLength = 1024

// Reply is a parsed status line. The zero value is not a valid reply; use
// NewReply or ParseStatusLine.
type Reply struct {
	Status  int
	Message string
}

// NewReply builds a reply, rejecting out-of-range statuses and success replies
// without a MIME type.
func NewReply(status int, message string) (Reply, error) {
	if status < minStatus || status > maxStatus {
		return Reply{}, syntaxErrorf("status out of range: %d", status)
	}
	if status/10 == GroupSuccess && strings.TrimSpace(message) == "" {
		return Reply{}, syntaxErrorf("success status %d requires a MIME type", status)
	}
	return Reply{Status: status, Message: message}, nil
}

// MustReply is NewReply for replies built from constants.
func MustReply(status int, message string) Reply {
	r, err := NewReply(status, message)
	if err != nil {
		panic(err)
	}
	return r
}

// Group returns the status group (status / 10).
func (r Reply) Group() int {
	return r.Status / 10
}

// Known reports whether the status group is one of the five defined groups.
func (r Reply) Known() bool {
	g := r.Group()
	return g >= GroupInput && g <= GroupPermanentFailure
}

func (r Reply) String() string {
	return strconv.Itoa(r.Status) + " " + r.Message
}

// ParseStatusLine parses "<code> <meta>" without its CRLF.
func ParseStatusLine(line string) (Reply, error) {
	code, meta, hasMeta := strings.Cut(line, " ")
	if len(code) != 2 || !isDigit(code[0]) || !isDigit(code[1]) {
		return Reply{}, syntaxErrorf("status code must be two digits: %q", code)
	}
	status := int(code[0]-'0')*10 + int(code[1]-'0')
	if status/10 == GroupSuccess && (!hasMeta || strings.TrimSpace(meta) == "") {
		return Reply{}, syntaxErrorf("success status %d requires a MIME type", status)
	}
	if err := validateMeta(meta); err != nil {
		return Reply{}, err
	}
	return NewReply(status, meta)
}

// ReadReply reads and parses one status line from r.
func ReadReply(r io.ByteReader) (Reply, error) {
	line, err := ReadHeaderLine(r)
	if err != nil {
		return Reply{}, err
	}
	return ParseStatusLine(line)
}

type flusher interface {
	Flush() error
}

// Write sends the status line in a single write and flushes w when it buffers.
func (r Reply) Write(w io.Writer) error {
	if _, err := io.WriteString(w, r.String()+CRLF); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	if f, ok := w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("flush reply: %w", err)
		}
	}
	return nil
}

func validateMeta(meta string) error {
	if len(meta) > MaxMetaLength {
		return syntaxErrorf("meta longer than %d characters", MaxMetaLength)
	}
	for i := 0; i < len(meta); i++ {
		c := meta[i]
		if c < 0x20 || c >= 0x7f {
			return syntaxErrorf("illegal character 0x%02x in meta", c)
		}
	}
	return nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
