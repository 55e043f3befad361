package protocol

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// CRLF terminates every header line.
const CRLF = "\r\n"

// MaxHeaderLine is the largest header line accepted, excluding the CRLF.
const MaxHeaderLine = 1024

// ReadHeaderLine reads one CRLF-terminated line and returns it without the
// terminator. It consumes bytes one at a time and never reads past the LF, so
// whatever follows (a reply body) stays in r.
//
// A LF not preceded by CR and a line longer than MaxHeaderLine are syntax
// errors. A stream that ends before the CRLF yields an error wrapping
// io.ErrUnexpectedEOF.
func ReadHeaderLine(r io.ByteReader) (string, error) {
	buf := make([]byte, 0, 128)
	var prev byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", fmt.Errorf("read header line: %w", io.ErrUnexpectedEOF)
			}
			return "", fmt.Errorf("read header line: %w", err)
		}
		if b == '\n' {
			if prev != '\r' {
				return "", syntaxErrorf("LF without CR")
			}
			line := buf[:len(buf)-1]
			if !utf8.Valid(line) {
				return "", syntaxErrorf("header line is not valid UTF-8")
			}
			return string(line), nil
		}
		buf = append(buf, b)
		prev = b
		// A trailing CR may still be the start of the terminator.
		n := len(buf)
		if b == '\r' {
			n--
		}
		if n > MaxHeaderLine {
			return "", syntaxErrorf("header line too long")
		}
	}
}
