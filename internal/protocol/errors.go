// Package protocol implements the Gemini-Lite wire format: header line framing,
// the reply status line and the request line.
package protocol

import (
	"errors"
	"fmt"
)

// ErrSyntax is returned for malformed wire data: bad status codes, bad scheme,
// missing host, illegal characters, oversize lines and lone LF terminators.
// It is never worth retrying.
var ErrSyntax = errors.New("protocol syntax error")

// ErrURISyntax is returned when a resource reference is not a syntactically
// valid URI. It is distinct from ErrSyntax.
var ErrURISyntax = errors.New("uri syntax error")

// URIError describes an invalid resource reference.
type URIError struct {
	Input  string
	Reason string
}

func (e *URIError) Error() string {
	return fmt.Sprintf("invalid uri %q: %s", e.Input, e.Reason)
}

// Is reports whether target is ErrURISyntax.
func (e *URIError) Is(target error) bool {
	return target == ErrURISyntax
}

func syntaxErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrSyntax}, args...)...)
}
