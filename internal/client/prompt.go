package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// Prompter asks the user to answer an input request.
type Prompter interface {
	Prompt(prompt string, sensitive bool) (string, error)
}

// ErrNotTerminal is returned when interactive input is requested without a terminal.
var ErrNotTerminal = errors.New("stdin is not a terminal")

// TerminalPrompter reads answers from a terminal. Sensitive prompts are read
// without echo.
type TerminalPrompter struct {
	In  *os.File
	Out io.Writer
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Prompt writes the prompt to Out and reads one line from In.
func (p *TerminalPrompter) Prompt(prompt string, sensitive bool) (string, error) {
	if !IsTerminal(p.In) {
		return "", ErrNotTerminal
	}
	fmt.Fprintf(p.Out, "Enter input for '%s': ", prompt)

	if sensitive {
		b, err := term.ReadPassword(int(p.In.Fd()))
		fmt.Fprintln(p.Out)
		if err != nil {
			return "", fmt.Errorf("read sensitive input: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
