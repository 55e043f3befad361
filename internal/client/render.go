package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// GemtextMIME is the meta prefix of gemtext documents.
const GemtextMIME = "text/gemini"

const (
	ansiReset = "\x1b[0m"
	ansiH1    = "\x1b[38;5;54m"
	ansiH2    = "\x1b[38;5;60m"
	ansiH3    = "\x1b[38;5;66m"
	ansiLink  = "\x1b[38;5;72m"
	ansiList  = "\x1b[38;5;78m"
	ansiQuote = "\x1b[38;5;84m"
)

// Render writes a success body to w. Gemtext is colorized line by line when
// color is set; anything else is copied byte for byte.
func Render(w io.Writer, meta string, body io.Reader, color bool) error {
	if !color || !strings.HasPrefix(meta, GemtextMIME) {
		_, err := io.Copy(w, body)
		return err
	}

	br := bufio.NewReader(body)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			text := strings.TrimRight(line, "\r\n")
			if _, werr := fmt.Fprintln(w, ColorizeGemtext(text)); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// ColorizeGemtext wraps headings, links, list items and quotes in ANSI colors.
func ColorizeGemtext(line string) string {
	var color string
	switch {
	case strings.HasPrefix(line, "###"):
		color = ansiH3
	case strings.HasPrefix(line, "##"):
		color = ansiH2
	case strings.HasPrefix(line, "#"):
		color = ansiH1
	case strings.HasPrefix(line, "=>"):
		color = ansiLink
	case strings.HasPrefix(line, "*"):
		color = ansiList
	case strings.HasPrefix(line, ">"):
		color = ansiQuote
	default:
		return line
	}
	return color + line + ansiReset
}
