package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestReply_RoundTrip(t *testing.T) {
	tests := []struct {
		status  int
		message string
	}{
		{10, "What is your name?"},
		{11, ""},
		{20, "text/plain"},
		{20, "text/gemini; lang=en"},
		{30, "/new"},
		{44, "5"},
		{51, "Not found"},
		{59, ""},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.message), func(t *testing.T) {
			r, err := NewReply(tt.status, tt.message)
			if err != nil {
				t.Fatalf("NewReply() error = %v", err)
			}

			var buf bytes.Buffer
			if err := r.Write(&buf); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			want := r.String() + "\r\n"
			if buf.String() != want {
				t.Errorf("wire = %q, want %q", buf.String(), want)
			}

			got, err := ReadReply(bufio.NewReader(&buf))
			if err != nil {
				t.Fatalf("ReadReply() error = %v", err)
			}
			if got != r {
				t.Errorf("ReadReply() = %+v, want %+v", got, r)
			}
		})
	}
}

func TestReply_WriteFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := MustReply(20, "text/plain").Write(&buf); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if buf.String() != "20 text/plain\r\n" {
		t.Errorf("wire = %q, want %q", buf.String(), "20 text/plain\r\n")
	}
}

func TestReply_WriteFlushes(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	if err := MustReply(51, "Not found").Write(bw); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if buf.String() != "51 Not found\r\n" {
		t.Errorf("underlying writer = %q, want flushed line", buf.String())
	}
}

func TestNewReply_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
	}{
		{"below range", 9, "x"},
		{"zero", 0, ""},
		{"above range", 60, "x"},
		{"negative", -20, "x"},
		{"success without mime", 20, ""},
		{"success blank mime", 25, "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewReply(tt.status, tt.message); !errors.Is(err, ErrSyntax) {
				t.Errorf("NewReply(%d, %q) error = %v, want ErrSyntax", tt.status, tt.message, err)
			}
		})
	}
}

func TestParseStatusLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Reply
		wantErr bool
	}{
		{"success", "20 text/plain", Reply{20, "text/plain"}, false},
		{"meta with spaces", "10 Enter your name please", Reply{10, "Enter your name please"}, false},
		{"no meta", "51", Reply{51, ""}, false},
		{"empty meta", "40 ", Reply{40, ""}, false},
		{"single digit", "9 nothing", Reply{}, true},
		{"three digits", "200 text/plain", Reply{}, true},
		{"above range", "60 something", Reply{}, true},
		{"below range", "09 x", Reply{}, true},
		{"non numeric", "ab text/plain", Reply{}, true},
		{"signed", "+2 text/plain", Reply{}, true},
		{"success missing meta", "20", Reply{}, true},
		{"success blank meta", "20   ", Reply{}, true},
		{"empty line", "", Reply{}, true},
		{"leading space", " 20 text/plain", Reply{}, true},
		{"control character", "40 bad\x01meta", Reply{}, true},
		{"tab", "40 bad\tmeta", Reply{}, true},
		{"delete", "40 bad\x7fmeta", Reply{}, true},
		{"non ascii", "40 café", Reply{}, true},
		{"meta at limit", "40 " + strings.Repeat("m", MaxMetaLength), Reply{40, strings.Repeat("m", MaxMetaLength)}, false},
		{"meta too long", "40 " + strings.Repeat("m", MaxMetaLength+1), Reply{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStatusLine(tt.line)
			if tt.wantErr {
				if !errors.Is(err, ErrSyntax) {
					t.Fatalf("ParseStatusLine(%q) error = %v, want ErrSyntax", tt.line, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseStatusLine(%q) error = %v", tt.line, err)
			}
			if got != tt.want {
				t.Errorf("ParseStatusLine(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestReply_Group(t *testing.T) {
	tests := []struct {
		status int
		group  int
	}{
		{10, GroupInput},
		{11, GroupInput},
		{20, GroupSuccess},
		{31, GroupRedirect},
		{44, GroupTemporaryFailure},
		{59, GroupPermanentFailure},
	}
	for _, tt := range tests {
		r := Reply{Status: tt.status, Message: "text/plain"}
		if got := r.Group(); got != tt.group {
			t.Errorf("Reply{%d}.Group() = %d, want %d", tt.status, got, tt.group)
		}
		if !r.Known() {
			t.Errorf("Reply{%d}.Known() = false", tt.status)
		}
	}
}
