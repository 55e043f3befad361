package handler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"gemini-lite-go/internal/config"
	"gemini-lite-go/internal/model"
	"gemini-lite-go/internal/protocol"
)

// NoIndex disables the directory index fallback.
const NoIndex = "-"

var (
	replyNotFound     = protocol.MustReply(protocol.StatusNotFound, "Not found")
	replyUnreadable   = protocol.MustReply(protocol.StatusPermanentFailure, "Server error")
	defaultBinaryMIME = "application/octet-stream"
)

// FileHandler serves files from a directory tree.
type FileHandler struct {
	fs     afero.Fs
	index  string
	logger *slog.Logger
}

// NewFileHandler serves fsys. Directory requests are answered with the index
// file inside them, unless index is empty or NoIndex.
func NewFileHandler(fsys afero.Fs, index string, logger *slog.Logger) *FileHandler {
	if index == NoIndex {
		index = ""
	}
	return &FileHandler{
		fs:     fsys,
		index:  index,
		logger: logger.With("component", "file_handler"),
	}
}

// NewFileHandlerFromConfig serves files.root from the OS filesystem, jailed to
// that directory.
func NewFileHandlerFromConfig(cfg *config.Config, logger *slog.Logger) (*FileHandler, error) {
	// BasePathFs compares prefixes, so a relative root like "." would reject
	// every file.
	root, err := filepath.Abs(cfg.Files.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve files.root %q: %w", cfg.Files.Root, err)
	}
	logger.Info("serving files", "root", root, "index", cfg.Files.Index)
	return NewFileHandler(afero.NewBasePathFs(afero.NewOsFs(), root), cfg.Files.Index, logger), nil
}

// Handle implements Handler. Lookup failures become 5x replies; it never
// returns an error.
func (h *FileHandler) Handle(_ context.Context, req *protocol.Request) (*model.HandlerResult, error) {
	name, ok := cleanPath(req.Path())
	if !ok {
		h.logger.Warn("rejected path", "path", req.Path())
		return model.NewResult(replyNotFound), nil
	}

	info, err := h.fs.Stat(name)
	if err != nil {
		return h.statFailure(name, err), nil
	}

	if info.IsDir() {
		if h.index == "" {
			return model.NewResult(replyNotFound), nil
		}
		name = path.Join(name, h.index)
		info, err = h.fs.Stat(name)
		if err != nil {
			return h.statFailure(name, err), nil
		}
		if info.IsDir() {
			return model.NewResult(replyNotFound), nil
		}
	}

	f, err := h.fs.Open(name)
	if err != nil {
		h.logger.Error("open file", "path", name, "err", err)
		return model.NewResult(replyUnreadable), nil
	}

	reply := protocol.MustReply(protocol.StatusSuccess, MIMEType(name))
	return model.NewResultWithBody(reply, model.ReadCloserBody(f)), nil
}

func (h *FileHandler) statFailure(name string, err error) *model.HandlerResult {
	if errors.Is(err, fs.ErrNotExist) {
		return model.NewResult(replyNotFound)
	}
	h.logger.Error("stat file", "path", name, "err", err)
	return model.NewResult(replyUnreadable)
}

// cleanPath maps a request path to a slash-rooted file name. Paths with ".."
// segments, backslashes or NUL bytes are refused.
func cleanPath(p string) (string, bool) {
	if strings.ContainsAny(p, "\\\x00") {
		return "", false
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", false
		}
	}
	return path.Clean("/" + p), true
}

// MIMEType guesses a file's MIME type from its extension.
func MIMEType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	switch ext {
	case ".gmi", ".gemini":
		return "text/gemini"
	case ".txt":
		return "text/plain"
	case "":
		return defaultBinaryMIME
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return defaultBinaryMIME
}
