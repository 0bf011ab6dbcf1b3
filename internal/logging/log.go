// Package logging provides the structured logger shared by every
// subsystem. It wraps logrus the same way the upstream server's log.go
// did: a small interface plus a hook that can target stderr, stdout, a
// file, or be switched off, with support for reopening the file on
// SIGHUP.
package logging

import (
	"bufio"
	"io"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is what every subsystem takes at construction time, instead of
// reaching for a package-level global.
type Logger interface {
	logrus.FieldLogger
	// WithConn stamps the remote address of conn onto the returned entry.
	WithConn(conn net.Conn) *logrus.Entry
	// SetLevel adjusts the minimum level logged, e.g. from --verbose.
	SetLevel(level logrus.Level)
	// Reopen closes and reopens the destination file, e.g. on SIGHUP.
	Reopen() error
	// Rename switches the logger to a new destination.
	Rename(newFile string) error
}

type logger struct {
	*logrus.Logger
	hook Hook
}

// WithConn returns a log entry tagged with the peer address of conn, or
// untagged if conn is nil.
func (l *logger) WithConn(conn net.Conn) *logrus.Entry {
	if conn == nil {
		return l.WithField("peer", "-")
	}
	return l.WithField("peer", conn.RemoteAddr().String())
}

// Hook extends logrus.Hook with the ability to reopen its underlying
// file descriptor, used to support log rotation across SIGHUP.
type Hook interface {
	logrus.Hook
	Reopen() error
	Rename(newFile string) error
}

type fileHook struct {
	mu    sync.Mutex
	w     io.Writer
	fd    *os.File
	fname string
}

// NewLogger builds a Logger writing to dest, which may be "stderr",
// "stdout", "off", or a file path. An empty dest defaults to stderr.
func NewLogger(dest string) (Logger, error) {
	base := logrus.New()
	base.SetOutput(io.Discard) // all writes happen through the hook
	hook, err := newFileHook(dest)
	if err != nil {
		return nil, err
	}
	base.AddHook(hook)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &logger{Logger: base, hook: hook}, nil
}

// Reopen closes and reopens the underlying log file, used after log
// rotation (e.g. logrotate) or on SIGHUP.
func (l *logger) Reopen() error {
	return l.hook.Reopen()
}

// Rename switches the logger to a new destination file.
func (l *logger) Rename(newFile string) error {
	return l.hook.Rename(newFile)
}

func newFileHook(dest string) (Hook, error) {
	h := &fileHook{fname: dest}
	if err := h.open(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *fileHook) open() error {
	switch strings.ToLower(h.fname) {
	case "", "stderr":
		h.w = os.Stderr
		return nil
	case "stdout":
		h.w = os.Stdout
		return nil
	case "off":
		h.w = io.Discard
		return nil
	default:
		fd, err := os.OpenFile(h.fname, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		h.fd = fd
		h.w = bufio.NewWriter(fd)
		return nil
	}
}

// Reopen closes and reopens the destination file (no-op for stderr/stdout/off).
func (h *fileHook) Reopen() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fd == nil {
		return nil
	}
	if bw, ok := h.w.(*bufio.Writer); ok {
		_ = bw.Flush()
	}
	_ = h.fd.Close()
	return h.open()
}

// Rename points the hook at a new file path.
func (h *fileHook) Rename(newFile string) error {
	h.mu.Lock()
	if h.fd != nil {
		if bw, ok := h.w.(*bufio.Writer); ok {
			_ = bw.Flush()
		}
		_ = h.fd.Close()
	}
	h.mu.Unlock()

	h.fname = newFile
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.open()
}

// Fire writes the formatted entry to the current destination.
func (h *fileHook) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = io.Copy(h.w, strings.NewReader(line))
	if bw, ok := h.w.(*bufio.Writer); ok {
		return bw.Flush()
	}
	return err
}

// Levels reports that this hook fires for every log level.
func (h *fileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}
