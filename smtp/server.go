// Package smtp implements the line-oriented SMTP receiver: a listener
// that accepts connections and runs one session goroutine per
// connection, following the teacher's one-connection-per-goroutine
// shape (client.go/server.go) generalized from a relay's MAIL/RCPT
// pass-through into a mail trap that hands the finished transaction to
// a Handler instead of persisting directly.
package smtp

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/msztolcman/sendria/internal/logging"
)

// Envelope is one completed SMTP transaction, handed to Handler after
// DATA terminates. The receiver never persists directly.
type Envelope struct {
	MailFrom string
	RcptTo   []string
	Peer     string
	Data     []byte
}

// Handler processes a finished transaction. Returning an error causes
// the session to reply 554 (decode) or 451 (anything else) to the
// client; returning nil replies 250.
type Handler interface {
	Deliver(ctx context.Context, env *Envelope) error
}

// Config configures a Server.
type Config struct {
	Ident          string // EHLO identity, e.g. the advertised hostname
	MaxLineSize    int64  // default 2048
	MaxDataSize    int64  // default 32 MiB
	Auth           *Htpasswd
	CommandTimeout time.Duration // per-read/write deadline, default 5m
}

func (c Config) withDefaults() Config {
	if c.MaxLineSize <= 0 {
		c.MaxLineSize = 2048
	}
	if c.MaxDataSize <= 0 {
		c.MaxDataSize = 32 << 20
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 5 * time.Minute
	}
	if c.Ident == "" {
		c.Ident = "sendria"
	}
	return c
}

// Server accepts SMTP connections and dispatches finished transactions
// to a Handler.
type Server struct {
	mu      sync.RWMutex
	cfg     Config
	handler Handler
	log     logging.Logger
}

// New builds a Server. cfg's zero values take sensible defaults.
func New(cfg Config, handler Handler, log logging.Logger) *Server {
	return &Server{cfg: cfg.withDefaults(), handler: handler, log: log}
}

// SetAuth swaps the htpasswd table used by newly-accepted connections,
// letting a SIGHUP-driven config reload pick up an edited auth file
// without restarting the listener. Connections already in progress keep
// using the table they started with.
func (s *Server) SetAuth(auth *Htpasswd) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Auth = auth
}

func (s *Server) currentConfig() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Serve accepts connections from ln until it is closed or ctx is done,
// handling each on its own goroutine.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		sess := newSession(conn, s.currentConfig(), s.handler, s.log)
		go sess.serve(ctx)
	}
}
