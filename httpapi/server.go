// Package httpapi is the JSON HTTP API and WebSocket live feed: list,
// inspect, and delete trapped messages, fetch individual MIME parts,
// and stream "a message arrived" notifications to the web UI. Grounded
// on the teacher's dashboard subsystem (dashboard/http.go's non-blocking
// listen-and-serve, dashboard/dashboard.go's router and WebSocket
// upgrade), rebuilt around this system's message/part model instead of
// SMTP traffic statistics.
package httpapi

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/msztolcman/sendria/bus"
	"github.com/msztolcman/sendria/internal/logging"
	"github.com/msztolcman/sendria/store"
)

// Server is the message inspection HTTP API.
type Server struct {
	httpServer *http.Server
	log        logging.Logger
}

// Options configures New.
type Options struct {
	Ident      string // product/version string for the Server header
	Store      *store.Store
	Bus        *bus.Bus
	Auth       *BasicAuth // nil disables the wrapper entirely; a BasicAuth with no htpasswd loaded also passes every request through
	HeaderName string     // template_header_name: extra header shown per message
	HeaderURL  string     // template_header_url: link target for HeaderName
	NoQuit     bool       // when true, DELETE /api returns 403
	NoClear    bool       // when true, DELETE /api/messages/ returns 403
	Terminate  func()     // invoked (async) after a successful DELETE /api
}

// New builds a Server. Call ListenAndServeWithClose to start it.
func New(opts Options, log logging.Logger) *Server {
	router := newRouter(&handlers{
		store:       opts.Store,
		bus:         opts.Bus,
		headerName:  opts.HeaderName,
		headerURL:   opts.HeaderURL,
		log:         log,
		noQuit:      opts.NoQuit,
		noClear:     opts.NoClear,
		terminateFn: opts.Terminate,
	})

	handler := withDefaultHeaders(opts.Ident, router)
	if opts.Auth != nil {
		handler = opts.Auth.Wrap(handler)
	}

	return &Server{
		httpServer: &http.Server{
			Handler:      handler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		log: log,
	}
}

// ListenAndServeWithClose starts serving on ln in its own goroutine and
// returns immediately, following the teacher's non-blocking
// listen-and-serve helper so callers can shut down alongside the SMTP
// receiver from a single select.
func (s *Server) ListenAndServeWithClose(ln net.Listener) io.Closer {
	kal := tcpKeepAliveListener{ln.(*net.TCPListener)}
	go func() {
		if err := s.httpServer.Serve(kal); err != nil && s.log != nil {
			s.log.WithField("component", "httpapi").Debugf("server stopped: %v", err)
		}
	}()
	return s.httpServer
}

// Shutdown gracefully stops the server, following the standard
// http.Server shutdown contract.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the underlying http.Handler, for tests that want to
// drive it through httptest.NewServer without binding a real listener.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// tcpKeepAliveListener sets TCP keep-alives on accepted connections,
// matching the teacher's dashboard listener so idle browser/API clients
// don't linger past a NAT's idle-connection timeout.
type tcpKeepAliveListener struct {
	*net.TCPListener
}

func (ln tcpKeepAliveListener) Accept() (net.Conn, error) {
	conn, err := ln.AcceptTCP()
	if err != nil {
		return nil, err
	}
	conn.SetKeepAlive(true)
	conn.SetKeepAlivePeriod(3 * time.Minute)
	return conn, nil
}
