// Package bus is the broadcast bus: a registry of live WebSocket peers
// and a bounded queue that a dedicated goroutine drains to fan events
// out to every peer. Grounded on the teacher's conveyor-channel-plus-
// worker-goroutine idiom (backends/gateway.go) and the peer-registration
// shape of its dashboard subsystem (dashboard/dashboard.go).
package bus

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/msztolcman/sendria/internal/logging"
)

const (
	queueSize   = 256
	pingPeriod  = 30 * time.Second
	writeWindow = 5 * time.Second
)

// Bus fans out short comma-joined event strings to every registered
// WebSocket peer.
type Bus struct {
	log       logging.Logger
	queue     chan string
	stop      chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	peers map[*websocket.Conn]struct{}

	// writeMu serializes WriteMessage/WriteControl calls across the drain,
	// ping and close paths: gorilla/websocket allows only one concurrent
	// writer per connection, and broadcast/pingAll/Close all write to the
	// same peer set from different goroutines.
	writeMu sync.Mutex
}

// New builds a Bus. Call Run to start draining.
func New(log logging.Logger) *Bus {
	return &Bus{
		log:   log,
		queue: make(chan string, queueSize),
		stop:  make(chan struct{}),
		peers: make(map[*websocket.Conn]struct{}),
	}
}

// Register adds conn to the peer set. Call Unregister in the same
// handler's cleanup path once the connection closes.
func (b *Bus) Register(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.peers[conn] = struct{}{}
}

// Unregister removes conn from the peer set.
func (b *Bus) Unregister(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.peers, conn)
}

// Publish serializes event and args as a comma-joined string and pushes
// it onto the bounded queue. Never blocks the caller: a full queue drops
// the oldest pending publish (logged), since ingest must never stall on
// a slow WebSocket fan-out.
func (b *Bus) Publish(event string, args ...interface{}) {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, event)
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	msg := strings.Join(parts, ",")

	select {
	case b.queue <- msg:
	default:
		select {
		case <-b.queue:
		default:
		}
		select {
		case b.queue <- msg:
		default:
		}
		if b.log != nil {
			b.log.Warn("bus: queue full, dropped oldest pending event")
		}
	}
}

// Run drains the publish queue and pings every peer every 30s until
// Close is called. Run both goroutines with `go`.
func (b *Bus) Run() {
	go b.drain()
	go b.pingLoop()
}

func (b *Bus) drain() {
	for {
		select {
		case <-b.stop:
			return
		case msg := <-b.queue:
			b.broadcast(msg)
		}
	}
}

func (b *Bus) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.pingAll()
		}
	}
}

func (b *Bus) broadcast(msg string) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	for _, conn := range b.snapshot() {
		conn.SetWriteDeadline(time.Now().Add(writeWindow))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			if b.log != nil {
				b.log.WithField("event", msg).Warnf("bus: send failed: %v", err)
			}
		}
	}
}

func (b *Bus) pingAll() {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	for _, conn := range b.snapshot() {
		conn.SetWriteDeadline(time.Now().Add(writeWindow))
		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			if b.log != nil {
				b.log.Warnf("bus: ping failed: %v", err)
			}
		}
	}
}

func (b *Bus) snapshot() []*websocket.Conn {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*websocket.Conn, 0, len(b.peers))
	for c := range b.peers {
		out = append(out, c)
	}
	return out
}

// Close closes every registered peer with a "going away" frame and stops
// the drain/ping goroutines. Safe to call more than once.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		close(b.stop)
		b.writeMu.Lock()
		defer b.writeMu.Unlock()
		b.mu.Lock()
		defer b.mu.Unlock()
		for conn := range b.peers {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(writeWindow))
			conn.Close()
		}
		b.peers = make(map[*websocket.Conn]struct{})
	})
}
