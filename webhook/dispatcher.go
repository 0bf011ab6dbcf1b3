// Package webhook delivers message summaries to an operator-configured
// HTTP endpoint on a best-effort basis. Grounded on the teacher's
// bounded-queue, single-worker backend shape (backends/worker.go,
// backends/gateway.go), replacing the worker's pluggable processor
// chain with a single POST-and-log step since there is nothing further
// to pipeline a webhook delivery through.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/msztolcman/sendria/internal/logging"
	"github.com/msztolcman/sendria/ingest"
)

const queueSize = 256

// Dispatcher delivers WebhookSummary values to a single configured URL.
type Dispatcher struct {
	url    string
	method string
	auth   string // "login:password", empty disables Basic auth
	client *http.Client
	log    logging.Logger

	queue chan ingest.WebhookSummary
	stop  chan struct{}
	done  chan struct{}
}

var _ ingest.WebhookEnqueuer = (*Dispatcher)(nil)

// New builds a Dispatcher. url == "" means disabled: Enqueue becomes a
// no-op and Run returns immediately. method defaults to POST.
func New(url, method, auth string, log logging.Logger) *Dispatcher {
	if method == "" {
		method = http.MethodPost
	}
	return &Dispatcher{
		url:    url,
		method: method,
		auth:   auth,
		log:    log,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
			},
		},
		queue: make(chan ingest.WebhookSummary, queueSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Enqueue queues summary for delivery. Never blocks: a full queue drops
// the item and logs a warning, since the ingest pipeline must never
// stall on a slow or unreachable webhook endpoint.
func (d *Dispatcher) Enqueue(summary ingest.WebhookSummary) {
	if d.url == "" {
		return
	}
	select {
	case d.queue <- summary:
	default:
		if d.log != nil {
			d.log.Warn("webhook: queue full, dropping summary")
		}
	}
}

// Run drains the queue until ctx is done or Close is called. Intended
// to be run in its own goroutine.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	if d.url == "" {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case summary := <-d.queue:
			d.deliver(ctx, summary)
		}
	}
}

// Close signals Run to stop and waits for it to return.
func (d *Dispatcher) Close() {
	close(d.stop)
	<-d.done
}

func (d *Dispatcher) deliver(ctx context.Context, summary ingest.WebhookSummary) {
	defer func() {
		if r := recover(); r != nil && d.log != nil {
			d.log.Errorf("webhook: recovered panic delivering summary: %v", r)
		}
	}()

	body, err := json.Marshal(summary)
	if err != nil {
		if d.log != nil {
			d.log.Errorf("webhook: marshal summary: %v", err)
		}
		return
	}

	req, err := http.NewRequestWithContext(ctx, d.method, d.url, bytes.NewReader(body))
	if err != nil {
		if d.log != nil {
			d.log.Errorf("webhook: build request: %v", err)
		}
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "sendria-webhook/1.0")
	if d.auth != "" {
		login, password := splitAuth(d.auth)
		req.SetBasicAuth(login, password)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if d.log != nil {
			d.log.WithField("url", d.url).Warnf("webhook: delivery failed: %v", err)
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if d.log != nil {
			d.log.WithField("status", resp.StatusCode).Warn("webhook: endpoint returned non-2xx")
		}
	}
}

func splitAuth(auth string) (login, password string) {
	for i := 0; i < len(auth); i++ {
		if auth[i] == ':' {
			return auth[:i], auth[i+1:]
		}
	}
	return auth, ""
}
