package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/msztolcman/sendria/ingest"
)

func TestDeliversJSONSummary(t *testing.T) {
	received := make(chan ingest.WebhookSummary, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q", r.Header.Get("Content-Type"))
		}
		var summary ingest.WebhookSummary
		if err := json.NewDecoder(r.Body).Decode(&summary); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		received <- summary
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(srv.URL, "", "", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)
	defer d.Close()

	d.Enqueue(ingest.WebhookSummary{MessageID: 7, Subject: "hi"})

	select {
	case summary := <-received:
		if summary.MessageID != 7 || summary.Subject != "hi" {
			t.Errorf("got %+v", summary)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for webhook delivery")
	}
}

func TestDisabledWhenURLEmpty(t *testing.T) {
	d := New("", "", "", nil)
	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	d.Enqueue(ingest.WebhookSummary{MessageID: 1})
	cancel()
	d.Close()
}
