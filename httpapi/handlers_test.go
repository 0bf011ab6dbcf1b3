package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/msztolcman/sendria/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()
	db, err := store.Open("")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	srv := New(Options{Ident: "sendria/test", Store: db}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, db
}

func seedMessage(t *testing.T, db *store.Store) int64 {
	t.Helper()
	id, err := db.Add(context.Background(), &store.Message{
		SenderEnvelope: "a@example.com",
		SenderMessage:  "a@example.com",
		RecipientsTo:   []string{"b@example.com"},
		Subject:        "hello",
		Source:         []byte("Subject: hello\r\n\r\nbody"),
		ContentType:    "text/plain",
		Peer:           "127.0.0.1:5000",
	}, []store.NewPart{
		{CID: "part1", ContentType: "text/plain", Body: []byte("body")},
	})
	if err != nil {
		t.Fatalf("seeding message: %v", err)
	}
	return id
}

func TestListMessages(t *testing.T) {
	ts, db := newTestServer(t)
	seedMessage(t, db)

	resp, err := http.Get(ts.URL + "/api/messages/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body envelope
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body.Code != "OK" {
		t.Errorf("code = %q", body.Code)
	}
}

func TestMessageInfoNotFound(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/messages/999.json")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestMessageHTMLRewritesCIDs(t *testing.T) {
	ts, db := newTestServer(t)

	htmlBody := []byte(`<html><body>` +
		`<img src="cid:logo+1@host">` +
		`<a href="http://example.com">link</a>` +
		`<style>body{background:url(cid:style-img)}</style>` +
		`</body></html>`)

	id, err := db.Add(context.Background(), &store.Message{
		SenderEnvelope: "a@example.com",
		SenderMessage:  "a@example.com",
		RecipientsTo:   []string{"b@example.com"},
		Subject:        "inline image",
		Source:         []byte("Subject: inline image\r\n\r\nbody"),
		ContentType:    "multipart/related",
		Peer:           "127.0.0.1:5000",
	}, []store.NewPart{
		{CID: "text-part", ContentType: "text/html", Body: htmlBody},
		// CID deliberately contains URL-reserved characters ('+', '@') to
		// exercise the boundary case of a non-trivial cid: reference.
		{CID: "logo+1@host", ContentType: "image/png", Body: []byte("PNGDATA")},
		{CID: "style-img", ContentType: "image/png", Body: []byte("PNGDATA2")},
	})
	if err != nil {
		t.Fatalf("seeding message: %v", err)
	}

	resp, err := http.Get(ts.URL + fmt.Sprintf("/api/messages/%d.html", id))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	out := string(body)

	wantImgHref := fmt.Sprintf("/api/messages/%d/parts/logo+1@host", id)
	if !strings.Contains(out, wantImgHref) {
		t.Errorf("rewritten html missing inline image href %q, got:\n%s", wantImgHref, out)
	}
	wantStyleHref := fmt.Sprintf("/api/messages/%d/parts/style-img", id)
	if !strings.Contains(out, wantStyleHref) {
		t.Errorf("rewritten html missing style cid href %q, got:\n%s", wantStyleHref, out)
	}
	if !strings.Contains(out, `target="blank"`) {
		t.Errorf("rewritten html missing forced a target=blank, got:\n%s", out)
	}
}

func TestDeleteMessagesClearsAll(t *testing.T) {
	ts, db := newTestServer(t)
	seedMessage(t, db)
	seedMessage(t, db)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/messages/", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body envelope
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body.Code != "OK" {
		t.Errorf("code = %q", body.Code)
	}

	listResp, err := http.Get(ts.URL + "/api/messages/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer listResp.Body.Close()
	var list envelope
	if err := json.NewDecoder(listResp.Body).Decode(&list); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if data, ok := list.Data.([]interface{}); !ok || len(data) != 0 {
		t.Errorf("expected empty message list after DELETE, got %#v", list.Data)
	}
}

func TestDeleteMessagesForbiddenWhenNoClear(t *testing.T) {
	db, err := store.Open("")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer db.Close()

	srv := New(Options{Store: db, NoClear: true}, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/messages/", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}
