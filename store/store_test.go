package store

import (
	"context"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	s, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := &Message{
		SenderEnvelope:     "a@b.com",
		SenderMessage:      "a@b.com",
		RecipientsEnvelope: []string{"c@d.com"},
		RecipientsTo:       []string{"c@d.com"},
		Subject:            "Hi",
		Source:             []byte("Subject: Hi\r\n\r\nhello\r\n"),
		ContentType:        "text/plain",
		Peer:               "127.0.0.1:1234",
	}
	parts := []NewPart{{ContentType: "text/plain", Body: []byte("hello"), CID: "abc"}}

	id, err := s.Add(ctx, msg, parts)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if id == 0 {
		t.Fatalf("expected non-zero id")
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Subject != "Hi" {
		t.Errorf("Subject = %q, want Hi", got.Subject)
	}
	if len(got.RecipientsEnvelope) != 1 || got.RecipientsEnvelope[0] != "c@d.com" {
		t.Errorf("RecipientsEnvelope = %v", got.RecipientsEnvelope)
	}
	if got.Size != int64(len(msg.Source)) {
		t.Errorf("Size = %d, want %d", got.Size, len(msg.Source))
	}

	p, err := s.GetPartByCID(ctx, id, "abc")
	if err != nil {
		t.Fatalf("GetPartByCID: %v", err)
	}
	if string(p.Body) != "hello" {
		t.Errorf("part body = %q", p.Body)
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get(context.Background(), 999); err == nil {
		t.Fatalf("expected error for missing message")
	}
}

func TestListOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := s.Add(ctx, &Message{Subject: "m", Source: []byte("x")}, nil)
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
		ids = append(ids, id)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("len(list) = %d, want 3", len(list))
	}
	for i, m := range list {
		if m.ID != ids[i] {
			t.Errorf("list[%d].ID = %d, want %d", i, m.ID, ids[i])
		}
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Add(ctx, &Message{Subject: "m", Source: []byte("x")},
		[]NewPart{{ContentType: "text/plain", Body: []byte("x"), IsAttachment: true, Filename: "x.txt"}})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, id); err == nil {
		t.Fatalf("expected message to be gone")
	}
	parts, err := s.Attachments(ctx, id)
	if err != nil {
		t.Fatalf("Attachments: %v", err)
	}
	if len(parts) != 0 {
		t.Errorf("expected no parts after delete, got %d", len(parts))
	}
}

func TestDeleteAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := s.Add(ctx, &Message{Subject: "m", Source: []byte("x")},
			[]NewPart{{ContentType: "text/plain", Body: []byte("x"), IsAttachment: true, Filename: "x.txt"}})
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
		ids = append(ids, id)
	}

	if err := s.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}

	msgs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no messages after DeleteAll, got %d", len(msgs))
	}
	for _, id := range ids {
		if parts, err := s.Attachments(ctx, id); err != nil {
			t.Fatalf("Attachments: %v", err)
		} else if len(parts) != 0 {
			t.Errorf("expected no parts for message %d after DeleteAll, got %d", id, len(parts))
		}
	}

	if err := s.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll on empty store: %v", err)
	}
}

func TestHasAnyType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Add(ctx, &Message{Subject: "m", Source: []byte("x")},
		[]NewPart{{ContentType: "text/html", Body: []byte("<p>hi</p>")}})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	has, err := s.HasAnyType(ctx, id, []string{"text/html", "application/xhtml+xml"})
	if err != nil {
		t.Fatalf("HasAnyType: %v", err)
	}
	if !has {
		t.Errorf("expected message to have html type")
	}

	has, err = s.HasAnyType(ctx, id, []string{"text/plain"})
	if err != nil {
		t.Fatalf("HasAnyType: %v", err)
	}
	if has {
		t.Errorf("expected message to not have plain type")
	}
}
