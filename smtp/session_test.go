package smtp

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"
)

type recordingHandler struct {
	envelopes []*Envelope
	err       error
}

func (h *recordingHandler) Deliver(ctx context.Context, env *Envelope) error {
	if h.err != nil {
		return h.err
	}
	h.envelopes = append(h.envelopes, env)
	return nil
}

func dialSession(t *testing.T, cfg Config, handler Handler) (client net.Conn, done chan struct{}) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	sess := newSession(serverConn, cfg.withDefaults(), handler, nil)
	done = make(chan struct{})
	go func() {
		sess.serve(context.Background())
		close(done)
	}()
	return clientConn, done
}

func expect(t *testing.T, r *bufio.Reader, prefix string) string {
	t.Helper()
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("reading reply: %v", err)
	}
	if !strings.HasPrefix(line, prefix) {
		t.Fatalf("expected reply starting %q, got %q", prefix, line)
	}
	return line
}

func TestFullTransactionWithoutAuth(t *testing.T) {
	handler := &recordingHandler{}
	conn, done := dialSession(t, Config{Ident: "sendria.test"}, handler)
	defer conn.Close()

	r := bufio.NewReader(conn)
	expect(t, r, "220")

	conn.SetDeadline(time.Now().Add(2 * time.Second))

	io := func(cmd, prefix string) {
		conn.Write([]byte(cmd + "\r\n"))
		expect(t, r, prefix)
	}

	io("EHLO client.example", "250")
	// drain continuation lines for EHLO (8BITMIME etc.)
	for {
		line, _ := r.ReadString('\n')
		if strings.HasPrefix(line, "250 ") {
			break
		}
	}
	io("MAIL FROM:<a@example.com>", "250")
	io("RCPT TO:<b@example.com>", "250")

	conn.Write([]byte("DATA\r\n"))
	expect(t, r, "354")
	conn.Write([]byte("Subject: hi\r\n\r\nbody\r\n.\r\n"))
	expect(t, r, "250")

	io("QUIT", "221")
	<-done

	if len(handler.envelopes) != 1 {
		t.Fatalf("expected 1 delivered envelope, got %d", len(handler.envelopes))
	}
	env := handler.envelopes[0]
	if env.MailFrom != "a@example.com" {
		t.Errorf("mail from = %q", env.MailFrom)
	}
	if len(env.RcptTo) != 1 || env.RcptTo[0] != "b@example.com" {
		t.Errorf("rcpt to = %v", env.RcptTo)
	}
}

func TestRcptBeforeMailRejected(t *testing.T) {
	handler := &recordingHandler{}
	conn, done := dialSession(t, Config{}, handler)
	defer conn.Close()
	defer func() { conn.Close(); <-done }()

	r := bufio.NewReader(conn)
	expect(t, r, "220")
	conn.Write([]byte("HELO client\r\n"))
	expect(t, r, "250")
	conn.Write([]byte("RCPT TO:<b@example.com>\r\n"))
	expect(t, r, "503")
}

func TestAuthRequiredRejectsMailBeforeAuth(t *testing.T) {
	htp := &Htpasswd{entries: map[string]string{"alice": "secret"}}
	handler := &recordingHandler{}
	conn, done := dialSession(t, Config{Auth: htp}, handler)
	defer conn.Close()
	defer func() { conn.Close(); <-done }()

	r := bufio.NewReader(conn)
	expect(t, r, "220")
	conn.Write([]byte("HELO client\r\n"))
	expect(t, r, "250")
	conn.Write([]byte("MAIL FROM:<a@example.com>\r\n"))
	expect(t, r, "530")
}
