package smtp

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"net"
	"net/textproto"
	"strings"

	"github.com/msztolcman/sendria/internal/logging"
)

// session is one SMTP connection, following the per-connection state
// machine shape of the teacher's handleClient switch-over-state, but
// dispatching into a Handler instead of a relay backend. State lives in
// heloSeen/authed/inTransaction/rcptTo rather than an explicit enum, since
// the legal transitions (spec's state table) are exactly "has HELO
// happened", "has AUTH succeeded if required", and "are we inside a
// MAIL/RCPT/DATA transaction".
type session struct {
	conn    net.Conn
	lr      *limitedBufReader
	tp      *textproto.Reader
	bw      *bufio.Writer
	server  Config
	handler Handler
	log     logging.Logger

	heloSeen      bool
	authRequired  bool
	authed        bool
	inTransaction bool
	mailFrom      string
	rcptTo        []string

	// closeAfterReply is set once a phase limit is exceeded, so dispatch
	// ends the session right after the 552 reply is flushed instead of
	// accepting further commands on the same connection.
	closeAfterReply bool
}

func newSession(conn net.Conn, cfg Config, handler Handler, log logging.Logger) *session {
	lr := newLimitedBufReader(conn, cfg.MaxLineSize)
	return &session{
		conn:         conn,
		lr:           lr,
		tp:           textproto.NewReader(lr.Reader),
		bw:           bufio.NewWriter(conn),
		server:       cfg,
		handler:      handler,
		log:          log,
		authRequired: cfg.Auth != nil,
	}
}

func (s *session) serve(ctx context.Context) {
	defer s.conn.Close()

	s.conn.SetDeadline(timeNowAdd(s.server.CommandTimeout))
	s.writeReply(replyGreeting(s.server.Ident))

	for {
		s.conn.SetDeadline(timeNowAdd(s.server.CommandTimeout))
		s.lr.setLimit(s.server.MaxLineSize)
		line, err := s.tp.ReadLine()
		if err != nil {
			if errors.Is(err, ErrLineTooLong) {
				s.writeReply(replyTooBig)
			}
			return
		}
		if !s.dispatch(ctx, line) {
			return
		}
	}
}

func (s *session) dispatch(ctx context.Context, line string) bool {
	cmd, arg := splitCommand(line)
	switch strings.ToUpper(cmd) {
	case "EHLO", "HELO":
		s.handleHelo(cmd, arg)
	case "AUTH":
		s.handleAuth(arg)
	case "MAIL":
		s.handleMail(arg)
	case "RCPT":
		s.handleRcpt(arg)
	case "DATA":
		s.handleData(ctx)
		if s.closeAfterReply {
			return false
		}
	case "RSET":
		s.resetTransaction()
		s.writeReply(replyOK)
	case "NOOP":
		s.writeReply(replyOK)
	case "VRFY":
		s.writeReply(replyOK)
	case "QUIT":
		s.writeReply(replyBye)
		return false
	default:
		s.writeReply(replySyntaxError)
	}
	return true
}

func (s *session) handleHelo(cmd, arg string) {
	if s.heloSeen {
		s.writeReply(replyDuplicateHelo)
		return
	}
	s.heloSeen = true
	if strings.EqualFold(cmd, "EHLO") {
		lines := []string{s.server.Ident + " Hello", "8BITMIME", "SMTPUTF8"}
		if s.server.Auth != nil {
			lines = append(lines, "AUTH PLAIN")
		}
		lines = append(lines, "HELP")
		s.writeMultiline(250, lines)
	} else {
		s.writeReply(Reply{250, "", s.server.Ident + " Hello"})
	}
}

func (s *session) handleAuth(arg string) {
	if !s.heloSeen {
		s.writeReply(replyNeedHelo)
		return
	}
	mech, b64 := splitCommand(arg)
	if !strings.EqualFold(mech, "PLAIN") {
		s.writeReply(replySyntaxError)
		return
	}
	if b64 == "" {
		// RFC 4954 allows a bare "AUTH PLAIN" followed by a continuation
		// line; this server requires the initial response inline.
		s.writeReply(replyArgSyntaxError)
		return
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		s.writeReply(replyAuthInvalid)
		return
	}
	fields := strings.SplitN(string(raw), "\x00", 3)
	if len(fields) != 3 {
		s.writeReply(replyAuthInvalid)
		return
	}
	authzid, authcid, passwd := fields[0], fields[1], fields[2]
	if authzid != "" && authzid != authcid {
		s.writeReply(replyAuthInvalid)
		return
	}
	if !s.server.Auth.Check(authcid, passwd) {
		s.writeReply(replyAuthInvalid)
		return
	}
	s.authed = true
	s.writeReply(replyAuthSuccess)
}

func (s *session) handleMail(arg string) {
	if !s.heloSeen {
		s.writeReply(replyNeedHelo)
		return
	}
	if s.authRequired && !s.authed {
		s.writeReply(replyAuthRequired)
		return
	}
	addr, ok := parseMailArg(arg, "FROM:")
	if !ok {
		s.writeReply(replyArgSyntaxError)
		return
	}
	s.resetTransaction()
	s.inTransaction = true
	s.mailFrom = addr
	s.writeReply(replyOK)
}

func (s *session) handleRcpt(arg string) {
	if !s.inTransaction {
		s.writeReply(replyNoTransaction)
		return
	}
	addr, ok := parseMailArg(arg, "TO:")
	if !ok {
		s.writeReply(replyArgSyntaxError)
		return
	}
	s.rcptTo = append(s.rcptTo, addr)
	s.writeReply(replyOK)
}

func (s *session) handleData(ctx context.Context) {
	if !s.inTransaction {
		s.writeReply(replyNoTransaction)
		return
	}
	if len(s.rcptTo) == 0 {
		s.writeReply(replyNoRecipients)
		return
	}
	s.writeReply(replyStartMail)

	s.lr.setLimit(s.server.MaxDataSize)
	data, err := s.tp.ReadDotBytes()
	s.lr.setLimit(s.server.MaxLineSize)
	if err != nil {
		if errors.Is(err, ErrLineTooLong) {
			s.writeReply(replyTooBig)
			s.closeAfterReply = true
		} else {
			s.writeReply(replyTempFailure)
		}
		return
	}

	env := &Envelope{
		MailFrom: s.mailFrom,
		RcptTo:   append([]string(nil), s.rcptTo...),
		Peer:     normalizePeer(s.conn.RemoteAddr().String()),
		Data:     data,
	}
	s.resetTransaction()

	if err := s.handler.Deliver(ctx, env); err != nil {
		if isDecodeError(err) {
			s.writeReply(replyDecodeFailure)
		} else {
			s.writeReply(replyTempFailure)
		}
		return
	}
	s.writeReply(replyOK)
}

func (s *session) resetTransaction() {
	s.inTransaction = false
	s.mailFrom = ""
	s.rcptTo = nil
}

func (s *session) writeReply(r Reply) {
	s.conn.SetDeadline(timeNowAdd(s.server.CommandTimeout))
	s.bw.WriteString(r.String())
	s.bw.WriteString("\r\n")
	s.bw.Flush()
}

func (s *session) writeMultiline(code int, lines []string) {
	s.conn.SetDeadline(timeNowAdd(s.server.CommandTimeout))
	for i, l := range lines {
		sep := "-"
		if i == len(lines)-1 {
			sep = " "
		}
		s.bw.WriteString(itoa(code))
		s.bw.WriteString(sep)
		s.bw.WriteString(l)
		s.bw.WriteString("\r\n")
	}
	s.bw.Flush()
}

func splitCommand(line string) (cmd, arg string) {
	line = strings.TrimSpace(line)
	idx := strings.IndexByte(line, ' ')
	if idx < 0 {
		return line, ""
	}
	return line[:idx], strings.TrimSpace(line[idx+1:])
}

func parseMailArg(arg, prefix string) (string, bool) {
	if !strings.HasPrefix(strings.ToUpper(arg), prefix) {
		return "", false
	}
	rest := strings.TrimSpace(arg[len(prefix):])
	rest = strings.TrimSuffix(strings.TrimPrefix(rest, "<"), ">")
	if idx := strings.IndexByte(rest, '>'); idx >= 0 {
		rest = rest[:idx]
	}
	return rest, true
}
