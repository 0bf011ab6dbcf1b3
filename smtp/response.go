package smtp

import "fmt"

// Reply is one SMTP status line: a basic 3-digit code, optionally an
// RFC 3463 enhanced status code, and free-text. Grounded on the
// teacher's enhanced-status-code mapping, trimmed to the codes this
// receiver actually emits.
type Reply struct {
	Basic    int
	Enhanced string
	Text     string
}

func (r Reply) String() string {
	if r.Enhanced == "" {
		return fmt.Sprintf("%d %s", r.Basic, r.Text)
	}
	return fmt.Sprintf("%d %s %s", r.Basic, r.Enhanced, r.Text)
}

var (
	replyGreeting             = func(ident string) Reply { return Reply{220, "", ident + " Service ready"} }
	replyOK                   = Reply{250, "2.0.0", "OK"}
	replyBye                  = Reply{221, "2.0.0", "Bye"}
	replyStartMail            = Reply{354, "", "Start mail input; end with <CRLF>.<CRLF>"}
	replyAuthSuccess          = Reply{235, "2.7.0", "Authentication successful"}
	replyAuthInvalid          = Reply{535, "5.7.8", "Authentication credentials invalid"}
	replyAuthRequired         = Reply{530, "5.7.0", "Authentication required"}
	replyDuplicateHelo        = Reply{503, "5.5.1", "Duplicate HELO/EHLO"}
	replyNeedHelo             = Reply{503, "5.5.1", "send EHLO/HELO first"}
	replyBadSequence          = Reply{503, "5.5.1", "Bad sequence of commands"}
	replySyntaxError          = Reply{500, "5.5.2", "Command not recognized"}
	replyArgSyntaxError       = Reply{501, "5.5.4", "Syntax error in parameters"}
	replyTooBig               = Reply{552, "5.3.4", "Message size exceeds fixed maximum message size"}
	replyLineTooLong          = Reply{500, "5.5.2", "Line too long"}
	replyTempFailure          = Reply{451, "4.3.0", "Requested action aborted: local error in processing"}
	replyDecodeFailure        = Reply{554, "5.6.0", "Transaction failed: could not parse message"}
	replyNoRecipients         = Reply{503, "5.5.1", "RCPT TO required before DATA"}
	replyNoTransaction        = Reply{503, "5.5.1", "MAIL FROM required before RCPT TO"}
)
