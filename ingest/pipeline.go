// Package ingest wires the SMTP receiver to the MIME decoder, the
// store, the broadcast bus, and the webhook dispatcher: decode, persist,
// notify, enqueue. Grounded on the bounded-queue orchestration shape of
// the teacher's backend gateway (Process: borrow, dispatch, wait for
// notify), simplified here to direct sequential calls since this
// pipeline has no pluggable processor chain.
package ingest

import (
	"context"

	"github.com/msztolcman/sendria/internal/logging"
	"github.com/msztolcman/sendria/mimedecode"
	"github.com/msztolcman/sendria/smtp"
	"github.com/msztolcman/sendria/store"
)

// Broadcaster publishes short event strings to live WebSocket peers.
type Broadcaster interface {
	Publish(event string, args ...interface{})
}

// WebhookEnqueuer accepts a message summary for best-effort delivery.
type WebhookEnqueuer interface {
	Enqueue(summary WebhookSummary)
}

// WebhookSummary is the JSON payload shape sent to the configured
// webhook URL.
type WebhookSummary struct {
	MessageID            int64    `json:"message_id"`
	SenderEnvelope       string   `json:"sender_envelope"`
	SenderMessage        string   `json:"sender_message"`
	RecipientsEnvelope   []string `json:"recipients_envelope"`
	RecipientsMessageTo  []string `json:"recipients_message_to"`
	RecipientsMessageCc  []string `json:"recipients_message_cc"`
	RecipientsMessageBcc []string `json:"recipients_message_bcc"`
	Subject              string   `json:"subject"`
	Type                 string   `json:"type"`
	Size                 int      `json:"size"`
	Peer                 string   `json:"peer"`
}

// Pipeline is the single orchestrator invoked after DATA completes, and
// implements smtp.Handler.
type Pipeline struct {
	Store   *store.Store
	Bus     Broadcaster
	Webhook WebhookEnqueuer
	Log     logging.Logger
}

var _ smtp.Handler = (*Pipeline)(nil)

// Deliver decodes, persists, and fans out one SMTP transaction. Errors
// from steps 3/4 (broadcast, webhook) are logged and swallowed; only
// decode and store errors are returned to the caller (which maps them
// to 554/451).
func (p *Pipeline) Deliver(ctx context.Context, env *smtp.Envelope) error {
	decoded, err := mimedecode.Decode(env.Data)
	if err != nil {
		return err
	}

	msg := &store.Message{
		SenderEnvelope:     env.MailFrom,
		SenderMessage:      decoded.SenderMessage,
		RecipientsEnvelope: append([]string(nil), env.RcptTo...),
		RecipientsTo:       decoded.To,
		RecipientsCc:       decoded.Cc,
		RecipientsBcc:      decoded.Bcc,
		Subject:            decoded.Subject,
		Source:             env.Data,
		ContentType:        decoded.ContentType,
		Peer:               env.Peer,
	}

	parts := make([]store.NewPart, 0, len(decoded.Parts))
	for _, part := range decoded.Parts {
		parts = append(parts, store.NewPart{
			CID:          part.CID,
			ContentType:  part.ContentType,
			IsAttachment: part.IsAttachment,
			Filename:     part.Filename,
			Charset:      part.Charset,
			Body:         part.Body,
		})
	}

	id, err := p.Store.Add(ctx, msg, parts)
	if err != nil {
		return err
	}

	if p.Bus != nil {
		func() {
			defer p.recoverAndLog("broadcast")
			p.Bus.Publish("add_message", id)
		}()
	}

	if p.Webhook != nil {
		func() {
			defer p.recoverAndLog("webhook enqueue")
			p.Webhook.Enqueue(WebhookSummary{
				MessageID:            id,
				SenderEnvelope:       msg.SenderEnvelope,
				SenderMessage:        msg.SenderMessage,
				RecipientsEnvelope:   msg.RecipientsEnvelope,
				RecipientsMessageTo:  msg.RecipientsTo,
				RecipientsMessageCc:  msg.RecipientsCc,
				RecipientsMessageBcc: msg.RecipientsBcc,
				Subject:              msg.Subject,
				Type:                 msg.ContentType,
				Size:                 len(msg.Source),
				Peer:                 msg.Peer,
			})
		}()
	}

	return nil
}

func (p *Pipeline) recoverAndLog(step string) {
	if r := recover(); r != nil && p.Log != nil {
		p.Log.WithField("step", step).Errorf("ingest: recovered panic: %v", r)
	}
}
