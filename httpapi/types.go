package httpapi

import "github.com/msztolcman/sendria/store"

type attachmentInfo struct {
	CID         string `json:"cid"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Href        string `json:"href"`
}

type messageSummary struct {
	ID                   int64    `json:"id"`
	SenderEnvelope       string   `json:"sender_envelope"`
	SenderMessage        string   `json:"sender_message"`
	RecipientsEnvelope   []string `json:"recipients_envelope"`
	RecipientsMessageTo  []string `json:"recipients_message_to"`
	RecipientsMessageCc  []string `json:"recipients_message_cc"`
	RecipientsMessageBcc []string `json:"recipients_message_bcc"`
	Subject              string   `json:"subject"`
	Type                 string   `json:"type"`
	Size                 int64    `json:"size"`
	Peer                 string   `json:"peer"`
	CreatedAt            int64    `json:"created_at"`
}

type messageInfo struct {
	messageSummary
	Formats     []string         `json:"formats"`
	Attachments []attachmentInfo `json:"attachments"`
	Href        string           `json:"href"`
}

func summaryFromMessage(m *store.Message) messageSummary {
	return messageSummary{
		ID:                   m.ID,
		SenderEnvelope:       m.SenderEnvelope,
		SenderMessage:        m.SenderMessage,
		RecipientsEnvelope:   orEmpty(m.RecipientsEnvelope),
		RecipientsMessageTo:  orEmpty(m.RecipientsTo),
		RecipientsMessageCc:  orEmpty(m.RecipientsCc),
		RecipientsMessageBcc: orEmpty(m.RecipientsBcc),
		Subject:              m.Subject,
		Type:                 m.ContentType,
		Size:                 m.Size,
		Peer:                 m.Peer,
		CreatedAt:            m.CreatedAt.Unix(),
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
