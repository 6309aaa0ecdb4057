package entities

// Attachment is an optional media payload for an outbound message.
// Inline Data takes precedence over URL when both are set.
type Attachment struct {
	Data     []byte `json:"data,omitempty"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	FileName string `json:"file_name,omitempty"`
}

// BulkEntry is the outcome for one recipient of a campaign run.
type BulkEntry struct {
	Recipient string `json:"recipient"`
	Status    string `json:"status"` // "sent" or "failed"
	Detail    string `json:"detail,omitempty"`
}

// BulkReport preserves input order, one entry per attempted recipient.
type BulkReport []BulkEntry

// SendResult is returned by single and reply sends.
type SendResult struct {
	Recipient      string    `json:"recipient"` // resolved provider target
	Body           string    `json:"body"`      // final composed body
	UsedAttachment bool      `json:"used_attachment"`
	Quota          QuotaInfo `json:"quota"`
}

// Chat is a conversation summary fetched from the provider.
type Chat struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ChatMessage is one message fetched from a provider chat.
type ChatMessage struct {
	ID        string `json:"id"`
	ChatID    string `json:"chat_id"`
	FromMe    bool   `json:"from_me"`
	Body      string `json:"body"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}
