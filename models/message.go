package models

// Sender identifies which side of the conversation authored a message.
type Sender string

const (
	// SenderSelf marks messages authored by the local operator.
	SenderSelf Sender = "me"
	// SenderCounterpart marks messages authored by the remote party.
	SenderCounterpart Sender = "them"
)

// Status is the delivery lifecycle state of a message.
type Status string

const (
	// StatusScanning means the message awaits a risk verdict.
	StatusScanning Status = "scanning"
	// StatusSent means the message was scanned and cleared for delivery.
	StatusSent Status = "sent"
	// StatusBlocked means the scan flagged the message as HIGH opsec risk.
	StatusBlocked Status = "blocked"
)

// Attachment describes an encrypted file attached to a message.
type Attachment struct {
	Name      string `json:"name"`
	Size      string `json:"size"`
	MediaType string `json:"media_type"`
	URL       string `json:"url"`
}

// Message is one entry in a channel's conversation sequence.
//
// ID is a client-generated idempotency key assigned at submission and
// stable across reconciliation; ServerID is filled in once the backend
// has persisted its own copy of the message.
type Message struct {
	ID          string      `json:"id"`
	ServerID    string      `json:"server_id,omitempty"`
	Text        string      `json:"text"`
	Sender      Sender      `json:"sender"`
	Timestamp   int64       `json:"timestamp"`
	Status      Status      `json:"status"`
	Risk        *Verdict    `json:"risk,omitempty"`
	Attachment  *Attachment `json:"attachment,omitempty"`
	Fingerprint string      `json:"integrity_hash,omitempty"`
	ChannelID   string      `json:"channel_id"`
	TTLSeconds  *int        `json:"ttl_seconds,omitempty"`
}

// HasAttachment reports whether the message carries a file.
func (m *Message) HasAttachment() bool {
	return m.Attachment != nil
}

// Scanned reports whether the message has reached a terminal status.
func (m *Message) Scanned() bool {
	return m.Status == StatusSent || m.Status == StatusBlocked
}
