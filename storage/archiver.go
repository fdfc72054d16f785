package storage

import (
	"fmt"

	"sentinel/crypto"
	"sentinel/models"
)

// Archiver persists scanned messages and security events through the
// Store, sealing message content with the local archive key. It is
// safe to hand the same message to it more than once.
type Archiver struct {
	store *Store
	key   []byte
}

// NewArchiver wires a store and the archive sealing key together.
func NewArchiver(store *Store, key []byte) *Archiver {
	return &Archiver{store: store, key: key}
}

// ArchiveMessage seals and stores one scanned message. Messages the
// server already handed back on a previous poll are skipped via the
// archive ledger.
func (a *Archiver) ArchiveMessage(msg models.Message) error {
	if msg.ServerID != "" {
		archived, err := a.store.ServerMessageArchived(msg.ServerID)
		if err != nil {
			return err
		}
		if archived {
			return nil
		}
	}

	sealed, err := crypto.Seal(a.key, []byte(msg.Text))
	if err != nil {
		return fmt.Errorf("seal message %q: %w", msg.ID, err)
	}

	row := ArchivedMessage{
		ClientKey:     msg.ID,
		ChannelID:     msg.ChannelID,
		Sender:        string(msg.Sender),
		SealedContent: sealed,
		Timestamp:     msg.Timestamp,
		Status:        string(msg.Status),
		IntegrityHash: msg.Fingerprint,
		TTLSeconds:    msg.TTLSeconds,
	}
	if msg.ServerID != "" {
		serverID := msg.ServerID
		row.ServerID = &serverID
	}
	if msg.Risk != nil {
		row.AIScore = msg.Risk.AIScore
		row.OpsecRisk = string(msg.Risk.OpsecRisk)
		row.PhishingRisk = string(msg.Risk.PhishingRisk)
		row.Explanation = msg.Risk.Explanation
	}
	if msg.Attachment != nil {
		name := msg.Attachment.Name
		size := msg.Attachment.Size
		row.AttachmentName = &name
		row.AttachmentSize = &size
	}

	if err := a.store.SaveArchivedMessage(row); err != nil {
		return err
	}
	if msg.ServerID != "" {
		if err := a.store.MarkServerMessageArchived(msg.ServerID); err != nil {
			return err
		}
	}

	return nil
}

// OpenMessage decrypts one archived row's content.
func (a *Archiver) OpenMessage(row ArchivedMessage) (string, error) {
	plaintext, err := crypto.Open(a.key, row.SealedContent)
	if err != nil {
		return "", fmt.Errorf("open archived message %q: %w", row.ClientKey, err)
	}
	return string(plaintext), nil
}

// RecordSecurityEvent stores one session event; the store derives the
// severity and wraps the details.
func (a *Archiver) RecordSecurityEvent(eventType, channelID, details string) error {
	return a.store.RecordSecurityEvent(eventType, channelID, details)
}
