package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound indicates a requested row does not exist.
	ErrNotFound = errors.New("storage: record not found")
)

const (
	senderSelf        = "me"
	senderCounterpart = "them"
)

const (
	archiveStatusSent    = "sent"
	archiveStatusBlocked = "blocked"
)

const (
	opsecRiskSafe      = "SAFE"
	opsecRiskSensitive = "SENSITIVE"
	opsecRiskHigh      = "HIGH"
)

const (
	phishingRiskLow      = "LOW"
	phishingRiskModerate = "MODERATE"
	phishingRiskHigh     = "HIGH"
)

const (
	// SecuritySeverityInfo indicates informational security event context.
	SecuritySeverityInfo = "info"
	// SecuritySeverityWarning indicates potentially suspicious behavior.
	SecuritySeverityWarning = "warning"
	// SecuritySeverityCritical indicates serious security failures.
	SecuritySeverityCritical = "critical"
)

// ArchivedMessage is the SQLite representation of one scanned message.
// Content is stored sealed; plaintext never reaches disk.
type ArchivedMessage struct {
	ClientKey      string
	ServerID       *string
	ChannelID      string
	Sender         string
	SealedContent  []byte
	Timestamp      int64
	Status         string
	AIScore        float64
	OpsecRisk      string
	PhishingRisk   string
	Explanation    string
	IntegrityHash  string
	AttachmentName *string
	AttachmentSize *string
	TTLSeconds     *int
	ArchivedAt     int64
}

// SecurityEvent stores structured security-relevant runtime events.
type SecurityEvent struct {
	ID        int64
	EventType string
	ChannelID *string
	Details   string
	Severity  string
	Timestamp int64
}

type scanner interface {
	Scan(dest ...any) error
}

func validateSender(sender string) error {
	switch sender {
	case senderSelf, senderCounterpart:
		return nil
	default:
		return fmt.Errorf("invalid sender %q", sender)
	}
}

func validateArchiveStatus(status string) error {
	switch status {
	case archiveStatusSent, archiveStatusBlocked:
		return nil
	default:
		return fmt.Errorf("invalid archive status %q", status)
	}
}

func validateOpsecRisk(risk string) error {
	switch risk {
	case opsecRiskSafe, opsecRiskSensitive, opsecRiskHigh:
		return nil
	default:
		return fmt.Errorf("invalid opsec risk %q", risk)
	}
}

func validatePhishingRisk(risk string) error {
	switch risk {
	case phishingRiskLow, phishingRiskModerate, phishingRiskHigh:
		return nil
	default:
		return fmt.Errorf("invalid phishing risk %q", risk)
	}
}

func nullString(ptr *string) sql.NullString {
	if ptr == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *ptr, Valid: true}
}

func nullInt64FromInt(ptr *int) sql.NullInt64 {
	if ptr == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*ptr), Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func intPtrFromNullInt64(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

func nowUnixMilli() int64 {
	return time.Now().UnixMilli()
}
