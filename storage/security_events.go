package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Security event taxonomy. The store rejects types outside this set so
// the archived trail stays queryable by exact type.
const (
	// EventMessageBlocked records an outbound message stopped by a HIGH
	// opsec verdict.
	EventMessageBlocked = "message_blocked"
	// EventSessionExpired records a 401 from the backend mid-session.
	EventSessionExpired = "session_expired"
	// EventDMRejected records a direct-message identifier the directory
	// refused to resolve.
	EventDMRejected = "dm_rejected"
)

func validateEventType(eventType string) error {
	switch eventType {
	case EventMessageBlocked, EventSessionExpired, EventDMRejected:
		return nil
	default:
		return fmt.Errorf("unknown security event type %q", eventType)
	}
}

// eventSeverity derives the stored severity from the event type:
// losing the session is critical, a blocked send is a warning, a
// refused DM lookup is routine.
func eventSeverity(eventType string) string {
	switch eventType {
	case EventSessionExpired:
		return SecuritySeverityCritical
	case EventMessageBlocked:
		return SecuritySeverityWarning
	default:
		return SecuritySeverityInfo
	}
}

// SetSecurityEventRetention configures the automatic pruning horizon.
func (s *Store) SetSecurityEventRetention(retention time.Duration) {
	if retention <= 0 {
		retention = DefaultSecurityEventRetention
	}
	s.securityEventRetention = retention
}

// RecordSecurityEvent stores one pipeline event. Severity is derived
// from the type; the free-text details are wrapped in a JSON envelope
// before they reach disk. An empty channel records a session-wide
// event.
func (s *Store) RecordSecurityEvent(eventType, channelID, details string) error {
	if err := validateEventType(eventType); err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]string{"details": details})
	if err != nil {
		return fmt.Errorf("encode security event details: %w", err)
	}

	var channel *string
	if trimmed := strings.TrimSpace(channelID); trimmed != "" {
		channel = &trimmed
	}

	now := s.nowFn()
	_, err = s.db.Exec(
		`INSERT INTO security_events (
			event_type,
			channel_id,
			details,
			severity,
			timestamp
		) VALUES (?, ?, ?, ?, ?)`,
		eventType,
		nullString(channel),
		string(payload),
		eventSeverity(eventType),
		now,
	)
	if err != nil {
		return fmt.Errorf("record security event %q: %w", eventType, err)
	}

	if s.securityEventRetention > 0 {
		cutoff := now - s.securityEventRetention.Milliseconds()
		if _, err := s.PruneSecurityEvents(cutoff); err != nil {
			return fmt.Errorf("prune security events: %w", err)
		}
	}

	return nil
}

// RecentSecurityEvents returns the newest events across all channels.
func (s *Store) RecentSecurityEvents(limit int) ([]SecurityEvent, error) {
	return s.querySecurityEvents(
		securityEventColumns+` FROM security_events
		ORDER BY timestamp DESC, id DESC LIMIT ?`,
		clampEventLimit(limit),
	)
}

// SecurityEventsForChannel returns the newest events recorded against
// one channel, for per-conversation review.
func (s *Store) SecurityEventsForChannel(channelID string, limit int) ([]SecurityEvent, error) {
	if strings.TrimSpace(channelID) == "" {
		return nil, errors.New("channel_id is required")
	}

	return s.querySecurityEvents(
		securityEventColumns+` FROM security_events
		WHERE channel_id = ?
		ORDER BY timestamp DESC, id DESC LIMIT ?`,
		channelID,
		clampEventLimit(limit),
	)
}

// CountSecurityEventsSince reports how many events of one type were
// recorded at or after the given timestamp.
func (s *Store) CountSecurityEventsSince(eventType string, sinceTimestamp int64) (int, error) {
	if err := validateEventType(eventType); err != nil {
		return 0, err
	}

	var count int
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM security_events WHERE event_type = ? AND timestamp >= ?`,
		eventType,
		sinceTimestamp,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count security events %q: %w", eventType, err)
	}

	return count, nil
}

// PruneSecurityEvents removes events older than cutoffTimestamp.
func (s *Store) PruneSecurityEvents(cutoffTimestamp int64) (int64, error) {
	if cutoffTimestamp <= 0 {
		return 0, errors.New("cutoff timestamp must be > 0")
	}

	res, err := s.db.Exec(`DELETE FROM security_events WHERE timestamp < ?`, cutoffTimestamp)
	if err != nil {
		return 0, fmt.Errorf("prune security events: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read rows affected for security event prune: %w", err)
	}

	return rowsAffected, nil
}

const securityEventColumns = `SELECT
	id,
	event_type,
	channel_id,
	details,
	severity,
	timestamp`

func clampEventLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func (s *Store) querySecurityEvents(query string, args ...any) ([]SecurityEvent, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query security events: %w", err)
	}
	defer rows.Close()

	events := make([]SecurityEvent, 0)
	for rows.Next() {
		var (
			event     SecurityEvent
			channelID sql.NullString
		)
		if err := rows.Scan(
			&event.ID,
			&event.EventType,
			&channelID,
			&event.Details,
			&event.Severity,
			&event.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan security event row: %w", err)
		}
		event.ChannelID = stringPtr(channelID)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate security event rows: %w", err)
	}

	return events, nil
}
