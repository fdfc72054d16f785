package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

// SaveArchivedMessage inserts one scanned message. The client key is
// the primary key; replaying the same key updates the row in place so
// a later poll can fill in the server id.
func (s *Store) SaveArchivedMessage(message ArchivedMessage) error {
	if message.ClientKey == "" {
		return errors.New("client_key is required")
	}
	if message.ChannelID == "" {
		return errors.New("channel_id is required")
	}
	if message.Sender == "" {
		message.Sender = senderSelf
	}
	if err := validateSender(message.Sender); err != nil {
		return err
	}
	if err := validateArchiveStatus(message.Status); err != nil {
		return err
	}
	if message.OpsecRisk == "" {
		message.OpsecRisk = opsecRiskSafe
	}
	if err := validateOpsecRisk(message.OpsecRisk); err != nil {
		return err
	}
	if message.PhishingRisk == "" {
		message.PhishingRisk = phishingRiskLow
	}
	if err := validatePhishingRisk(message.PhishingRisk); err != nil {
		return err
	}
	if len(message.SealedContent) == 0 {
		return errors.New("sealed_content is required")
	}
	if message.Timestamp == 0 {
		message.Timestamp = nowUnixMilli()
	}
	if message.ArchivedAt == 0 {
		message.ArchivedAt = nowUnixMilli()
	}

	_, err := s.db.Exec(
		`INSERT INTO archived_messages (
			client_key,
			server_id,
			channel_id,
			sender,
			sealed_content,
			timestamp,
			status,
			ai_score,
			opsec_risk,
			phishing_risk,
			explanation,
			integrity_hash,
			attachment_name,
			attachment_size,
			ttl_seconds,
			archived_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_key) DO UPDATE SET
			server_id = excluded.server_id,
			status = excluded.status,
			ai_score = excluded.ai_score,
			opsec_risk = excluded.opsec_risk,
			phishing_risk = excluded.phishing_risk,
			explanation = excluded.explanation`,
		message.ClientKey,
		nullString(message.ServerID),
		message.ChannelID,
		message.Sender,
		message.SealedContent,
		message.Timestamp,
		message.Status,
		message.AIScore,
		message.OpsecRisk,
		message.PhishingRisk,
		message.Explanation,
		message.IntegrityHash,
		nullString(message.AttachmentName),
		nullString(message.AttachmentSize),
		nullInt64FromInt(message.TTLSeconds),
		message.ArchivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert archived message %q: %w", message.ClientKey, err)
	}

	return nil
}

// GetArchivedMessages returns a channel's archive ordered by timestamp.
func (s *Store) GetArchivedMessages(channelID string, limit, offset int) ([]ArchivedMessage, error) {
	if channelID == "" {
		return nil, errors.New("channel_id is required")
	}
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(
		`SELECT
			client_key,
			server_id,
			channel_id,
			sender,
			sealed_content,
			timestamp,
			status,
			ai_score,
			opsec_risk,
			phishing_risk,
			explanation,
			integrity_hash,
			attachment_name,
			attachment_size,
			ttl_seconds,
			archived_at
		FROM archived_messages
		WHERE channel_id = ?
		ORDER BY timestamp ASC
		LIMIT ? OFFSET ?`,
		channelID,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("get archived messages for channel %q: %w", channelID, err)
	}
	defer rows.Close()

	messages := make([]ArchivedMessage, 0)
	for rows.Next() {
		message, err := scanArchivedMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan archived message row: %w", err)
		}
		messages = append(messages, *message)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archived message rows: %w", err)
	}

	return messages, nil
}

// GetArchivedMessageByKey fetches one archived message by client key.
func (s *Store) GetArchivedMessageByKey(clientKey string) (*ArchivedMessage, error) {
	if clientKey == "" {
		return nil, errors.New("client_key is required")
	}

	row := s.db.QueryRow(
		`SELECT
			client_key,
			server_id,
			channel_id,
			sender,
			sealed_content,
			timestamp,
			status,
			ai_score,
			opsec_risk,
			phishing_risk,
			explanation,
			integrity_hash,
			attachment_name,
			attachment_size,
			ttl_seconds,
			archived_at
		FROM archived_messages
		WHERE client_key = ?`,
		clientKey,
	)

	message, err := scanArchivedMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get archived message %q: %w", clientKey, err)
	}
	return message, nil
}

// GetBlockedMessages returns the blocked portion of the archive, newest first.
func (s *Store) GetBlockedMessages(limit int) ([]ArchivedMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(
		`SELECT
			client_key,
			server_id,
			channel_id,
			sender,
			sealed_content,
			timestamp,
			status,
			ai_score,
			opsec_risk,
			phishing_risk,
			explanation,
			integrity_hash,
			attachment_name,
			attachment_size,
			ttl_seconds,
			archived_at
		FROM archived_messages
		WHERE status = ?
		ORDER BY timestamp DESC
		LIMIT ?`,
		archiveStatusBlocked,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get blocked messages: %w", err)
	}
	defer rows.Close()

	messages := make([]ArchivedMessage, 0)
	for rows.Next() {
		message, err := scanArchivedMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan blocked message row: %w", err)
		}
		messages = append(messages, *message)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blocked message rows: %w", err)
	}

	return messages, nil
}

// PruneExpiredMessages removes archived rows whose self-destruct window
// has elapsed as of nowTimestamp (unix milliseconds).
func (s *Store) PruneExpiredMessages(nowTimestamp int64) (int64, error) {
	if nowTimestamp <= 0 {
		return 0, errors.New("now timestamp must be > 0")
	}

	res, err := s.db.Exec(
		`DELETE FROM archived_messages
		WHERE ttl_seconds IS NOT NULL AND timestamp + ttl_seconds * 1000 <= ?`,
		nowTimestamp,
	)
	if err != nil {
		return 0, fmt.Errorf("prune expired archived messages: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read rows affected for expired message prune: %w", err)
	}

	return rowsAffected, nil
}

func scanArchivedMessage(row scanner) (*ArchivedMessage, error) {
	var (
		message        ArchivedMessage
		serverID       sql.NullString
		attachmentName sql.NullString
		attachmentSize sql.NullString
		ttlSeconds     sql.NullInt64
	)

	if err := row.Scan(
		&message.ClientKey,
		&serverID,
		&message.ChannelID,
		&message.Sender,
		&message.SealedContent,
		&message.Timestamp,
		&message.Status,
		&message.AIScore,
		&message.OpsecRisk,
		&message.PhishingRisk,
		&message.Explanation,
		&message.IntegrityHash,
		&attachmentName,
		&attachmentSize,
		&ttlSeconds,
		&message.ArchivedAt,
	); err != nil {
		return nil, err
	}

	message.ServerID = stringPtr(serverID)
	message.AttachmentName = stringPtr(attachmentName)
	message.AttachmentSize = stringPtr(attachmentSize)
	message.TTLSeconds = intPtrFromNullInt64(ttlSeconds)

	return &message, nil
}
