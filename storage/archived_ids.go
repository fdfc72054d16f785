package storage

import (
	"errors"
	"fmt"
	"strings"
)

// The archive ledger tracks which server-assigned message ids have
// already been sealed into the local archive, so a poll rebuild that
// hands back the same history does not repeat the work.

// MarkServerMessageArchived adds a server id to the ledger. The row
// keeps the timestamp of the first archive; marking again is a no-op.
func (s *Store) MarkServerMessageArchived(serverID string) error {
	if serverID == "" {
		return errors.New("server_id is required")
	}

	_, err := s.db.Exec(
		`INSERT INTO archived_server_ids (server_id, archived_at)
		VALUES (?, ?)
		ON CONFLICT(server_id) DO NOTHING`,
		serverID,
		s.nowFn(),
	)
	if err != nil {
		return fmt.Errorf("mark server message %q archived: %w", serverID, err)
	}

	return nil
}

// ServerMessageArchived reports whether a server id is in the ledger.
func (s *Store) ServerMessageArchived(serverID string) (bool, error) {
	if serverID == "" {
		return false, errors.New("server_id is required")
	}

	var exists int
	if err := s.db.QueryRow(
		`SELECT EXISTS(SELECT 1 FROM archived_server_ids WHERE server_id = ?)`,
		serverID,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check archived server id %q: %w", serverID, err)
	}

	return exists == 1, nil
}

// FilterUnarchivedServerIDs narrows a poll snapshot down to the ids
// that still need archive work. Input order is preserved; duplicates
// and empty ids are dropped.
func (s *Store) FilterUnarchivedServerIDs(serverIDs []string) ([]string, error) {
	if len(serverIDs) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(serverIDs))
	for _, id := range serverIDs {
		if id != "" {
			args = append(args, id)
		}
	}
	if len(args) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")
	rows, err := s.db.Query(
		fmt.Sprintf(`SELECT server_id FROM archived_server_ids WHERE server_id IN (%s)`, placeholders),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("filter archived server ids: %w", err)
	}
	defer rows.Close()

	known := make(map[string]bool, len(args))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan archived server id: %w", err)
		}
		known[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archived server ids: %w", err)
	}

	unarchived := make([]string, 0, len(serverIDs))
	for _, id := range serverIDs {
		if id == "" || known[id] {
			continue
		}
		known[id] = true
		unarchived = append(unarchived, id)
	}

	return unarchived, nil
}

// PruneArchiveLedger removes ledger rows first archived before the
// cutoff. The archived messages themselves are untouched; an old id
// coming back after the prune is re-archived through the client-key
// upsert, which keeps the archive single-copy anyway.
func (s *Store) PruneArchiveLedger(cutoffTimestamp int64) (int64, error) {
	if cutoffTimestamp <= 0 {
		return 0, errors.New("cutoff timestamp must be > 0")
	}

	res, err := s.db.Exec(`DELETE FROM archived_server_ids WHERE archived_at < ?`, cutoffTimestamp)
	if err != nil {
		return 0, fmt.Errorf("prune archive ledger: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read rows affected for archive ledger prune: %w", err)
	}

	return rowsAffected, nil
}
