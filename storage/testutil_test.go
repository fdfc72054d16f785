package storage

import (
	"crypto/rand"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dataDir := t.TempDir()
	store, _, err := Open(dataDir)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close test store: %v", err)
		}
	})

	return store
}

func newTestKey(t *testing.T) []byte {
	t.Helper()

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate test key: %v", err)
	}
	return key
}

func mustArchive(t *testing.T, store *Store, clientKey, channelID string, sealed []byte) {
	t.Helper()

	err := store.SaveArchivedMessage(ArchivedMessage{
		ClientKey:     clientKey,
		ChannelID:     channelID,
		Sender:        senderSelf,
		SealedContent: sealed,
		Status:        archiveStatusSent,
		OpsecRisk:     opsecRiskSafe,
		PhishingRisk:  phishingRiskLow,
		Timestamp:     nowUnixMilli(),
	})
	if err != nil {
		t.Fatalf("archive message %q: %v", clientKey, err)
	}
}
