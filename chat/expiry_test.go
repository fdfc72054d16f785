package chat

import (
	"testing"
	"time"

	"sentinel/models"
)

func TestFilterExpiredKeepsMessagesWithoutTTL(t *testing.T) {
	now := time.UnixMilli(1700000100000)
	messages := []models.Message{
		{ID: "a", Timestamp: 1700000000000},
	}

	kept := filterExpired(messages, now)
	if len(kept) != 1 {
		t.Fatalf("message without ttl must never expire")
	}
}

func TestFilterExpiredDropsElapsedTTL(t *testing.T) {
	created := time.UnixMilli(1700000000000)
	messages := []models.Message{
		{ID: "short", Timestamp: created.UnixMilli(), TTLSeconds: intPtr(10)},
		{ID: "long", Timestamp: created.UnixMilli(), TTLSeconds: intPtr(3600)},
	}

	kept := filterExpired(messages, created.Add(11*time.Second))
	if len(kept) != 1 || kept[0].ID != "long" {
		t.Fatalf("expected only the long-ttl message, got %+v", kept)
	}
}

func TestFilterExpiredDropsAtExactDeadline(t *testing.T) {
	created := time.UnixMilli(1700000000000)
	messages := []models.Message{
		{ID: "a", Timestamp: created.UnixMilli(), TTLSeconds: intPtr(10)},
	}

	if kept := filterExpired(messages, created.Add(10*time.Second)); len(kept) != 0 {
		t.Fatalf("message at its deadline must be excluded")
	}
	if kept := filterExpired(messages, created.Add(9*time.Second)); len(kept) != 1 {
		t.Fatalf("message before its deadline must be kept")
	}
}
