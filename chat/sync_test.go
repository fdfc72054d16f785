package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"sentinel/api"
	"sentinel/models"
)

func startTestSyncer(t *testing.T, cfg SyncConfig) *Syncer {
	t.Helper()

	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}

	syncer, err := NewSyncer(cfg)
	if err != nil {
		t.Fatalf("NewSyncer failed: %v", err)
	}
	syncer.Start()
	t.Cleanup(syncer.Stop)

	return syncer
}

func TestSyncReplacesSequenceWholesale(t *testing.T) {
	store := NewStore("general")
	store.Append(scanningMessage("stale-local", "general"))

	client := &fakeClient{
		fetchFunc: func(channelID string) ([]api.WireMessage, error) {
			if channelID != "general" {
				t.Errorf("unexpected channel %q", channelID)
			}
			return []api.WireMessage{
				{
					ID:        "1",
					ClientKey: "key-1",
					Text:      "holding position",
					Sender:    models.SenderSelf,
					Timestamp: 1700000000000,
					Status:    models.StatusSent,
				},
				{
					ID:        "2",
					Text:      "copy",
					Sender:    models.SenderCounterpart,
					Timestamp: 1700000001000,
					Status:    models.StatusSent,
				},
			}, nil
		},
	}

	syncer := startTestSyncer(t, SyncConfig{Store: store, Fetcher: client})
	if err := syncer.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	messages := store.Messages()
	if len(messages) != 2 {
		t.Fatalf("expected 2 reconciled messages, got %d", len(messages))
	}
	if messages[0].ID != "key-1" || messages[0].ServerID != "1" {
		t.Fatalf("client key must remain the store key: %+v", messages[0])
	}
	if messages[1].ID != "2" {
		t.Fatalf("messages never authored locally key by server id: %+v", messages[1])
	}
	for _, msg := range messages {
		if msg.ChannelID != "general" {
			t.Fatalf("reconciled message lost channel: %+v", msg)
		}
	}
}

func TestSyncExcludesExpiredMessages(t *testing.T) {
	store := NewStore("general")
	now := time.UnixMilli(1700000020000)

	client := &fakeClient{
		fetchFunc: func(string) ([]api.WireMessage, error) {
			return []api.WireMessage{
				{ID: "1", Timestamp: 1700000000000, Status: models.StatusSent, TTLSeconds: intPtr(10)},
				{ID: "2", Timestamp: 1700000015000, Status: models.StatusSent, TTLSeconds: intPtr(10)},
				{ID: "3", Timestamp: 1700000000000, Status: models.StatusSent},
			}, nil
		},
	}

	cfg := SyncConfig{Store: store, Fetcher: client}
	cfg.now = func() time.Time { return now }
	syncer := startTestSyncer(t, cfg)
	if err := syncer.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	messages := store.Messages()
	if len(messages) != 2 {
		t.Fatalf("expected expired message excluded, got %+v", messages)
	}
	for _, msg := range messages {
		if msg.ServerID == "1" {
			t.Fatalf("message past its ttl survived reconciliation")
		}
	}
}

func TestSyncFailureLeavesStoreUntouchedAndRetries(t *testing.T) {
	store := NewStore("general")
	store.Append(scanningMessage("local", "general"))

	failing := true
	client := &fakeClient{
		fetchFunc: func(string) ([]api.WireMessage, error) {
			if failing {
				return nil, errors.New("backend down")
			}
			return []api.WireMessage{
				{ID: "1", Status: models.StatusSent, Timestamp: 1700000000000},
			}, nil
		},
	}

	syncer := startTestSyncer(t, SyncConfig{Store: store, Fetcher: client})

	if err := syncer.Refresh(context.Background()); err == nil {
		t.Fatalf("expected refresh to report the poll failure")
	}
	if store.Len() != 1 {
		t.Fatalf("failed poll must not mutate the store")
	}

	failing = false
	if err := syncer.Refresh(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if messages := store.Messages(); len(messages) != 1 || messages[0].ServerID != "1" {
		t.Fatalf("expected reconciled state after retry, got %+v", messages)
	}
}

func TestSyncUnauthorizedInvokesCallback(t *testing.T) {
	store := NewStore("general")
	client := &fakeClient{
		fetchFunc: func(string) ([]api.WireMessage, error) {
			return nil, api.ErrUnauthorized
		},
	}

	expired := make(chan struct{}, 1)
	syncer := startTestSyncer(t, SyncConfig{
		Store:   store,
		Fetcher: client,
		OnUnauthorized: func() {
			select {
			case expired <- struct{}{}:
			default:
			}
		},
	})

	_ = syncer.Refresh(context.Background())

	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatalf("expected OnUnauthorized to fire")
	}
}

func TestSyncEmitsEventOnChange(t *testing.T) {
	store := NewStore("general")
	client := &fakeClient{
		fetchFunc: func(string) ([]api.WireMessage, error) {
			return []api.WireMessage{
				{ID: "1", Status: models.StatusSent, Timestamp: 1700000000000},
			}, nil
		},
	}

	events := make(chan Event, 8)
	syncer := startTestSyncer(t, SyncConfig{Store: store, Fetcher: client, Events: events})

	if err := syncer.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	waitFor(t, time.Second, func() bool { return len(events) > 0 })
	drained := len(events)
	for i := 0; i < drained; i++ {
		<-events
	}

	// An identical poll response must not emit again.
	if err := syncer.Refresh(context.Background()); err != nil {
		t.Fatalf("second Refresh failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("unchanged sequence emitted an event")
	}
}

func TestSyncArchivesTerminalMessages(t *testing.T) {
	store := NewStore("general")
	client := &fakeClient{
		fetchFunc: func(string) ([]api.WireMessage, error) {
			return []api.WireMessage{
				{ID: "1", Status: models.StatusSent, Timestamp: 1700000000000},
				{ID: "2", Status: models.StatusScanning, Timestamp: 1700000001000},
				{ID: "3", Status: models.StatusBlocked, Timestamp: 1700000002000},
			}, nil
		},
	}

	archiver := &recordingArchiver{}
	syncer := startTestSyncer(t, SyncConfig{Store: store, Fetcher: client, Archiver: archiver})
	if err := syncer.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	archived := archiver.archived()
	if len(archived) != 2 {
		t.Fatalf("expected only terminal messages archived, got %+v", archived)
	}

	// Re-polling the same snapshot must not duplicate archive entries.
	if err := syncer.Refresh(context.Background()); err != nil {
		t.Fatalf("second Refresh failed: %v", err)
	}
	if len(archiver.archived()) != 2 {
		t.Fatalf("archiver saw duplicates across polls")
	}
}

func TestSyncStopCancelsPolling(t *testing.T) {
	store := NewStore("general")
	client := &fakeClient{
		fetchFunc: func(string) ([]api.WireMessage, error) {
			return []api.WireMessage{}, nil
		},
	}

	cfg := SyncConfig{Store: store, Fetcher: client, Interval: 5 * time.Millisecond}
	syncer, err := NewSyncer(cfg)
	if err != nil {
		t.Fatalf("NewSyncer failed: %v", err)
	}
	syncer.Start()

	waitFor(t, time.Second, func() bool { return client.fetches() >= 2 })
	syncer.Stop()

	after := client.fetches()
	time.Sleep(30 * time.Millisecond)
	if client.fetches() != after {
		t.Fatalf("poll survived Stop: %d then %d", after, client.fetches())
	}
}
