package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sentinel/api"
	"sentinel/models"
)

// fakeClient implements Client with injectable behavior per endpoint.
type fakeClient struct {
	mu sync.Mutex

	scanFunc  func(request api.ScanRequest) (*api.ScanResponse, error)
	fetchFunc func(channelID string) ([]api.WireMessage, error)
	dmFunc    func(identifier string) (*api.DMProvision, error)
	dms       []models.DirectMessageBinding

	scanRequests []api.ScanRequest
	fetchCount   int
}

func (f *fakeClient) ScanMessage(_ context.Context, request api.ScanRequest) (*api.ScanResponse, error) {
	f.mu.Lock()
	f.scanRequests = append(f.scanRequests, request)
	fn := f.scanFunc
	f.mu.Unlock()

	if fn == nil {
		return nil, errors.New("scan not configured")
	}
	return fn(request)
}

func (f *fakeClient) FetchMessages(_ context.Context, channelID string) ([]api.WireMessage, error) {
	f.mu.Lock()
	f.fetchCount++
	fn := f.fetchFunc
	f.mu.Unlock()

	if fn == nil {
		return nil, errors.New("fetch not configured")
	}
	return fn(channelID)
}

func (f *fakeClient) StartDM(_ context.Context, identifier string) (*api.DMProvision, error) {
	f.mu.Lock()
	fn := f.dmFunc
	f.mu.Unlock()

	if fn == nil {
		return nil, api.ErrNotFound
	}
	return fn(identifier)
}

func (f *fakeClient) ListDMs(context.Context) ([]models.DirectMessageBinding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]models.DirectMessageBinding(nil), f.dms...), nil
}

func (f *fakeClient) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.fetchCount
}

func (f *fakeClient) lastScanRequest(t *testing.T) api.ScanRequest {
	t.Helper()

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.scanRequests) == 0 {
		t.Fatalf("no scan requests recorded")
	}
	return f.scanRequests[len(f.scanRequests)-1]
}

// recordingArchiver captures archived messages and security events.
type recordingArchiver struct {
	mu       sync.Mutex
	messages []models.Message
	events   []string
	seen     map[string]bool
}

func (a *recordingArchiver) ArchiveMessage(msg models.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.seen == nil {
		a.seen = make(map[string]bool)
	}
	key := msg.ServerID
	if key == "" {
		key = msg.ID
	}
	if a.seen[key] {
		return nil
	}
	a.seen[key] = true
	a.messages = append(a.messages, msg)
	return nil
}

func (a *recordingArchiver) RecordSecurityEvent(eventType, _, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.events = append(a.events, eventType)
	return nil
}

func (a *recordingArchiver) archived() []models.Message {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]models.Message(nil), a.messages...)
}

func (a *recordingArchiver) eventTypes() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]string(nil), a.events...)
}

func newTestSession(t *testing.T, options Options) (*Session, *fakeClient) {
	t.Helper()

	client := &fakeClient{}
	if options.Client == nil {
		options.Client = client
	} else {
		client = options.Client.(*fakeClient)
	}
	if options.ScanDelay == 0 {
		options.ScanDelay = time.Millisecond
	}
	if options.PollInterval == 0 {
		// Keep the poller out of the way unless a test drives it.
		options.PollInterval = time.Hour
	}

	session, err := NewSession(options)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	t.Cleanup(session.Close)

	return session, client
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func intPtr(v int) *int {
	return &v
}
