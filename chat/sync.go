package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"sentinel/api"
	"sentinel/logger"
	"sentinel/models"
)

const (
	// DefaultPollInterval is the fixed delay between full-state pulls.
	DefaultPollInterval = 3 * time.Second
	// DefaultRequestTimeout bounds one poll round trip.
	DefaultRequestTimeout = 10 * time.Second
)

// Fetcher pulls the complete ordered message sequence for a channel.
type Fetcher interface {
	FetchMessages(ctx context.Context, channelID string) ([]api.WireMessage, error)
}

// Event carries one reconciled channel snapshot to UI consumers.
type Event struct {
	ChannelID string
	Messages  []models.Message
}

type refreshRequest struct {
	ctx  context.Context
	done chan error
}

// SyncConfig configures a Syncer.
type SyncConfig struct {
	Log            logger.Logger
	Store          *Store
	Fetcher        Fetcher
	Interval       time.Duration
	RequestTimeout time.Duration

	// Archiver, when set, receives every terminal message observed in a
	// poll response. It must be idempotent.
	Archiver Archiver

	// Events, when set, receives a snapshot after each successful
	// reconciliation that changed the sequence. Sends never block.
	Events chan<- Event

	// OnUnauthorized is invoked when a poll is rejected with 401.
	OnUnauthorized func()

	now func() time.Time
}

func (c SyncConfig) withDefaults() SyncConfig {
	if c.Log == nil {
		c.Log = logger.NewNopLogger()
	}
	if c.Interval <= 0 {
		c.Interval = DefaultPollInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Syncer reconciles one channel's local message state against the
// authoritative server state with periodic full-state pulls. A failed
// poll is logged and retried at the next fixed interval; it never
// surfaces as an error to the user.
type Syncer struct {
	cfg SyncConfig

	startOnce sync.Once
	stopOnce  sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	refreshRequests chan refreshRequest
}

// NewSyncer creates a syncer with config defaults applied.
func NewSyncer(config SyncConfig) (*Syncer, error) {
	if config.Store == nil {
		return nil, errors.New("chat: sync store is required")
	}
	if config.Fetcher == nil {
		return nil, errors.New("chat: sync fetcher is required")
	}

	return &Syncer{
		cfg:             config.withDefaults(),
		refreshRequests: make(chan refreshRequest),
	}, nil
}

// Start begins background polling. The first pull happens immediately
// so a channel switch is bounded by one request round trip.
func (s *Syncer) Start() {
	s.startOnce.Do(func() {
		s.ctx, s.cancel = context.WithCancel(context.Background())
		s.wg.Add(1)
		go s.loop()
	})
}

// Stop cancels the poll timer and waits for the loop to exit. No poll
// outlives a stopped syncer.
func (s *Syncer) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}

// Refresh triggers an immediate pull and waits for its outcome.
func (s *Syncer) Refresh(ctx context.Context) error {
	if s.ctx == nil {
		return errors.New("chat: syncer is not started")
	}

	req := refreshRequest{
		ctx:  ctx,
		done: make(chan error, 1),
	}

	select {
	case s.refreshRequests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return errors.New("chat: syncer is stopped")
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return errors.New("chat: syncer is stopped")
	}
}

func (s *Syncer) loop() {
	defer s.wg.Done()

	// Prime the sequence before the first tick.
	s.runSync()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runSync()
		case req := <-s.refreshRequests:
			req.done <- s.runSync()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Syncer) runSync() error {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.RequestTimeout)
	defer cancel()

	channelID := s.cfg.Store.ChannelID()

	wire, err := s.cfg.Fetcher.FetchMessages(ctx, channelID)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			s.cfg.Log.Warn("poll rejected, session expired", "channel", channelID)
			if s.cfg.OnUnauthorized != nil {
				s.cfg.OnUnauthorized()
			}
			return err
		}

		s.cfg.Log.Warn("poll failed, retrying next tick", "channel", channelID, "error", err)
		return err
	}

	next := make([]models.Message, 0, len(wire))
	for _, w := range wire {
		next = append(next, wireToMessage(w, channelID))
	}
	next = filterExpired(next, s.cfg.now())

	previous := s.cfg.Store.Messages()
	s.cfg.Store.ReplaceAll(next)
	s.archive(next)

	if !sequencesEqual(previous, next) {
		s.emit(Event{ChannelID: channelID, Messages: next})
	}

	return nil
}

func (s *Syncer) archive(messages []models.Message) {
	if s.cfg.Archiver == nil {
		return
	}

	for _, msg := range messages {
		if !msg.Scanned() {
			continue
		}
		if err := s.cfg.Archiver.ArchiveMessage(msg); err != nil {
			s.cfg.Log.Warn("archiving synced message", "server_id", msg.ServerID, "error", err)
		}
	}
}

func (s *Syncer) emit(event Event) {
	if s.cfg.Events == nil {
		return
	}
	select {
	case s.cfg.Events <- event:
	default:
	}
}

// wireToMessage converts a server message into the local model. The
// client idempotency key, when echoed back, remains the store key;
// otherwise the server id stands in for messages this client never
// authored.
func wireToMessage(w api.WireMessage, channelID string) models.Message {
	id := w.ClientKey
	if id == "" {
		id = w.ID
	}

	var attachment *models.Attachment
	if w.FileURL != "" {
		name := w.FileType
		if name == "" {
			name = "Encrypted File"
		}
		attachment = &models.Attachment{
			Name:      name,
			Size:      w.FileSize,
			MediaType: w.FileType,
			URL:       w.FileURL,
		}
	}

	return models.Message{
		ID:          id,
		ServerID:    w.ID,
		Text:        w.Text,
		Sender:      w.Sender,
		Timestamp:   w.Timestamp,
		Status:      w.Status,
		Risk:        w.Risk,
		Attachment:  attachment,
		Fingerprint: w.IntegrityHash,
		ChannelID:   channelID,
		TTLSeconds:  w.TTLSeconds,
	}
}

func sequencesEqual(a, b []models.Message) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Status != b[i].Status || a[i].Timestamp != b[i].Timestamp {
			return false
		}
	}
	return true
}
