package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"sentinel/api"
	"sentinel/crypto"
	"sentinel/logger"
	"sentinel/models"
	"sentinel/risk"
)

const (
	// DefaultAutoReplyDelay schedules the canned counterpart reply.
	DefaultAutoReplyDelay = 2 * time.Second

	attachmentOnlyPlaceholder = "[Encrypted File Attachment]"
)

// ErrEmptySubmission is returned when a submit has neither text nor an
// attachment.
var ErrEmptySubmission = errors.New("chat: message needs text or an attachment")

// Client is the remote backend surface the session depends on.
type Client interface {
	ScanMessage(ctx context.Context, request api.ScanRequest) (*api.ScanResponse, error)
	FetchMessages(ctx context.Context, channelID string) ([]api.WireMessage, error)
	StartDM(ctx context.Context, identifier string) (*api.DMProvision, error)
	ListDMs(ctx context.Context) ([]models.DirectMessageBinding, error)
}

// Archiver persists scanned traffic and security events locally. Both
// methods must be idempotent; the session and the syncer may observe
// the same message more than once.
type Archiver interface {
	ArchiveMessage(msg models.Message) error
	RecordSecurityEvent(eventType, channelID, details string) error
}

// Options configures a Session.
type Options struct {
	Log    logger.Logger
	Client Client

	// Fallback classifies locally when the remote scan is unavailable.
	// Defaults to risk.Classify.
	Fallback func(text string) models.Verdict

	// OnUnauthorized is invoked whenever the backend rejects the bearer
	// token; the owner is expected to tear the session down and route
	// the operator to re-authentication.
	OnUnauthorized func()

	Archiver Archiver

	InitialChannel string
	PollInterval   time.Duration

	// ScanDelay holds a submission before the scan round trip starts.
	// Zero means scan immediately; the config layer owns the default.
	ScanDelay time.Duration

	// AutoReply synthesizes a canned counterpart reply after a message
	// resolves to sent. Demo affordance, off by default.
	AutoReply      bool
	AutoReplyDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.Log == nil {
		o.Log = logger.NewNopLogger()
	}
	if o.Fallback == nil {
		o.Fallback = risk.Classify
	}
	if o.InitialChannel == "" {
		o.InitialChannel = "general"
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.ScanDelay < 0 {
		o.ScanDelay = 0
	}
	if o.AutoReplyDelay <= 0 {
		o.AutoReplyDelay = DefaultAutoReplyDelay
	}
	return o
}

// SubmitRequest carries one user-authored message into the pipeline.
type SubmitRequest struct {
	Text       string
	Attachment *models.Attachment
	TTLSeconds *int
}

// Session owns the message lifecycle for the active channel: it
// submits messages in scanning state, routes them through risk
// classification, reconciles against server state via the Syncer, and
// maintains the direct-message bindings.
type Session struct {
	opts Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	events chan Event

	mu     sync.RWMutex
	active *Store
	syncer *Syncer
	dms    []models.DirectMessageBinding

	closeOnce sync.Once

	now   func() time.Time
	newID func() string
}

// NewSession creates a session; Start must be called before use.
func NewSession(options Options) (*Session, error) {
	if options.Client == nil {
		return nil, errors.New("chat: session client is required")
	}

	return &Session{
		opts:   options.withDefaults(),
		events: make(chan Event, 128),
		now:    time.Now,
		newID:  uuid.NewString,
	}, nil
}

// Start opens the initial channel and begins polling.
func (s *Session) Start() error {
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if err := s.openChannel(s.opts.InitialChannel); err != nil {
		return err
	}
	s.loadDMs()

	return nil
}

// Close stops polling and waits for in-flight classification work.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}

		s.mu.Lock()
		syncer := s.syncer
		s.mu.Unlock()
		if syncer != nil {
			syncer.Stop()
		}

		s.wg.Wait()
		close(s.events)
	})
}

// Events streams channel snapshots after every state change.
func (s *Session) Events() <-chan Event {
	return s.events
}

// ActiveChannel returns the handle of the channel currently in view.
func (s *Session) ActiveChannel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.active.ChannelID()
}

// Messages returns a snapshot of the active channel's sequence.
func (s *Session) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.active.Messages()
}

// DMs returns the known direct-message bindings.
func (s *Session) DMs() []models.DirectMessageBinding {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.DirectMessageBinding, len(s.dms))
	copy(out, s.dms)
	return out
}

// Submit creates a message in scanning state, appends it to the active
// channel, and returns its client key immediately. Classification
// proceeds asynchronously; the caller never waits for it.
func (s *Session) Submit(request SubmitRequest) (string, error) {
	if request.Text == "" && request.Attachment == nil {
		return "", ErrEmptySubmission
	}

	createdAt := s.now().UnixMilli()
	attachmentName := ""
	if request.Attachment != nil {
		attachmentName = request.Attachment.Name
	}

	s.mu.RLock()
	store := s.active
	s.mu.RUnlock()

	msg := models.Message{
		ID:          s.newID(),
		Text:        request.Text,
		Sender:      models.SenderSelf,
		Timestamp:   createdAt,
		Status:      models.StatusScanning,
		Attachment:  request.Attachment,
		Fingerprint: crypto.Fingerprint(request.Text, attachmentName, createdAt),
		ChannelID:   store.ChannelID(),
		TTLSeconds:  request.TTLSeconds,
	}

	store.Append(msg)
	s.emitSnapshot(store)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.classify(store, msg)
	}()

	return msg.ID, nil
}

// classify runs the scan round trip for one message and resolves it.
// The store is captured at submission time: if a channel switch has
// replaced it since, the resolution lands in the discarded store as a
// harmless no-op instead of bleeding into the new channel.
func (s *Session) classify(store *Store, msg models.Message) {
	if !s.sleep(s.opts.ScanDelay) {
		// Session is closing; resolve locally so nothing stays stuck
		// in scanning.
		s.resolve(store, msg, s.opts.Fallback(msg.Text), "")
		return
	}

	request := api.ScanRequest{
		Lines:         msg.Text,
		IntegrityHash: msg.Fingerprint,
		ChannelID:     msg.ChannelID,
		TTLSeconds:    msg.TTLSeconds,
		ClientKey:     msg.ID,
	}
	if msg.Text == "" {
		request.Lines = attachmentOnlyPlaceholder
	}
	if msg.Attachment != nil {
		request.FileURL = msg.Attachment.URL
		request.FileType = msg.Attachment.MediaType
		request.FileSize = msg.Attachment.Size
	}

	response, err := s.opts.Client.ScanMessage(s.ctx, request)
	if err == nil {
		s.resolve(store, msg, response.Verdict(), response.MessageID)
		return
	}

	if errors.Is(err, api.ErrUnauthorized) {
		s.opts.Log.Warn("scan rejected, session expired", "message", msg.ID)
		s.recordEvent("session_expired", msg.ChannelID, "scan endpoint returned 401")
		if s.opts.OnUnauthorized != nil {
			s.opts.OnUnauthorized()
		}
	} else {
		s.opts.Log.Warn("remote scan unavailable, using local classifier", "message", msg.ID, "error", err)
	}

	// Never leave a message stuck in scanning.
	s.resolve(store, msg, s.opts.Fallback(msg.Text), "")
}

func (s *Session) resolve(store *Store, msg models.Message, verdict models.Verdict, serverID string) {
	if !store.Resolve(msg.ID, verdict, serverID) {
		s.opts.Log.Debug("resolution superseded", "message", msg.ID, "channel", store.ChannelID())
		return
	}

	resolved, ok := store.Get(msg.ID)
	if !ok {
		return
	}

	if resolved.Status == models.StatusBlocked {
		s.opts.Log.Info("message blocked", "message", msg.ID, "opsec_risk", verdict.OpsecRisk)
		s.recordEvent("message_blocked", resolved.ChannelID, verdict.Explanation)
	}

	s.archive(resolved)
	s.emitSnapshot(store)

	if resolved.Status == models.StatusSent && s.opts.AutoReply {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.autoReply(store)
		}()
	}
}

// autoReply appends a canned counterpart message after a fixed delay.
// It lands directly in sent state with a benign verdict and is purely a
// demo affordance; the next poll rebuild discards it unless the server
// also knows it.
func (s *Session) autoReply(store *Store) {
	if !s.sleep(s.opts.AutoReplyDelay) {
		return
	}

	store.Append(models.Message{
		ID:        s.newID(),
		Text:      "Copy that. proceeding with caution.",
		Sender:    models.SenderCounterpart,
		Timestamp: s.now().UnixMilli(),
		Status:    models.StatusSent,
		Risk: &models.Verdict{
			AIScore:      5,
			OpsecRisk:    models.OpsecSafe,
			PhishingRisk: models.PhishingLow,
			Explanation:  "Safe response",
		},
		ChannelID: store.ChannelID(),
	})
	s.emitSnapshot(store)
}

// SwitchChannel discards the current in-memory sequence, cancels the
// pending poll, and restarts polling against the new channel with an
// immediate fetch. In-flight classifications for the old channel keep
// their reference to the discarded store and resolve as no-ops.
func (s *Session) SwitchChannel(channelID string) error {
	s.mu.RLock()
	current := s.active.ChannelID()
	s.mu.RUnlock()
	if channelID == current {
		return nil
	}

	return s.openChannel(channelID)
}

// StartDM resolves an identifier through the remote directory,
// registers the binding (never duplicating an already-known channel),
// and switches to the provisioned channel. An unknown identifier
// returns api.ErrNotFound and leaves the session untouched.
func (s *Session) StartDM(ctx context.Context, identifier string) (*models.DirectMessageBinding, error) {
	provision, err := s.opts.Client.StartDM(ctx, identifier)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			s.recordEvent("session_expired", s.ActiveChannel(), "dm endpoint returned 401")
			if s.opts.OnUnauthorized != nil {
				s.opts.OnUnauthorized()
			}
			return nil, err
		}
		if errors.Is(err, api.ErrNotFound) {
			s.opts.Log.Info("dm identifier not found", "identifier", identifier)
			s.recordEvent("dm_rejected", s.ActiveChannel(), fmt.Sprintf("identifier %q not found", identifier))
			return nil, err
		}
		return nil, fmt.Errorf("provisioning dm: %w", err)
	}

	binding := s.registerBinding(models.DirectMessageBinding{
		ChannelID: provision.ChannelID,
		Name:      provision.DisplayName(),
		Status:    "ENCRYPTED",
	})

	if err := s.openChannel(binding.ChannelID); err != nil {
		return nil, err
	}

	return &binding, nil
}

func (s *Session) registerBinding(binding models.DirectMessageBinding) models.DirectMessageBinding {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, known := range s.dms {
		if known.ChannelID == binding.ChannelID {
			return known
		}
	}

	s.dms = append(s.dms, binding)
	return binding
}

func (s *Session) openChannel(channelID string) error {
	s.mu.Lock()
	previous := s.syncer
	store := NewStore(channelID)
	syncer, err := NewSyncer(SyncConfig{
		Log:            s.opts.Log,
		Store:          store,
		Fetcher:        s.opts.Client,
		Interval:       s.opts.PollInterval,
		Archiver:       s.opts.Archiver,
		Events:         s.events,
		OnUnauthorized: s.opts.OnUnauthorized,
	})
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if s.active != nil {
		s.active.Discard()
	}
	s.active = store
	s.syncer = syncer
	s.mu.Unlock()

	if previous != nil {
		previous.Stop()
	}
	syncer.Start()

	s.opts.Log.Info("channel active", "channel", channelID)
	return nil
}

func (s *Session) loadDMs() {
	bindings, err := s.opts.Client.ListDMs(s.ctx)
	if err != nil {
		s.opts.Log.Warn("loading dm bindings", "error", err)
		return
	}

	s.mu.Lock()
	s.dms = bindings
	s.mu.Unlock()
}

func (s *Session) archive(msg models.Message) {
	if s.opts.Archiver == nil {
		return
	}
	if err := s.opts.Archiver.ArchiveMessage(msg); err != nil {
		s.opts.Log.Warn("archiving message", "message", msg.ID, "error", err)
	}
}

func (s *Session) recordEvent(eventType, channelID, details string) {
	if s.opts.Archiver == nil {
		return
	}
	if err := s.opts.Archiver.RecordSecurityEvent(eventType, channelID, details); err != nil {
		s.opts.Log.Warn("recording security event", "event_type", eventType, "error", err)
	}
}

func (s *Session) emitSnapshot(store *Store) {
	select {
	case s.events <- Event{ChannelID: store.ChannelID(), Messages: store.Messages()}:
	default:
	}
}

// sleep waits for d unless the session is closing first; it reports
// whether the full delay elapsed.
func (s *Session) sleep(d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}
