package chat

import (
	"sync"

	"sentinel/models"
)

// Store owns the in-memory ordered message sequence for one channel.
//
// Messages are keyed by their client idempotency key, so a poll-driven
// wholesale replacement updates a locally submitted message in place
// instead of swapping its identity. Every mutation is either an append
// or a full replace to stay consistent with the poll's
// replace-wholesale semantics.
type Store struct {
	channelID string

	mu       sync.RWMutex
	messages []models.Message
}

// NewStore creates an empty message store bound to a channel.
func NewStore(channelID string) *Store {
	return &Store{channelID: channelID}
}

// ChannelID returns the channel this store belongs to.
func (s *Store) ChannelID() string {
	return s.channelID
}

// Append adds a message to the end of the sequence.
func (s *Store) Append(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msg)
}

// Messages returns a snapshot copy of the current sequence.
func (s *Store) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the current sequence length.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.messages)
}

// ReplaceAll swaps the entire sequence for the server's authoritative
// snapshot.
func (s *Store) ReplaceAll(messages []models.Message) {
	next := make([]models.Message, len(messages))
	copy(next, messages)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = next
}

// Resolve transitions a scanning message to its terminal status based
// on the verdict, records the verdict and the server-assigned id, and
// reports whether a transition happened.
//
// A missing id (superseded by a poll rebuild or a channel switch) and a
// second call for an already resolved message are both no-ops, so
// late-arriving classification results are always safe to apply.
func (s *Store) Resolve(id string, verdict models.Verdict, serverID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID != id {
			continue
		}
		if s.messages[i].Status != models.StatusScanning {
			return false
		}

		v := verdict
		s.messages[i].Risk = &v
		s.messages[i].ServerID = serverID
		if verdict.Blocks() {
			s.messages[i].Status = models.StatusBlocked
		} else {
			s.messages[i].Status = models.StatusSent
		}
		return true
	}

	return false
}

// Get returns a copy of the message with the given client key.
func (s *Store) Get(id string) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.messages {
		if s.messages[i].ID == id {
			return s.messages[i], true
		}
	}
	return models.Message{}, false
}

// Discard drops the whole in-memory sequence, as happens on a channel
// switch.
func (s *Store) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = nil
}
