package chat

import (
	"time"

	"sentinel/models"
)

// filterExpired excludes messages whose time-to-live has elapsed,
// measured from the server-confirmed creation timestamp. A nil TTL
// means the message is retained indefinitely.
//
// Expiry is enforced here, during the poll-driven rebuild, rather than
// by per-message countdown timers.
func filterExpired(messages []models.Message, now time.Time) []models.Message {
	out := make([]models.Message, 0, len(messages))
	for _, msg := range messages {
		if expired(msg, now) {
			continue
		}
		out = append(out, msg)
	}
	return out
}

func expired(msg models.Message, now time.Time) bool {
	if msg.TTLSeconds == nil {
		return false
	}

	deadline := time.UnixMilli(msg.Timestamp).Add(time.Duration(*msg.TTLSeconds) * time.Second)
	return !now.Before(deadline)
}
