package devserver

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"sentinel/api"
	"sentinel/models"
	"sentinel/risk"
)

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req api.ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Lines == "" {
		http.Error(w, "lines is required", http.StatusBadRequest)
		return
	}

	channelID := req.ChannelID
	if channelID == "" {
		channelID = "general"
	}

	verdict := risk.Scan(req.Lines)
	status := models.StatusSent
	if verdict.Blocks() {
		status = models.StatusBlocked
	}

	message := api.WireMessage{
		ID:            uuid.NewString(),
		ClientKey:     req.ClientKey,
		Text:          req.Lines,
		Sender:        models.SenderSelf,
		Timestamp:     s.now().UnixMilli(),
		Status:        status,
		Risk:          &verdict,
		FileURL:       req.FileURL,
		FileType:      req.FileType,
		FileSize:      req.FileSize,
		IntegrityHash: req.IntegrityHash,
		TTLSeconds:    req.TTLSeconds,
	}

	s.mu.Lock()
	s.channels[channelID] = upsertByClientKey(s.channels[channelID], message)
	s.mu.Unlock()

	s.log.Info("message scanned",
		"channel", channelID,
		"status", status,
		"opsec_risk", verdict.OpsecRisk,
	)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(api.ScanResponse{
		MessageID:    message.ID,
		AIScore:      verdict.AIScore,
		OpsecRisk:    verdict.OpsecRisk,
		PhishingRisk: verdict.PhishingRisk,
		Explanation:  verdict.Explanation,
	})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	channelID := r.URL.Query().Get("channel_id")
	if channelID == "" {
		http.Error(w, "channel_id is required", http.StatusBadRequest)
		return
	}

	now := s.now()

	s.mu.Lock()
	live := make([]api.WireMessage, 0, len(s.channels[channelID]))
	for _, message := range s.channels[channelID] {
		if expired(message, now) {
			continue
		}
		live = append(live, message)
	}
	s.channels[channelID] = live
	messages := append([]api.WireMessage(nil), live...)
	s.mu.Unlock()

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp < messages[j].Timestamp
	})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(messages)
}

func (s *Server) handleStartDM(w http.ResponseWriter, r *http.Request) {
	var req api.DMRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		http.Error(w, "identifier is required", http.StatusBadRequest)
		return
	}

	user, ok := s.lookupUser(identifier)
	if !ok {
		s.log.Info("dm identifier not found", "identifier", identifier)
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}

	channelID := dmChannelID(s.selfID, user.ID)
	binding := models.DirectMessageBinding{
		ChannelID: channelID,
		Name:      displayName(user),
		Status:    "ENCRYPTED",
	}

	s.mu.Lock()
	known := false
	for _, existing := range s.bindings {
		if existing.ChannelID == channelID {
			known = true
			break
		}
	}
	if !known {
		s.bindings = append(s.bindings, binding)
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(api.DMProvision{
		ChannelID: channelID,
		TargetUser: api.DMTargetUser{
			ID:       user.ID,
			FullName: user.FullName,
			Email:    user.Email,
		},
	})
}

func (s *Server) handleListDMs(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	bindings := append([]models.DirectMessageBinding(nil), s.bindings...)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(bindings)
}

func (s *Server) lookupUser(identifier string) (User, bool) {
	needle := strings.ToLower(identifier)
	for _, user := range s.users {
		if strings.ToLower(user.Email) == needle ||
			strings.ToLower(user.Handle) == needle ||
			strings.ToLower(user.FullName) == needle {
			return user, true
		}
	}
	return User{}, false
}

// dmChannelID derives the stable channel handle for a user pair. Both
// participants compute the same handle regardless of who initiated.
func dmChannelID(a, b string) string {
	lo, hi := a, b
	ai, aErr := strconv.Atoi(a)
	bi, bErr := strconv.Atoi(b)
	switch {
	case aErr == nil && bErr == nil:
		if ai > bi {
			lo, hi = b, a
		}
	default:
		if a > b {
			lo, hi = b, a
		}
	}
	return "dm_" + lo + "_" + hi
}

func displayName(user User) string {
	if user.FullName != "" {
		return user.FullName
	}
	return user.Email
}

func expired(message api.WireMessage, now time.Time) bool {
	if message.TTLSeconds == nil {
		return false
	}
	deadline := time.UnixMilli(message.Timestamp).Add(time.Duration(*message.TTLSeconds) * time.Second)
	return !now.Before(deadline)
}

func upsertByClientKey(messages []api.WireMessage, message api.WireMessage) []api.WireMessage {
	if message.ClientKey != "" {
		for i, existing := range messages {
			if existing.ClientKey == message.ClientKey {
				messages[i] = message
				return messages
			}
		}
	}
	return append(messages, message)
}
