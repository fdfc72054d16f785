package api

import (
	"net/http"

	"sentinel/models"
)

// HTTPClient lets tests substitute the transport.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// ScanRequest is the payload submitted to the risk-scan endpoint.
// Lines carries the message text, or a placeholder for attachment-only
// sends. ClientKey is the client-generated idempotency key echoed back
// by the persistence layer on every subsequent fetch.
type ScanRequest struct {
	Lines         string `json:"lines"`
	FileURL       string `json:"file_url,omitempty"`
	FileType      string `json:"file_type,omitempty"`
	FileSize      string `json:"file_size,omitempty"`
	IntegrityHash string `json:"integrity_hash,omitempty"`
	ChannelID     string `json:"channel_id"`
	TTLSeconds    *int   `json:"ttl_seconds,omitempty"`
	ClientKey     string `json:"client_key,omitempty"`
}

// ScanResponse is the risk verdict returned by the scan endpoint,
// along with the server-assigned id of the persisted message.
type ScanResponse struct {
	MessageID    string              `json:"message_id"`
	AIScore      float64             `json:"ai_score"`
	OpsecRisk    models.OpsecRisk    `json:"opsec_risk"`
	PhishingRisk models.PhishingRisk `json:"phishing_risk"`
	Explanation  string              `json:"explanation"`
}

// Verdict converts the response into the model verdict.
func (r ScanResponse) Verdict() models.Verdict {
	return models.Verdict{
		AIScore:      r.AIScore,
		OpsecRisk:    r.OpsecRisk,
		PhishingRisk: r.PhishingRisk,
		Explanation:  r.Explanation,
	}
}

// WireMessage is one entry of the ordered sequence returned by the
// message-fetch endpoint. Timestamps are Unix milliseconds and are
// authoritative over any locally assigned creation time.
type WireMessage struct {
	ID            string          `json:"id"`
	ClientKey     string          `json:"client_key,omitempty"`
	Text          string          `json:"text"`
	Sender        models.Sender   `json:"sender"`
	Timestamp     int64           `json:"timestamp"`
	Status        models.Status   `json:"status"`
	Risk          *models.Verdict `json:"risk,omitempty"`
	FileURL       string          `json:"file_url,omitempty"`
	FileType      string          `json:"file_type,omitempty"`
	FileSize      string          `json:"file_size,omitempty"`
	IntegrityHash string          `json:"integrity_hash,omitempty"`
	TTLSeconds    *int            `json:"ttl_seconds,omitempty"`
}

// DMRequest asks the directory to provision a direct-message channel.
type DMRequest struct {
	Identifier string `json:"identifier"`
}

// DMTargetUser describes the resolved counterpart.
type DMTargetUser struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// DMProvision is the successful result of direct-message provisioning.
type DMProvision struct {
	ChannelID  string       `json:"channel_id"`
	TargetUser DMTargetUser `json:"target_user"`
}

// DisplayName picks the counterpart's sidebar label.
func (p DMProvision) DisplayName() string {
	if p.TargetUser.FullName != "" {
		return p.TargetUser.FullName
	}
	return p.TargetUser.Email
}
