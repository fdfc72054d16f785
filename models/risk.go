package models

// OpsecRisk classifies operational-security sensitivity of message content.
type OpsecRisk string

const (
	OpsecSafe      OpsecRisk = "SAFE"
	OpsecSensitive OpsecRisk = "SENSITIVE"
	OpsecHigh      OpsecRisk = "HIGH"
)

// PhishingRisk classifies social-engineering lure probability.
type PhishingRisk string

const (
	PhishingLow      PhishingRisk = "LOW"
	PhishingModerate PhishingRisk = "MODERATE"
	PhishingHigh     PhishingRisk = "HIGH"
)

// Verdict is the immutable result of one risk classification.
type Verdict struct {
	AIScore      float64      `json:"ai_score"`
	OpsecRisk    OpsecRisk    `json:"opsec_risk"`
	PhishingRisk PhishingRisk `json:"phishing_risk"`
	Explanation  string       `json:"explanation"`
}

// Blocks reports whether this verdict blocks delivery.
func (v Verdict) Blocks() bool {
	return v.OpsecRisk == OpsecHigh
}
