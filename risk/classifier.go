package risk

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"

	"sentinel/models"
)

// Vocabulary driving the rule-based engine. Ordering matters: critical
// terms are checked before sensitive ones.
var (
	criticalTerms = []string{
		"bomb", "attack", "kill", "assassinate", "terrorism",
		"explosive", "weapon", "target", "strike", "ied", "hostage",
		"nuclear",
	}
	deploymentTerms = []string{"deployment", "0600"}
	sensitiveTerms  = []string{
		"location", "alpha", "bravo", "classified", "operation",
		"extract", "rendezvous",
	}
	lurePhrases = []string{
		"click here", "login", "password", "verify account",
		"urgent action", "update payment",
	}
	piiPhrases = []string{"ssn", "social security", "credit card", "bank account"}
	aiPhrases  = []string{
		"as an ai language model", "regenerate response",
		"i cannot fulfill", "based on my training",
	}
	urgencyTerms = []string{"immediate", "urgent", "asap", "critical", "severe"}
)

var (
	coordPattern         = regexp.MustCompile(`\d{1,3}\.\d+[NS],\s*\d{1,3}\.\d+[EW]`)
	militaryTimePattern  = regexp.MustCompile(`\d{4}\s*hours|\d{2}:\d{2}Z`)
	suspiciousURLPattern = regexp.MustCompile(`http[s]?://(?:\d{1,3}\.|bit\.ly|tinyurl)`)
)

// Classify is the local fallback classifier used when the remote scan
// endpoint is unreachable. Deterministic rule matching; the AI score is
// a bounded stand-in for a real model confidence.
func Classify(text string) models.Verdict {
	lower := strings.ToLower(text)

	opsec := models.OpsecSafe
	switch {
	case containsAny(lower, criticalTerms), containsAny(lower, deploymentTerms):
		opsec = models.OpsecHigh
	case strings.Contains(lower, "location"):
		opsec = models.OpsecSensitive
	}

	phishing := models.PhishingLow
	if strings.Contains(lower, "click here") {
		phishing = models.PhishingHigh
	}

	return models.Verdict{
		AIScore:      rand.Float64() * 20,
		OpsecRisk:    opsec,
		PhishingRisk: phishing,
		Explanation:  "Automated scan complete.",
	}
}

// Scan is the full rule engine behind the remote classifier: opsec and
// phishing classification plus AI-generation heuristics, with a joined
// explanation of everything that fired.
func Scan(text string) models.Verdict {
	aiScore := detectAIScore(text)
	opsec := detectOpsecRisk(text)
	phishing := detectPhishingRisk(text)

	reasons := make([]string, 0, 3)
	if aiScore > 70 {
		reasons = append(reasons, "High probability of AI generation detected.")
	}
	if opsec != models.OpsecSafe {
		reasons = append(reasons, fmt.Sprintf("OPSEC Risk detected: %s", opsec))
	}
	if phishing != models.PhishingLow {
		reasons = append(reasons, fmt.Sprintf("Phishing Risk detected: %s", phishing))
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "Message appears safe.")
	}

	return models.Verdict{
		AIScore:      aiScore,
		OpsecRisk:    opsec,
		PhishingRisk: phishing,
		Explanation:  strings.Join(reasons, " | "),
	}
}

func detectOpsecRisk(text string) models.OpsecRisk {
	lower := strings.ToLower(text)

	if coordPattern.MatchString(text) {
		return models.OpsecHigh
	}
	if militaryTimePattern.MatchString(text) {
		return models.OpsecSensitive
	}
	if containsAny(lower, criticalTerms) || containsAny(lower, deploymentTerms) {
		return models.OpsecHigh
	}

	matched := 0
	for _, term := range sensitiveTerms {
		if strings.Contains(lower, term) {
			matched++
		}
	}
	if matched >= 2 {
		return models.OpsecSensitive
	}
	if strings.Contains(lower, "location") {
		return models.OpsecSensitive
	}

	return models.OpsecSafe
}

func detectPhishingRisk(text string) models.PhishingRisk {
	lower := strings.ToLower(text)

	if containsAny(lower, lurePhrases) {
		return models.PhishingHigh
	}
	if suspiciousURLPattern.MatchString(lower) {
		return models.PhishingHigh
	}
	if containsAny(lower, piiPhrases) {
		return models.PhishingModerate
	}

	return models.PhishingLow
}

func detectAIScore(text string) float64 {
	lower := strings.ToLower(text)

	if containsAny(lower, aiPhrases) {
		return 99.9
	}

	score := 0.0
	words := strings.Fields(text)
	if len(words) > 30 {
		total := 0
		for _, w := range words {
			total += len(w)
		}
		if float64(total)/float64(len(words)) > 6 {
			score += 30
		}
		if strings.Count(text, ",") > 5 && strings.Count(text, ".") < 2 {
			score += 20
		}
	}
	if containsAny(lower, urgencyTerms) {
		// Urgent phrasing reads human, not generated.
		score -= 20
	}

	score += 5 + rand.Float64()*15
	return min(max(score, 0), 100)
}

func containsAny(lower string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
