package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Fingerprint computes the tamper-evidence digest attached to a message
// at submission time. It covers the text, the attachment name (empty
// when there is none), and the creation instant, so two identical texts
// sent at different moments still fingerprint differently.
//
// The value is advisory: it is displayed alongside delivered messages
// and echoed to the backend, but nothing verifies it server-side.
func Fingerprint(text, attachmentName string, createdAtUnixMilli int64) string {
	hash := sha256.New()
	hash.Write([]byte(text))
	hash.Write([]byte(attachmentName))
	hash.Write([]byte(strconv.FormatInt(createdAtUnixMilli, 10)))

	return hex.EncodeToString(hash.Sum(nil))
}

// FormatFingerprint shortens a fingerprint for display.
func FormatFingerprint(fingerprint string) string {
	if len(fingerprint) <= 8 {
		return fingerprint
	}
	return fingerprint[:8] + "..."
}
