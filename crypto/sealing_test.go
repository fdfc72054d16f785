package crypto

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestEnsureArchiveKeyGeneratesAndReloads(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "archive.key")

	first, err := EnsureArchiveKey(keyPath)
	if err != nil {
		t.Fatalf("first EnsureArchiveKey failed: %v", err)
	}
	if len(first) != 32 {
		t.Fatalf("expected 32-byte key, got %d", len(first))
	}

	second, err := EnsureArchiveKey(keyPath)
	if err != nil {
		t.Fatalf("second EnsureArchiveKey failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("expected stable key across loads")
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	key, err := EnsureArchiveKey(filepath.Join(t.TempDir(), "archive.key"))
	if err != nil {
		t.Fatalf("EnsureArchiveKey failed: %v", err)
	}

	plaintext := []byte("extraction complete, all accounted for")
	sealed, err := Seal(key, plaintext)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Fatalf("sealed content leaks plaintext")
	}

	opened, err := Open(key, sealed)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("round trip mismatch: got %q", opened)
	}
}

func TestOpenRejectsTamperedContent(t *testing.T) {
	key, err := EnsureArchiveKey(filepath.Join(t.TempDir(), "archive.key"))
	if err != nil {
		t.Fatalf("EnsureArchiveKey failed: %v", err)
	}

	sealed, err := Seal(key, []byte("original"))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	sealed[len(sealed)-1] ^= 0x01

	if _, err := Open(key, sealed); err == nil {
		t.Fatalf("expected tampered content to fail authentication")
	}
}

func TestOpenRejectsShortContent(t *testing.T) {
	key, err := EnsureArchiveKey(filepath.Join(t.TempDir(), "archive.key"))
	if err != nil {
		t.Fatalf("EnsureArchiveKey failed: %v", err)
	}

	if _, err := Open(key, []byte("tiny")); err == nil {
		t.Fatalf("expected short sealed content to be rejected")
	}
}
