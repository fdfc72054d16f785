package crypto

import (
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/crypto/chacha20poly1305"
)

const archiveKeyPEMType = "SENTINEL ARCHIVE KEY"

// EnsureArchiveKey loads the local archive sealing key from disk,
// generating and persisting a fresh one if absent.
func EnsureArchiveKey(path string) ([]byte, error) {
	key, err := LoadArchiveKey(path)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	key = make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate archive key: %w", err)
	}
	if err := SaveArchiveKey(path, key); err != nil {
		return nil, err
	}

	return key, nil
}

// LoadArchiveKey reads the archive sealing key from PEM.
func LoadArchiveKey(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read archive key: %w", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("decode archive key PEM: no PEM block")
	}
	if block.Type != archiveKeyPEMType {
		return nil, fmt.Errorf("decode archive key PEM: unexpected type %q", block.Type)
	}
	if len(block.Bytes) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("decode archive key PEM: invalid key size %d", len(block.Bytes))
	}

	return block.Bytes, nil
}

// SaveArchiveKey writes the archive sealing key PEM file with 0600 permissions.
func SaveArchiveKey(path string, key []byte) error {
	if len(key) != chacha20poly1305.KeySize {
		return fmt.Errorf("invalid archive key length: got %d want %d", len(key), chacha20poly1305.KeySize)
	}

	block := &pem.Block{
		Type:  archiveKeyPEMType,
		Bytes: key,
	}

	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return fmt.Errorf("write archive key: %w", err)
	}

	return nil
}

// Seal encrypts archived message content with XChaCha20-Poly1305.
// The random nonce is prepended to the returned ciphertext.
func Seal(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create archive cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts content previously produced by Seal.
func Open(key, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create archive cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return nil, errors.New("sealed content too short")
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open sealed content: %w", err)
	}

	return plaintext, nil
}
