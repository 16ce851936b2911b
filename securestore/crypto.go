// ABOUTME: Key derivation and AEAD sealing for the secure store
// ABOUTME: HKDF-SHA256 over a device key file plus optional passphrase feeds XChaCha20-Poly1305

package securestore

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	deviceKeySize = 32
	hkdfInfo      = "leadsheet securestore v1"
)

type sealer struct {
	key []byte
}

func newSealer(deviceKey []byte, passphrase string) (*sealer, error) {
	secret := append(append([]byte{}, deviceKey...), []byte(passphrase)...)
	kdf := hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive store key: %w", err)
	}
	return &sealer{key: key}, nil
}

// seal returns nonce || ciphertext with name as additional data.
func (s *sealer) seal(name string, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, []byte(name)), nil
}

func (s *sealer) open(name string, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrTampered
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, []byte(name))
	if err != nil {
		return nil, ErrTampered
	}
	return plain, nil
}

// loadOrCreateDeviceKey reads the device key file, creating it with fresh
// random bytes when missing. Memory-only stores without a key file get an
// ephemeral key.
func loadOrCreateDeviceKey(path string, inMemory bool) ([]byte, error) {
	if path == "" {
		if !inMemory {
			return nil, fmt.Errorf("device key file is required")
		}
		key := make([]byte, deviceKeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
		return key, nil
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != deviceKeySize {
			return nil, fmt.Errorf("device key file %s has %d bytes, want %d", path, len(data), deviceKeySize)
		}
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read device key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	key := make([]byte, deviceKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, key, 0600); err != nil {
		return nil, fmt.Errorf("failed to write device key: %w", err)
	}
	return key, nil
}
