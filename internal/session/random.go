package session

import (
	"crypto/rand"
	"fmt"
)

const (
	// IDLength is the number of characters in a session ID.
	IDLength = 14

	// IDAlphabet is the set session IDs are drawn from.
	IDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// Bytes at or above this value are discarded so every character is
	// equally likely (248 = 4 * 62).
	idByteLimit = 256 - 256%len(IDAlphabet)
)

// RandomSource supplies cryptographically strong random bytes.
type RandomSource interface {
	RandomBytes(n int) ([]byte, error)
}

// CryptoSource reads from crypto/rand.
type CryptoSource struct{}

// RandomBytes returns n bytes from crypto/rand.
func (CryptoSource) RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// NewID draws an IDLength-character identifier from src.
func NewID(src RandomSource) (string, error) {
	out := make([]byte, 0, IDLength)
	for len(out) < IDLength {
		buf, err := src.RandomBytes(IDLength - len(out))
		if err != nil {
			return "", fmt.Errorf("session: random id: %w", err)
		}
		if len(buf) == 0 {
			return "", fmt.Errorf("session: random id: source returned no bytes")
		}
		for _, b := range buf {
			if int(b) >= idByteLimit {
				continue
			}
			out = append(out, IDAlphabet[int(b)%len(IDAlphabet)])
			if len(out) == IDLength {
				break
			}
		}
	}
	return string(out), nil
}
