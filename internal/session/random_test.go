package session

import (
	"errors"
	"strings"
	"testing"
)

type scriptedSource struct {
	chunks [][]byte
	err    error
}

func (s *scriptedSource) RandomBytes(n int) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.chunks) == 0 {
		return nil, errors.New("exhausted")
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	if len(c) > n {
		c = c[:n]
	}
	return c, nil
}

func TestNewID_CryptoSource(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id, err := NewID(CryptoSource{})
		if err != nil {
			t.Fatalf("NewID() error: %v", err)
		}
		if len(id) != IDLength {
			t.Fatalf("expected length %d, got %d (%q)", IDLength, len(id), id)
		}
		for _, r := range id {
			if !strings.ContainsRune(IDAlphabet, r) {
				t.Fatalf("id %q contains %q outside the alphabet", id, r)
			}
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestNewID_RejectsBiasedBytes(t *testing.T) {
	// 248..255 would fold onto the first eight characters; they must be
	// skipped and replaced by further reads.
	src := &scriptedSource{chunks: [][]byte{
		{248, 0, 255, 61, 62, 123, 247, 250, 1, 2, 3, 4, 5, 6},
		{7, 8, 9},
	}}

	id, err := NewID(src)
	if err != nil {
		t.Fatalf("NewID() error: %v", err)
	}
	want := "a9a99bcdefghij"
	if id != want {
		t.Errorf("NewID() = %q, want %q", id, want)
	}
}

func TestNewID_SourceError(t *testing.T) {
	_, err := NewID(&scriptedSource{err: errors.New("entropy unavailable")})
	if err == nil {
		t.Fatal("expected error from failing source")
	}
}

func TestNewID_EmptyRead(t *testing.T) {
	_, err := NewID(&scriptedSource{chunks: [][]byte{{}}})
	if err == nil {
		t.Fatal("expected error when source returns no bytes")
	}
}
