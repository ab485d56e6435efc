package session

import (
	"errors"
	"time"

	"github.com/whisper/odds/internal/protocol"
)

const (
	// SessionPrefix is the key prefix for all session records.
	SessionPrefix = "session:"

	// SessionTTL is the expiry applied on every write of a session record.
	SessionTTL = 7 * 24 * time.Hour
)

// Lookup and state errors. Validation errors come from package protocol.
var (
	ErrNotFound = errors.New("session not found")
	ErrConflict = errors.New("session already locked")
)

// Session is the persisted record. Pick and LockedAt are nil while the
// session is open.
type Session struct {
	ID        string `json:"sessionId"`
	MaxX      int    `json:"maxX"`
	Challenge string `json:"challenge"`
	Report    string `json:"report"`
	Locked    bool   `json:"locked"`
	Pick      *int   `json:"pick,omitempty"`
	CreatedAt int64  `json:"createdAt"`          // unix milliseconds
	LockedAt  *int64 `json:"lockedAt,omitempty"` // unix milliseconds
}

// Key returns the store key for a session ID.
func Key(sessionID string) string {
	return SessionPrefix + sessionID
}

// View returns the public projection of s.
func (s *Session) View() protocol.SessionView {
	return protocol.SessionView{
		SessionID: s.ID,
		MaxX:      s.MaxX,
		Challenge: s.Challenge,
		Report:    s.Report,
		Locked:    s.Locked,
	}
}

// withPick returns a locked copy of s. s itself is left untouched.
func (s Session) withPick(pick int, at time.Time) *Session {
	lockedAt := at.UnixMilli()
	s.Locked = true
	s.Pick = &pick
	s.LockedAt = &lockedAt
	return &s
}
