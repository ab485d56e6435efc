package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/whisper/odds/internal/messaging"
	"github.com/whisper/odds/internal/metrics"
	"github.com/whisper/odds/internal/protocol"
)

// EventPublisher receives lifecycle events after a successful write.
type EventPublisher interface {
	PublishSessionEvent(ev messaging.SessionEvent) error
}

// Manager implements create, read and submit on top of a KV. It keeps no
// state of its own; every call goes to the store.
type Manager struct {
	kv     KV
	random RandomSource
	now    func() time.Time
	events EventPublisher
}

// Option configures a Manager.
type Option func(*Manager)

// WithRandom replaces the identifier source.
func WithRandom(src RandomSource) Option {
	return func(m *Manager) { m.random = src }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithEvents publishes lifecycle events to p.
func WithEvents(p EventPublisher) Option {
	return func(m *Manager) { m.events = p }
}

// NewManager returns a Manager backed by kv. If kv also implements Swapper,
// Submit uses it to lock atomically.
func NewManager(kv KV, opts ...Option) *Manager {
	m := &Manager{
		kv:     kv,
		random: CryptoSource{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create validates req, stores a new open session and returns its ID.
func (m *Manager) Create(ctx context.Context, req protocol.CreateRequest) (string, error) {
	if req.MaxX < protocol.MinMaxX || req.MaxX > protocol.MaxMaxX {
		return "", protocol.MaxXRangeError()
	}
	challenge := protocol.ClampText(req.Challenge, protocol.MaxChallengeChars)
	report := protocol.ClampText(req.Report, protocol.MaxReportChars)
	if challenge == "" || report == "" {
		return "", protocol.MissingTextError()
	}

	id, err := NewID(m.random)
	if err != nil {
		return "", err
	}

	sess := &Session{
		ID:        id,
		MaxX:      req.MaxX,
		Challenge: challenge,
		Report:    report,
		CreatedAt: m.now().UnixMilli(),
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("session: marshal: %w", err)
	}
	if err := m.kv.Set(ctx, Key(id), data, SessionTTL); err != nil {
		return "", err
	}

	metrics.SessionsCreated.Inc()
	m.publish(messaging.SessionEvent{
		Type:      messaging.EventCreated,
		SessionID: id,
		MaxX:      sess.MaxX,
		At:        sess.CreatedAt,
	})
	return id, nil
}

// Get returns the public view of a session.
func (m *Manager) Get(ctx context.Context, sessionID string) (protocol.SessionView, error) {
	sess, _, err := m.load(ctx, sessionID)
	if err != nil {
		return protocol.SessionView{}, err
	}
	return sess.View(), nil
}

// Submit locks an open session with the pick carried in body. Checks run in
// order: existence, lock state, body syntax, pick range. It returns the
// accepted pick.
func (m *Manager) Submit(ctx context.Context, sessionID string, body []byte) (int, error) {
	sess, raw, err := m.load(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if sess.Locked {
		metrics.SubmitConflicts.WithLabelValues("read").Inc()
		return 0, ErrConflict
	}

	req, err := protocol.DecodeSubmit(body, sess.MaxX)
	if err != nil {
		return 0, err
	}

	locked := sess.withPick(req.Pick, m.now())
	data, err := json.Marshal(locked)
	if err != nil {
		return 0, fmt.Errorf("session: marshal: %w", err)
	}

	key := Key(sessionID)
	if sw, ok := m.kv.(Swapper); ok {
		swapped, err := sw.CompareAndSwap(ctx, key, raw, data, SessionTTL)
		if err != nil {
			return 0, err
		}
		if !swapped {
			// Someone else wrote first; report what the record is now.
			if _, _, err := m.load(ctx, sessionID); err != nil {
				return 0, err
			}
			metrics.SubmitConflicts.WithLabelValues("swap").Inc()
			return 0, ErrConflict
		}
	} else if err := m.kv.Set(ctx, key, data, SessionTTL); err != nil {
		return 0, err
	}

	metrics.SessionsLocked.Inc()
	m.publish(messaging.SessionEvent{
		Type:      messaging.EventLocked,
		SessionID: sessionID,
		MaxX:      locked.MaxX,
		At:        *locked.LockedAt,
	})
	return req.Pick, nil
}

// load fetches and decodes a session, returning the raw bytes alongside.
func (m *Manager) load(ctx context.Context, sessionID string) (*Session, []byte, error) {
	if sessionID == "" {
		return nil, nil, ErrNotFound
	}
	raw, err := m.kv.Get(ctx, Key(sessionID))
	if err != nil {
		return nil, nil, err
	}
	if raw == nil {
		return nil, nil, ErrNotFound
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, nil, fmt.Errorf("session: decode %s: %w", sessionID, err)
	}
	return &sess, raw, nil
}

func (m *Manager) publish(ev messaging.SessionEvent) {
	if m.events == nil {
		return
	}
	if err := m.events.PublishSessionEvent(ev); err != nil {
		log.Printf("[session] publish %s event for %s failed: %v", ev.Type, ev.SessionID, err)
	}
}
