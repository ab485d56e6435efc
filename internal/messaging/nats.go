// Package messaging provides a NATS client wrapper used to announce session
// lifecycle events to other services. Events are fire-and-forget: the HTTP
// path never waits on a subscriber.
package messaging

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject patterns used by odds.
const (
	SubjectSessionCreated = "session.created" // + .<session_id>
	SubjectSessionLocked  = "session.locked"  // + .<session_id>
)

// Session event types.
const (
	EventCreated = "created"
	EventLocked  = "locked"
)

// SessionEvent is the payload published on session.* subjects. It never
// carries the pick.
type SessionEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	MaxX      int    `json:"maxX"`
	At        int64  `json:"at"` // unix milliseconds
}

// Subject returns the subject an event is published on.
func (e SessionEvent) Subject() (string, error) {
	switch e.Type {
	case EventCreated:
		return SubjectSessionCreated + "." + e.SessionID, nil
	case EventLocked:
		return SubjectSessionLocked + "." + e.SessionID, nil
	default:
		return "", fmt.Errorf("messaging: unknown session event type %q", e.Type)
	}
}

// NATSClient wraps the NATS connection with publish helpers.
type NATSClient struct {
	conn *nats.Conn
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "odds",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &NATSClient{conn: nc}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// PublishSessionEvent encodes ev and publishes it on its subject.
func (c *NATSClient) PublishSessionEvent(ev SessionEvent) error {
	subject, err := ev.Subject()
	if err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("messaging: marshal event: %w", err)
	}
	return c.Publish(subject, data)
}

// Close drains pending publishes and closes the NATS connection.
func (c *NATSClient) Close() {
	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}
