/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus forwards domain events to NATS so other services can react
// to activations and expiries without polling the database.
package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/keygate/internal/events"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	SubjectPrefix string

	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "keygate.events",
		MaxReconnects: -1, // Unlimited
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSPublisher delivers events to a local publisher and forwards a copy to
// NATS on <prefix>.<event type>. Forwarding is best effort: a failed publish
// is logged and the local delivery still happens.
type NATSPublisher struct {
	local  events.Publisher
	conn   *nats.Conn
	send   func(subject string, data []byte) error
	prefix string
	nodeID string
	logger zerolog.Logger
}

// NewNATSPublisher connects to NATS and wraps local.
func NewNATSPublisher(cfg NATSConfig, local events.Publisher, logger zerolog.Logger) (*NATSPublisher, error) {
	logger = logger.With().Str("component", "eventbus").Logger()

	conn, err := nats.Connect(cfg.URL,
		nats.Name("keygate"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	p := newPublisher(local, conn.Publish, cfg.SubjectPrefix, logger)
	p.conn = conn
	logger.Info().Str("url", cfg.URL).Str("node_id", p.nodeID).Msg("forwarding events to NATS")
	return p, nil
}

func newPublisher(local events.Publisher, send func(string, []byte) error, prefix string, logger zerolog.Logger) *NATSPublisher {
	if local == nil {
		local = events.Nop{}
	}
	if prefix == "" {
		prefix = DefaultNATSConfig().SubjectPrefix
	}
	return &NATSPublisher{
		local:  local,
		send:   send,
		prefix: prefix,
		nodeID: generateNodeID(),
		logger: logger,
	}
}

// Publish implements events.Publisher.
func (p *NATSPublisher) Publish(eventType events.EventType, payload events.Payload) {
	p.local.Publish(eventType, payload)

	data, err := marshalNATSMessage(eventType, payload, p.nodeID)
	if err != nil {
		p.logger.Warn().Err(err).Str("event", string(eventType)).Msg("failed to encode event")
		return
	}
	if err := p.send(Subject(p.prefix, eventType), data); err != nil {
		p.logger.Warn().Err(err).Str("event", string(eventType)).Msg("failed to forward event")
	}
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	err := p.conn.Drain()
	if err != nil {
		p.conn.Close()
	}
	return err
}

// Subject returns the NATS subject an event type is published on.
func Subject(prefix string, eventType events.EventType) string {
	return prefix + "." + string(eventType)
}

// Message is the JSON envelope published to NATS.
type Message struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"` // For deduplication
}

func marshalNATSMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	msg := Message{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	}
	return json.Marshal(msg)
}

// UnmarshalMessage parses a forwarded event.
func UnmarshalMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal nats message: %w", err)
	}
	return &msg, nil
}

func generateNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "keygate"
	}
	return host + "-" + uuid.NewString()[:8]
}
