// Package transport defines the boundary to the per-instance chat connection.
// The manager never talks to a concrete client directly; it owns a Transport
// handle and consumes its typed lifecycle events.
package transport

import "context"

type EventKind string

const (
	EventPairingReady  EventKind = "pairing_ready"
	EventAuthenticated EventKind = "authenticated"
	EventReady         EventKind = "ready"
	EventDisconnected  EventKind = "disconnected"
	EventAuthFailed    EventKind = "auth_failed"
)

// Event is one lifecycle notification from a transport. Only the field
// matching the kind is populated.
type Event struct {
	Kind        EventKind
	PairingCode string // EventPairingReady
	Address     string // EventReady: the self-identity assigned on connect
	Reason      string // EventDisconnected, EventAuthFailed
}

// Payload is the content of one outbound message.
type Payload struct {
	Text     string
	MediaRef string
}

// Transport is one live connection for one instance. Implementations deliver
// lifecycle events on the Events channel until Close is called; Start may
// block for seconds while pairing or authenticating.
type Transport interface {
	Start(ctx context.Context) error
	Events() <-chan Event
	Send(ctx context.Context, target string, payload Payload) (providerMessageID string, err error)
	Close() error
}

// Factory constructs a fresh Transport for an instance. The supervisor calls
// it again for every reconnection attempt; handles are never reused.
type Factory func(instanceID, name string) (Transport, error)
