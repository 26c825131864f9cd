// Package hub delivers named events to live connections.
//
// Delivery is best-effort: an event addressed to a connection that is gone, or
// whose outbound queue is full, is dropped without error and without retry.
package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/a-essam23/go-pulse/pkg/state"
	"github.com/a-essam23/go-pulse/pkg/transport"
	"github.com/google/uuid"
)

// Envelope is the wire frame for server->client events.
type Envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

func Encode(event string, payload any) ([]byte, error) {
	msg, err := json.Marshal(Envelope{Event: event, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event '%s': %w", event, err)
	}
	return msg, nil
}

type Bus struct {
	conns    state.ConnectionStore
	presence state.PresenceRegistry
	logger   *slog.Logger
}

func NewBus(logger *slog.Logger, conns state.ConnectionStore, presence state.PresenceRegistry) *Bus {
	return &Bus{
		conns:    conns,
		presence: presence,
		logger:   logger.With(slog.String("component", "event_bus")),
	}
}

// EmitTo delivers the event to exactly one connection if it is still live.
func (b *Bus) EmitTo(connID uuid.UUID, event string, payload any) bool {
	conn, ok := b.conns.GetConnection(connID)
	if !ok {
		return false
	}
	msg, err := Encode(event, payload)
	if err != nil {
		b.logger.Error("Dropping event", slog.Any("error", err))
		return false
	}
	return b.send(conn, event, msg)
}

// EmitToUser resolves the user's connection through presence first.
func (b *Bus) EmitToUser(userID, event string, payload any) bool {
	connID, ok := b.presence.Lookup(userID)
	if !ok {
		return false
	}
	return b.EmitTo(connID, event, payload)
}

// EmitToUsers delivers one event to many users and reports who was reached.
func (b *Bus) EmitToUsers(userIDs []string, event string, payload any) (delivered, offline []string) {
	msg, err := Encode(event, payload)
	if err != nil {
		b.logger.Error("Dropping event", slog.Any("error", err))
		return nil, userIDs
	}
	for _, userID := range userIDs {
		connID, ok := b.presence.Lookup(userID)
		if !ok {
			offline = append(offline, userID)
			continue
		}
		conn, ok := b.conns.GetConnection(connID)
		if !ok || !b.send(conn, event, msg) {
			offline = append(offline, userID)
			continue
		}
		delivered = append(delivered, userID)
	}
	return delivered, offline
}

// Multicast delivers one event to the given connections and returns how many accepted it.
func (b *Bus) Multicast(connIDs []uuid.UUID, event string, payload any) int {
	msg, err := Encode(event, payload)
	if err != nil {
		b.logger.Error("Dropping multicast", slog.Any("error", err))
		return 0
	}
	sent := 0
	for _, connID := range connIDs {
		conn, ok := b.conns.GetConnection(connID)
		if ok && b.send(conn, event, msg) {
			sent++
		}
	}
	return sent
}

// Broadcast delivers the event to every live connection and returns how many accepted it.
func (b *Bus) Broadcast(event string, payload any) int {
	msg, err := Encode(event, payload)
	if err != nil {
		b.logger.Error("Dropping broadcast", slog.Any("error", err))
		return 0
	}
	sent := 0
	for _, conn := range b.conns.AllConnections() {
		if b.send(conn, event, msg) {
			sent++
		}
	}
	b.logger.Debug("Broadcast", slog.String("event", event), slog.Int("sent", sent))
	return sent
}

func (b *Bus) send(conn *state.Connection, event string, msg []byte) bool {
	err := conn.Transport.TrySend(msg)
	switch {
	case err == nil:
		return true
	case errors.Is(err, transport.ErrBackpressure):
		b.logger.Warn("Outbound queue full, event dropped",
			slog.String("connID", conn.ID.String()),
			slog.String("event", event),
		)
	default:
		b.logger.Debug("Event dropped for closed connection",
			slog.String("connID", conn.ID.String()),
			slog.String("event", event),
		)
	}
	return false
}
