package state

import (
	"github.com/google/uuid"
)

// Sender is the outbound side of a live transport session.
type Sender interface {
	ID() uuid.UUID
	TrySend(message []byte) error
	Close(err error)
}

type ConnectionStore interface {
	RegisterConnection(conn Sender, userID, ipAddr string) (*Connection, error)
	DeregisterConnection(connID uuid.UUID) error
	GetConnection(connID uuid.UUID) (*Connection, bool)
	AllConnections() []*Connection
}

// PresenceRegistry maps a user identity to the single connection currently
// routing for it. It is the source of truth for "who is online".
type PresenceRegistry interface {
	// Register overwrites any prior entry and reports the connection it replaced.
	Register(userID string, connID uuid.UUID) (prev uuid.UUID, replaced bool)
	Lookup(userID string) (uuid.UUID, bool)
	// Unregister is a no-op when the user is absent.
	Unregister(userID string)
	// Release removes the entry only while it still points at connID.
	Release(userID string, connID uuid.UUID) bool
	AllUserIDs() []string
	IsOnline(userID string) bool
}

// RoomStore tracks ephemeral, connection-addressed signaling rooms.
type RoomStore interface {
	// Join returns the members present before the join and whether the
	// connection was newly added.
	Join(roomID string, connID uuid.UUID, userID string) (peers []RoomMember, joined bool)
	Leave(roomID string, connID uuid.UUID) (Departure, bool)
	LeaveAll(connID uuid.UUID) []Departure
	RoomMembers(roomID string) []RoomMember
	RoomsOf(connID uuid.UUID) []string
	SharesRoom(a, b uuid.UUID) bool
}

type ModifierStore interface {
	GetModifierState(modifierName, userID, eventName string) (state *ModifierState, found bool)

	// SetModifierState sets or updates the state data, stopping the timer of
	// any state it replaces.
	SetModifierState(modifierName, userID, eventName string, state *ModifierState)

	// DeleteModifierState removes a state entry. This is typically called by
	// the background cleanup goroutine.
	DeleteModifierState(modifierName, userID, eventName string)
}

type Manager interface {
	ConnectionStore
	PresenceRegistry
	RoomStore
	ModifierStore
}
