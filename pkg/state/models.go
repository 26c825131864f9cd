package state

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrConnectionExists = errors.New("connection is already registered")

// representation of a single transport-layer connection.
type Connection struct {
	ID        uuid.UUID
	UserID    string // empty until the handshake carried an identity
	IPAddress string
	Transport Sender
	CreatedAt time.Time
}

// RoomMember is a connection inside a room together with the user identity it
// announced on join.
type RoomMember struct {
	ConnID uuid.UUID
	UserID string
}

// Departure describes one connection leaving one room.
type Departure struct {
	RoomID    string
	Member    RoomMember
	Remaining []RoomMember
}

type ModifierState struct {
	Value any
	Timer *time.Timer
}
