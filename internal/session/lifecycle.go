// Package session owns the connect/disconnect transitions of a connection and
// keeps the online-user list that every client sees consistent with them.
package session

import (
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/a-essam23/go-pulse/internal/hub"
	"github.com/a-essam23/go-pulse/internal/signaling"
	"github.com/a-essam23/go-pulse/pkg/config"
	"github.com/a-essam23/go-pulse/pkg/state"
	"github.com/a-essam23/go-pulse/pkg/transport"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

var (
	ErrNoUserID   = errors.New("connection has no user id")
	ErrDuplicate  = errors.New("user already has a live connection")
	ErrSuperseded = errors.New("superseded by a newer connection")
)

type State int

const (
	Connecting State = iota
	Live
	Disconnected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Live:
		return "live"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

type Lifecycle struct {
	conns    state.ConnectionStore
	presence state.PresenceRegistry
	rooms    *signaling.Rooms
	bus      *hub.Bus
	policy   config.DuplicatePolicy

	// mu serialises presence mutation with the online-list broadcast that follows it.
	mu   sync.Mutex
	live map[uuid.UUID]struct{}

	logger *slog.Logger
}

func NewLifecycle(logger *slog.Logger, m state.Manager, rooms *signaling.Rooms, bus *hub.Bus, policy config.DuplicatePolicy) *Lifecycle {
	if policy == "" {
		policy = config.DuplicateOverwrite
	}
	return &Lifecycle{
		conns:    m,
		presence: m,
		rooms:    rooms,
		bus:      bus,
		policy:   policy,
		live:     make(map[uuid.UUID]struct{}),
		logger:   logger.With(slog.String("component", "lifecycle")),
	}
}

// StateOf reports where the connection is in its lifecycle. A connection the
// store no longer knows is Disconnected.
func (l *Lifecycle) StateOf(connID uuid.UUID) State {
	l.mu.Lock()
	_, live := l.live[connID]
	l.mu.Unlock()
	if live {
		return Live
	}
	if _, ok := l.conns.GetConnection(connID); ok {
		return Connecting
	}
	return Disconnected
}

// Connect makes an identified connection Live and announces the new online list
// to every Live connection, the new one included.
func (l *Lifecycle) Connect(conn *state.Connection) error {
	if conn.UserID == "" {
		return ErrNoUserID
	}

	var superseded *state.Connection

	l.mu.Lock()
	if prev, ok := l.presence.Lookup(conn.UserID); ok && prev != conn.ID {
		switch l.policy {
		case config.DuplicateReject:
			l.mu.Unlock()
			l.logger.Info("Refused duplicate connection", slog.String("userID", conn.UserID), slog.String("connID", conn.ID.String()))
			return ErrDuplicate
		case config.DuplicateEvict:
			superseded, _ = l.conns.GetConnection(prev)
		}
	}
	l.presence.Register(conn.UserID, conn.ID)
	l.live[conn.ID] = struct{}{}
	l.broadcastOnlineLocked()
	l.mu.Unlock()

	// Closing re-enters Disconnect for the old connection, so it must run unlocked.
	if superseded != nil {
		l.logger.Info("Evicting superseded connection",
			slog.String("userID", conn.UserID),
			slog.String("connID", superseded.ID.String()),
		)
		superseded.Transport.Close(transport.PolicyViolation(ErrSuperseded))
	}

	l.logger.Info("Connection live", slog.String("userID", conn.UserID), slog.String("connID", conn.ID.String()))
	return nil
}

// Disconnect tears down everything the connection owns. It is safe to call
// more than once and for connections that never became Live.
func (l *Lifecycle) Disconnect(conn *state.Connection) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, wasLive := l.live[conn.ID]
	delete(l.live, conn.ID)

	l.rooms.LeaveAll(conn)
	released := conn.UserID != "" && l.presence.Release(conn.UserID, conn.ID)
	if err := l.conns.DeregisterConnection(conn.ID); err != nil {
		l.logger.Error("Failed to deregister connection", slog.String("connID", conn.ID.String()), slog.Any("error", err))
	}

	if !wasLive {
		return
	}
	l.broadcastOnlineLocked()
	l.logger.Info("Connection closed",
		slog.String("userID", conn.UserID),
		slog.String("connID", conn.ID.String()),
		slog.Bool("presenceReleased", released),
	)
}

// broadcastOnlineLocked announces the online list to Live connections only.
// Connections still in the handshake get the list once they become Live.
func (l *Lifecycle) broadcastOnlineLocked() {
	online := l.presence.AllUserIDs()
	slices.Sort(online)
	l.bus.Multicast(lo.Keys(l.live), signaling.EventOnlineUsers, online)
}
