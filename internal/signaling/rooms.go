package signaling

import (
	"errors"
	"log/slog"

	"github.com/a-essam23/go-pulse/internal/hub"
	"github.com/a-essam23/go-pulse/pkg/state"
	"github.com/google/uuid"
)

var ErrTargetNotInRoom = errors.New("signal target does not share a room with sender")

// Rooms coordinates ad-hoc mesh-call rooms. Members are addressed by
// connection identity; user identities are only carried in notices.
type Rooms struct {
	store    state.RoomStore
	conns    state.ConnectionStore
	presence state.PresenceRegistry
	bus      *hub.Bus

	// validateTargets refuses direct signals to connections outside the sender's rooms.
	validateTargets bool
	logger          *slog.Logger
}

func NewRooms(logger *slog.Logger, m state.Manager, bus *hub.Bus, validateTargets bool) *Rooms {
	return &Rooms{
		store:           m,
		conns:           m,
		presence:        m,
		bus:             bus,
		validateTargets: validateTargets,
		logger:          logger.With(slog.String("component", "rooms")),
	}
}

// Join notifies the members present before the join. The joiner never hears
// its own join, and a repeated join notifies nobody.
func (r *Rooms) Join(conn *state.Connection, p JoinRoomPayload) int {
	userID := p.UserID
	if userID == "" {
		userID = conn.UserID
	}
	peers, joined := r.store.Join(p.RoomID, conn.ID, userID)
	if !joined {
		return 0
	}
	notified := 0
	for _, peer := range peers {
		if r.bus.EmitTo(peer.ConnID, EventUserConnected, userID) {
			notified++
		}
	}
	r.logger.Debug("Joined room", slog.String("roomID", p.RoomID), slog.String("userID", userID), slog.Int("notified", notified))
	return notified
}

func (r *Rooms) Leave(conn *state.Connection, p LeaveRoomPayload) bool {
	dep, ok := r.store.Leave(p.RoomID, conn.ID)
	if !ok {
		return false
	}
	r.announceDeparture(dep)
	return true
}

// LeaveAll removes the connection from every room it joined. It runs on
// disconnect, whether or not the client left explicitly.
func (r *Rooms) LeaveAll(conn *state.Connection) []state.Departure {
	deps := r.store.LeaveAll(conn.ID)
	for _, dep := range deps {
		r.announceDeparture(dep)
	}
	return deps
}

func (r *Rooms) announceDeparture(dep state.Departure) {
	for _, peer := range dep.Remaining {
		r.bus.EmitTo(peer.ConnID, EventUserDisconnected, dep.Member.UserID)
	}
	r.logger.Debug("Left room", slog.String("roomID", dep.RoomID), slog.String("userID", dep.Member.UserID), slog.Int("remaining", len(dep.Remaining)))
}

// SendingSignal forwards a mesh offer to the peer being signalled.
func (r *Rooms) SendingSignal(from *state.Connection, p SendingSignalPayload) (bool, error) {
	callerID := p.CallerID
	if callerID == "" {
		callerID = from.ID.String()
	}
	return r.forward(from, p.UserToSignal, EventUserJoined, UserJoinedNotice{
		Signal:   p.Signal,
		CallerID: callerID,
	})
}

// ReturningSignal sends the answer back to the peer that called.
func (r *Rooms) ReturningSignal(from *state.Connection, p ReturningSignalPayload) (bool, error) {
	id := from.UserID
	if id == "" {
		id = from.ID.String()
	}
	return r.forward(from, p.CallerID, EventReturnedSignal, ReturnedSignalNotice{
		Signal: p.Signal,
		ID:     id,
	})
}

func (r *Rooms) forward(from *state.Connection, target, event string, payload any) (bool, error) {
	connID, direct, ok := r.resolve(target)
	if !ok {
		return false, nil
	}
	if direct && r.validateTargets && !r.store.SharesRoom(from.ID, connID) {
		return false, ErrTargetNotInRoom
	}
	return r.bus.EmitTo(connID, event, payload), nil
}

// resolve accepts either a live connection identity or a user identity.
func (r *Rooms) resolve(target string) (connID uuid.UUID, direct, ok bool) {
	if id, err := uuid.Parse(target); err == nil {
		if _, live := r.conns.GetConnection(id); live {
			return id, true, true
		}
	}
	connID, ok = r.presence.Lookup(target)
	return connID, false, ok
}
