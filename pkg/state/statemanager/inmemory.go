package statemanager

import (
	"log/slog"
	"sync"
	"time"

	"github.com/a-essam23/go-pulse/pkg/state"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type modifierKey struct {
	modifier string
	userID   string
	event    string
}

type InMemoryManager struct {
	conns     map[uuid.UUID]*state.Connection
	presence  map[string]uuid.UUID
	rooms     map[string]map[uuid.UUID]string // roomID -> connID -> announced userID
	connRooms map[uuid.UUID]map[string]struct{}
	modifiers map[modifierKey]*state.ModifierState

	connMu     sync.RWMutex
	presenceMu sync.RWMutex
	roomMu     sync.RWMutex
	modMu      sync.Mutex

	logger *slog.Logger
}

func NewInMemoryManager(logger *slog.Logger) *InMemoryManager {
	return &InMemoryManager{
		conns:     make(map[uuid.UUID]*state.Connection),
		presence:  make(map[string]uuid.UUID),
		rooms:     make(map[string]map[uuid.UUID]string),
		connRooms: make(map[uuid.UUID]map[string]struct{}),
		modifiers: make(map[modifierKey]*state.ModifierState),
		logger:    logger.With(slog.String("component", "state_manager_inmemory")),
	}
}

// compile-time check to ensure InMemoryManager implements Manager.
var _ state.Manager = (*InMemoryManager)(nil)

// --- Connections ---

func (m *InMemoryManager) RegisterConnection(conn state.Sender, userID, ipAddr string) (*state.Connection, error) {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	connID := conn.ID()
	if _, exists := m.conns[connID]; exists {
		return nil, state.ErrConnectionExists
	}
	newConn := &state.Connection{
		ID:        connID,
		UserID:    userID,
		IPAddress: ipAddr,
		Transport: conn,
		CreatedAt: time.Now(),
	}
	m.conns[connID] = newConn
	m.logger.Debug("Connection registered", slog.String("connID", connID.String()), slog.String("userID", userID))
	return newConn, nil
}

func (m *InMemoryManager) DeregisterConnection(connID uuid.UUID) error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if _, ok := m.conns[connID]; !ok {
		// connection is already deregistered
		return nil
	}
	delete(m.conns, connID)
	m.logger.Debug("Connection deregistered", slog.String("connID", connID.String()))
	return nil
}

func (m *InMemoryManager) GetConnection(connID uuid.UUID) (*state.Connection, bool) {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	conn, ok := m.conns[connID]
	return conn, ok
}

func (m *InMemoryManager) AllConnections() []*state.Connection {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	return lo.Values(m.conns)
}

// --- Presence ---

func (m *InMemoryManager) Register(userID string, connID uuid.UUID) (uuid.UUID, bool) {
	m.presenceMu.Lock()
	defer m.presenceMu.Unlock()

	prev, existed := m.presence[userID]
	m.presence[userID] = connID
	replaced := existed && prev != connID
	if replaced {
		m.logger.Debug("Presence entry overwritten",
			slog.String("userID", userID),
			slog.String("prevConnID", prev.String()),
			slog.String("connID", connID.String()),
		)
	}
	return prev, replaced
}

func (m *InMemoryManager) Lookup(userID string) (uuid.UUID, bool) {
	m.presenceMu.RLock()
	defer m.presenceMu.RUnlock()
	connID, ok := m.presence[userID]
	return connID, ok
}

func (m *InMemoryManager) Unregister(userID string) {
	m.presenceMu.Lock()
	defer m.presenceMu.Unlock()
	delete(m.presence, userID)
}

func (m *InMemoryManager) Release(userID string, connID uuid.UUID) bool {
	m.presenceMu.Lock()
	defer m.presenceMu.Unlock()

	current, ok := m.presence[userID]
	if !ok || current != connID {
		return false
	}
	delete(m.presence, userID)
	return true
}

func (m *InMemoryManager) AllUserIDs() []string {
	m.presenceMu.RLock()
	defer m.presenceMu.RUnlock()
	return lo.Keys(m.presence)
}

func (m *InMemoryManager) IsOnline(userID string) bool {
	_, ok := m.Lookup(userID)
	return ok
}

// --- Rooms ---

func (m *InMemoryManager) Join(roomID string, connID uuid.UUID, userID string) ([]state.RoomMember, bool) {
	m.roomMu.Lock()
	defer m.roomMu.Unlock()

	room, exists := m.rooms[roomID]
	if !exists {
		room = make(map[uuid.UUID]string)
		m.rooms[roomID] = room
	}
	if _, already := room[connID]; already {
		return nil, false
	}

	peers := membersOf(room)
	room[connID] = userID

	joined, ok := m.connRooms[connID]
	if !ok {
		joined = make(map[string]struct{})
		m.connRooms[connID] = joined
	}
	joined[roomID] = struct{}{}

	m.logger.Debug("Connection joined room", "connID", connID.String(), "roomID", roomID, "peers", len(peers))
	return peers, true
}

func (m *InMemoryManager) Leave(roomID string, connID uuid.UUID) (state.Departure, bool) {
	m.roomMu.Lock()
	defer m.roomMu.Unlock()
	return m.leaveLocked(roomID, connID)
}

func (m *InMemoryManager) LeaveAll(connID uuid.UUID) []state.Departure {
	m.roomMu.Lock()
	defer m.roomMu.Unlock()

	joined := m.connRooms[connID]
	departures := make([]state.Departure, 0, len(joined))
	for roomID := range joined {
		if dep, ok := m.leaveLocked(roomID, connID); ok {
			departures = append(departures, dep)
		}
	}
	return departures
}

func (m *InMemoryManager) leaveLocked(roomID string, connID uuid.UUID) (state.Departure, bool) {
	room, ok := m.rooms[roomID]
	if !ok {
		return state.Departure{}, false
	}
	userID, ok := room[connID]
	if !ok {
		return state.Departure{}, false
	}
	delete(room, connID)

	if joined, ok := m.connRooms[connID]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(m.connRooms, connID)
		}
	}

	// For memory hygiene, remove the room if it's now empty.
	if len(room) == 0 {
		delete(m.rooms, roomID)
		m.logger.Debug("Removed empty room", "roomID", roomID)
	}

	m.logger.Debug("Connection left room", "connID", connID.String(), "roomID", roomID)
	return state.Departure{
		RoomID:    roomID,
		Member:    state.RoomMember{ConnID: connID, UserID: userID},
		Remaining: membersOf(room),
	}, true
}

func (m *InMemoryManager) RoomMembers(roomID string) []state.RoomMember {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return nil
	}
	return membersOf(room)
}

func (m *InMemoryManager) RoomsOf(connID uuid.UUID) []string {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()
	return lo.Keys(m.connRooms[connID])
}

func (m *InMemoryManager) SharesRoom(a, b uuid.UUID) bool {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()
	for roomID := range m.connRooms[a] {
		if _, ok := m.rooms[roomID][b]; ok {
			return true
		}
	}
	return false
}

func membersOf(room map[uuid.UUID]string) []state.RoomMember {
	members := make([]state.RoomMember, 0, len(room))
	for connID, userID := range room {
		members = append(members, state.RoomMember{ConnID: connID, UserID: userID})
	}
	return members
}

// --- Modifier state ---

func (m *InMemoryManager) GetModifierState(modifierName, userID, eventName string) (*state.ModifierState, bool) {
	m.modMu.Lock()
	defer m.modMu.Unlock()
	st, ok := m.modifiers[modifierKey{modifierName, userID, eventName}]
	return st, ok
}

func (m *InMemoryManager) SetModifierState(modifierName, userID, eventName string, st *state.ModifierState) {
	m.modMu.Lock()
	defer m.modMu.Unlock()

	key := modifierKey{modifierName, userID, eventName}
	if prev, ok := m.modifiers[key]; ok && prev != st && prev.Timer != nil {
		prev.Timer.Stop()
	}
	m.modifiers[key] = st
}

func (m *InMemoryManager) DeleteModifierState(modifierName, userID, eventName string) {
	m.modMu.Lock()
	defer m.modMu.Unlock()

	key := modifierKey{modifierName, userID, eventName}
	if prev, ok := m.modifiers[key]; ok {
		if prev.Timer != nil {
			prev.Timer.Stop()
		}
		delete(m.modifiers, key)
	}
}
