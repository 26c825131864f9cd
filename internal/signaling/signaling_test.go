package signaling_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/a-essam23/go-pulse/internal/directory"
	"github.com/a-essam23/go-pulse/internal/directory/mocks"
	"github.com/a-essam23/go-pulse/internal/hub"
	"github.com/a-essam23/go-pulse/internal/hub/hubtest"
	"github.com/a-essam23/go-pulse/internal/signaling"
	"github.com/a-essam23/go-pulse/pkg/state"
	"github.com/a-essam23/go-pulse/pkg/state/statemanager"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type harness struct {
	t     *testing.T
	m     *statemanager.InMemoryManager
	bus   *hub.Bus
	log   *slog.Logger
	relay *signaling.Relay
	rooms *signaling.Rooms
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func newHarness(t *testing.T, validateTargets bool) *harness {
	log := newLogger()
	m := statemanager.NewInMemoryManager(log)
	bus := hub.NewBus(log, m, m)
	return &harness{
		t:     t,
		m:     m,
		bus:   bus,
		log:   log,
		relay: signaling.NewRelay(log, bus),
		rooms: signaling.NewRooms(log, m, bus, validateTargets),
	}
}

// online registers a connection and its presence entry.
func (h *harness) online(userID string) (*state.Connection, *hubtest.Recorder) {
	h.t.Helper()
	rec := hubtest.NewRecorder()
	conn, err := h.m.RegisterConnection(rec, userID, "127.0.0.1")
	require.NoError(h.t, err)
	h.m.Register(userID, conn.ID)
	return conn, rec
}

func (h *harness) offline(conn *state.Connection) {
	h.m.Release(conn.UserID, conn.ID)
	require.NoError(h.t, h.m.DeregisterConnection(conn.ID))
}

// --- Relay ---

func TestRelay_TypingAndStopTyping(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, false)
	alice, _ := h.online("alice")
	_, bob := h.online("bob")

	req.True(h.relay.Typing(alice, signaling.TypingPayload{ReceiverID: "bob"}))
	req.True(h.relay.StopTyping(alice, signaling.TypingPayload{ReceiverID: "bob"}))

	frames := bob.Frames()
	req.Len(frames, 2)
	req.Equal("typing", frames[0].Event)
	req.JSONEq(`{"senderId":"alice"}`, string(frames[0].Payload))
	req.Equal("stopTyping", frames[1].Event)
	req.JSONEq(`{"senderId":"alice"}`, string(frames[1].Payload))
}

func TestRelay_MessageReadGoesToOriginalSender(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, false)
	_, alice := h.online("alice")
	_, bob := h.online("bob")

	// Given bob read two of alice's messages
	sent := h.relay.MessageRead(signaling.MessageReadPayload{
		SenderID:   "alice",
		ReceiverID: "bob",
		MessageIDs: json.RawMessage(`["m1","m2"]`),
	})

	// Then alice is told who read which messages
	req.True(sent)
	req.Empty(bob.Frames())
	frames := alice.Events("messageRead")
	req.Len(frames, 1)
	req.JSONEq(`{"receiverId":"bob","messageIds":["m1","m2"]}`, string(frames[0].Payload))
}

func TestRelay_CallThenAnswer(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, false)
	aliceConn, alice := h.online("alice")
	_, bob := h.online("bob")

	// When alice calls bob
	req.True(h.relay.CallUser(aliceConn, signaling.CallUserPayload{
		UserToCall: "bob",
		SignalData: json.RawMessage(`{"type":"offer","sdp":"v=0"}`),
		From:       "alice",
		Name:       "Alice",
	}))

	// Then bob is rung with alice's offer
	incoming := bob.Events("callUser")
	req.Len(incoming, 1)
	req.JSONEq(`{"signal":{"type":"offer","sdp":"v=0"},"from":"alice","name":"Alice"}`, string(incoming[0].Payload))

	// When bob answers
	req.True(h.relay.AnswerCall(signaling.AnswerCallPayload{
		To:     "alice",
		Signal: json.RawMessage(`{"type":"answer","sdp":"v=0"}`),
	}))

	// Then alice receives the bare answer signal
	accepted := alice.Events("callAccepted")
	req.Len(accepted, 1)
	req.JSONEq(`{"type":"answer","sdp":"v=0"}`, string(accepted[0].Payload))

	// When bob hangs up
	req.True(h.relay.EndCall(signaling.EndCallPayload{To: "alice"}))
	ended := alice.Events("callEnded")
	req.Len(ended, 1)
	req.Empty(ended[0].Payload)
}

func TestRelay_CallerIdentityComesFromConnection(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, false)
	mallory, _ := h.online("mallory")
	_, bob := h.online("bob")

	h.relay.CallUser(mallory, signaling.CallUserPayload{UserToCall: "bob", From: "alice"})

	incoming := bob.Events("callUser")
	req.Len(incoming, 1)
	var got signaling.IncomingCall
	req.NoError(json.Unmarshal(incoming[0].Payload, &got))
	req.Equal("mallory", got.From)
}

func TestRelay_AnswerAfterCallerDisconnectIsNoop(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, false)
	aliceConn, alice := h.online("alice")
	_, bob := h.online("bob")

	h.relay.CallUser(aliceConn, signaling.CallUserPayload{UserToCall: "bob"})
	req.Len(bob.Events("callUser"), 1)

	// Given alice disconnected before bob answered
	h.offline(aliceConn)

	req.False(h.relay.AnswerCall(signaling.AnswerCallPayload{To: "alice", Signal: json.RawMessage(`{}`)}))
	req.False(h.relay.EndCall(signaling.EndCallPayload{To: "alice"}))
	req.Empty(alice.Frames())
}

func TestRelay_OfflineTargetIsSilent(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, false)
	alice, aliceRec := h.online("alice")

	req.False(h.relay.CallUser(alice, signaling.CallUserPayload{UserToCall: "nobody"}))
	req.False(h.relay.Typing(alice, signaling.TypingPayload{ReceiverID: "nobody"}))
	req.Empty(aliceRec.Frames())
}

// --- GroupCaller ---

func TestGroupCall_RingsOnlineMembersExceptCaller(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, false)
	ctrl := gomock.NewController(t)
	dir := mocks.NewMockDirectory(ctrl)
	caller := signaling.NewGroupCaller(h.log, dir, h.bus)

	aConn, a := h.online("A")
	_, b := h.online("B")

	// Given group G = {A, B, C} where C is offline
	dir.EXPECT().FindGroupByID(gomock.Any(), "G").
		Return(&directory.Group{ID: "G", Name: "Team", Members: []string{"A", "B", "C"}}, nil).
		Times(1)

	// When A starts a group call
	rung := caller.StartGroupCall(context.Background(), aConn, signaling.GroupCallPayload{
		GroupID: "G", CallerName: "Alice", CallerID: "A",
	})

	// Then only B rings, exactly once
	req.Equal([]string{"B"}, rung)
	calls := b.Events("incoming-group-call")
	req.Len(calls, 1)
	req.JSONEq(`{"groupId":"G","callerName":"Alice","callerId":"A","groupName":"Team"}`, string(calls[0].Payload))
	req.Empty(a.Frames())
}

func TestGroupCall_UnknownGroupIsSwallowed(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, false)
	ctrl := gomock.NewController(t)
	dir := mocks.NewMockDirectory(ctrl)
	caller := signaling.NewGroupCaller(h.log, dir, h.bus)

	aConn, a := h.online("A")
	_, b := h.online("B")

	dir.EXPECT().FindGroupByID(gomock.Any(), "missing").Return(nil, directory.ErrGroupNotFound)
	dir.EXPECT().FindGroupByID(gomock.Any(), "broken").Return(nil, errors.New("connection reset"))

	req.Nil(caller.StartGroupCall(context.Background(), aConn, signaling.GroupCallPayload{GroupID: "missing"}))
	req.Nil(caller.StartGroupCall(context.Background(), aConn, signaling.GroupCallPayload{GroupID: "broken"}))

	req.Empty(a.Frames())
	req.Empty(b.Frames())
}

func TestGroupCall_RefetchesMembershipEveryCall(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, false)
	store := directory.NewMemoryDirectory()
	caller := signaling.NewGroupCaller(h.log, store, h.bus)
	ctx := context.Background()

	aConn, _ := h.online("A")
	_, b := h.online("B")
	_, c := h.online("C")

	req.NoError(store.PutGroup(ctx, &directory.Group{ID: "G", Name: "G", Members: []string{"A", "B"}}))
	caller.StartGroupCall(ctx, aConn, signaling.GroupCallPayload{GroupID: "G"})

	req.NoError(store.PutGroup(ctx, &directory.Group{ID: "G", Name: "G", Members: []string{"A", "C"}}))
	caller.StartGroupCall(ctx, aConn, signaling.GroupCallPayload{GroupID: "G"})

	req.Len(b.Events("incoming-group-call"), 1)
	req.Len(c.Events("incoming-group-call"), 1)
}

// --- Rooms ---

func TestRooms_JoinNotifiesExistingMembersOnly(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, false)
	xConn, x := h.online("x")
	yConn, y := h.online("y")

	// X then Y join room R
	req.Equal(0, h.rooms.Join(xConn, signaling.JoinRoomPayload{RoomID: "R", UserID: "x"}))
	req.Equal(1, h.rooms.Join(yConn, signaling.JoinRoomPayload{RoomID: "R", UserID: "y"}))

	// Y's join reaches X only
	joined := x.Events("user-connected")
	req.Len(joined, 1)
	req.JSONEq(`"y"`, string(joined[0].Payload))
	req.Empty(y.Frames())

	// A repeated join is not echoed
	req.Equal(0, h.rooms.Join(yConn, signaling.JoinRoomPayload{RoomID: "R", UserID: "y"}))
	req.Len(x.Events("user-connected"), 1)

	// X's disconnect reaches Y
	deps := h.rooms.LeaveAll(xConn)
	req.Len(deps, 1)
	left := y.Events("user-disconnected")
	req.Len(left, 1)
	req.JSONEq(`"x"`, string(left[0].Payload))
	req.Empty(x.Events("user-disconnected"))
}

func TestRooms_ExplicitLeave(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, false)
	xConn, _ := h.online("x")
	yConn, y := h.online("y")

	h.rooms.Join(xConn, signaling.JoinRoomPayload{RoomID: "R"})
	h.rooms.Join(yConn, signaling.JoinRoomPayload{RoomID: "R"})

	req.True(h.rooms.Leave(xConn, signaling.LeaveRoomPayload{RoomID: "R"}))
	req.False(h.rooms.Leave(xConn, signaling.LeaveRoomPayload{RoomID: "R"}))
	req.Len(y.Events("user-disconnected"), 1)

	// Nothing left to announce on disconnect
	req.Empty(h.rooms.LeaveAll(xConn))
	req.Len(y.Events("user-disconnected"), 1)
}

func TestRooms_SendingSignalByConnectionOrUser(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, false)
	xConn, _ := h.online("x")
	yConn, y := h.online("y")

	sent, err := h.rooms.SendingSignal(xConn, signaling.SendingSignalPayload{
		UserToSignal: yConn.ID.String(),
		CallerID:     xConn.ID.String(),
		Signal:       json.RawMessage(`{"sdp":"offer"}`),
	})
	req.NoError(err)
	req.True(sent)

	sent, err = h.rooms.SendingSignal(xConn, signaling.SendingSignalPayload{
		UserToSignal: "y",
		CallerID:     "x",
		Signal:       json.RawMessage(`{"sdp":"offer2"}`),
	})
	req.NoError(err)
	req.True(sent)

	frames := y.Events("user-joined")
	req.Len(frames, 2)
	req.JSONEq(`{"signal":{"sdp":"offer"},"callerID":"`+xConn.ID.String()+`"}`, string(frames[0].Payload))
	req.JSONEq(`{"signal":{"sdp":"offer2"},"callerID":"x"}`, string(frames[1].Payload))
}

func TestRooms_ReturningSignalCarriesSenderIdentity(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, false)
	_, x := h.online("x")
	yConn, _ := h.online("y")

	sent, err := h.rooms.ReturningSignal(yConn, signaling.ReturningSignalPayload{
		CallerID: "x",
		Signal:   json.RawMessage(`{"sdp":"answer"}`),
	})
	req.NoError(err)
	req.True(sent)

	frames := x.Events("receiving-returned-signal")
	req.Len(frames, 1)
	req.JSONEq(`{"signal":{"sdp":"answer"},"id":"y"}`, string(frames[0].Payload))
}

func TestRooms_SignalToUnknownTargetIsSilent(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, false)
	xConn, x := h.online("x")

	sent, err := h.rooms.SendingSignal(xConn, signaling.SendingSignalPayload{UserToSignal: "ghost"})
	req.NoError(err)
	req.False(sent)
	req.Empty(x.Frames())
}

func TestRooms_ValidateTargets(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, true)
	xConn, _ := h.online("x")
	yConn, y := h.online("y")

	// Given x and y share no room, a direct signal is refused
	_, err := h.rooms.SendingSignal(xConn, signaling.SendingSignalPayload{UserToSignal: yConn.ID.String()})
	req.ErrorIs(err, signaling.ErrTargetNotInRoom)
	req.Empty(y.Frames())

	// Once both joined the same room it goes through
	h.rooms.Join(xConn, signaling.JoinRoomPayload{RoomID: "R"})
	h.rooms.Join(yConn, signaling.JoinRoomPayload{RoomID: "R"})
	y.Reset()

	sent, err := h.rooms.SendingSignal(xConn, signaling.SendingSignalPayload{UserToSignal: yConn.ID.String()})
	req.NoError(err)
	req.True(sent)
	req.Len(y.Events("user-joined"), 1)
}
