package signaling

import "encoding/json"

// Inbound (client->server) event names.
const (
	EventTyping          = "typing"
	EventStopTyping      = "stopTyping"
	EventMessageRead     = "messageRead"
	EventCallUser        = "callUser"
	EventAnswerCall      = "answerCall"
	EventEndCall         = "endCall"
	EventStartGroupCall  = "start-group-call"
	EventJoinRoom        = "join-room"
	EventLeaveRoom       = "leave-room"
	EventSendingSignal   = "sending-signal"
	EventReturningSignal = "returning-signal"
)

// Outbound (server->client) event names.
const (
	EventOnlineUsers       = "getOnlineUsers"
	EventCallAccepted      = "callAccepted"
	EventCallEnded         = "callEnded"
	EventIncomingGroupCall = "incoming-group-call"
	EventUserConnected     = "user-connected"
	EventUserDisconnected  = "user-disconnected"
	EventUserJoined        = "user-joined"
	EventReturnedSignal    = "receiving-returned-signal"
)

// Field names below are part of the wire contract with existing clients.

type TypingPayload struct {
	ReceiverID string `json:"receiverId" validate:"required"`
}

type TypingNotice struct {
	SenderID string `json:"senderId"`
}

type MessageReadPayload struct {
	SenderID   string          `json:"senderId" validate:"required"`
	ReceiverID string          `json:"receiverId"`
	MessageIDs json.RawMessage `json:"messageIds"`
}

type MessageReadNotice struct {
	ReceiverID string          `json:"receiverId"`
	MessageIDs json.RawMessage `json:"messageIds"`
}

type CallUserPayload struct {
	UserToCall string          `json:"userToCall" validate:"required"`
	SignalData json.RawMessage `json:"signalData"`
	From       string          `json:"from"`
	Name       string          `json:"name"`
}

type IncomingCall struct {
	Signal json.RawMessage `json:"signal"`
	From   string          `json:"from"`
	Name   string          `json:"name"`
}

type AnswerCallPayload struct {
	To     string          `json:"to" validate:"required"`
	Signal json.RawMessage `json:"signal"`
}

type EndCallPayload struct {
	To string `json:"to" validate:"required"`
}

type GroupCallPayload struct {
	GroupID    string `json:"groupId" validate:"required"`
	CallerName string `json:"callerName"`
	CallerID   string `json:"callerId"`
}

type IncomingGroupCall struct {
	GroupID    string `json:"groupId"`
	CallerName string `json:"callerName"`
	CallerID   string `json:"callerId"`
	GroupName  string `json:"groupName"`
}

type JoinRoomPayload struct {
	RoomID string `json:"roomId" validate:"required"`
	UserID string `json:"userId"`
}

type LeaveRoomPayload struct {
	RoomID string `json:"roomId" validate:"required"`
}

type SendingSignalPayload struct {
	UserToSignal string          `json:"userToSignal" validate:"required"`
	CallerID     string          `json:"callerID"`
	Signal       json.RawMessage `json:"signal"`
}

type UserJoinedNotice struct {
	Signal   json.RawMessage `json:"signal"`
	CallerID string          `json:"callerID"`
}

type ReturningSignalPayload struct {
	CallerID string          `json:"callerID" validate:"required"`
	Signal   json.RawMessage `json:"signal"`
}

type ReturnedSignalNotice struct {
	Signal json.RawMessage `json:"signal"`
	ID     string          `json:"id"`
}
