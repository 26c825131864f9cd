// Package signaling routes presence notices and call-signaling payloads between
// live connections. It never interprets signal payloads and keeps no per-call state.
package signaling

import (
	"log/slog"

	"github.com/a-essam23/go-pulse/internal/hub"
	"github.com/a-essam23/go-pulse/pkg/state"
)

// Relay forwards one-to-one events keyed by user identity.
// A target that is offline turns every operation into a no-op.
type Relay struct {
	bus    *hub.Bus
	logger *slog.Logger
}

func NewRelay(logger *slog.Logger, bus *hub.Bus) *Relay {
	return &Relay{
		bus:    bus,
		logger: logger.With(slog.String("component", "signal_relay")),
	}
}

func (r *Relay) Typing(from *state.Connection, p TypingPayload) bool {
	return r.bus.EmitToUser(p.ReceiverID, EventTyping, TypingNotice{SenderID: from.UserID})
}

func (r *Relay) StopTyping(from *state.Connection, p TypingPayload) bool {
	return r.bus.EmitToUser(p.ReceiverID, EventStopTyping, TypingNotice{SenderID: from.UserID})
}

// MessageRead tells the original sender that the reader saw their messages.
func (r *Relay) MessageRead(p MessageReadPayload) bool {
	return r.bus.EmitToUser(p.SenderID, EventMessageRead, MessageReadNotice{
		ReceiverID: p.ReceiverID,
		MessageIDs: p.MessageIDs,
	})
}

// CallUser rings the callee. The caller identity is the authenticated one when
// the connection has it; the payload's "from" is only a fallback.
func (r *Relay) CallUser(from *state.Connection, p CallUserPayload) bool {
	caller := callerOf(from, p.From)
	sent := r.bus.EmitToUser(p.UserToCall, EventCallUser, IncomingCall{
		Signal: p.SignalData,
		From:   caller,
		Name:   p.Name,
	})
	r.logger.Debug("Call initiate relayed", slog.String("from", caller), slog.String("to", p.UserToCall), slog.Bool("delivered", sent))
	return sent
}

// AnswerCall forwards the bare answer signal to the original caller.
func (r *Relay) AnswerCall(p AnswerCallPayload) bool {
	var payload any
	if len(p.Signal) > 0 {
		payload = p.Signal
	}
	sent := r.bus.EmitToUser(p.To, EventCallAccepted, payload)
	r.logger.Debug("Call answer relayed", slog.String("to", p.To), slog.Bool("delivered", sent))
	return sent
}

func (r *Relay) EndCall(p EndCallPayload) bool {
	sent := r.bus.EmitToUser(p.To, EventCallEnded, nil)
	r.logger.Debug("Call end relayed", slog.String("to", p.To), slog.Bool("delivered", sent))
	return sent
}

func callerOf(conn *state.Connection, claimed string) string {
	if conn != nil && conn.UserID != "" {
		return conn.UserID
	}
	return claimed
}
