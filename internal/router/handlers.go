package router

import (
	"encoding/json"
	"fmt"

	"github.com/a-essam23/go-pulse/internal/engine"
	"github.com/a-essam23/go-pulse/internal/signaling"
	"github.com/a-essam23/go-pulse/pkg/pipeline"
	"github.com/tidwall/gjson"
)

// Services are the components inbound events are routed to.
type Services struct {
	Relay  *signaling.Relay
	Groups *signaling.GroupCaller
	Rooms  *signaling.Rooms
}

// RegisterHandlers binds every client event to its component.
func RegisterHandlers(reg *engine.Registry, s Services) {
	reg.RegisterHandler(signaling.EventTyping, typed(func(pctx *pipeline.Cargo, p signaling.TypingPayload) error {
		s.Relay.Typing(pctx.Connection, p)
		return nil
	}))
	reg.RegisterHandler(signaling.EventStopTyping, typed(func(pctx *pipeline.Cargo, p signaling.TypingPayload) error {
		s.Relay.StopTyping(pctx.Connection, p)
		return nil
	}))
	reg.RegisterHandler(signaling.EventMessageRead, typed(func(_ *pipeline.Cargo, p signaling.MessageReadPayload) error {
		s.Relay.MessageRead(p)
		return nil
	}))

	reg.RegisterHandler(signaling.EventCallUser, typed(func(pctx *pipeline.Cargo, p signaling.CallUserPayload) error {
		s.Relay.CallUser(pctx.Connection, p)
		return nil
	}))
	reg.RegisterHandler(signaling.EventAnswerCall, typed(func(_ *pipeline.Cargo, p signaling.AnswerCallPayload) error {
		s.Relay.AnswerCall(p)
		return nil
	}))
	reg.RegisterHandler(signaling.EventEndCall, typed(func(_ *pipeline.Cargo, p signaling.EndCallPayload) error {
		s.Relay.EndCall(p)
		return nil
	}))
	reg.RegisterHandler(signaling.EventStartGroupCall, typed(func(pctx *pipeline.Cargo, p signaling.GroupCallPayload) error {
		s.Groups.StartGroupCall(pctx.Ctx, pctx.Connection, p)
		return nil
	}))

	reg.RegisterHandler(signaling.EventJoinRoom, func(pctx *pipeline.Cargo) error {
		var p signaling.JoinRoomPayload
		if err := decodeRoomArgs(pctx.Payload, &p.RoomID, &p.UserID, &p); err != nil {
			return err
		}
		s.Rooms.Join(pctx.Connection, p)
		return nil
	})
	reg.RegisterHandler(signaling.EventLeaveRoom, func(pctx *pipeline.Cargo) error {
		var p signaling.LeaveRoomPayload
		if err := decodeRoomArgs(pctx.Payload, &p.RoomID, nil, &p); err != nil {
			return err
		}
		s.Rooms.Leave(pctx.Connection, p)
		return nil
	})
	reg.RegisterHandler(signaling.EventSendingSignal, typed(func(pctx *pipeline.Cargo, p signaling.SendingSignalPayload) error {
		_, err := s.Rooms.SendingSignal(pctx.Connection, p)
		return err
	}))
	reg.RegisterHandler(signaling.EventReturningSignal, typed(func(pctx *pipeline.Cargo, p signaling.ReturningSignalPayload) error {
		_, err := s.Rooms.ReturningSignal(pctx.Connection, p)
		return err
	}))
}

// typed decodes and validates the payload before fn sees it.
func typed[T any](fn func(pctx *pipeline.Cargo, p T) error) pipeline.HandlerFunc {
	return func(pctx *pipeline.Cargo) error {
		var p T
		if err := Decode(pctx.Payload, &p); err != nil {
			return err
		}
		return fn(pctx, p)
	}
}

// decodeRoomArgs accepts the positional forms older clients send,
// ["roomId", "userId"] or a bare "roomId", as well as an object.
func decodeRoomArgs(raw json.RawMessage, roomID, userID *string, v any) error {
	res := gjson.ParseBytes(raw)
	switch {
	case res.IsArray():
		args := res.Array()
		if len(args) > 0 {
			*roomID = args[0].String()
		}
		if len(args) > 1 && userID != nil {
			*userID = args[1].String()
		}
	case res.Type == gjson.String:
		*roomID = res.Str
	default:
		return Decode(raw, v)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}
