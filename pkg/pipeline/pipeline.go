package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/a-essam23/go-pulse/pkg/state"
)

/*
 * The purpose of this is to detach the implementation of event handlers and
 * modifiers from the actual router
 */

type Cargo struct {
	Logger     *slog.Logger
	Ctx        context.Context
	Connection *state.Connection
	EventName  string
	Payload    json.RawMessage
}

// UserID is the identity the connection carried at handshake.
func (c *Cargo) UserID() string {
	if c.Connection == nil {
		return ""
	}
	return c.Connection.UserID
}

// HandlerFunc implements one inbound event.
type HandlerFunc func(pctx *Cargo) error

// ModifierFunc runs before the handler; a non-nil error rejects the event.
type ModifierFunc func(pctx *Cargo, params ...string) error

// represents one modifier step in an event pipeline
type Step struct {
	Name     string
	Function ModifierFunc
	Params   []string
}
