package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/a-essam23/go-pulse/internal/engine"
	"github.com/a-essam23/go-pulse/internal/hub"
	"github.com/a-essam23/go-pulse/pkg/pipeline"
	"github.com/a-essam23/go-pulse/pkg/state"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

var ErrInternal = errors.New("internal error")

// PipelineSource returns the modifier steps configured for an event.
type PipelineSource func(event string) []pipeline.Step

type EventRouter struct {
	logger       *slog.Logger
	registry     *engine.Registry
	pipelines    PipelineSource
	conns        state.ConnectionStore
	bus          *hub.Bus
	reportErrors bool
}

func NewEventRouter(logger *slog.Logger, registry *engine.Registry, pipelines PipelineSource, conns state.ConnectionStore, bus *hub.Bus, reportErrors bool) *EventRouter {
	if pipelines == nil {
		pipelines = func(string) []pipeline.Step { return nil }
	}
	return &EventRouter{
		logger:       logger.With(slog.String("component", "event_router")),
		registry:     registry,
		pipelines:    pipelines,
		conns:        conns,
		bus:          bus,
		reportErrors: reportErrors,
	}
}

// HandleMessage runs one inbound frame to completion. It is called from the
// connection's read loop, so events of one connection are handled in order.
func (r *EventRouter) HandleMessage(ctx context.Context, connID uuid.UUID, msg []byte) {
	if !gjson.ValidBytes(msg) {
		r.logger.Warn("Failed to parse client message", slog.String("connID", connID.String()))
		r.reject(connID, "", "invalid JSON frame")
		return
	}
	event := gjson.GetBytes(msg, "event")
	if event.Type != gjson.String || event.Str == "" {
		r.logger.Warn("Client message without event name", slog.String("connID", connID.String()))
		r.reject(connID, "", "missing event name")
		return
	}
	clientMsg := ClientMessage{Event: event.Str}
	if payload := gjson.GetBytes(msg, "payload"); payload.Exists() {
		clientMsg.Payload = []byte(payload.Raw)
	}

	handler, ok := r.registry.GetHandlerFunc(clientMsg.Event)
	if !ok {
		r.logger.Warn("Received unknown event", slog.String("event", clientMsg.Event), slog.String("connID", connID.String()))
		r.reject(connID, clientMsg.Event, "unknown event")
		return
	}

	conn, ok := r.conns.GetConnection(connID)
	if !ok {
		r.logger.Error("Could not find connection for active socket", slog.String("connID", connID.String()))
		return
	}

	pctx := &pipeline.Cargo{
		Logger: r.logger.With(
			slog.String("connID", connID.String()),
			slog.String("userID", conn.UserID),
			slog.String("event", clientMsg.Event),
		),
		Ctx:        ctx,
		Connection: conn,
		EventName:  clientMsg.Event,
		Payload:    clientMsg.Payload,
	}

	if err := r.dispatch(pctx, handler); err != nil {
		pctx.Logger.Warn("Event rejected", slog.Any("error", err))
		r.reject(connID, clientMsg.Event, err.Error())
	}
}

func (r *EventRouter) dispatch(pctx *pipeline.Cargo, handler pipeline.HandlerFunc) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			pctx.Logger.Error("Recovered from panic in event handler",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			err = ErrInternal
		}
	}()

	pctx.Logger.Debug("Executing event pipeline")
	for _, step := range r.pipelines(pctx.EventName) {
		if err := step.Function(pctx, step.Params...); err != nil {
			return fmt.Errorf("modifier '%s': %w", step.Name, err)
		}
	}
	return handler(pctx)
}

func (r *EventRouter) reject(connID uuid.UUID, event, message string) {
	if !r.reportErrors {
		return
	}
	r.bus.EmitTo(connID, EventError, ErrorFrame{Event: event, Message: message})
}
