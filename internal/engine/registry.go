package engine

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/a-essam23/go-pulse/pkg/pipeline"
	"github.com/a-essam23/go-pulse/pkg/state"
	"github.com/samber/lo"
)

/*
* The central registry for every inbound event handler and every modifier that
* a config pipeline can name. Registering the same name twice is a programming
* error and panics.
 */
type Registry struct {
	logger    *slog.Logger
	handlers  map[string]pipeline.HandlerFunc
	handlerMu sync.RWMutex

	modifiers  map[string]pipeline.ModifierFunc
	modifierMu sync.RWMutex
}

type RegisterCoreOptions struct {
	// Store keeps per-user modifier state such as rate-limit windows.
	Store state.ModifierStore
}

func (e *Registry) RegisterCore(opts *RegisterCoreOptions) {
	e.RegisterModifier("rate_limit", newRateLimitModifier(e.logger, opts.Store))
	e.RegisterModifier("match_user", matchUserModifier)
	e.RegisterModifier("log", logModifier)
	e.logger.Info("Registered core modifiers", slog.Int("count", len(e.modifiers)))
}

func New(logger *slog.Logger) *Registry {
	return &Registry{
		handlers:  make(map[string]pipeline.HandlerFunc),
		modifiers: make(map[string]pipeline.ModifierFunc),
		logger:    logger.With(slog.String("component", "engine")),
	}
}

// --- Handler Methods ---

func (e *Registry) RegisterHandler(event string, fn pipeline.HandlerFunc) {
	e.handlerMu.Lock()
	defer e.handlerMu.Unlock()
	if _, exists := e.handlers[event]; exists {
		panic("handler already registered for event: " + event)
	}
	e.handlers[event] = fn
}

func (e *Registry) GetHandlerFunc(event string) (pipeline.HandlerFunc, bool) {
	e.handlerMu.RLock()
	defer e.handlerMu.RUnlock()
	fn, ok := e.handlers[event]
	return fn, ok
}

// Events lists every event with a registered handler, sorted.
func (e *Registry) Events() []string {
	e.handlerMu.RLock()
	defer e.handlerMu.RUnlock()
	events := lo.Keys(e.handlers)
	slices.Sort(events)
	return events
}

// --- Modifier Methods ---

func (e *Registry) RegisterModifier(name string, fn pipeline.ModifierFunc) {
	e.modifierMu.Lock()
	defer e.modifierMu.Unlock()
	if _, exists := e.modifiers[name]; exists {
		panic("modifier function already registered: " + name)
	}
	e.modifiers[name] = fn
}

func (e *Registry) GetModifierFunc(name string) (pipeline.ModifierFunc, bool) {
	e.modifierMu.RLock()
	defer e.modifierMu.RUnlock()
	fn, ok := e.modifiers[name]
	return fn, ok
}
