package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/a-essam23/go-pulse/internal/directory"
	"github.com/a-essam23/go-pulse/internal/engine"
	"github.com/a-essam23/go-pulse/internal/hub"
	"github.com/a-essam23/go-pulse/internal/router"
	"github.com/a-essam23/go-pulse/internal/server/middleware"
	"github.com/a-essam23/go-pulse/internal/session"
	"github.com/a-essam23/go-pulse/internal/signaling"
	"github.com/a-essam23/go-pulse/pkg/config"
	"github.com/a-essam23/go-pulse/pkg/state"
	"github.com/a-essam23/go-pulse/pkg/state/statemanager"
	"github.com/a-essam23/go-pulse/pkg/transport"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

var errShutdown = errors.New("graceful shutdown")

type App struct {
	logger       *slog.Logger
	stateManager state.Manager
	bus          *hub.Bus
	lifecycle    *session.Lifecycle
	eventRouter  *router.EventRouter
	wg           sync.WaitGroup
	http         *http.Server
	config       *config.Config

	ctx context.Context
}

// NewApp wires every component around one in-memory state manager. It fails
// when the configured event pipelines name an unknown modifier.
func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, dir directory.Directory) (*App, error) {
	stateManager := statemanager.NewInMemoryManager(logger)
	bus := hub.NewBus(logger, stateManager, stateManager)
	rooms := signaling.NewRooms(logger, stateManager, bus, cfg.Rooms.ValidateTargets)

	registry := engine.New(logger)
	registry.RegisterCore(&engine.RegisterCoreOptions{Store: stateManager})
	router.RegisterHandlers(registry, router.Services{
		Relay:  signaling.NewRelay(logger, bus),
		Groups: signaling.NewGroupCaller(logger, dir, bus),
		Rooms:  rooms,
	})
	if err := config.CompilePipelines(cfg, registry.GetModifierFunc); err != nil {
		return nil, err
	}
	logger.Info("Event handlers registered", slog.Any("events", registry.Events()))

	app := &App{
		logger:       logger,
		stateManager: stateManager,
		bus:          bus,
		lifecycle:    session.NewLifecycle(logger, stateManager, rooms, bus, cfg.Presence.DuplicatePolicy),
		eventRouter:  router.NewEventRouter(logger, registry, cfg.PipelineFor, stateManager, bus, cfg.Router.ReportErrors),
		config:       cfg,
		ctx:          rootCtx,
	}

	app.http = &http.Server{
		Addr:    cfg.Server.Address,
		Handler: app.routes(),
		BaseContext: func(l net.Listener) context.Context {
			return app.ctx
		},
	}
	return app, nil
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	upgradeHandler := http.HandlerFunc(a.upgradeHandler)

	mux.Handle("GET /ws",
		middleware.Chain(upgradeHandler,
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(a.logger),
			middleware.NewAuthMiddleware(a.logger, a.config.Server.Auth.JWTSecret),
			middleware.NewConnectionLimiter(a.logger, a.stateManager.IsOnline, a.config.Presence.DuplicatePolicy),
		),
	)

	guard := middleware.NewTokenGuard(a.logger, a.config.Server.InternalToken)
	mux.Handle("GET /internal/online", guard(http.HandlerFunc(a.onlineHandler)))
	mux.Handle("POST /internal/notify", guard(http.HandlerFunc(a.notifyHandler)))
	return mux
}

// Handler exposes the HTTP surface, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.http.Handler
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(
		slog.String("requestID", reqMeta.RequestID),
		slog.String("remoteAddr", reqMeta.IP),
		slog.String("userID", reqMeta.UserID),
	)

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		connLogger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig(a.config.Transport),
		a.eventRouter.HandleMessage,
		nil,
		connLogger,
	)
	stateConn, err := a.stateManager.RegisterConnection(conn, reqMeta.UserID, reqMeta.IP)
	if err != nil {
		connLogger.Error("Failed to register connection state", slog.Any("error", err))
		conn.Close(err)
		return
	}
	conn.SetOnCloseHandler(func(id uuid.UUID, err error) {
		connLogger.Info("Tearing down connection", slog.String("connID", id.String()), slog.Any("reason", err))
		a.lifecycle.Disconnect(stateConn)
	})

	if err := a.lifecycle.Connect(stateConn); err != nil {
		connLogger.Warn("Connection refused", slog.Any("error", err))
		conn.Close(transport.PolicyViolation(err))
		return
	}

	conn.Run()
	<-conn.Done()
}

// graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// hijacked websocket connections are not tracked by http.Server.
	a.logger.Info("Closing all active connections...")
	for _, conn := range a.stateManager.AllConnections() {
		conn.Transport.Close(errShutdown)
	}

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
