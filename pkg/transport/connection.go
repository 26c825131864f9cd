package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

var (
	ErrClosed       = errors.New("connection closed")
	ErrBackpressure = errors.New("send buffer full")
)

// callback executed when a message is received.
type MessageHandler func(ctx context.Context, connId uuid.UUID, msg []byte)

type OnCloseHandler func(connId uuid.UUID, err error)

type ConnectionConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
}

const defaultSendBuffer = 256

type policyError struct{ err error }

func (e policyError) Error() string { return e.err.Error() }
func (e policyError) Unwrap() error { return e.err }

// PolicyViolation marks a close reason that the peer should see as a policy
// close (1008) rather than a normal one.
func PolicyViolation(err error) error {
	return policyError{err: err}
}

func closeFrame(err error) (websocket.StatusCode, string) {
	var pe policyError
	if errors.As(err, &pe) {
		return websocket.StatusPolicyViolation, pe.Error()
	}
	return websocket.StatusNormalClosure, ""
}

// Connection represents a single, thread-safe WebSocket connection.
type Connection struct {
	id     uuid.UUID
	conn   *websocket.Conn
	config ConnectionConfig

	sendMu sync.RWMutex
	send   chan []byte
	closed bool

	onMessage MessageHandler
	onClose   OnCloseHandler

	done      chan struct{}
	started   atomic.Bool
	wg        *sync.WaitGroup
	ctx       context.Context
	closeOnce sync.Once
	cancel    context.CancelFunc

	logger *slog.Logger
}

func NewConnection(parentCtx context.Context, wg *sync.WaitGroup, conn *websocket.Conn, config ConnectionConfig, onMessage MessageHandler, onClose OnCloseHandler, logger *slog.Logger) *Connection {
	id := uuid.New()
	connCtx, cancel := context.WithCancel(parentCtx)
	connLogger := logger.With(slog.String("connID", id.String()))

	size := config.SendBuffer
	if size <= 0 {
		size = defaultSendBuffer
	}

	return &Connection{
		id:        id,
		conn:      conn,
		logger:    connLogger,
		config:    config,
		onMessage: onMessage,
		send:      make(chan []byte, size),
		done:      make(chan struct{}),
		ctx:       connCtx,
		cancel:    cancel,
		onClose:   onClose,
		wg:        wg,
	}
}

// Run starts the pumps. It does nothing once the connection has been closed,
// so a connection closed before it went live never holds the WaitGroup.
func (c *Connection) Run() {
	c.sendMu.Lock()
	if c.closed {
		c.sendMu.Unlock()
		c.logger.Debug("Run skipped, connection already closed")
		return
	}
	if c.wg != nil {
		c.wg.Add(1)
	}
	c.started.Store(true)
	c.sendMu.Unlock()

	go c.readPump()
	go c.writePump()

	c.logger.Info("connection established")
}

// readPump pumps messages from the WebSocket connection to the message handler.
// Messages of one connection are handled sequentially, in arrival order.
func (c *Connection) readPump() {
	var readErr error
	defer func() {
		c.Close(readErr)
	}()

	for {
		typ, message, err := c.read()
		if err != nil {
			readErr = err
			return
		}
		if typ != websocket.MessageText && typ != websocket.MessageBinary {
			continue
		}
		c.onMessage(c.ctx, c.id, message)
	}
}

func (c *Connection) read() (websocket.MessageType, []byte, error) {
	readCtx := c.ctx
	if c.config.ReadTimeout > 0 {
		var cancel context.CancelFunc
		readCtx, cancel = context.WithTimeout(c.ctx, c.config.ReadTimeout)
		defer cancel()
	}
	typ, r, err := c.conn.Reader(readCtx)
	if err != nil {
		return 0, nil, err
	}
	message, err := io.ReadAll(r)
	if err != nil {
		c.logger.Error("Connection readpump failed to read frame", slog.Any("error", err))
		return 0, nil, err
	}
	return typ, message, nil
}

// writePump pumps messages from the send channel to the WebSocket connection.
func (c *Connection) writePump() {
	var writeErr error

	defer func() {
		c.Close(writeErr)
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.write(message); err != nil {
				writeErr = err
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) write(message []byte) error {
	writeCtx := c.ctx
	if c.config.WriteTimeout > 0 {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(c.ctx, c.config.WriteTimeout)
		defer cancel()
	}
	return c.conn.Write(writeCtx, websocket.MessageText, message)
}

// TrySend enqueues a message without blocking. It is safe for concurrent use
// and never panics on a closed connection.
func (c *Connection) TrySend(message []byte) error {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- message:
		return nil
	default:
		return ErrBackpressure
	}
}

// gracefully shuts down the connection and its resources.
func (c *Connection) Close(err error) {
	c.closeOnce.Do(func() {
		status := websocket.CloseStatus(err)
		c.logger.Info("Transport connection closing", slog.Any("reason", err), slog.String("status", status.String()))

		c.sendMu.Lock()
		c.closed = true
		close(c.send)
		c.sendMu.Unlock()

		// The close frame is only written while the context is still alive.
		if c.conn != nil {
			code, reason := closeFrame(err)
			c.conn.Close(code, reason)
		}
		c.cancel()
		if c.onClose != nil {
			c.onClose(c.id, err)
		}
		if c.wg != nil && c.started.Load() {
			c.wg.Done()
		}
		close(c.done)
		c.logger.Info("Connection closed")
	})
}

// returns a channel that is closed when the connection is fully terminated.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// ID returns the unique identifier of the connection.
func (c *Connection) ID() uuid.UUID {
	return c.id
}

// Context is cancelled once the connection starts closing.
func (c *Connection) Context() context.Context {
	return c.ctx
}

func (c *Connection) SetOnMessageHandler(handler MessageHandler) {
	c.onMessage = handler
}
func (c *Connection) SetOnCloseHandler(handler OnCloseHandler) {
	c.onClose = handler
}
