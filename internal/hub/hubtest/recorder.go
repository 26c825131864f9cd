// Package hubtest provides an in-memory state.Sender for tests.
package hubtest

import (
	"encoding/json"
	"sync"

	"github.com/a-essam23/go-pulse/pkg/transport"
	"github.com/google/uuid"
)

// Frame is a decoded server->client event.
type Frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Recorder captures every frame sent to it.
type Recorder struct {
	id uuid.UUID

	mu       sync.Mutex
	frames   []Frame
	closed   bool
	closeErr error
	full     bool
}

func NewRecorder() *Recorder {
	return &Recorder{id: uuid.New()}
}

func (r *Recorder) ID() uuid.UUID { return r.id }

func (r *Recorder) TrySend(message []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return transport.ErrClosed
	}
	if r.full {
		return transport.ErrBackpressure
	}
	var f Frame
	if err := json.Unmarshal(message, &f); err != nil {
		return err
	}
	r.frames = append(r.frames, f)
	return nil
}

func (r *Recorder) Close(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.closeErr = err
}

// SetFull makes every following send fail with backpressure.
func (r *Recorder) SetFull(full bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.full = full
}

func (r *Recorder) Closed() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed, r.closeErr
}

func (r *Recorder) Frames() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Frame, len(r.frames))
	copy(out, r.frames)
	return out
}

// Events returns only the frames named event.
func (r *Recorder) Events(event string) []Frame {
	var out []Frame
	for _, f := range r.Frames() {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = nil
}
