package router

import "encoding/json"

// ClientMessage is the frame every client sends.
type ClientMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// ErrorFrame is sent back to the origin when an event is rejected.
type ErrorFrame struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

const EventError = "error"
