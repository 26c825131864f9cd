package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-playground/validator/v10"
)

// Internal API for the message service that persists chat history. It lets
// that service find out who is online and push events to them.

type onlineResponse struct {
	Users []string `json:"users"`
}

type notifyRequest struct {
	UserIDs []string        `json:"userIds" validate:"required,min=1,dive,required"`
	Event   string          `json:"event" validate:"required"`
	Payload json.RawMessage `json:"payload"`
}

type notifyResponse struct {
	Delivered []string `json:"delivered"`
	Offline   []string `json:"offline"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (a *App) onlineHandler(w http.ResponseWriter, _ *http.Request) {
	users := a.stateManager.AllUserIDs()
	slices.Sort(users)
	writeJSON(w, http.StatusOK, onlineResponse{Users: users})
}

func (a *App) notifyHandler(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var payload any
	if len(req.Payload) > 0 {
		payload = req.Payload
	}
	delivered, offline := a.bus.EmitToUsers(req.UserIDs, req.Event, payload)
	a.logger.Debug("Internal notify",
		slog.String("event", req.Event),
		slog.Int("delivered", len(delivered)),
		slog.Int("offline", len(offline)),
	)

	resp := notifyResponse{Delivered: delivered, Offline: offline}
	if resp.Delivered == nil {
		resp.Delivered = []string{}
	}
	if resp.Offline == nil {
		resp.Offline = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
