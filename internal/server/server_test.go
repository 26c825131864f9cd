package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/a-essam23/go-pulse/internal/directory"
	"github.com/a-essam23/go-pulse/internal/server"
	"github.com/a-essam23/go-pulse/pkg/config"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func newTestApp(t *testing.T, mutate func(*config.Config)) (*server.App, *httptest.Server) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	cfg := &config.Config{
		Presence: config.PresenceConfig{DuplicatePolicy: config.DuplicateOverwrite},
		Router:   config.RouterConfig{ReportErrors: true},
		Transport: config.TransportConfig{
			WriteTimeout: 5 * time.Second,
			SendBuffer:   32,
		},
	}
	if mutate != nil {
		mutate(cfg)
	}

	dir := directory.NewMemoryDirectory()
	require.NoError(t, dir.PutGroup(context.Background(), &directory.Group{ID: "G", Name: "Team", Members: []string{"alice", "bob", "carol"}}))

	app, err := server.NewApp(log, context.Background(), cfg, dir)
	require.NoError(t, err)
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)
	return app, srv
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?userId=" + userID
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.CloseNow() })
	return c
}

func send(t *testing.T, c *websocket.Conn, event string, payload any) {
	t.Helper()
	msg, err := json.Marshal(map[string]any{"event": event, "payload": payload})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, msg))
}

// expect reads until a frame named event arrives, skipping the rest.
func expect(t *testing.T, c *websocket.Conn, event string) frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		_, data, err := c.Read(ctx)
		require.NoError(t, err, "waiting for %s", event)
		var f frame
		require.NoError(t, json.Unmarshal(data, &f))
		if f.Event == event {
			return f
		}
	}
}

// expectOnline waits for an online list equal to want.
func expectOnline(t *testing.T, c *websocket.Conn, want ...string) {
	t.Helper()
	for {
		f := expect(t, c, "getOnlineUsers")
		var got []string
		require.NoError(t, json.Unmarshal(f.Payload, &got))
		if slicesEqual(got, want) {
			return
		}
	}
}

func slicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestServer_PresenceAndCallSignaling(t *testing.T) {
	req := require.New(t)
	_, srv := newTestApp(t, nil)

	alice := dial(t, srv, "alice")
	expectOnline(t, alice, "alice")

	bob := dial(t, srv, "bob")
	expectOnline(t, bob, "alice", "bob")
	expectOnline(t, alice, "alice", "bob")

	send(t, alice, "callUser", map[string]any{"userToCall": "bob", "signalData": map[string]string{"sdp": "offer"}, "from": "alice", "name": "Alice"})
	incoming := expect(t, bob, "callUser")
	req.JSONEq(`{"signal":{"sdp":"offer"},"from":"alice","name":"Alice"}`, string(incoming.Payload))

	send(t, bob, "answerCall", map[string]any{"to": "alice", "signal": map[string]string{"sdp": "answer"}})
	accepted := expect(t, alice, "callAccepted")
	req.JSONEq(`{"sdp":"answer"}`, string(accepted.Payload))

	send(t, alice, "start-group-call", map[string]string{"groupId": "G", "callerName": "Alice"})
	ring := expect(t, bob, "incoming-group-call")
	req.JSONEq(`{"groupId":"G","callerName":"Alice","callerId":"alice","groupName":"Team"}`, string(ring.Payload))

	bob.Close(websocket.StatusNormalClosure, "")
	expectOnline(t, alice, "alice")
}

func TestServer_ErrorFrame(t *testing.T) {
	_, srv := newTestApp(t, nil)
	alice := dial(t, srv, "alice")

	send(t, alice, "typing", map[string]string{})
	f := expect(t, alice, "error")
	require.Contains(t, string(f.Payload), `"event":"typing"`)
}

func TestServer_MissingUserIDRefused(t *testing.T) {
	_, srv := newTestApp(t, nil)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.Dial(context.Background(), url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_RejectPolicy(t *testing.T) {
	_, srv := newTestApp(t, func(cfg *config.Config) {
		cfg.Presence.DuplicatePolicy = config.DuplicateReject
	})
	alice := dial(t, srv, "alice")
	expectOnline(t, alice, "alice")

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?userId=alice"
	_, resp, err := websocket.Dial(context.Background(), url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestServer_EvictPolicy(t *testing.T) {
	_, srv := newTestApp(t, func(cfg *config.Config) {
		cfg.Presence.DuplicatePolicy = config.DuplicateEvict
	})
	first := dial(t, srv, "alice")
	expectOnline(t, first, "alice")

	second := dial(t, srv, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		if _, _, err := first.Read(ctx); err != nil {
			require.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
			break
		}
	}
	expectOnline(t, second, "alice")
}

func TestServer_InternalAPI(t *testing.T) {
	req := require.New(t)
	_, srv := newTestApp(t, func(cfg *config.Config) {
		cfg.Server.InternalToken = "s3cret"
	})
	alice := dial(t, srv, "alice")
	expectOnline(t, alice, "alice")

	// unauthenticated
	resp, err := http.Get(srv.URL + "/internal/online")
	req.NoError(err)
	resp.Body.Close()
	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	do := func(method, path string, body []byte) *http.Response {
		r, err := http.NewRequest(method, srv.URL+path, bytes.NewReader(body))
		req.NoError(err)
		r.Header.Set("Authorization", "Bearer s3cret")
		resp, err := http.DefaultClient.Do(r)
		req.NoError(err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp = do(http.MethodGet, "/internal/online", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	var online struct{ Users []string }
	req.NoError(json.NewDecoder(resp.Body).Decode(&online))
	req.Equal([]string{"alice"}, online.Users)

	resp = do(http.MethodPost, "/internal/notify", []byte(`{"userIds":["alice","bob"],"event":"newMessage","payload":{"text":"hi"}}`))
	req.Equal(http.StatusOK, resp.StatusCode)
	var notified struct {
		Delivered []string `json:"delivered"`
		Offline   []string `json:"offline"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&notified))
	req.Equal([]string{"alice"}, notified.Delivered)
	req.Equal([]string{"bob"}, notified.Offline)

	f := expect(t, alice, "newMessage")
	req.JSONEq(`{"text":"hi"}`, string(f.Payload))

	resp = do(http.MethodPost, "/internal/notify", []byte(`{"userIds":[],"event":"x"}`))
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestServer_ShutdownClosesConnections(t *testing.T) {
	app, srv := newTestApp(t, nil)
	alice := dial(t, srv, "alice")
	expectOnline(t, alice, "alice")

	// keep reading so the close handshake can complete
	closed := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for {
			if _, _, err := alice.Read(ctx); err != nil {
				closed <- err
				return
			}
		}
	}()

	require.NoError(t, app.Shutdown())
	require.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(<-closed))
}

func TestNewApp_UnknownModifier(t *testing.T) {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	cfg := &config.Config{
		Presence: config.PresenceConfig{DuplicatePolicy: config.DuplicateOverwrite},
		Events: map[string]config.EventConfig{
			"typing": {Modifiers: []config.ModifierConfig{{Name: "teleport"}}},
		},
	}
	_, err := server.NewApp(log, context.Background(), cfg, directory.NewMemoryDirectory())
	require.ErrorContains(t, err, "teleport")
}
