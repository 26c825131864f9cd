package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/a-essam23/go-pulse/pkg/pipeline"
	"github.com/a-essam23/go-pulse/pkg/state"
	"github.com/tidwall/gjson"
)

var (
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrIdentityMismatch = errors.New("payload identity does not match connection")
)

type rateLimitState struct {
	Requests atomic.Int64
}

// ParseRate reads limits written as "N/s", "N/m" or "N/h".
func ParseRate(rate string) (int64, time.Duration, error) {
	parts := strings.Split(rate, "/")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid rate_limit format: %s", rate)
	}

	limit, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || limit <= 0 {
		return 0, 0, fmt.Errorf("invalid rate_limit count: %s", parts[0])
	}

	var window time.Duration
	switch strings.ToLower(parts[1]) {
	case "s":
		window = time.Second
	case "m":
		window = time.Minute
	case "h":
		window = time.Hour
	default:
		return 0, 0, fmt.Errorf("invalid rate_limit duration unit: %s", parts[1])
	}
	return limit, window, nil
}

func newRateLimitModifier(logger *slog.Logger, store state.ModifierStore) pipeline.ModifierFunc {
	const modifierName = "rate_limit"

	return func(pctx *pipeline.Cargo, params ...string) error {
		if len(params) != 1 {
			return errors.New("'rate_limit' modifier requires exactly one parameter (e.g., '10/m')")
		}
		limit, window, err := ParseRate(params[0])
		if err != nil {
			return err
		}

		// anonymous connections are limited individually
		subject := pctx.UserID()
		if subject == "" && pctx.Connection != nil {
			subject = pctx.Connection.ID.String()
		}
		eventName := pctx.EventName

		existing, found := store.GetModifierState(modifierName, subject, eventName)
		if !found {
			// First request in the window.
			st := &rateLimitState{}
			st.Requests.Store(1)
			newState := &state.ModifierState{Value: st}
			newState.Timer = time.AfterFunc(window, func() {
				logger.Debug("Auto-cleaning expired rate_limit state", "subject", subject, "event", eventName)
				store.DeleteModifierState(modifierName, subject, eventName)
			})
			store.SetModifierState(modifierName, subject, eventName, newState)
			return nil
		}

		current := existing.Value.(*rateLimitState)
		if current.Requests.Add(1) <= limit {
			return nil
		}
		return fmt.Errorf("%w for event '%s'", ErrRateLimited, eventName)
	}
}

// matchUserModifier rejects events whose payload names a sender other than the
// authenticated user. Params are the payload paths to check, e.g. "from".
func matchUserModifier(pctx *pipeline.Cargo, params ...string) error {
	if len(params) == 0 {
		return errors.New("'match_user' modifier requires at least one payload path")
	}
	userID := pctx.UserID()
	if userID == "" {
		return nil
	}
	for _, path := range params {
		claimed := gjson.GetBytes(pctx.Payload, path)
		if claimed.Exists() && claimed.String() != "" && claimed.String() != userID {
			return fmt.Errorf("%w: '%s' is %q", ErrIdentityMismatch, path, claimed.String())
		}
	}
	return nil
}

func logModifier(pctx *pipeline.Cargo, params ...string) error {
	if len(params) != 1 {
		return errors.New("'log' modifier requires exactly 1 parameter: [message]")
	}
	pctx.Logger.Info(params[0], slog.String("event", pctx.EventName), slog.String("userID", pctx.UserID()))
	return nil
}
