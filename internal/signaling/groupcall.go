package signaling

import (
	"context"
	"errors"
	"log/slog"

	"github.com/a-essam23/go-pulse/internal/directory"
	"github.com/a-essam23/go-pulse/internal/hub"
	"github.com/a-essam23/go-pulse/pkg/state"
	"github.com/samber/lo"
)

// GroupCaller rings every online member of a group except the caller.
// Membership is fetched on every call and never cached, so the ring reflects
// the directory as of the fetch and nothing stronger.
type GroupCaller struct {
	dir    directory.Directory
	bus    *hub.Bus
	logger *slog.Logger
}

func NewGroupCaller(logger *slog.Logger, dir directory.Directory, bus *hub.Bus) *GroupCaller {
	return &GroupCaller{
		dir:    dir,
		bus:    bus,
		logger: logger.With(slog.String("component", "group_call")),
	}
}

// StartGroupCall returns the members that were rung. Lookup failures are logged
// and swallowed: the caller's connection never sees them.
func (g *GroupCaller) StartGroupCall(ctx context.Context, from *state.Connection, p GroupCallPayload) []string {
	callerID := callerOf(from, p.CallerID)

	// No registry or room lock is held here.
	group, err := g.dir.FindGroupByID(ctx, p.GroupID)
	if err != nil {
		if errors.Is(err, directory.ErrGroupNotFound) {
			g.logger.Warn("Group call for unknown group", slog.String("groupID", p.GroupID), slog.String("callerID", callerID))
		} else {
			g.logger.Error("Error starting group call", slog.String("groupID", p.GroupID), slog.Any("error", err))
		}
		return nil
	}

	targets := lo.Uniq(lo.Without(group.Members, callerID))
	notice := IncomingGroupCall{
		GroupID:    p.GroupID,
		CallerName: p.CallerName,
		CallerID:   callerID,
		GroupName:  group.Name,
	}
	rung, _ := g.bus.EmitToUsers(targets, EventIncomingGroupCall, notice)

	g.logger.Debug("Group call fan-out",
		slog.String("groupID", p.GroupID),
		slog.Int("members", len(group.Members)),
		slog.Int("rung", len(rung)),
	)
	return rung
}
