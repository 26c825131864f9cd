// Package directory resolves group membership for group-call fan-out.
//
// The core only reads from it; snapshots are fetched per call and never cached.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/a-essam23/go-pulse/pkg/config"
)

//go:generate mockgen -destination=mocks/mock_directory.go -package=mocks . Directory

var ErrGroupNotFound = errors.New("group not found")

type Group struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Image   string   `json:"groupImage,omitempty"`
	Admin   string   `json:"admin,omitempty"`
	Members []string `json:"members"`
}

type Directory interface {
	FindGroupByID(ctx context.Context, groupID string) (*Group, error)
}

// Store is a Directory that can also be written, used for seeding.
type Store interface {
	Directory
	PutGroup(ctx context.Context, g *Group) error
	Close() error
}

// Open builds the store selected by cfg.Driver and loads cfg.Seed into it.
func Open(ctx context.Context, logger *slog.Logger, cfg config.DirectoryConfig) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Driver {
	case "", "memory":
		store = NewMemoryDirectory()
	case "sqlite":
		store, err = OpenSQLite(ctx, cfg.Path)
	case "badger":
		store, err = OpenBadger(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown directory driver '%s'", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s directory: %w", cfg.Driver, err)
	}

	for _, g := range cfg.Seed {
		group := &Group{ID: g.ID, Name: g.Name, Image: g.Image, Admin: g.Admin, Members: g.Members}
		if err := store.PutGroup(ctx, group); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to seed group '%s': %w", g.ID, err)
		}
	}
	logger.Info("Group directory ready", slog.String("driver", cfg.Driver), slog.Int("seeded", len(cfg.Seed)))
	return store, nil
}

func validate(g *Group) error {
	if g == nil || g.ID == "" {
		return errors.New("group id is required")
	}
	if g.Name == "" {
		return fmt.Errorf("group '%s' has no name", g.ID)
	}
	return nil
}
