package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/a-essam23/go-pulse/internal/directory"
	"github.com/a-essam23/go-pulse/pkg/config"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// Badger locks its directory, so reopening only succeeds if run closed it.
func reopen(t *testing.T, cfg config.DirectoryConfig) {
	t.Helper()
	store, err := directory.Open(context.Background(), discardLogger(), cfg)
	require.NoError(t, err, "directory left open")
	require.NoError(t, store.Close())
}

func TestRun_ClosesDirectoryWhenAppFails(t *testing.T) {
	dirCfg := config.DirectoryConfig{Driver: "badger", Path: filepath.Join(t.TempDir(), "groups")}
	cfg := &config.Config{
		Server:    config.ServerConfig{Address: "127.0.0.1:0"},
		Presence:  config.PresenceConfig{DuplicatePolicy: config.DuplicateOverwrite},
		Directory: dirCfg,
		Events: map[string]config.EventConfig{
			"typing": {Modifiers: []config.ModifierConfig{{Name: "teleport"}}},
		},
	}

	err := run(context.Background(), discardLogger(), cfg)
	require.ErrorContains(t, err, "teleport")
	reopen(t, dirCfg)
}

func TestRun_ClosesDirectoryOnShutdown(t *testing.T) {
	dirCfg := config.DirectoryConfig{Driver: "badger", Path: filepath.Join(t.TempDir(), "groups")}
	cfg := &config.Config{
		Server:    config.ServerConfig{Address: "127.0.0.1:0"},
		Presence:  config.PresenceConfig{DuplicatePolicy: config.DuplicateOverwrite},
		Directory: dirCfg,
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, run(ctx, discardLogger(), cfg))
	reopen(t, dirCfg)
}
