package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS _groups (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	image      TEXT NOT NULL DEFAULT '',
	admin      TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE TABLE IF NOT EXISTS _group_members (
	group_id TEXT NOT NULL REFERENCES _groups(id) ON DELETE CASCADE,
	user_id  TEXT NOT NULL,
	position INTEGER NOT NULL,
	PRIMARY KEY (group_id, user_id)
);
`

// SQLiteDirectory keeps groups in a local SQLite file.
type SQLiteDirectory struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ Store = (*SQLiteDirectory)(nil)

// OpenSQLite opens or creates the database at path. ":memory:" is accepted.
func OpenSQLite(ctx context.Context, path string) (*SQLiteDirectory, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create directory dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// a single connection keeps ":memory:" databases alive and serialises writers
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `
		PRAGMA foreign_keys = ON;
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteDirectory{db: db}, nil
}

func (d *SQLiteDirectory) FindGroupByID(ctx context.Context, groupID string) (*Group, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	g := &Group{ID: groupID}
	err := d.db.QueryRowContext(ctx,
		`SELECT name, image, admin FROM _groups WHERE id = ?`, groupID,
	).Scan(&g.Name, &g.Image, &g.Admin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find group: %w", err)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT user_id FROM _group_members WHERE group_id = ? ORDER BY position`, groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		g.Members = append(g.Members, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return g, nil
}

// PutGroup inserts or replaces a group and its member list.
func (d *SQLiteDirectory) PutGroup(ctx context.Context, g *Group) error {
	if err := validate(g); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO _groups (id, name, image, admin) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, image = excluded.image, admin = excluded.admin`,
		g.ID, g.Name, g.Image, g.Admin,
	); err != nil {
		return fmt.Errorf("upsert group: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM _group_members WHERE group_id = ?`, g.ID); err != nil {
		return fmt.Errorf("clear members: %w", err)
	}
	for i, userID := range g.Members {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO _group_members (group_id, user_id, position) VALUES (?, ?, ?)`,
			g.ID, userID, i,
		); err != nil {
			return fmt.Errorf("insert member: %w", err)
		}
	}
	return tx.Commit()
}

func (d *SQLiteDirectory) Close() error {
	return d.db.Close()
}
