package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

const groupKeyPrefix = "group:"

// BadgerDirectory stores each group as a JSON document keyed by id.
type BadgerDirectory struct {
	db *badger.DB
}

var _ Store = (*BadgerDirectory)(nil)

// OpenBadger opens the store at path; an empty path runs in memory.
func OpenBadger(path string) (*BadgerDirectory, error) {
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING)
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.WARNING)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerDirectory{db: db}, nil
}

func groupKey(id string) []byte {
	return []byte(groupKeyPrefix + id)
}

func (d *BadgerDirectory) FindGroupByID(ctx context.Context, groupID string) (*Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var g Group
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(groupKey(groupID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &g)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find group: %w", err)
	}
	return &g, nil
}

func (d *BadgerDirectory) PutGroup(ctx context.Context, g *Group) error {
	if err := validate(g); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	val, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal group: %w", err)
	}
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(groupKey(g.ID), val)
	})
}

func (d *BadgerDirectory) Close() error {
	return d.db.Close()
}
