package directory

import (
	"context"
	"slices"
	"sync"
)

type MemoryDirectory struct {
	mu     sync.RWMutex
	groups map[string]Group
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{groups: make(map[string]Group)}
}

var _ Store = (*MemoryDirectory)(nil)

func (d *MemoryDirectory) FindGroupByID(_ context.Context, groupID string) (*Group, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.groups[groupID]
	if !ok {
		return nil, ErrGroupNotFound
	}
	g.Members = slices.Clone(g.Members)
	return &g, nil
}

func (d *MemoryDirectory) PutGroup(_ context.Context, g *Group) error {
	if err := validate(g); err != nil {
		return err
	}
	stored := *g
	stored.Members = slices.Clone(g.Members)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.groups[g.ID] = stored
	return nil
}

func (d *MemoryDirectory) Close() error { return nil }
