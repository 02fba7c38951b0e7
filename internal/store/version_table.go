package store

import (
	"context"
	"sync"

	"github.com/kelindar/objectstore/internal/ids"
)

// VersionTable is the `(uuid, EmptyKey) -> Version` table from spec.md §3.
type VersionTable struct {
	mu   sync.Mutex
	rows map[ids.Uuid]*Version
}

// NewVersionTable returns an empty VersionTable.
func NewVersionTable() *VersionTable {
	return &VersionTable{rows: make(map[ids.Uuid]*Version)}
}

// Get returns the current row for uuid, or nil if absent.
func (t *VersionTable) Get(ctx context.Context, uuid ids.Uuid) (*Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	row, ok := t.rows[uuid]
	if !ok {
		return nil, nil
	}
	return row.Clone(), nil
}

// Insert merges v into the table row for v.UUID.
func (t *VersionTable) Insert(ctx context.Context, v *Version) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	existing, ok := t.rows[v.UUID]
	if !ok {
		t.rows[v.UUID] = v.Clone()
		return nil
	}
	t.rows[v.UUID] = existing.Merge(v)
	return nil
}
