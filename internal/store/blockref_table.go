package store

import (
	"context"
	"sync"

	"github.com/kelindar/objectstore/internal/ids"
)

type blockRefKey struct {
	block   ids.Hash
	version ids.Uuid
}

// BlockRefTable is the `(block_hash, version_uuid) -> {deleted}` table
// from spec.md §3, consumed by the (external, unmodeled) garbage
// collector.
type BlockRefTable struct {
	mu   sync.Mutex
	rows map[blockRefKey]BlockRef
}

// NewBlockRefTable returns an empty BlockRefTable.
func NewBlockRefTable() *BlockRefTable {
	return &BlockRefTable{rows: make(map[blockRefKey]BlockRef)}
}

// Insert merges ref into the table, applying BlockRef.Merge.
func (t *BlockRefTable) Insert(ctx context.Context, ref BlockRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	k := blockRefKey{ref.Block, ref.Version}
	if existing, ok := t.rows[k]; ok {
		t.rows[k] = existing.Merge(ref)
		return nil
	}
	t.rows[k] = ref
	return nil
}

// Get returns the current row for (block, version), and whether it exists.
func (t *BlockRefTable) Get(ctx context.Context, block ids.Hash, version ids.Uuid) (BlockRef, bool, error) {
	if err := ctx.Err(); err != nil {
		return BlockRef{}, false, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	row, ok := t.rows[blockRefKey{block, version}]
	return row, ok, nil
}

// ReferrersOf returns every live (non-deleted) BlockRef for the given
// block hash, across all versions — the query the garbage collector
// would run before reclaiming a block.
func (t *BlockRefTable) ReferrersOf(block ids.Hash) []BlockRef {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []BlockRef
	for k, row := range t.rows {
		if k.block == block && !row.Deleted {
			out = append(out, row)
		}
	}
	return out
}
