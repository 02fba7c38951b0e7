package store

import (
	"context"
	"sync"

	"github.com/kelindar/objectstore/internal/ids"
)

// Counters is the eventually-consistent per-bucket counter row the real
// system filters to the current ring (spec.md §4.4.3); here it is just
// the two running totals, updated as uploads complete.
type Counters struct {
	Objects int64
	Bytes   int64
}

// CounterTable is the `bucket_id -> {OBJECTS, BYTES}` counter table used
// for soft quota enforcement.
type CounterTable struct {
	mu   sync.Mutex
	rows map[ids.Uuid]Counters
}

// NewCounterTable returns an empty CounterTable.
func NewCounterTable() *CounterTable {
	return &CounterTable{rows: make(map[ids.Uuid]Counters)}
}

// Get returns the current counters for bucketID (zero value if none
// recorded yet).
func (t *CounterTable) Get(ctx context.Context, bucketID ids.Uuid) (Counters, error) {
	if err := ctx.Err(); err != nil {
		return Counters{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rows[bucketID], nil
}

// Apply adds (objDiff, sizeDiff) to bucketID's running totals. Diffs may
// be negative (shrinking writes, deletes).
func (t *CounterTable) Apply(ctx context.Context, bucketID ids.Uuid, objDiff, sizeDiff int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.rows[bucketID]
	c.Objects += objDiff
	c.Bytes += sizeDiff
	t.rows[bucketID] = c
	return nil
}
