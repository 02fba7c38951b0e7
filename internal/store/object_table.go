package store

import (
	"context"
	"sync"

	"github.com/kelindar/objectstore/internal/ids"
)

type objectKey struct {
	bucketID ids.Uuid
	key      string
}

// ObjectTable is the `(bucket_id, key) -> Object` table from spec.md §3.
type ObjectTable struct {
	mu   sync.Mutex
	rows map[objectKey]*Object
}

// NewObjectTable returns an empty ObjectTable.
func NewObjectTable() *ObjectTable {
	return &ObjectTable{rows: make(map[objectKey]*Object)}
}

// Get returns the current row for (bucketID, key), or nil if absent.
func (t *ObjectTable) Get(ctx context.Context, bucketID ids.Uuid, key string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	row, ok := t.rows[objectKey{bucketID, key}]
	if !ok {
		return nil, nil
	}
	return row.Merge(NewObject(bucketID, key)), nil // defensive copy
}

// Insert merges obj into the table row for (obj.BucketID, obj.Key),
// applying the CRDT merge described on Object.Merge.
func (t *ObjectTable) Insert(ctx context.Context, obj *Object) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	k := objectKey{obj.BucketID, obj.Key}
	existing, ok := t.rows[k]
	if !ok {
		t.rows[k] = obj.Merge(NewObject(obj.BucketID, obj.Key))
		return nil
	}
	t.rows[k] = existing.Merge(obj)
	return nil
}
