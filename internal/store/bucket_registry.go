package store

import (
	"context"
	"sync"

	"github.com/kelindar/objectstore/internal/ids"
)

// BucketRegistry is a minimal stand-in for the bucket administration
// surface (create/delete bucket, set quotas, manage keys), which is out
// of scope for the ingestion core per spec.md §1. It exists only so the
// core has somewhere to read a bucket's quotas from.
type BucketRegistry struct {
	mu   sync.RWMutex
	rows map[ids.Uuid]Bucket
}

// NewBucketRegistry returns an empty registry.
func NewBucketRegistry() *BucketRegistry {
	return &BucketRegistry{rows: make(map[ids.Uuid]Bucket)}
}

// Put registers (or replaces) a bucket's state.
func (r *BucketRegistry) Put(bucket Bucket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[bucket.ID] = bucket
}

// Get returns the bucket registered under id, if any.
func (r *BucketRegistry) Get(ctx context.Context, id ids.Uuid) (Bucket, error) {
	if err := ctx.Err(); err != nil {
		return Bucket{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	bucket, ok := r.rows[id]
	if !ok {
		return Bucket{ID: id}, nil
	}
	return bucket, nil
}
