// Package blockstore stands in for the external block-storage RPC layer
// that spec.md assumes: `put_block(hash, bytes)`, idempotent on hash.
// The real system fans this out over the network to storage nodes; this
// package provides the interface the ingestion core depends on plus an
// in-memory implementation suitable for a single-process deployment and
// for tests.
package blockstore

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/kelindar/objectstore/internal/ids"
)

// Store is the contract the ingestion core needs from the block-storage
// RPC layer: content-addressed, idempotent writes.
type Store interface {
	// Put stores data under hash. Calling Put twice with the same hash
	// (even with different bytes, which should never happen for a
	// correct caller) is a no-op on the second call.
	Put(ctx context.Context, hash ids.Hash, data []byte) error
	// Get returns the bytes previously stored under hash.
	Get(ctx context.Context, hash ids.Hash) ([]byte, error)
}

// ErrNotFound is returned by Get when no block is stored under the given
// hash.
var ErrNotFound = errors.New("blockstore: block not found")

// Memory is an in-process Store, keyed by content hash.
type Memory struct {
	mu     sync.RWMutex
	blocks map[ids.Hash][]byte
}

// NewMemory returns an empty in-memory block store.
func NewMemory() *Memory {
	return &Memory{blocks: make(map[ids.Hash][]byte)}
}

// Put implements Store.
func (m *Memory) Put(ctx context.Context, hash ids.Hash, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.blocks[hash]; exists {
		// idempotent: the existing bytes are already correct, since the
		// hash is a content address.
		return nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.blocks[hash] = cp
	return nil
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, hash ids.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blocks[hash]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}
