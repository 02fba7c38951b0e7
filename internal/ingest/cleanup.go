package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kelindar/objectstore/internal/ids"
	"github.com/kelindar/objectstore/internal/store"
)

// cleanupHandle is the Go stand-in for the Rust Drop-trait guard from
// spec.md §4.4.4: it owns the identity of an in-flight version and, if
// released without being cancelled, spawns a detached goroutine marking
// the version Aborted. Cancel it once the version reaches a terminal
// Complete state.
type cleanupHandle struct {
	objects   *store.ObjectTable
	bucketID  ids.Uuid
	key       string
	versionID ids.Uuid
	timestamp uint64

	cancelled bool
}

// newCleanup installs a cleanup handle for the given in-flight version.
// Call Cancel once the upload completes successfully; call Release (or
// let the handle go out of scope via a deferred Release) on every other
// exit path, including panics recovered upstream.
func newCleanup(objects *store.ObjectTable, bucketID ids.Uuid, key string, versionID ids.Uuid, timestamp uint64) *cleanupHandle {
	return &cleanupHandle{
		objects:   objects,
		bucketID:  bucketID,
		key:       key,
		versionID: versionID,
		timestamp: timestamp,
	}
}

// Cancel marks the handle as no longer needing cleanup, i.e. the upload
// reached a terminal Complete state on its own.
func (c *cleanupHandle) Cancel() {
	c.cancelled = true
}

// Release runs the cleanup action if the handle was not cancelled. It is
// safe to call unconditionally via defer; it is a no-op after Cancel.
func (c *cleanupHandle) Release() {
	if c.cancelled {
		return
	}
	c.cancelled = true // Release is idempotent

	objects, bucketID, key, versionID, timestamp := c.objects, c.bucketID, c.key, c.versionID, c.timestamp
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		aborted := store.NewObject(bucketID, key, store.ObjectVersion{
			UUID:      versionID,
			Timestamp: timestamp,
			State:     store.StateAborted,
		})
		if err := objects.Insert(ctx, aborted); err != nil {
			log.Error().
				Err(err).
				Str("bucket_id", bucketID.String()).
				Str("key", key).
				Str("version_id", versionID.String()).
				Msg("scoped cleanup: failed to mark version aborted")
		}
	}()
}
