package ingest

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/kelindar/objectstore/internal/apierr"
	"github.com/kelindar/objectstore/internal/ids"
	"github.com/kelindar/objectstore/internal/store"
)

// logCounterFailure logs a best-effort counter update failure; counters
// are eventually consistent per §4.4.3 and never block the caller.
func logCounterFailure(bucketID ids.Uuid, err error) {
	log.Error().Err(err).Str("bucket_id", bucketID.String()).Msg("failed to apply quota counter update")
}

// checkQuota implements §4.4.3: a best-effort, eventually-consistent
// soft quota check against the bucket's counter row. prevObjects and
// prevSize are the counts the key previously contributed (0 if this is
// a new key); newSize is the size of the object the write would leave
// in place of the previous one, so the size diff is newSize - prevSize.
// Shrinking writes (non-positive diffs) are never blocked.
func checkQuota(ctx context.Context, counters *store.CounterTable, bucket store.Bucket, prevObjects, prevSize int64, newSize uint64) error {
	if bucket.State == nil {
		return nil
	}
	quotas := bucket.State.Quotas
	if quotas.MaxObjects == nil && quotas.MaxSize == nil {
		return nil
	}

	current, err := counters.Get(ctx, bucket.ID)
	if err != nil {
		return apierr.Wrap(apierr.ServiceUnavailable, "could not read bucket counters", err)
	}

	objDiff := 1 - prevObjects
	sizeDiff := int64(newSize) - prevSize

	if quotas.MaxObjects != nil && objDiff > 0 {
		if current.Objects+objDiff > int64(*quotas.MaxObjects) {
			return apierr.New(apierr.Forbidden, "bucket object count quota exceeded")
		}
	}
	if quotas.MaxSize != nil && sizeDiff > 0 {
		if current.Bytes+sizeDiff > int64(*quotas.MaxSize) {
			return apierr.New(apierr.Forbidden, "bucket size quota exceeded")
		}
	}
	return nil
}

// applyQuotaDiff records the counter delta a completed write introduces.
// Errors here are logged by the caller, not propagated: counters are
// best-effort per §4.4.3.
func applyQuotaDiff(ctx context.Context, counters *store.CounterTable, bucketID ids.Uuid, prevObjects, prevSize int64, newSize uint64) error {
	objDiff := 1 - prevObjects
	sizeDiff := int64(newSize) - prevSize
	if objDiff == 0 && sizeDiff == 0 {
		return nil
	}
	return counters.Apply(ctx, bucketID, objDiff, sizeDiff)
}
