// Package ingest implements the object lifecycle controller (C4) and
// multipart coordinator (C5): the two components that orchestrate the
// stream chunker, async hasher, and block writer into the PUT and
// multipart upload operations.
package ingest

import (
	"context"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kelindar/objectstore/internal/apierr"
	"github.com/kelindar/objectstore/internal/blockstore"
	"github.com/kelindar/objectstore/internal/chunk"
	"github.com/kelindar/objectstore/internal/config"
	"github.com/kelindar/objectstore/internal/hashpipe"
	"github.com/kelindar/objectstore/internal/ids"
	"github.com/kelindar/objectstore/internal/store"
)

// BucketLookup is the contract the core needs from the bucket
// administration surface: read-only access to a bucket's quotas.
type BucketLookup interface {
	Get(ctx context.Context, bucketID ids.Uuid) (store.Bucket, error)
}

// Lifecycle is the object lifecycle controller (C4).
type Lifecycle struct {
	cfg       config.Ingest
	objects   *store.ObjectTable
	versions  *store.VersionTable
	blockrefs *store.BlockRefTable
	counters  *store.CounterTable
	buckets   BucketLookup
	writer    *BlockWriter
}

// NewLifecycle constructs a Lifecycle over its collaborators.
func NewLifecycle(cfg config.Ingest, blocks blockstore.Store, objects *store.ObjectTable, versions *store.VersionTable, blockrefs *store.BlockRefTable, counters *store.CounterTable, buckets BucketLookup) *Lifecycle {
	return &Lifecycle{
		cfg:       cfg,
		objects:   objects,
		versions:  versions,
		blockrefs: blockrefs,
		counters:  counters,
		buckets:   buckets,
		writer:    NewBlockWriter(blocks, versions, blockrefs),
	}
}

// PutRequest is the input to a single-object PUT (§4.4.1).
type PutRequest struct {
	BucketID  ids.Uuid
	Key       string
	Headers   store.Headers
	Body      io.Reader
	Checksums Checksums
}

// PutResult is returned on a successful PUT.
type PutResult struct {
	VersionID ids.Uuid
	ETag      string
}

// nowMillis returns the current time as Unix milliseconds, the clock
// source for version timestamps.
func nowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}

// PutObject implements §4.4.1: it chooses between the inline fast path
// and the streaming path based on the size of the first chunk, and
// returns the new version's id and ETag on success.
func (l *Lifecycle) PutObject(ctx context.Context, req PutRequest) (PutResult, error) {
	chunker := chunk.New(req.Body, l.cfg.BlockSize)

	var existing *store.Object
	var firstBlock []byte
	{
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			existing, err = l.objects.Get(gctx, req.BucketID, req.Key)
			return err
		})
		g.Go(func() error {
			var err error
			firstBlock, err = chunker.Next(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return PutResult{}, apierr.Wrap(apierr.InternalError, "failed to prepare upload", err)
		}
	}

	versionUUID := ids.NewUuid()
	versionTimestamp := nowMillis()
	var prevObjects, prevSize int64
	if existing != nil {
		if maxTs := existing.MaxTimestamp(); maxTs+1 > versionTimestamp {
			versionTimestamp = maxTs + 1
		}
		prevObjects, prevSize = existing.LiveCounts()
	}

	if len(firstBlock) < l.cfg.InlineThreshold {
		return l.putInline(ctx, req, versionUUID, versionTimestamp, prevObjects, prevSize, firstBlock)
	}
	return l.putStreaming(ctx, req, chunker, versionUUID, versionTimestamp, prevObjects, prevSize, firstBlock)
}

func (l *Lifecycle) putInline(ctx context.Context, req PutRequest, versionUUID ids.Uuid, versionTimestamp uint64, prevObjects, prevSize int64, firstBlock []byte) (PutResult, error) {
	hashes := hashpipe.NewTriple()
	if err := hashes.UpdateFirstBlock(ctx, firstBlock); err != nil {
		return PutResult{}, apierr.Wrap(apierr.InternalError, "hashing failed", err)
	}
	md5sum := hashes.FinalizeMD5()
	sha256sum := hashes.FinalizeSHA256()
	if err := req.Checksums.Validate(md5sum, sha256sum); err != nil {
		return PutResult{}, err
	}

	size := uint64(len(firstBlock))
	if err := l.checkQuota(ctx, req.BucketID, prevObjects, prevSize, size); err != nil {
		return PutResult{}, err
	}

	etag := md5Hex(md5sum)
	obj := store.NewObject(req.BucketID, req.Key, store.ObjectVersion{
		UUID:      versionUUID,
		Timestamp: versionTimestamp,
		State:     store.StateComplete,
		Data: store.ObjectVersionData{
			Kind:        store.DataInline,
			Meta:        store.ObjectVersionMeta{Headers: req.Headers, Size: size, ETag: etag},
			InlineBytes: firstBlock,
		},
	})
	if err := l.objects.Insert(ctx, obj); err != nil {
		return PutResult{}, apierr.Wrap(apierr.InternalError, "failed to write object row", err)
	}
	l.applyQuotaDiffBestEffort(ctx, req.BucketID, prevObjects, prevSize, size)

	return PutResult{VersionID: versionUUID, ETag: etag}, nil
}

func (l *Lifecycle) putStreaming(ctx context.Context, req PutRequest, chunker *chunk.Chunker, versionUUID ids.Uuid, versionTimestamp uint64, prevObjects, prevSize int64, firstBlock []byte) (PutResult, error) {
	uploading := store.NewObject(req.BucketID, req.Key, store.ObjectVersion{
		UUID:             versionUUID,
		Timestamp:        versionTimestamp,
		State:            store.StateUploading,
		UploadingHeaders: req.Headers,
	})
	if err := l.objects.Insert(ctx, uploading); err != nil {
		return PutResult{}, apierr.Wrap(apierr.InternalError, "failed to reserve upload", err)
	}
	if err := l.versions.Insert(ctx, store.NewVersion(versionUUID, req.BucketID, req.Key, false)); err != nil {
		return PutResult{}, apierr.Wrap(apierr.InternalError, "failed to reserve version row", err)
	}

	cleanup := newCleanup(l.objects, req.BucketID, req.Key, versionUUID, versionTimestamp)
	defer cleanup.Release()

	firstBlockHash := ids.SumBlake2b256(firstBlock)
	hashes := hashpipe.NewTriple()
	if err := hashes.UpdateFirstBlock(ctx, firstBlock); err != nil {
		return PutResult{}, apierr.Wrap(apierr.InternalError, "hashing failed", err)
	}

	totalSize, err := l.writer.Run(ctx, chunker, hashes, versionUUID, req.BucketID, req.Key, singlePutPartNumber, firstBlock, firstBlockHash)
	if err != nil {
		return PutResult{}, err
	}

	md5sum := hashes.FinalizeMD5()
	sha256sum := hashes.FinalizeSHA256()
	if err := req.Checksums.Validate(md5sum, sha256sum); err != nil {
		return PutResult{}, err
	}
	if err := l.checkQuota(ctx, req.BucketID, prevObjects, prevSize, totalSize); err != nil {
		return PutResult{}, err
	}

	etag := md5Hex(md5sum)
	completed := store.NewObject(req.BucketID, req.Key, store.ObjectVersion{
		UUID:      versionUUID,
		Timestamp: versionTimestamp,
		State:     store.StateComplete,
		Data: store.ObjectVersionData{
			Kind:           store.DataFirstBlock,
			Meta:           store.ObjectVersionMeta{Headers: req.Headers, Size: totalSize, ETag: etag},
			FirstBlockHash: firstBlockHash,
		},
	})
	if err := l.objects.Insert(ctx, completed); err != nil {
		return PutResult{}, apierr.Wrap(apierr.InternalError, "failed to write completed object row", err)
	}
	cleanup.Cancel()
	l.applyQuotaDiffBestEffort(ctx, req.BucketID, prevObjects, prevSize, totalSize)

	return PutResult{VersionID: versionUUID, ETag: etag}, nil
}

func (l *Lifecycle) checkQuota(ctx context.Context, bucketID ids.Uuid, prevObjects, prevSize int64, newSize uint64) error {
	bucket, err := l.buckets.Get(ctx, bucketID)
	if err != nil {
		return apierr.Wrap(apierr.ServiceUnavailable, "could not read bucket", err)
	}
	return checkQuota(ctx, l.counters, bucket, prevObjects, prevSize, newSize)
}

func (l *Lifecycle) applyQuotaDiffBestEffort(ctx context.Context, bucketID ids.Uuid, prevObjects, prevSize int64, newSize uint64) {
	if err := applyQuotaDiff(ctx, l.counters, bucketID, prevObjects, prevSize, newSize); err != nil {
		logCounterFailure(bucketID, err)
	}
}
