package ingest

import (
	"context"
	"crypto/md5"
	"io"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/kelindar/objectstore/internal/apierr"
	"github.com/kelindar/objectstore/internal/blockstore"
	"github.com/kelindar/objectstore/internal/chunk"
	"github.com/kelindar/objectstore/internal/config"
	"github.com/kelindar/objectstore/internal/hashpipe"
	"github.com/kelindar/objectstore/internal/ids"
	"github.com/kelindar/objectstore/internal/store"
)

// Multipart is the multipart coordinator (C5).
type Multipart struct {
	cfg       config.Ingest
	objects   *store.ObjectTable
	versions  *store.VersionTable
	blockrefs *store.BlockRefTable
	counters  *store.CounterTable
	buckets   BucketLookup
	writer    *BlockWriter
}

// NewMultipart constructs a Multipart coordinator over its collaborators.
func NewMultipart(cfg config.Ingest, blocks blockstore.Store, objects *store.ObjectTable, versions *store.VersionTable, blockrefs *store.BlockRefTable, counters *store.CounterTable, buckets BucketLookup) *Multipart {
	return &Multipart{
		cfg:       cfg,
		objects:   objects,
		versions:  versions,
		blockrefs: blockrefs,
		counters:  counters,
		buckets:   buckets,
		writer:    NewBlockWriter(blocks, versions, blockrefs),
	}
}

// Create implements CreateMultipartUpload: it reserves an Uploading
// version and returns its id, which doubles as the upload id.
func (m *Multipart) Create(ctx context.Context, bucketID ids.Uuid, key string, headers store.Headers) (ids.Uuid, error) {
	uploadID := ids.NewUuid()
	obj := store.NewObject(bucketID, key, store.ObjectVersion{
		UUID:             uploadID,
		Timestamp:        nowMillis(),
		State:            store.StateUploading,
		UploadingHeaders: headers,
	})
	if err := m.objects.Insert(ctx, obj); err != nil {
		return ids.Uuid{}, apierr.Wrap(apierr.InternalError, "failed to reserve multipart upload", err)
	}
	if err := m.versions.Insert(ctx, store.NewVersion(uploadID, bucketID, key, false)); err != nil {
		return ids.Uuid{}, apierr.Wrap(apierr.InternalError, "failed to reserve version row", err)
	}
	return uploadID, nil
}

// PutPart implements PutPart: §4.5 steps 1-6.
func (m *Multipart) PutPart(ctx context.Context, bucketID ids.Uuid, key string, uploadID ids.Uuid, partNumber uint64, body io.Reader, checksums Checksums) (string, error) {
	chunker := chunk.New(body, m.cfg.BlockSize)

	var object *store.Object
	var version *store.Version
	var firstBlock []byte
	{
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			object, err = m.objects.Get(gctx, bucketID, key)
			return err
		})
		g.Go(func() error {
			var err error
			version, err = m.versions.Get(gctx, uploadID)
			return err
		})
		g.Go(func() error {
			var err error
			firstBlock, err = chunker.Next(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return "", apierr.Wrap(apierr.InternalError, "failed to prepare part upload", err)
		}
	}

	if len(firstBlock) == 0 {
		return "", apierr.New(apierr.BadRequest, "Empty body")
	}
	if object == nil {
		return "", apierr.New(apierr.NoSuchUpload, "no such upload")
	}
	if _, ok := object.FindUploading(uploadID); !ok {
		return "", apierr.New(apierr.NoSuchUpload, "no such upload")
	}
	if version != nil && version.HasPartNumber(partNumber) {
		return "", apierr.Newf(apierr.BadRequest, "Part %d already uploaded", partNumber)
	}

	firstBlockHash := ids.SumBlake2b256(firstBlock)
	hashes := hashpipe.NewTriple()
	if err := hashes.UpdateFirstBlock(ctx, firstBlock); err != nil {
		return "", apierr.Wrap(apierr.InternalError, "hashing failed", err)
	}

	if _, err := m.writer.Run(ctx, chunker, hashes, uploadID, bucketID, key, partNumber, firstBlock, firstBlockHash); err != nil {
		return "", err
	}

	md5sum := hashes.FinalizeMD5()
	sha256sum := hashes.FinalizeSHA256()
	if err := checksums.Validate(md5sum, sha256sum); err != nil {
		return "", err
	}

	etag := md5Hex(md5sum)
	v := store.NewVersion(uploadID, bucketID, key, false)
	v.PartsEtags[partNumber] = etag
	if err := m.versions.Insert(ctx, v); err != nil {
		return "", apierr.Wrap(apierr.InternalError, "failed to record part etag", err)
	}
	return etag, nil
}

// PartInput is one `{PartNumber, ETag}` pair from a
// CompleteMultipartUpload request body.
type PartInput struct {
	PartNumber uint64
	ETag       string
}

// CompleteResult is returned on a successful CompleteMultipartUpload.
type CompleteResult struct {
	ETag      string
	TotalSize uint64
}

// Complete implements CompleteMultipartUpload: §4.5 steps 1-6.
func (m *Multipart) Complete(ctx context.Context, bucketID ids.Uuid, key string, uploadID ids.Uuid, parts []PartInput) (CompleteResult, error) {
	if len(parts) == 0 {
		return CompleteResult{}, apierr.New(apierr.EntityTooSmall, "CompleteMultipartUpload requires at least one part")
	}
	for i := 1; i < len(parts); i++ {
		if parts[i].PartNumber <= parts[i-1].PartNumber {
			return CompleteResult{}, apierr.New(apierr.InvalidPartOrder, "part numbers must be strictly increasing")
		}
	}
	for i, p := range parts {
		if p.PartNumber != uint64(i+1) {
			return CompleteResult{}, apierr.New(apierr.NotImplemented, "non-consecutive part numbers are not supported")
		}
	}

	object, err := m.objects.Get(ctx, bucketID, key)
	if err != nil {
		return CompleteResult{}, apierr.Wrap(apierr.InternalError, "failed to read object", err)
	}
	if object == nil {
		return CompleteResult{}, apierr.New(apierr.NotFound, "no such key")
	}
	uploading, ok := object.FindUploading(uploadID)
	if !ok {
		return CompleteResult{}, apierr.New(apierr.NoSuchUpload, "no such upload")
	}

	version, err := m.versions.Get(ctx, uploadID)
	if err != nil {
		return CompleteResult{}, apierr.Wrap(apierr.InternalError, "failed to read version row", err)
	}
	if version == nil {
		return CompleteResult{}, apierr.New(apierr.NoSuchUpload, "no such upload")
	}

	// The (part_number, etag) pair-sequence must equal exactly the
	// stored parts_etags sequence.
	if len(version.PartsEtags) != len(parts) {
		return CompleteResult{}, apierr.New(apierr.InvalidPart, "part set does not match stored parts")
	}
	for _, p := range parts {
		stored, ok := version.PartsEtags[p.PartNumber]
		if !ok || stored != trimQuotes(p.ETag) {
			return CompleteResult{}, apierr.New(apierr.InvalidPart, "part etag does not match stored etag")
		}
	}

	// Separately, the distinct part numbers recorded in the block
	// catalog must equal the set named in the request.
	blockParts := version.PartNumbers()
	if len(blockParts) != len(parts) {
		return CompleteResult{}, apierr.New(apierr.BadRequest, "Part numbers in block list and part list do not match")
	}
	for i, p := range parts {
		if blockParts[i] != p.PartNumber {
			return CompleteResult{}, apierr.New(apierr.BadRequest, "Part numbers in block list and part list do not match")
		}
	}

	totalSize := version.TotalSize()

	bucket, err := m.buckets.Get(ctx, bucketID)
	if err != nil {
		return CompleteResult{}, apierr.Wrap(apierr.ServiceUnavailable, "could not read bucket", err)
	}
	prevObjects, prevSize := object.LiveCounts()
	if qErr := checkQuota(ctx, m.counters, bucket, prevObjects, prevSize, totalSize); qErr != nil {
		m.abortLocked(ctx, bucketID, key, uploadID, uploading.Timestamp)
		return CompleteResult{}, qErr
	}

	firstBlockHash := version.Blocks[store.VersionBlockKey{PartNumber: parts[0].PartNumber, Offset: 0}].Hash

	etag := aggregateETag(parts)
	completed := store.NewObject(bucketID, key, store.ObjectVersion{
		UUID:      uploadID,
		Timestamp: uploading.Timestamp,
		State:     store.StateComplete,
		Data: store.ObjectVersionData{
			Kind:           store.DataFirstBlock,
			Meta:           store.ObjectVersionMeta{Headers: uploading.UploadingHeaders, Size: totalSize, ETag: etag},
			FirstBlockHash: firstBlockHash,
		},
	})
	if err := m.objects.Insert(ctx, completed); err != nil {
		return CompleteResult{}, apierr.Wrap(apierr.InternalError, "failed to write completed object row", err)
	}

	if err := applyQuotaDiff(ctx, m.counters, bucketID, prevObjects, prevSize, totalSize); err != nil {
		logCounterFailure(bucketID, err)
	}

	return CompleteResult{ETag: etag, TotalSize: totalSize}, nil
}

// Abort implements AbortMultipartUpload.
func (m *Multipart) Abort(ctx context.Context, bucketID ids.Uuid, key string, uploadID ids.Uuid) error {
	object, err := m.objects.Get(ctx, bucketID, key)
	if err != nil {
		return apierr.Wrap(apierr.InternalError, "failed to read object", err)
	}
	if object == nil {
		return apierr.New(apierr.NoSuchUpload, "no such upload")
	}
	uploading, ok := object.FindUploading(uploadID)
	if !ok {
		return apierr.New(apierr.NoSuchUpload, "no such upload")
	}
	return m.abortLocked(ctx, bucketID, key, uploadID, uploading.Timestamp)
}

func (m *Multipart) abortLocked(ctx context.Context, bucketID ids.Uuid, key string, uploadID ids.Uuid, timestamp uint64) error {
	aborted := store.NewObject(bucketID, key, store.ObjectVersion{
		UUID:      uploadID,
		Timestamp: timestamp,
		State:     store.StateAborted,
	})
	if err := m.objects.Insert(ctx, aborted); err != nil {
		return apierr.Wrap(apierr.InternalError, "failed to abort upload", err)
	}
	return nil
}

// aggregateETag computes the multipart ETag: hex(md5(concat(part etag
// hex-string bytes in order))) + "-" + num_parts, per §6. Each part's
// etag is hashed as the ASCII bytes of its hex-string form, not decoded
// into binary first.
func aggregateETag(parts []PartInput) string {
	h := md5.New()
	for _, p := range parts {
		h.Write([]byte(trimQuotes(p.ETag)))
	}
	var sum [16]byte
	copy(sum[:], h.Sum(nil))
	return md5Hex(sum) + "-" + strconv.Itoa(len(parts))
}
