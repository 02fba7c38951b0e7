package ingest

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/kelindar/objectstore/internal/apierr"
	"github.com/kelindar/objectstore/internal/blockstore"
	"github.com/kelindar/objectstore/internal/chunk"
	"github.com/kelindar/objectstore/internal/hashpipe"
	"github.com/kelindar/objectstore/internal/ids"
	"github.com/kelindar/objectstore/internal/store"
)

// singlePutPartNumber is the part number used to key blocks belonging to
// a non-multipart streaming PUT, where the spec's block keys have no
// natural part number of their own.
const singlePutPartNumber = 0

// BlockWriter is the block writer (C3): it drives a Chunker, feeding
// every block through the hashing pipeline, the block store, and the
// version/block-ref tables, while keeping at most two blocks resident
// and one metadata write outstanding at a time.
type BlockWriter struct {
	blocks    blockstore.Store
	versions  *store.VersionTable
	blockrefs *store.BlockRefTable
}

// NewBlockWriter constructs a BlockWriter over the given collaborators.
func NewBlockWriter(blocks blockstore.Store, versions *store.VersionTable, blockrefs *store.BlockRefTable) *BlockWriter {
	return &BlockWriter{blocks: blocks, versions: versions, blockrefs: blockrefs}
}

// Run drives the pipeline starting from an already-fetched first block
// (firstBlock, firstBlockHash — the BLAKE2b digest computed up front per
// §4.4.1/§4.5) through to chunker exhaustion, writing every block under
// partNumber at consecutive offsets into version row versionUUID. It
// returns the total size written across all blocks (first block
// included).
//
// Per iteration it joins three things, matching the pipeline invariant
// of §4.3: uploading the current block, writing its metadata rows, and
// pulling (and hashing) the next block — bounding memory to roughly two
// blocks and one metadata write in flight.
func (w *BlockWriter) Run(
	ctx context.Context,
	chunker *chunk.Chunker,
	hashes *hashpipe.Triple,
	versionUUID, bucketID ids.Uuid,
	key string,
	partNumber uint64,
	firstBlock []byte,
	firstBlockHash ids.Hash,
) (totalSize uint64, err error) {
	block, hash := firstBlock, firstBlockHash
	var offset uint64

	for block != nil {
		curBlock, curHash, curOffset := block, hash, offset

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return w.blocks.Put(gctx, curHash, curBlock)
		})
		g.Go(func() error {
			return w.writeBlockMeta(gctx, versionUUID, bucketID, key, partNumber, curOffset, curHash, uint64(len(curBlock)))
		})
		g.Go(func() error {
			next, nextErr := chunker.Next(gctx)
			if nextErr != nil {
				return nextErr
			}
			if next == nil {
				block = nil
				return nil
			}
			nextHash, hashErr := hashes.UpdateBlock(gctx, next)
			if hashErr != nil {
				return hashErr
			}
			block, hash = next, nextHash
			return nil
		})
		if err := g.Wait(); err != nil {
			return 0, apierr.Wrap(apierr.InternalError, "block pipeline failed", err)
		}

		totalSize += uint64(len(curBlock))
		offset = curOffset + uint64(len(curBlock))
	}

	return totalSize, nil
}

// writeBlockMeta records one block's entry in the version row and its
// back-reference in the block-ref table.
func (w *BlockWriter) writeBlockMeta(ctx context.Context, versionUUID, bucketID ids.Uuid, key string, partNumber, offset uint64, hash ids.Hash, size uint64) error {
	v := store.NewVersion(versionUUID, bucketID, key, false)
	v.Blocks[store.VersionBlockKey{PartNumber: partNumber, Offset: offset}] = store.VersionBlock{Hash: hash, Size: size}
	if err := w.versions.Insert(ctx, v); err != nil {
		return err
	}
	return w.blockrefs.Insert(ctx, store.BlockRef{Block: hash, Version: versionUUID})
}
