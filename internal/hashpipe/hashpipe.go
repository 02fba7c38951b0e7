// Package hashpipe implements the async hasher (C2): three digests —
// MD5 (S3 ETag compatibility), SHA-256 (signed-content cross-check) and
// BLAKE2b-256 (content-addressed block identity) — computed incrementally
// over the same stream of block slices without serializing the three
// computations behind one another.
package hashpipe

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"hash"

	"golang.org/x/sync/errgroup"

	"github.com/kelindar/objectstore/internal/ids"
)

// Digest wraps a single incremental hash.Hash so that Update can be
// called from within an errgroup goroutine alongside sibling digests
// over the same (immutable, cheaply-cloned) slice.
type Digest struct {
	h hash.Hash
}

func newDigest(h hash.Hash) *Digest { return &Digest{h: h} }

// Update feeds the next slice into the digest. It never blocks on I/O —
// hashing is pure CPU work — but callers run it inside a worker
// goroutine (via Triple.UpdateFirstBlock or Triple.UpdateBlock) so that three digests over the same
// block proceed concurrently instead of one after another.
func (d *Digest) Update(p []byte) {
	// hash.Hash.Write never returns an error.
	d.h.Write(p)
}

// Sum returns the finalized digest bytes. Sum must only be called once
// all Update calls have completed.
func (d *Digest) Sum() []byte {
	return d.h.Sum(nil)
}

// Triple bundles the three hashers used for every upload.
type Triple struct {
	MD5     *Digest
	SHA256  *Digest
	Blake2b *Digest
}

// NewTriple constructs a fresh Triple, one hasher instance per digest.
func NewTriple() *Triple {
	return &Triple{
		MD5:     newDigest(md5.New()),
		SHA256:  newDigest(sha256.New()),
		Blake2b: newDigest(ids.NewBlake2b256()),
	}
}

// UpdateFirstBlock hashes the first block with MD5 and SHA-256 only; the
// BLAKE2b hash of the first block is computed separately up front (it
// doubles as the block's content-address before the rest of the pipeline
// starts), matching the original algorithm's ordering.
func (t *Triple) UpdateFirstBlock(ctx context.Context, block []byte) error {
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error { t.MD5.Update(block); return nil })
	g.Go(func() error { t.SHA256.Update(block); return nil })
	return g.Wait()
}

// UpdateBlock hashes a subsequent block with all three digests
// concurrently, returning the block's BLAKE2b-256 content hash.
func (t *Triple) UpdateBlock(ctx context.Context, block []byte) (ids.Hash, error) {
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error { t.MD5.Update(block); return nil })
	g.Go(func() error { t.SHA256.Update(block); return nil })
	var blockHash ids.Hash
	g.Go(func() error {
		blockHash = ids.SumBlake2b256(block)
		t.Blake2b.Update(block)
		return nil
	})
	if err := g.Wait(); err != nil {
		return ids.Hash{}, err
	}
	return blockHash, nil
}

// FinalizeMD5 returns the finalized MD5 digest bytes.
func (t *Triple) FinalizeMD5() [16]byte {
	var out [16]byte
	copy(out[:], t.MD5.Sum())
	return out
}

// FinalizeSHA256 returns the finalized SHA-256 digest as an ids.Hash.
func (t *Triple) FinalizeSHA256() ids.Hash {
	var out ids.Hash
	copy(out[:], t.SHA256.Sum())
	return out
}
