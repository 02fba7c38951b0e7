package hashpipe

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelindar/objectstore/internal/ids"
)

func TestTriple_AgreesWithOneShotDigests(t *testing.T) {
	blocks := [][]byte{
		bytes.Repeat([]byte{0xAA}, 1024),
		bytes.Repeat([]byte{0xBB}, 1024),
		[]byte("short tail"),
	}

	tr := NewTriple()
	require.NoError(t, tr.UpdateFirstBlock(context.Background(), blocks[0]))
	// Blake2b must still see the first block even though
	// UpdateFirstBlock skips it (it's hashed separately up front in the
	// real pipeline); mirror that here to keep the Triple's internal
	// state consistent with one-shot hashing.
	tr.Blake2b.Update(blocks[0])

	var all bytes.Buffer
	all.Write(blocks[0])

	for _, b := range blocks[1:] {
		_, err := tr.UpdateBlock(context.Background(), b)
		require.NoError(t, err)
		all.Write(b)
	}

	wantMD5 := md5.Sum(all.Bytes())
	wantSHA256 := sha256.Sum256(all.Bytes())
	wantBlake2b := ids.SumBlake2b256(all.Bytes())

	assert.Equal(t, wantMD5, tr.FinalizeMD5())
	assert.Equal(t, ids.Hash(wantSHA256), tr.FinalizeSHA256())
	assert.Equal(t, wantBlake2b.String(), hashString(tr.Blake2b.Sum()))
}

func hashString(b []byte) string {
	var h ids.Hash
	copy(h[:], b)
	return h.String()
}

func TestUpdateBlock_ReturnsPerBlockContentHash(t *testing.T) {
	tr := NewTriple()
	block := []byte("block contents")
	h, err := tr.UpdateBlock(context.Background(), block)
	require.NoError(t, err)
	assert.Equal(t, ids.SumBlake2b256(block), h)
}
