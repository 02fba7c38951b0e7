// Package ids implements the two identifier types the object store core
// is built around: Uuid, a 128-bit random version/upload identifier, and
// Hash, the 256-bit BLAKE2b content digest used to address blocks.
package ids

import (
	"encoding/hex"
	"hash"

	"github.com/google/uuid"
	"github.com/minio/blake2b-simd"
)

// Uuid is a 128-bit identifier for an object version (which doubles as a
// multipart upload id once a version enters the Uploading state).
type Uuid [16]byte

// NewUuid generates a fresh, uniformly random Uuid.
func NewUuid() Uuid {
	var u Uuid
	copy(u[:], uuid.New()[:])
	return u
}

// String returns the lowercase hex encoding used on the wire as the S3
// upload id and the x-amz-version-id header (32 characters, no dashes).
func (u Uuid) String() string {
	return hex.EncodeToString(u[:])
}

// IsZero reports whether u is the zero value.
func (u Uuid) IsZero() bool {
	return u == Uuid{}
}

// ParseUploadID decodes the hex upload id format used in the S3 surface.
// It deliberately does not accept the dashed UUID string form: §6 of the
// spec requires NoSuchUpload on anything but exactly 32 lowercase hex
// characters.
func ParseUploadID(s string) (Uuid, bool) {
	if len(s) != 32 {
		return Uuid{}, false
	}
	raw, err := hex.DecodeString(s)
	if err != nil || hex.EncodeToString(raw) != s {
		return Uuid{}, false
	}
	var u Uuid
	copy(u[:], raw)
	return u, true
}

// Hash is a 256-bit BLAKE2b content digest, used to address blocks.
type Hash [32]byte

// String returns the lowercase hex encoding of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// SumBlake2b256 computes the BLAKE2b-256 digest of data.
func SumBlake2b256(data []byte) Hash {
	return Hash(blake2b.Sum256(data))
}

// NewBlake2b256 returns an incremental BLAKE2b-256 hasher, for use by the
// async hashing pipeline (C2) when blocks arrive one at a time.
func NewBlake2b256() hash.Hash {
	return blake2b.New256()
}
