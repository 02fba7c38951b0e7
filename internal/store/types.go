// Package store stands in for "the distributed table engine" that
// spec.md treats as an external collaborator: typed get/insert with
// CRDT merge. It holds the three tables the ingestion core writes to
// (object, version, block-ref) plus the per-bucket counter table used
// for quota enforcement, all as in-memory, mutex-guarded maps whose
// Insert methods apply each row type's Merge method instead of simply
// overwriting — the same semantics a real replicated table would give
// the core, minus the replication.
package store

import (
	"sort"

	"github.com/kelindar/objectstore/internal/ids"
)

// Headers is the MIME content-type plus the preserved subset of request
// headers (the five standard ones plus x-amz-meta-*) that ride along
// with an object version.
type Headers struct {
	ContentType string
	Other       map[string]string
}

// Clone returns a deep copy of h.
func (h Headers) Clone() Headers {
	out := Headers{ContentType: h.ContentType}
	if h.Other != nil {
		out.Other = make(map[string]string, len(h.Other))
		for k, v := range h.Other {
			out.Other[k] = v
		}
	}
	return out
}

// ObjectVersionMeta is the metadata recorded once a version reaches a
// terminal Complete state.
type ObjectVersionMeta struct {
	Headers Headers
	Size    uint64
	ETag    string
}

// DataKind tags which variant of ObjectVersionData is populated.
type DataKind uint8

const (
	// DataInline means the object's bytes are stored directly in the
	// object row (size below the inline threshold).
	DataInline DataKind = iota
	// DataFirstBlock means the object's bytes are stored as blocks in
	// the block store; only the hash of the first block is kept here.
	DataFirstBlock
)

// ObjectVersionData is the tagged union `Inline(meta, bytes) |
// FirstBlock(meta, hash)` from spec.md §3. Only the field matching Kind
// is meaningful.
type ObjectVersionData struct {
	Kind           DataKind
	Meta           ObjectVersionMeta
	InlineBytes    []byte   // valid iff Kind == DataInline
	FirstBlockHash ids.Hash // valid iff Kind == DataFirstBlock
}

// VersionState tags the three-state ObjectVersion lifecycle.
type VersionState uint8

const (
	StateUploading VersionState = iota
	StateComplete
	StateAborted
)

// terminalRank orders states so that Complete/Aborted dominate
// Uploading under CRDT merge, per spec.md §4.6/§9. Two distinct
// terminal states for the same (uuid, timestamp) should never arise
// from a correct caller; merge breaks such ties deterministically by
// keeping the left-hand operand.
func terminalRank(s VersionState) int {
	if s == StateUploading {
		return 0
	}
	return 1
}

// ObjectVersion is a single version of an object: a point in its
// lifecycle, identified by (uuid, timestamp).
type ObjectVersion struct {
	UUID      ids.Uuid
	Timestamp uint64

	State VersionState

	// UploadingHeaders is valid iff State == StateUploading: the
	// headers captured when the version was created, carried forward
	// into ObjectVersionMeta.Headers once the version completes.
	UploadingHeaders Headers

	// Data is valid iff State == StateComplete.
	Data ObjectVersionData
}

// IsUploading reports whether v is in the Uploading state.
func (v ObjectVersion) IsUploading() bool { return v.State == StateUploading }

// Clone returns a deep copy of v.
func (v ObjectVersion) Clone() ObjectVersion {
	out := v
	out.UploadingHeaders = v.UploadingHeaders.Clone()
	out.Data.Meta.Headers = v.Data.Meta.Headers.Clone()
	if v.Data.InlineBytes != nil {
		out.Data.InlineBytes = append([]byte(nil), v.Data.InlineBytes...)
	}
	return out
}

// mergeVersion merges two ObjectVersion values known to share the same
// (uuid, timestamp) key: terminal states dominate Uploading.
func mergeVersion(a, b ObjectVersion) ObjectVersion {
	ra, rb := terminalRank(a.State), terminalRank(b.State)
	if rb > ra {
		return b
	}
	return a
}

// versionKey identifies an ObjectVersion within an Object's version set.
type versionKey struct {
	uuid      ids.Uuid
	timestamp uint64
}

// Object is the mapping from (bucket_id, key) to an ordered set of
// versions, per spec.md §3.
type Object struct {
	BucketID ids.Uuid
	Key      string
	versions map[versionKey]ObjectVersion
}

// NewObject constructs an Object carrying the given versions.
func NewObject(bucketID ids.Uuid, key string, versions ...ObjectVersion) *Object {
	o := &Object{
		BucketID: bucketID,
		Key:      key,
		versions: make(map[versionKey]ObjectVersion, len(versions)),
	}
	for _, v := range versions {
		o.versions[versionKey{v.UUID, v.Timestamp}] = v
	}
	return o
}

// Versions returns the object's versions sorted by (timestamp, uuid),
// the order spec.md §3 requires.
func (o *Object) Versions() []ObjectVersion {
	out := make([]ObjectVersion, 0, len(o.versions))
	for _, v := range o.versions {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return string(out[i].UUID[:]) < string(out[j].UUID[:])
	})
	return out
}

// FindUploading returns the version matching uuid if it is currently in
// the Uploading state.
func (o *Object) FindUploading(uuid ids.Uuid) (ObjectVersion, bool) {
	for _, v := range o.versions {
		if v.UUID == uuid && v.IsUploading() {
			return v, true
		}
	}
	return ObjectVersion{}, false
}

// MaxTimestamp returns the highest timestamp among the object's
// versions, or 0 if it has none.
func (o *Object) MaxTimestamp() uint64 {
	var max uint64
	for k := range o.versions {
		if k.timestamp > max {
			max = k.timestamp
		}
	}
	return max
}

// LiveCounts returns the (object count, byte size) contributed by this
// object's most recent Complete version, or (0, 0) if the object has no
// live (non-aborted, non-uploading) version. Used by quota enforcement
// to compute the diff a new write would introduce.
func (o *Object) LiveCounts() (objects int64, bytes int64) {
	versions := o.Versions()
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].State == StateComplete {
			return 1, int64(versions[i].Data.Meta.Size)
		}
	}
	return 0, 0
}

// Merge implements the object table's CRDT semantics: set-union over
// versions, with per-version state-merge for versions that share a key.
func (o *Object) Merge(other *Object) *Object {
	merged := &Object{
		BucketID: o.BucketID,
		Key:      o.Key,
		versions: make(map[versionKey]ObjectVersion, len(o.versions)+len(other.versions)),
	}
	for k, v := range o.versions {
		merged.versions[k] = v
	}
	for k, v := range other.versions {
		if existing, ok := merged.versions[k]; ok {
			merged.versions[k] = mergeVersion(existing, v)
		} else {
			merged.versions[k] = v
		}
	}
	return merged
}

// VersionBlockKey identifies a block within a Version's block catalog:
// the part it belongs to and its offset relative to that part's start.
type VersionBlockKey struct {
	PartNumber uint64
	Offset     uint64
}

// VersionBlock records a block's content hash and size.
type VersionBlock struct {
	Hash ids.Hash
	Size uint64
}

// Version is the per-upload block catalog keyed by (uuid, EmptyKey) in
// spec.md §3.
type Version struct {
	UUID     ids.Uuid
	BucketID ids.Uuid
	Key      string
	Deleted  bool

	Blocks     map[VersionBlockKey]VersionBlock
	PartsEtags map[uint64]string
}

// NewVersion constructs an empty Version row.
func NewVersion(uuid, bucketID ids.Uuid, key string, deleted bool) *Version {
	return &Version{
		UUID:       uuid,
		BucketID:   bucketID,
		Key:        key,
		Deleted:    deleted,
		Blocks:     make(map[VersionBlockKey]VersionBlock),
		PartsEtags: make(map[uint64]string),
	}
}

// HasPartNumber reports whether part has already recorded an etag,
// i.e. whether it has already been uploaded (spec.md §4.5 step 3).
func (v *Version) HasPartNumber(part uint64) bool {
	_, ok := v.PartsEtags[part]
	return ok
}

// PartNumbers returns the distinct part numbers present in the block
// catalog, sorted ascending.
func (v *Version) PartNumbers() []uint64 {
	seen := make(map[uint64]struct{})
	for k := range v.Blocks {
		seen[k.PartNumber] = struct{}{}
	}
	out := make([]uint64, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TotalSize sums the size of every recorded block.
func (v *Version) TotalSize() uint64 {
	var total uint64
	for _, b := range v.Blocks {
		total += b.Size
	}
	return total
}

// Clone returns a deep copy of v.
func (v *Version) Clone() *Version {
	out := &Version{
		UUID:       v.UUID,
		BucketID:   v.BucketID,
		Key:        v.Key,
		Deleted:    v.Deleted,
		Blocks:     make(map[VersionBlockKey]VersionBlock, len(v.Blocks)),
		PartsEtags: make(map[uint64]string, len(v.PartsEtags)),
	}
	for k, val := range v.Blocks {
		out.Blocks[k] = val
	}
	for k, val := range v.PartsEtags {
		out.PartsEtags[k] = val
	}
	return out
}

// Merge implements the version table's CRDT semantics: blocks and
// parts_etags merge as last-writer-wins maps keyed by (part, offset)
// and part_number respectively. Since a part has exactly one writer
// (spec.md §3 invariant), "last write" here is simply "other wins on
// conflict", which is safe because conflicting values for the same key
// never arise from a correct caller.
func (v *Version) Merge(other *Version) *Version {
	merged := v.Clone()
	merged.Deleted = v.Deleted || other.Deleted
	for k, val := range other.Blocks {
		merged.Blocks[k] = val
	}
	for k, val := range other.PartsEtags {
		merged.PartsEtags[k] = val
	}
	return merged
}

// BlockRef maps (block_hash, version_uuid) to a tombstone bit. The
// garbage collector (external, not modeled here) uses this back-index
// to determine when a block has no live referrer.
type BlockRef struct {
	Block   ids.Hash
	Version ids.Uuid
	Deleted bool
}

// Merge implements last-writer-wins on the Deleted bit, favoring the
// tombstoned state (GC's deletion must stick).
func (r BlockRef) Merge(other BlockRef) BlockRef {
	if other.Deleted {
		return other
	}
	return r
}
