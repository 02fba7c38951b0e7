package store

import (
	"testing"

	"github.com/kelindar/objectstore/internal/ids"
)

func newUuid(b byte) ids.Uuid {
	var u ids.Uuid
	u[0] = b
	return u
}

func TestObjectMerge_UnionsVersionsAndResolvesTerminalState(t *testing.T) {
	bucket := newUuid(1)
	uuid := newUuid(2)

	uploading := ObjectVersion{UUID: uuid, Timestamp: 100, State: StateUploading}
	a := NewObject(bucket, "key", uploading)

	complete := ObjectVersion{
		UUID:      uuid,
		Timestamp: 100,
		State:     StateComplete,
		Data: ObjectVersionData{
			Kind: DataInline,
			Meta: ObjectVersionMeta{Size: 5, ETag: "etag"},
		},
	}
	b := NewObject(bucket, "key", complete)

	merged := a.Merge(b)
	versions := merged.Versions()
	if len(versions) != 1 {
		t.Fatalf("expected 1 version after merge, got %d", len(versions))
	}
	if versions[0].State != StateComplete {
		t.Errorf("expected terminal state to dominate Uploading, got %v", versions[0].State)
	}

	// merge commutativity
	merged2 := b.Merge(a)
	versions2 := merged2.Versions()
	if versions2[0].State != StateComplete {
		t.Errorf("merge not commutative: got %v", versions2[0].State)
	}
}

func TestObjectMerge_DistinctVersionsUnion(t *testing.T) {
	bucket := newUuid(1)
	v1 := ObjectVersion{UUID: newUuid(2), Timestamp: 100, State: StateComplete}
	v2 := ObjectVersion{UUID: newUuid(3), Timestamp: 200, State: StateComplete}

	a := NewObject(bucket, "key", v1)
	b := NewObject(bucket, "key", v2)

	merged := a.Merge(b)
	if len(merged.Versions()) != 2 {
		t.Fatalf("expected 2 distinct versions, got %d", len(merged.Versions()))
	}
}

func TestObject_LiveCounts(t *testing.T) {
	bucket := newUuid(1)
	uuid := newUuid(2)
	o := NewObject(bucket, "key", ObjectVersion{
		UUID:      uuid,
		Timestamp: 100,
		State:     StateComplete,
		Data: ObjectVersionData{
			Kind: DataInline,
			Meta: ObjectVersionMeta{Size: 42},
		},
	})
	objs, bytes := o.LiveCounts()
	if objs != 1 || bytes != 42 {
		t.Errorf("LiveCounts() = (%d, %d), want (1, 42)", objs, bytes)
	}

	empty := NewObject(bucket, "other")
	objs, bytes = empty.LiveCounts()
	if objs != 0 || bytes != 0 {
		t.Errorf("LiveCounts() on empty object = (%d, %d), want (0, 0)", objs, bytes)
	}
}

func TestVersionMerge_UnionsBlocksAndPartsEtags(t *testing.T) {
	uuid := newUuid(1)
	bucket := newUuid(2)

	a := NewVersion(uuid, bucket, "key", false)
	a.Blocks[VersionBlockKey{PartNumber: 1, Offset: 0}] = VersionBlock{Size: 10}
	a.PartsEtags[1] = "etag1"

	b := NewVersion(uuid, bucket, "key", false)
	b.Blocks[VersionBlockKey{PartNumber: 2, Offset: 0}] = VersionBlock{Size: 20}
	b.PartsEtags[2] = "etag2"

	merged := a.Merge(b)
	if merged.TotalSize() != 30 {
		t.Errorf("TotalSize() = %d, want 30", merged.TotalSize())
	}
	if len(merged.PartsEtags) != 2 {
		t.Errorf("expected 2 parts etags, got %d", len(merged.PartsEtags))
	}
	if !merged.HasPartNumber(1) || !merged.HasPartNumber(2) {
		t.Error("expected both part numbers present")
	}
}

func TestVersionMerge_DeletedIsSticky(t *testing.T) {
	uuid := newUuid(1)
	bucket := newUuid(2)

	a := NewVersion(uuid, bucket, "key", false)
	b := NewVersion(uuid, bucket, "key", true)

	merged := a.Merge(b)
	if !merged.Deleted {
		t.Error("expected Deleted to be sticky across merge")
	}
}

func TestBlockRefMerge_DeletedDominates(t *testing.T) {
	block := ids.Hash{}
	version := newUuid(1)

	live := BlockRef{Block: block, Version: version, Deleted: false}
	dead := BlockRef{Block: block, Version: version, Deleted: true}

	if merged := live.Merge(dead); !merged.Deleted {
		t.Error("expected deleted ref to dominate live ref")
	}
	if merged := dead.Merge(live); !merged.Deleted {
		t.Error("expected deleted ref to remain dominant regardless of operand order")
	}
}
