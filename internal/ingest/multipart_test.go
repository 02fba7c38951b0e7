package ingest

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/kelindar/objectstore/internal/apierr"
	"github.com/kelindar/objectstore/internal/blockstore"
	"github.com/kelindar/objectstore/internal/config"
	"github.com/kelindar/objectstore/internal/ids"
	"github.com/kelindar/objectstore/internal/store"
)

func newTestMultipart() (*Multipart, ids.Uuid) {
	cfg := config.Ingest{BlockSize: 64, InlineThreshold: 16}
	blocks := blockstore.NewMemory()
	objects := store.NewObjectTable()
	versions := store.NewVersionTable()
	blockrefs := store.NewBlockRefTable()
	counters := store.NewCounterTable()
	buckets := store.NewBucketRegistry()
	bucketID := ids.NewUuid()
	buckets.Put(store.Bucket{ID: bucketID})
	return NewMultipart(cfg, blocks, objects, versions, blockrefs, counters, buckets), bucketID
}

func putPartETag(t *testing.T, mp *Multipart, ctx context.Context, bucketID ids.Uuid, key string, uploadID ids.Uuid, partNumber uint64, data []byte) string {
	t.Helper()
	etag, err := mp.PutPart(ctx, bucketID, key, uploadID, partNumber, bytes.NewReader(data), Checksums{})
	if err != nil {
		t.Fatalf("PutPart(%d): %v", partNumber, err)
	}
	return etag
}

func TestMultipart_HappyPath(t *testing.T) {
	mp, bucketID := newTestMultipart()
	ctx := context.Background()

	uploadID, err := mp.Create(ctx, bucketID, "obj", store.Headers{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	part1 := bytes.Repeat([]byte{1}, 100)
	part2 := bytes.Repeat([]byte{2}, 100)
	part3 := bytes.Repeat([]byte{3}, 30)

	e1 := putPartETag(t, mp, ctx, bucketID, "obj", uploadID, 1, part1)
	e2 := putPartETag(t, mp, ctx, bucketID, "obj", uploadID, 2, part2)
	e3 := putPartETag(t, mp, ctx, bucketID, "obj", uploadID, 3, part3)

	result, err := mp.Complete(ctx, bucketID, "obj", uploadID, []PartInput{
		{PartNumber: 1, ETag: e1},
		{PartNumber: 2, ETag: e2},
		{PartNumber: 3, ETag: e3},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if result.TotalSize != uint64(len(part1)+len(part2)+len(part3)) {
		t.Errorf("TotalSize = %d, want %d", result.TotalSize, len(part1)+len(part2)+len(part3))
	}

	wantETag := expectedMultipartETag(t, e1, e2, e3) + "-3"
	if result.ETag != wantETag {
		t.Errorf("ETag = %q, want %q", result.ETag, wantETag)
	}

	obj, _ := mp.objects.Get(ctx, bucketID, "obj")
	versions := obj.Versions()
	if len(versions) != 1 || versions[0].State != store.StateComplete {
		t.Fatalf("expected a single Complete version, got %+v", versions)
	}
}

func TestMultipart_NonConsecutivePartsRejected(t *testing.T) {
	mp, bucketID := newTestMultipart()
	ctx := context.Background()

	uploadID, _ := mp.Create(ctx, bucketID, "obj", store.Headers{})
	e1 := putPartETag(t, mp, ctx, bucketID, "obj", uploadID, 1, []byte("aaa"))
	e3 := putPartETag(t, mp, ctx, bucketID, "obj", uploadID, 3, []byte("ccc"))

	_, err := mp.Complete(ctx, bucketID, "obj", uploadID, []PartInput{
		{PartNumber: 1, ETag: e1},
		{PartNumber: 3, ETag: e3},
	})
	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Kind != apierr.NotImplemented {
		t.Fatalf("expected NotImplemented, got %v", err)
	}
}

func TestMultipart_OutOfOrderPartsRejected(t *testing.T) {
	mp, bucketID := newTestMultipart()
	ctx := context.Background()

	uploadID, _ := mp.Create(ctx, bucketID, "obj", store.Headers{})
	e1 := putPartETag(t, mp, ctx, bucketID, "obj", uploadID, 1, []byte("aaa"))
	e2 := putPartETag(t, mp, ctx, bucketID, "obj", uploadID, 2, []byte("bbb"))

	_, err := mp.Complete(ctx, bucketID, "obj", uploadID, []PartInput{
		{PartNumber: 2, ETag: e2},
		{PartNumber: 1, ETag: e1},
	})
	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Kind != apierr.InvalidPartOrder {
		t.Fatalf("expected InvalidPartOrder, got %v", err)
	}
}

func TestMultipart_MismatchedPartETagRejected(t *testing.T) {
	mp, bucketID := newTestMultipart()
	ctx := context.Background()

	uploadID, _ := mp.Create(ctx, bucketID, "obj", store.Headers{})
	putPartETag(t, mp, ctx, bucketID, "obj", uploadID, 1, []byte("aaa"))
	e2 := putPartETag(t, mp, ctx, bucketID, "obj", uploadID, 2, []byte("bbb"))

	_, err := mp.Complete(ctx, bucketID, "obj", uploadID, []PartInput{
		{PartNumber: 1, ETag: "\"deadbeefdeadbeefdeadbeefdeadbeef\""},
		{PartNumber: 2, ETag: e2},
	})
	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Kind != apierr.InvalidPart {
		t.Fatalf("expected InvalidPart, got %v", err)
	}
}

func TestMultipart_EmptyPartListRejected(t *testing.T) {
	mp, bucketID := newTestMultipart()
	ctx := context.Background()

	uploadID, _ := mp.Create(ctx, bucketID, "obj", store.Headers{})
	_, err := mp.Complete(ctx, bucketID, "obj", uploadID, nil)
	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Kind != apierr.EntityTooSmall {
		t.Fatalf("expected EntityTooSmall, got %v", err)
	}
}

func TestMultipart_PartIdempotenceGuard(t *testing.T) {
	mp, bucketID := newTestMultipart()
	ctx := context.Background()

	uploadID, _ := mp.Create(ctx, bucketID, "obj", store.Headers{})
	putPartETag(t, mp, ctx, bucketID, "obj", uploadID, 1, []byte("aaa"))

	_, err := mp.PutPart(ctx, bucketID, "obj", uploadID, 1, bytes.NewReader([]byte("aaa")), Checksums{})
	if err == nil {
		t.Fatal("expected re-uploading part 1 to fail")
	}
}

func TestMultipart_AbortMarksVersionAborted(t *testing.T) {
	mp, bucketID := newTestMultipart()
	ctx := context.Background()

	uploadID, _ := mp.Create(ctx, bucketID, "obj", store.Headers{})
	putPartETag(t, mp, ctx, bucketID, "obj", uploadID, 1, []byte("aaa"))

	if err := mp.Abort(ctx, bucketID, "obj", uploadID); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	obj, _ := mp.objects.Get(ctx, bucketID, "obj")
	versions := obj.Versions()
	if len(versions) != 1 || versions[0].State != store.StateAborted {
		t.Fatalf("expected a single Aborted version, got %+v", versions)
	}

	if err := mp.Abort(ctx, bucketID, "obj", uploadID); err == nil {
		t.Error("expected aborting an already-aborted upload to fail with NoSuchUpload")
	}
}

func expectedMultipartETag(t *testing.T, etags ...string) string {
	t.Helper()
	h := md5.New()
	for _, e := range etags {
		h.Write([]byte(e))
	}
	return hex.EncodeToString(h.Sum(nil))
}
