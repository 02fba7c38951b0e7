package ingest

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/kelindar/objectstore/internal/apierr"
	"github.com/kelindar/objectstore/internal/blockstore"
	"github.com/kelindar/objectstore/internal/config"
	"github.com/kelindar/objectstore/internal/ids"
	"github.com/kelindar/objectstore/internal/store"
)

func newTestLifecycle() (*Lifecycle, ids.Uuid) {
	cfg := config.Ingest{BlockSize: 64, InlineThreshold: 16}
	blocks := blockstore.NewMemory()
	objects := store.NewObjectTable()
	versions := store.NewVersionTable()
	blockrefs := store.NewBlockRefTable()
	counters := store.NewCounterTable()
	buckets := store.NewBucketRegistry()
	bucketID := ids.NewUuid()
	buckets.Put(store.Bucket{ID: bucketID})
	return NewLifecycle(cfg, blocks, objects, versions, blockrefs, counters, buckets), bucketID
}

func TestPutObject_InlinePath(t *testing.T) {
	lc, bucketID := newTestLifecycle()
	ctx := context.Background()

	body := []byte("hello")
	result, err := lc.PutObject(ctx, PutRequest{
		BucketID: bucketID,
		Key:      "greeting",
		Body:     bytes.NewReader(body),
	})
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	wantETag := hex.EncodeToString(md5sum(body))
	if result.ETag != wantETag {
		t.Errorf("ETag = %q, want %q", result.ETag, wantETag)
	}
	if result.VersionID.IsZero() {
		t.Error("expected non-zero version id")
	}

	obj, err := lc.objects.Get(ctx, bucketID, "greeting")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	versions := obj.Versions()
	if len(versions) != 1 || versions[0].State != store.StateComplete {
		t.Fatalf("expected a single Complete version, got %+v", versions)
	}
	if versions[0].Data.Kind != store.DataInline {
		t.Errorf("expected DataInline, got %v", versions[0].Data.Kind)
	}
	if !bytes.Equal(versions[0].Data.InlineBytes, body) {
		t.Errorf("InlineBytes = %q, want %q", versions[0].Data.InlineBytes, body)
	}
}

func TestPutObject_StreamingPath(t *testing.T) {
	lc, bucketID := newTestLifecycle()
	ctx := context.Background()

	body := bytes.Repeat([]byte{0xAB}, 200) // well above InlineThreshold=16 and BlockSize=64
	result, err := lc.PutObject(ctx, PutRequest{
		BucketID: bucketID,
		Key:      "big",
		Body:     bytes.NewReader(body),
	})
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	wantETag := hex.EncodeToString(md5sum(body))
	if result.ETag != wantETag {
		t.Errorf("ETag = %q, want %q", result.ETag, wantETag)
	}

	obj, _ := lc.objects.Get(ctx, bucketID, "big")
	versions := obj.Versions()
	if versions[0].Data.Kind != store.DataFirstBlock {
		t.Errorf("expected DataFirstBlock, got %v", versions[0].Data.Kind)
	}
	if versions[0].Data.Meta.Size != uint64(len(body)) {
		t.Errorf("Size = %d, want %d", versions[0].Data.Meta.Size, len(body))
	}

	version, err := lc.versions.Get(ctx, result.VersionID)
	if err != nil {
		t.Fatalf("Get version: %v", err)
	}
	if version.TotalSize() != uint64(len(body)) {
		t.Errorf("version TotalSize = %d, want %d", version.TotalSize(), len(body))
	}
}

func TestPutObject_WrongContentMD5Rejected(t *testing.T) {
	lc, bucketID := newTestLifecycle()
	ctx := context.Background()

	body := bytes.Repeat([]byte{0xAA}, 200)
	_, err := lc.PutObject(ctx, PutRequest{
		BucketID:  bucketID,
		Key:       "bad-md5",
		Body:      bytes.NewReader(body),
		Checksums: Checksums{ContentMD5: "AAAAAAAAAAAAAAAAAAAAAA=="},
	})
	apiErr, ok := apierr.As(err)
	if !ok {
		t.Fatalf("expected an *apierr.Error, got %T: %v", err, err)
	}
	if apiErr.Kind != apierr.BadRequest {
		t.Errorf("Kind = %v, want BadRequest", apiErr.Kind)
	}

	obj, _ := lc.objects.Get(ctx, bucketID, "bad-md5")
	if obj != nil {
		for _, v := range obj.Versions() {
			if v.State == store.StateComplete {
				t.Error("expected no Complete version to be written after checksum failure")
			}
		}
	}
}

func TestPutObject_MonotonicTimestamps(t *testing.T) {
	lc, bucketID := newTestLifecycle()
	ctx := context.Background()

	r1, err := lc.PutObject(ctx, PutRequest{BucketID: bucketID, Key: "k", Body: strings.NewReader("a")})
	if err != nil {
		t.Fatalf("PutObject 1: %v", err)
	}
	r2, err := lc.PutObject(ctx, PutRequest{BucketID: bucketID, Key: "k", Body: strings.NewReader("b")})
	if err != nil {
		t.Fatalf("PutObject 2: %v", err)
	}

	obj, _ := lc.objects.Get(ctx, bucketID, "k")
	versions := obj.Versions()
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions))
	}
	if versions[1].UUID != r2.VersionID || versions[0].UUID != r1.VersionID {
		t.Fatalf("version order unexpected: %+v", versions)
	}
	if versions[1].Timestamp <= versions[0].Timestamp {
		t.Errorf("expected second PUT's timestamp to exceed the first: %d vs %d", versions[1].Timestamp, versions[0].Timestamp)
	}
}

func TestPutObject_QuotaShrinkNeverBlocked(t *testing.T) {
	lc, bucketID := newTestLifecycle()
	ctx := context.Background()

	maxSize := uint64(150)
	lc.buckets.(*store.BucketRegistry).Put(store.Bucket{
		ID:    bucketID,
		State: &store.BucketState{Quotas: store.Quotas{MaxSize: &maxSize}},
	})

	big := bytes.Repeat([]byte{1}, 200)
	if _, err := lc.PutObject(ctx, PutRequest{BucketID: bucketID, Key: "k", Body: bytes.NewReader(big)}); err == nil {
		t.Fatal("expected the initial over-quota write to fail")
	}

	// Force the object to exist at the over-quota size by writing
	// directly, bypassing quota (simulating an object that predates quota
	// tightening), then confirm a shrinking overwrite succeeds.
	if err := lc.objects.Insert(ctx, store.NewObject(bucketID, "k", store.ObjectVersion{
		UUID:      ids.NewUuid(),
		Timestamp: 1,
		State:     store.StateComplete,
		Data: store.ObjectVersionData{
			Kind:        store.DataInline,
			Meta:        store.ObjectVersionMeta{Size: uint64(len(big))},
			InlineBytes: big,
		},
	})); err != nil {
		t.Fatalf("direct insert: %v", err)
	}
	if err := lc.counters.Apply(ctx, bucketID, 1, int64(len(big))); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	small := []byte("tiny")
	if _, err := lc.PutObject(ctx, PutRequest{BucketID: bucketID, Key: "k", Body: bytes.NewReader(small)}); err != nil {
		t.Fatalf("expected small inline write to succeed: %v", err)
	}
}

func md5sum(b []byte) []byte {
	sum := md5.Sum(b)
	return sum[:]
}
