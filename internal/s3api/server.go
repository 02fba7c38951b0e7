// Package s3api is the HTTP transport: it exposes the ingestion core
// (internal/ingest) over the S3-compatible subset of endpoints named in
// spec.md §6, translating HTTP requests/responses and XML bodies to and
// from the core's Go types.
package s3api

import (
	"encoding/xml"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/kelindar/objectstore/internal/apierr"
	"github.com/kelindar/objectstore/internal/blockstore"
	"github.com/kelindar/objectstore/internal/ids"
	"github.com/kelindar/objectstore/internal/ingest"
	"github.com/kelindar/objectstore/internal/store"
)

// Server routes S3-compatible requests to the ingestion core.
type Server struct {
	lifecycle *ingest.Lifecycle
	multipart *ingest.Multipart
	objects   *store.ObjectTable
	versions  *store.VersionTable
	blocks    blockstore.Store
}

// NewServer constructs a Server over its collaborators.
func NewServer(lifecycle *ingest.Lifecycle, multipart *ingest.Multipart, objects *store.ObjectTable, versions *store.VersionTable, blocks blockstore.Store) *Server {
	return &Server{
		lifecycle: lifecycle,
		multipart: multipart,
		objects:   objects,
		versions:  versions,
		blocks:    blocks,
	}
}

// ServeHTTP dispatches on method and query parameters, mirroring the
// dispatch table of spec.md §6.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.SplitN(strings.Trim(r.URL.Path, "/"), "/", 2)
	if len(pathParts) == 0 || pathParts[0] == "" {
		s.writeError(w, r, apierr.New(apierr.BadRequest, "missing bucket in request path"))
		return
	}
	bucketName := pathParts[0]
	var key string
	if len(pathParts) > 1 {
		key = pathParts[1]
	}
	if err := store.ValidateBucketName(bucketName); err != nil {
		s.writeError(w, r, apierr.Wrap(apierr.NotFound, "the specified bucket does not exist", err))
		return
	}
	bucketID := bucketIDForName(bucketName)

	query := r.URL.Query()
	switch r.Method {
	case http.MethodPut:
		if query.Has("partNumber") && query.Has("uploadId") {
			s.handleUploadPart(w, r, bucketID, key, query)
		} else {
			s.handlePutObject(w, r, bucketID, key)
		}
	case http.MethodPost:
		switch {
		case query.Has("uploads"):
			s.handleCreateMultipartUpload(w, r, bucketID, bucketName, key)
		case query.Has("uploadId"):
			s.handleCompleteMultipartUpload(w, r, bucketID, bucketName, key, query)
		default:
			s.writeError(w, r, apierr.New(apierr.BadRequest, "unsupported POST request"))
		}
	case http.MethodDelete:
		if query.Has("uploadId") {
			s.handleAbortMultipartUpload(w, r, bucketID, key, query)
			return
		}
		s.writeError(w, r, apierr.New(apierr.BadRequest, "DELETE of an object is out of scope"))
	case http.MethodGet:
		s.handleGetObject(w, r, bucketID, key)
	case http.MethodHead:
		s.handleHeadObject(w, r, bucketID, key)
	default:
		s.writeError(w, r, apierr.New(apierr.BadRequest, "method not allowed"))
	}
}

// bucketIDForName derives a stable bucket id from its name. Bucket
// creation/id-assignment is the (out of scope) administration surface;
// this core treats the bucket name itself as the addressing key via a
// deterministic hash, so repeated requests for the same bucket name
// always resolve to the same row.
func bucketIDForName(name string) ids.Uuid {
	h := ids.SumBlake2b256([]byte(name))
	var u ids.Uuid
	copy(u[:], h[:16])
	return u
}

func (s *Server) handlePutObject(w http.ResponseWriter, r *http.Request, bucketID ids.Uuid, key string) {
	result, err := s.lifecycle.PutObject(r.Context(), ingest.PutRequest{
		BucketID:  bucketID,
		Key:       key,
		Headers:   extractHeaders(r),
		Body:      r.Body,
		Checksums: extractChecksums(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", quote(result.ETag))
	w.Header().Set("x-amz-version-id", result.VersionID.String())
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleCreateMultipartUpload(w http.ResponseWriter, r *http.Request, bucketID ids.Uuid, bucketName, key string) {
	uploadID, err := s.multipart.Create(r.Context(), bucketID, key, extractHeaders(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeXML(w, http.StatusOK, initiateMultipartUploadResponse{
		Bucket:   bucketName,
		Key:      key,
		UploadID: uploadID.String(),
	})
}

func (s *Server) handleUploadPart(w http.ResponseWriter, r *http.Request, bucketID ids.Uuid, key string, query url.Values) {
	uploadID, ok := ids.ParseUploadID(query.Get("uploadId"))
	if !ok {
		s.writeError(w, r, apierr.New(apierr.NoSuchUpload, "no such upload"))
		return
	}
	partNumber, err := strconv.ParseUint(query.Get("partNumber"), 10, 64)
	if err != nil || partNumber < 1 {
		s.writeError(w, r, apierr.New(apierr.BadRequest, "invalid part number"))
		return
	}

	etag, err := s.multipart.PutPart(r.Context(), bucketID, key, uploadID, partNumber, r.Body, extractChecksums(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", quote(etag))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleCompleteMultipartUpload(w http.ResponseWriter, r *http.Request, bucketID ids.Uuid, bucketName, key string, query url.Values) {
	uploadID, ok := ids.ParseUploadID(query.Get("uploadId"))
	if !ok {
		s.writeError(w, r, apierr.New(apierr.NoSuchUpload, "no such upload"))
		return
	}

	var body completeMultipartUploadRequest
	if err := xml.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, apierr.Wrap(apierr.BadRequest, "malformed XML", err))
		return
	}
	parts := make([]ingest.PartInput, len(body.Parts))
	for i, p := range body.Parts {
		parts[i] = ingest.PartInput{PartNumber: p.PartNumber, ETag: p.ETag}
	}

	result, err := s.multipart.Complete(r.Context(), bucketID, key, uploadID, parts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeXML(w, http.StatusOK, completeMultipartUploadResponse{
		Bucket: bucketName,
		Key:    key,
		ETag:   quote(result.ETag),
	})
}

func (s *Server) handleAbortMultipartUpload(w http.ResponseWriter, r *http.Request, bucketID ids.Uuid, key string, query url.Values) {
	uploadID, ok := ids.ParseUploadID(query.Get("uploadId"))
	if !ok {
		s.writeError(w, r, apierr.New(apierr.NoSuchUpload, "no such upload"))
		return
	}
	if err := s.multipart.Abort(r.Context(), bucketID, key, uploadID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleGetObject and handleHeadObject are not named in spec.md's C1-C5
// scope, but are added so the ingestion core is independently
// observable end to end (E1/E3's "subsequent GET" assertions) without
// depending on an external reader component.
func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request, bucketID ids.Uuid, key string) {
	s.serveObject(w, r, bucketID, key, true)
}

func (s *Server) handleHeadObject(w http.ResponseWriter, r *http.Request, bucketID ids.Uuid, key string) {
	s.serveObject(w, r, bucketID, key, false)
}

func (s *Server) serveObject(w http.ResponseWriter, r *http.Request, bucketID ids.Uuid, key string, withBody bool) {
	obj, err := s.objects.Get(r.Context(), bucketID, key)
	if err != nil {
		s.writeError(w, r, apierr.Wrap(apierr.InternalError, "failed to read object", err))
		return
	}
	version, ok := latestComplete(obj)
	if !ok {
		s.writeError(w, r, apierr.New(apierr.NotFound, "the specified key does not exist"))
		return
	}

	applyResponseHeaders(w, version.Data.Meta.Headers)
	w.Header().Set("ETag", quote(version.Data.Meta.ETag))
	w.Header().Set("x-amz-version-id", version.UUID.String())

	if !withBody {
		w.WriteHeader(http.StatusOK)
		return
	}

	switch version.Data.Kind {
	case store.DataInline:
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(version.Data.InlineBytes)
	case store.DataFirstBlock:
		s.writeReconstructedBody(w, r, version)
	}
}

func (s *Server) writeReconstructedBody(w http.ResponseWriter, r *http.Request, version store.ObjectVersion) {
	v, err := s.versions.Get(r.Context(), version.UUID)
	if err != nil || v == nil {
		s.writeError(w, r, apierr.Wrap(apierr.InternalError, "failed to read version row", err))
		return
	}

	keys := make([]store.VersionBlockKey, 0, len(v.Blocks))
	for k := range v.Blocks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].PartNumber != keys[j].PartNumber {
			return keys[i].PartNumber < keys[j].PartNumber
		}
		return keys[i].Offset < keys[j].Offset
	})

	w.WriteHeader(http.StatusOK)
	for _, k := range keys {
		data, err := s.blocks.Get(r.Context(), v.Blocks[k].Hash)
		if err != nil {
			log.Error().Err(err).Str("version_id", version.UUID.String()).Msg("failed to read block while serving object")
			return
		}
		if _, err := w.Write(data); err != nil {
			return
		}
	}
}

func latestComplete(obj *store.Object) (store.ObjectVersion, bool) {
	if obj == nil {
		return store.ObjectVersion{}, false
	}
	versions := obj.Versions()
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].State == store.StateComplete {
			return versions[i], true
		}
	}
	return store.ObjectVersion{}, false
}

func quote(s string) string { return `"` + s + `"` }

func (s *Server) writeXML(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_ = xml.NewEncoder(w).Encode(body)
}

// writeError renders an apierr.Error (or wraps an unknown error as
// InternalError) as the `<Error>` XML body carrying the S3 code and the
// message. The body includes neither a region name nor the request path;
// the path is only logged, alongside the cause, when a cause is present.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr, ok := apierr.As(err)
	if !ok {
		apiErr = apierr.Wrap(apierr.InternalError, "internal error", err)
	}
	if apiErr.Cause != nil {
		log.Error().Err(apiErr.Cause).Str("path", r.URL.Path).Msg(apiErr.Message)
	}
	s.writeXML(w, apiErr.Kind.StatusCode(), errorResponse{
		Code:    apiErr.Kind.S3Code(),
		Message: apiErr.Message,
	})
}
