package s3api

import (
	"net/http"
	"strings"

	"github.com/kelindar/objectstore/internal/ingest"
	"github.com/kelindar/objectstore/internal/store"
)

// standardHeaders is the fixed set of non-x-amz-meta headers preserved
// on an object version, per spec.md §6.
var standardHeaders = []string{
	"Cache-Control",
	"Content-Disposition",
	"Content-Encoding",
	"Content-Language",
	"Expires",
}

// extractHeaders builds the Headers value to carry on an object
// version from an incoming request: content-type, the five standard
// headers, and every x-amz-meta-* header.
func extractHeaders(r *http.Request) store.Headers {
	h := store.Headers{
		ContentType: r.Header.Get("Content-Type"),
		Other:       make(map[string]string),
	}
	for _, name := range standardHeaders {
		if v := r.Header.Get(name); v != "" {
			h.Other[name] = v
		}
	}
	for name, values := range r.Header {
		if len(values) == 0 {
			continue
		}
		if strings.HasPrefix(strings.ToLower(name), "x-amz-meta-") {
			h.Other[name] = values[0]
		}
	}
	return h
}

// extractChecksums reads the client-supplied integrity headers.
func extractChecksums(r *http.Request) ingest.Checksums {
	return ingest.Checksums{
		ContentMD5:    r.Header.Get("Content-MD5"),
		ContentSHA256: r.Header.Get("X-Amz-Content-Sha256"),
	}
}

// applyResponseHeaders writes back the preserved headers on a GET/HEAD
// response.
func applyResponseHeaders(w http.ResponseWriter, h store.Headers) {
	if h.ContentType != "" {
		w.Header().Set("Content-Type", h.ContentType)
	}
	for k, v := range h.Other {
		w.Header().Set(k, v)
	}
}
