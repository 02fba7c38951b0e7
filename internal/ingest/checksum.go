package ingest

import (
	"encoding/base64"
	"encoding/hex"

	"github.com/kelindar/objectstore/internal/apierr"
	"github.com/kelindar/objectstore/internal/ids"
)

// Checksums carries the client-supplied integrity headers consulted at
// §4.4.2: content-md5 (base64, possibly double-quoted) and
// x-amz-content-sha256 (hex).
type Checksums struct {
	ContentMD5    string // as received, may be empty
	ContentSHA256 string // as received, may be empty
}

// Validate checks the post-transfer digests against whatever integrity
// headers the client supplied: the SHA-256 header first, then the MD5
// header, each only when present. The first mismatch is returned as
// BadRequest; when the SHA-256 check fails the MD5 check is not run.
func (c Checksums) Validate(md5sum [16]byte, sha256sum ids.Hash) error {
	if c.ContentSHA256 != "" {
		if c.ContentSHA256 != sha256sum.String() {
			return apierr.New(apierr.BadRequest, "Unable to validate x-amz-content-sha256")
		}
	}
	if c.ContentMD5 != "" {
		want := trimQuotes(c.ContentMD5)
		got := base64.StdEncoding.EncodeToString(md5sum[:])
		if want != got {
			return apierr.New(apierr.BadRequest, "Unable to validate content-md5")
		}
	}
	return nil
}

func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// md5Hex is a small convenience used when rendering an ETag.
func md5Hex(sum [16]byte) string {
	return hex.EncodeToString(sum[:])
}
