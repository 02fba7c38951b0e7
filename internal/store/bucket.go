package store

import (
	"net"
	"strings"

	"github.com/pkg/errors"

	"github.com/kelindar/objectstore/internal/ids"
)

// Quotas is the soft per-bucket cap on object count and total size,
// evaluated against the eventually-consistent CounterTable.
type Quotas struct {
	MaxObjects *uint64
	MaxSize    *uint64
}

// BucketState is the CRDT-carried bucket state the core consumes: its
// quotas and the authorized-keys map (the latter belongs to the
// authentication layer and is treated opaquely here).
type BucketState struct {
	Quotas         Quotas
	AuthorizedKeys map[string]string
}

// Bucket is the external entity the core reads but does not own; the
// administration surface that creates/mutates buckets is out of scope
// (spec.md §1).
type Bucket struct {
	ID    ids.Uuid
	Name  string
	State *BucketState
}

// ErrInvalidBucketName is returned by ValidateBucketName.
var ErrInvalidBucketName = errors.New("invalid bucket name")

// ValidateBucketName enforces spec.md §6's bucket name rules. The s3api
// router calls it on the bucket segment of every request path and
// answers NotFound for a name that fails; the rule set is kept here
// since it is part of this package's data model for Bucket.
func ValidateBucketName(name string) error {
	if len(name) < 3 || len(name) > 63 {
		return errors.Wrapf(ErrInvalidBucketName, "%q: must be 3-63 characters", name)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '-':
		default:
			return errors.Wrapf(ErrInvalidBucketName, "%q: contains invalid character %q", name, r)
		}
	}
	if strings.HasPrefix(name, "-") || strings.HasSuffix(name, "-") {
		return errors.Wrapf(ErrInvalidBucketName, "%q: must not start or end with a hyphen", name)
	}
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return errors.Wrapf(ErrInvalidBucketName, "%q: must not start or end with a dot", name)
	}
	if strings.Contains(name, "..") {
		return errors.Wrapf(ErrInvalidBucketName, "%q: must not contain consecutive dots", name)
	}
	if strings.HasPrefix(name, "xn--") {
		return errors.Wrapf(ErrInvalidBucketName, "%q: must not start with xn--", name)
	}
	if strings.HasSuffix(name, "-s3alias") {
		return errors.Wrapf(ErrInvalidBucketName, "%q: must not end with -s3alias", name)
	}
	if net.ParseIP(name) != nil {
		return errors.Wrapf(ErrInvalidBucketName, "%q: must not be formatted as an IP address", name)
	}
	return nil
}
