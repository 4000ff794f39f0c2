// Package storage provides the blob store used for candidate recordings and
// synthesized speech. Keys are opaque, caller-chosen strings; cache entries
// use content-addressed keys so concurrent writers of the same key always
// write identical bytes.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// ErrNotFound is returned when a blob does not exist.
var ErrNotFound = errors.New("storage: blob not found")

// BlobInfo describes a stored blob without fetching its bytes.
type BlobInfo struct {
	Size   int64
	MIME   string
	Exists bool
}

// BlobStore is the minimal blob surface the engine consumes.
//
// Implementations must be safe for concurrent use. No retry policy is
// implemented here; retries belong to callers.
type BlobStore interface {
	// Put stores data under key with the given MIME type, overwriting any
	// existing blob.
	Put(ctx context.Context, key string, data []byte, mime string) error

	// Get returns the blob's bytes. Returns ErrNotFound for missing keys.
	Get(ctx context.Context, key string) ([]byte, error)

	// Sign returns a URL granting read access to key for the given TTL.
	Sign(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Head reports size, MIME type and existence without reading the body.
	Head(ctx context.Context, key string) (BlobInfo, error)
}

// ContentKey derives the content-addressed cache key for the given parts:
// the hex sha256 over their concatenation. Identical inputs always map to
// the same key, which makes cache writes idempotent by construction.
func ContentKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
