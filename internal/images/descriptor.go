// Package images resolves product images to time-limited signed URLs and keeps
// the resolved sets in a shared cache so that repeat requests for the same
// product do not hit object storage.
//
// Every product's images live under the "{productID}/" prefix of the bucket.
// A cached set is served only while all of its URLs stay valid for at least
// the configured buffer; otherwise the set is rebuilt from storage.
//
// A product whose listing fails is served the default image without caching
// it, so the real images reappear as soon as storage recovers. Only an empty
// listing caches the default, for the shorter fallback TTL.
package images

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrSigningFailed wraps storage errors raised while presigning a key.
	ErrSigningFailed = errors.New("signing failed")

	// ErrInvalidProductID is returned for product IDs that are not positive.
	ErrInvalidProductID = errors.New("invalid product id")

	// ErrInvalidFilename is returned for object names that would escape the
	// product's prefix.
	ErrInvalidFilename = errors.New("invalid filename")
)

// Descriptor describes one product image and the signed URL to fetch it.
type Descriptor struct {
	URL       string    `json:"url,omitempty"`
	Filename  string    `json:"filename"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
	IsDefault bool      `json:"is_default"`
	// Error is set only on a default descriptor that could not be signed.
	Error string `json:"error,omitempty"`
}

// Entry is the cached form of a product's resolved image set.
type Entry struct {
	Images    []Descriptor `json:"images"`
	CachedAt  time.Time    `json:"cached_at"`
	IsDefault bool         `json:"is_default"`
}

// validAt reports whether every URL in the entry stays usable for longer
// than buffer after now. Entries without images are never valid.
func (e Entry) validAt(now time.Time, buffer time.Duration) bool {
	if len(e.Images) == 0 {
		return false
	}
	deadline := now.Add(buffer)
	for _, img := range e.Images {
		if !deadline.Before(img.ExpiresAt) {
			return false
		}
	}
	return true
}

// CacheKey returns the cache key under which a product's image set is stored.
func CacheKey(productID int64) string {
	return fmt.Sprintf("product_images_%d", productID)
}

// Prefix returns the storage prefix holding a product's images.
func Prefix(productID int64) string {
	return fmt.Sprintf("%d/", productID)
}

// ObjectKey returns the storage key for filename under productID's prefix.
func ObjectKey(productID int64, filename string) (string, error) {
	if productID <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidProductID, productID)
	}
	if filename == "" || filename == "." || filename == ".." ||
		strings.ContainsAny(filename, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}
	return Prefix(productID) + filename, nil
}

// ParseForceRefresh interprets a force_refresh query parameter. Only "true",
// "1" and "yes" (any case) enable it.
func ParseForceRefresh(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		return true
	}
	return false
}
