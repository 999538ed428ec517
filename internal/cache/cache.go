// Package cache stores scan results so repeat navigations to the same URL
// skip the fetch and inference path.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"
)

// Cache is a byte cache with per-entry TTL. A zero TTL selects the cache default.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

const keyPrefix = "phishlens:v1:"

// Key derives a cache key from a URL. Scheme and host case and the fragment
// do not change the key; everything else does.
func Key(rawURL string) string {
	hash := sha256.Sum256([]byte(canonicalURL(rawURL)))
	return keyPrefix + hex.EncodeToString(hash[:])
}

func canonicalURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
