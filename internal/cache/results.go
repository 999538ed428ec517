package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ppiankov/phishlens/internal/model"
)

// ResultStore keeps the last ScanResult per URL
type ResultStore struct {
	cache Cache
	ttl   time.Duration
}

// NewResultStore wraps a byte cache. A zero ttl uses the cache default.
func NewResultStore(c Cache, ttl time.Duration) *ResultStore {
	return &ResultStore{cache: c, ttl: ttl}
}

// Get returns the cached result for rawURL
func (s *ResultStore) Get(rawURL string) (*model.ScanResult, bool) {
	data, ok := s.cache.Get(Key(rawURL))
	if !ok {
		return nil, false
	}

	var result model.ScanResult
	if err := json.Unmarshal(data, &result); err != nil {
		_ = s.cache.Delete(Key(rawURL))
		return nil, false
	}
	return &result, true
}

// Put caches result under its URL. Degraded results are never cached.
func (s *ResultStore) Put(result *model.ScanResult) error {
	if result == nil || result.Error != "" {
		return nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return s.cache.Set(Key(result.URL), data, s.ttl)
}

// Forget drops the cached result for rawURL
func (s *ResultStore) Forget(rawURL string) error {
	return s.cache.Delete(Key(rawURL))
}
