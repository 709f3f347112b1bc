package txntable

import "github.com/VictoriaMetrics/fastcache"

// ScratchCache holds a byte-slice cache of recently-built canonical
// signing strings (wire.Body.CanonicalString, §4.2), keyed by batch hash.
// No other package constructs one: the batching thread builds its
// canonical string without this cache.
type ScratchCache struct {
	c *fastcache.Cache
}

// NewScratchCache builds a ScratchCache with maxBytes of backing storage.
func NewScratchCache(maxBytes int) *ScratchCache {
	return &ScratchCache{c: fastcache.New(maxBytes)}
}

// Get returns the cached canonical string for key, if present.
func (s *ScratchCache) Get(key []byte) ([]byte, bool) {
	dst := s.c.Get(nil, key)
	return dst, len(dst) > 0
}

// Set stores the canonical string for key.
func (s *ScratchCache) Set(key, value []byte) {
	s.c.Set(key, value)
}

// Reset drops every cached entry. Table's checkpoint GC does not call it.
func (s *ScratchCache) Reset() {
	s.c.Reset()
}
