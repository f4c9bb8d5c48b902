package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ppiankov/cogito/internal/model"
)

// Cache stores serialized resolver and fetch results
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key builds a namespaced cache key from its parts. Parts are length-framed
// so ("ab", "c") and ("a", "bc") never collide.
func Key(namespace string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%d:%s|", len(p), p)
	}
	return "cogito_v1_" + namespace + "_" + hex.EncodeToString(h.Sum(nil))
}

// GetJSON decodes a cached JSON value. A decode failure counts as a miss.
func GetJSON[T any](c Cache, key string) (T, bool) {
	var v T
	data, found := c.Get(key)
	if !found {
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, false
	}
	return v, true
}

// SetJSON encodes v as JSON and stores it
func SetJSON(c Cache, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	return c.Set(key, data, ttl)
}

// New builds the cache described by cfg: a no-op cache when disabled, memory
// only when no directory is set, memory over disk otherwise
func New(cfg model.CacheConfig) Cache {
	if !cfg.Enabled {
		return Noop{}
	}
	memory := NewMemoryCache(cfg.TTL, 10*time.Minute)
	if cfg.Dir == "" {
		return memory
	}
	return NewLayeredCache(memory, NewDiskCache(cfg.Dir, cfg.DiskTTL))
}

// Noop never stores anything
type Noop struct{}

func (Noop) Get(string) ([]byte, bool) { return nil, false }

func (Noop) Set(string, []byte, time.Duration) error { return nil }

func (Noop) Delete(string) error { return nil }

func (Noop) Clear() error { return nil }
