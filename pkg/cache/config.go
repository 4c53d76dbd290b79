package cache

import (
	"fmt"

	"github.com/sorryhyun/DiPeO-sub002/errors"
)

// Type identifies a cache implementation.
type Type string

const (
	// TypeSimple is a cache without eviction.
	TypeSimple Type = "simple"
	// TypeLRU is a size-bounded least-recently-used cache.
	TypeLRU Type = "lru"
)

// Config describes a cache to construct via NewFromConfig.
type Config struct {
	Type    Type `json:"type"`
	MaxSize int  `json:"max_size,omitempty"` // Required for LRU
}

// NewFromConfig creates a cache from declarative configuration.
func NewFromConfig[V any](config Config, options ...Option[V]) (Cache[V], error) {
	switch config.Type {
	case TypeSimple:
		return NewSimple[V](options...)
	case TypeLRU:
		return NewLRU[V](config.MaxSize, options...)
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("unknown cache type: %s", config.Type),
			"cache", "NewFromConfig", "cache type validation")
	}
}

// NewLRU creates a new LRU cache with the specified maximum size.
func NewLRU[V any](maxSize int, options ...Option[V]) (Cache[V], error) {
	if maxSize <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("max size must be positive, got %d", maxSize),
			"cache", "NewLRU", "size validation")
	}
	return newLRUCache(maxSize, applyOptions(options...))
}

// NewSimple creates a new cache without eviction.
func NewSimple[V any](options ...Option[V]) (Cache[V], error) {
	return newSimpleCache(applyOptions(options...))
}
