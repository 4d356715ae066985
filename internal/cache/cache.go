// Package cache provides a small generic in-memory cache, adapted from the
// teacher's cachemanager package: a typed interface over
// github.com/patrickmn/go-cache, used here to memoize fingerprint
// computations so repeated scans within one process (e.g. a dry-run
// followed by the real publish) don't re-hash unchanged package trees.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/pkglab/pkglab/internal/log"
)

// DefaultExpiration and DefaultCleanupInterval match the teacher's
// cachemanager defaults, which are generous enough for a short-lived CLI
// process but bound memory if pkglab is ever embedded in a longer-lived
// daemon.
const (
	DefaultExpiration      = 10 * time.Minute
	DefaultCleanupInterval = 30 * time.Minute
)

// Manager is a typed cache keyed by K, holding values of type V.
type Manager[K ~string, V any] struct {
	useCase string
	cache   *gocache.Cache
}

// New creates a Manager for useCase (used only for log attribution).
func New[K ~string, V any](useCase string, defaultExpiration, cleanupInterval time.Duration) *Manager[K, V] {
	return &Manager[K, V]{useCase: useCase, cache: gocache.New(defaultExpiration, cleanupInterval)}
}

// Get returns the cached value for key, if present and well-typed.
func (m *Manager[K, V]) Get(key K) (V, bool) {
	var zero V
	raw, found := m.cache.Get(string(key))
	if !found {
		return zero, false
	}
	v, ok := raw.(V)
	if !ok {
		log.Error(log.CatFingerprint, "cache type assertion failed", "useCase", m.useCase, "key", key)
		return zero, false
	}
	return v, true
}

// Set stores value under key with the Manager's default expiration.
func (m *Manager[K, V]) Set(key K, value V) {
	m.cache.Set(string(key), value, gocache.DefaultExpiration)
}
