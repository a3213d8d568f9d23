// Package lru provides a bounded, insertion-ordered set with
// least-recently-marked eviction, used by the integrity tracker to bound its
// per-symbol duplicate trade-id memory.
package lru

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Set is a bounded set of comparable items. Contains and Add both count as
// "marking" an item most-recent, so a membership check alone is enough to
// keep a hot item from being evicted.
type Set[T comparable] struct {
	cache *lru.Cache[T, struct{}]
}

// NewSet constructs a Set bounded at maxSize entries. maxSize <= 0 is
// clamped to 1, since the underlying cache requires a positive size.
func NewSet[T comparable](maxSize int) *Set[T] {
	if maxSize <= 0 {
		maxSize = 1
	}
	cache, _ := lru.New[T, struct{}](maxSize)
	return &Set[T]{cache: cache}
}

// Contains reports whether x is present, re-marking it as most-recently-used
// if so. Uses Get rather than Contains on the underlying cache because Get
// promotes the entry and Contains does not.
func (s *Set[T]) Contains(x T) bool {
	_, ok := s.cache.Get(x)
	return ok
}

// Add inserts x, or re-marks it most-recent if already present, evicting the
// least-recently-marked entry if the set is now over capacity.
func (s *Set[T]) Add(x T) {
	s.cache.Add(x, struct{}{})
}

// Len returns the current number of entries.
func (s *Set[T]) Len() int {
	return s.cache.Len()
}
