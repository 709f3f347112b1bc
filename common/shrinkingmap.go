// Copyright 2023 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package common

// ShrinkingMap is a map that periodically reallocates its backing storage
// once enough entries have been deleted, so that garbage-collecting old
// TxnManagers (§4.10) actually returns memory instead of leaving tombstones
// in a Go map forever.
type ShrinkingMap[K comparable, V any] struct {
	m             map[K]V
	deletedKeys   int
	shrinkAfter   int
}

// NewShrinkingMap builds a map that reallocates once shrinkAfter deletions
// have accumulated. shrinkAfter <= 0 disables shrinking.
func NewShrinkingMap[K comparable, V any](shrinkAfter int) *ShrinkingMap[K, V] {
	return &ShrinkingMap[K, V]{
		m:           make(map[K]V),
		shrinkAfter: shrinkAfter,
	}
}

func (s *ShrinkingMap[K, V]) Set(k K, v V) {
	s.m[k] = v
}

func (s *ShrinkingMap[K, V]) Get(k K) (V, bool) {
	v, ok := s.m[k]
	return v, ok
}

func (s *ShrinkingMap[K, V]) Has(k K) bool {
	_, ok := s.m[k]
	return ok
}

func (s *ShrinkingMap[K, V]) Delete(k K) bool {
	if _, ok := s.m[k]; !ok {
		return false
	}
	delete(s.m, k)
	if s.shrinkAfter <= 0 {
		return true
	}
	s.deletedKeys++
	if s.deletedKeys >= s.shrinkAfter {
		s.shrink()
	}
	return true
}

func (s *ShrinkingMap[K, V]) shrink() {
	fresh := make(map[K]V, len(s.m))
	for k, v := range s.m {
		fresh[k] = v
	}
	s.m = fresh
	s.deletedKeys = 0
}

func (s *ShrinkingMap[K, V]) Size() int { return len(s.m) }

// Keys returns every live key, in unspecified order.
func (s *ShrinkingMap[K, V]) Keys() []K {
	keys := make([]K, 0, len(s.m))
	for k := range s.m {
		keys = append(keys, k)
	}
	return keys
}

// ForEach calls fn for every live entry; stops early if fn returns false.
func (s *ShrinkingMap[K, V]) ForEach(fn func(K, V) bool) {
	for k, v := range s.m {
		if !fn(k, v) {
			return
		}
	}
}
