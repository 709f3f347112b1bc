// Copyright 2022 The go-ethereum Authors
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

// Package lru provides a basic least-recently-used cache. No other package
// in this module imports it: the DAG variant's weak-parent selection scans
// ProposalManager's block table, and txntable's replay window uses
// hashicorp/golang-lru.
package lru

import "container/list"

// BasicLRU implements a fixed-size LRU cache without any instrumentation. It
// is not safe for concurrent use; callers that need concurrency safety
// should wrap it in their own lock.
type BasicLRU[K comparable, V any] struct {
	list  *list.List
	items map[K]*list.Element
	cap   int
}

type cacheItem[K any, V any] struct {
	k K
	v V
}

// NewBasicLRU creates a new LRU cache with the given capacity. Capacity <= 0
// is treated as 1.
func NewBasicLRU[K comparable, V any](capacity int) *BasicLRU[K, V] {
	if capacity <= 0 {
		capacity = 1
	}
	c := &BasicLRU[K, V]{
		items: make(map[K]*list.Element),
		list:  list.New(),
		cap:   capacity,
	}
	return c
}

// Add adds a value to the cache. Returns true if an eviction occurred.
func (c *BasicLRU[K, V]) Add(key K, value V) (evicted bool) {
	if el, ok := c.items[key]; ok {
		el.Value.(*cacheItem[K, V]).v = value
		c.list.MoveToFront(el)
		return false
	}
	el := c.list.PushFront(&cacheItem[K, V]{key, value})
	c.items[key] = el
	if c.list.Len() > c.cap {
		c.removeOldest()
		return true
	}
	return false
}

// Contains reports whether key is present, without updating recency.
func (c *BasicLRU[K, V]) Contains(key K) bool {
	_, ok := c.items[key]
	return ok
}

// Get retrieves a value and marks it most-recently used.
func (c *BasicLRU[K, V]) Get(key K) (value V, ok bool) {
	if el, ok := c.items[key]; ok {
		c.list.MoveToFront(el)
		return el.Value.(*cacheItem[K, V]).v, true
	}
	return value, false
}

// Peek retrieves a value without marking it most-recently used.
func (c *BasicLRU[K, V]) Peek(key K) (value V, ok bool) {
	if el, ok := c.items[key]; ok {
		return el.Value.(*cacheItem[K, V]).v, true
	}
	return value, false
}

// Remove drops key from the cache, returning true if it was present.
func (c *BasicLRU[K, V]) Remove(key K) bool {
	if el, ok := c.items[key]; ok {
		c.list.Remove(el)
		delete(c.items, key)
		return true
	}
	return false
}

// GetOldest returns the least-recently used entry.
func (c *BasicLRU[K, V]) GetOldest() (key K, value V, ok bool) {
	el := c.list.Back()
	if el == nil {
		return key, value, false
	}
	it := el.Value.(*cacheItem[K, V])
	return it.k, it.v, true
}

// RemoveOldest evicts the least-recently used entry.
func (c *BasicLRU[K, V]) RemoveOldest() (key K, value V, ok bool) {
	el := c.list.Back()
	if el == nil {
		return key, value, false
	}
	it := el.Value.(*cacheItem[K, V])
	c.list.Remove(el)
	delete(c.items, it.k)
	return it.k, it.v, true
}

func (c *BasicLRU[K, V]) removeOldest() {
	el := c.list.Back()
	if el == nil {
		return
	}
	it := el.Value.(*cacheItem[K, V])
	c.list.Remove(el)
	delete(c.items, it.k)
}

// Len returns the number of entries currently in the cache.
func (c *BasicLRU[K, V]) Len() int { return c.list.Len() }

// Purge empties the cache.
func (c *BasicLRU[K, V]) Purge() {
	c.list.Init()
	c.items = make(map[K]*list.Element)
}

// Keys returns all keys, oldest first.
func (c *BasicLRU[K, V]) Keys() []K {
	keys := make([]K, 0, c.list.Len())
	for el := c.list.Back(); el != nil; el = el.Prev() {
		keys = append(keys, el.Value.(*cacheItem[K, V]).k)
	}
	return keys
}
