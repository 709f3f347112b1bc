// CookieJar - A contestant's algorithm toolbox
// Copyright (c) 2013 Peter Szilagyi. All rights reserved.
//
// CookieJar is dual licensed: use of this source code is governed by a BSD
// license that can be found in the LICENSE file. Alternatively, the CookieJar
// toolbox may be used in accordance with the terms and conditions contained
// in a signed written agreement between you and the author(s).

package prque

// SetIndexCallback is called whenever an item's position in the backing
// store changes, so a caller can keep an external index up to date (used by
// Remove). May be nil.
type SetIndexCallback[V any] func(data V, index int)

type item[P ~int64 | ~int | ~uint64, V any] struct {
	value    V
	priority P
}

// sstack implements heap.Interface over a flat slice of items, tracked in
// blockSize-sized chunks purely to match the historical benchmark shape of
// this package; it carries no other significance.
type sstack[P ~int64 | ~int | ~uint64, V any] struct {
	setIndex SetIndexCallback[V]
	blocks   [][]*item[P, V]
	active   int
	size     int
}

func newSstack[P ~int64 | ~int | ~uint64, V any](setIndex SetIndexCallback[V]) *sstack[P, V] {
	result := new(sstack[P, V])
	result.setIndex = setIndex
	result.blocks = [][]*item[P, V]{make([]*item[P, V], blockSize)}
	result.active = 0
	return result
}

func (s *sstack[P, V]) Push(data any) {
	it := data.(*item[P, V])
	if s.size == len(s.blocks)*blockSize {
		s.blocks = append(s.blocks, make([]*item[P, V], blockSize))
	}
	s.blocks[s.size/blockSize][s.size%blockSize] = it
	if s.setIndex != nil {
		s.setIndex(it.value, s.size)
	}
	s.size++
}

func (s *sstack[P, V]) Pop() any {
	s.size--
	idx := s.size
	it := s.blocks[idx/blockSize][idx%blockSize]
	s.blocks[idx/blockSize][idx%blockSize] = nil
	if s.setIndex != nil {
		s.setIndex(it.value, -1)
	}
	if len(s.blocks) > 1 && s.size <= (len(s.blocks)-1)*blockSize {
		s.blocks = s.blocks[:len(s.blocks)-1]
	}
	return it
}

func (s *sstack[P, V]) Len() int { return s.size }

func (s *sstack[P, V]) Less(i, j int) bool {
	return s.blocks[i/blockSize][i%blockSize].priority > s.blocks[j/blockSize][j%blockSize].priority
}

func (s *sstack[P, V]) Swap(i, j int) {
	ib, jb := i/blockSize, j/blockSize
	io, jo := i%blockSize, j%blockSize
	s.blocks[ib][io], s.blocks[jb][jo] = s.blocks[jb][jo], s.blocks[ib][io]
	if s.setIndex != nil {
		s.setIndex(s.blocks[ib][io].value, i)
		s.setIndex(s.blocks[jb][jo].value, j)
	}
}
