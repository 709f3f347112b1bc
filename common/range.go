// Copyright 2025 The go-ethereum Authors
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

import "iter"

// Integer is the set of types Range can be instantiated over.
type Integer interface {
	~int | ~int32 | ~int64 | ~uint | ~uint32 | ~uint64
}

// Range is an inclusive [Start, End] span of contiguous ids, used for a
// batch's txn_id range (§3 Batch) and for watermark windows (§3 Watermarks).
type Range[T Integer] struct {
	Start, End T
}

// NewRange builds an inclusive range. If end < start the range is empty.
func NewRange[T Integer](start, end T) Range[T] {
	return Range[T]{Start: start, End: end}
}

// Len returns the number of ids contained, 0 for an empty range.
func (r Range[T]) Len() T {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Contains reports whether id lies within [Start, End].
func (r Range[T]) Contains(id T) bool {
	return id >= r.Start && id <= r.End
}

// Iter yields every id in the range in increasing order.
func (r Range[T]) Iter() iter.Seq[T] {
	return func(yield func(T) bool) {
		for v := r.Start; v <= r.End; v++ {
			if !yield(v) {
				return
			}
			if v == r.End {
				break
			}
		}
	}
}
