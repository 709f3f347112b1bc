// CookieJar - A contestant's algorithm toolbox
// Copyright (c) 2013 Peter Szilagyi. All rights reserved.
//
// CookieJar is dual licensed: use of this source code is governed by a BSD
// license that can be found in the LICENSE file. Alternatively, the CookieJar
// toolbox may be used in accordance with the terms and conditions contained
// in a signed written agreement between you and the author(s).

// Package prque provides a priority queue used by the execution thread
// (§4.9) to re-enqueue EXECUTE messages that arrive out of order without
// busy-spinning: a message for txn_id n+5 is parked with priority -n-5 so
// that the lowest pending id is always popped first once it becomes the
// expected id.
package prque

import (
	"container/heap"
)

const blockSize = 4096

// Prque is a priority queue, supporting arbitrary value types and int64
// priorities. Lower numerical value does not imply pop order by itself —
// Pop always returns the item with the highest priority value first, so
// callers that want smallest-first behavior push with negated priorities.
type Prque[P ~int64 | ~int | ~uint64, V any] struct {
	cont *sstack[P, V]
}

// New creates a new priority queue.
func New[P ~int64 | ~int | ~uint64, V any](setIndex SetIndexCallback[V]) *Prque[P, V] {
	return &Prque[P, V]{cont: newSstack[P, V](setIndex)}
}

// Push adds a value with the given priority.
func (p *Prque[P, V]) Push(data V, priority P) {
	heap.Push(p.cont, &item[P, V]{data, priority})
}

// Peek returns the value with the greatest priority but does not pop it off.
func (p *Prque[P, V]) Peek() (V, P) {
	it := p.cont.blocks[0][0]
	return it.value, it.priority
}

// Pop removes the value with the greatest priority.
func (p *Prque[P, V]) Pop() (V, P) {
	it := heap.Pop(p.cont).(*item[P, V])
	return it.value, it.priority
}

// PopItem pops only the item, not the priority.
func (p *Prque[P, V]) PopItem() V {
	v, _ := p.Pop()
	return v
}

// Remove deletes the item at the given index.
func (p *Prque[P, V]) Remove(i int) V {
	return heap.Remove(p.cont, i).(*item[P, V]).value
}

// Empty checks whether the queue is empty.
func (p *Prque[P, V]) Empty() bool {
	return p.cont.Len() == 0
}

// Size returns the number of elements in the queue.
func (p *Prque[P, V]) Size() int {
	return p.cont.Len()
}

// Reset clears the queue, removing all entries.
func (p *Prque[P, V]) Reset() {
	*p.cont = *newSstack[P, V](p.cont.setIndex)
}
