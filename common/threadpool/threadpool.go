// Copyright 2020 The go-ethereum Authors
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

// Package threadpool hands out small stable integer ids to the fixed pool of
// worker goroutines the concurrency model starts at replica boot (one set
// per input/output/worker/batching/checkpoint/execution thread, §5). The id
// is used to name per-worker metrics and log fields ("worker=3") without
// requiring every call site to thread a goroutine-local identifier through.
package threadpool

import "sync"

// ThreadPool hands out ids in the range [0, n) on Get and returns them to the
// pool on Put. It blocks callers when every id is checked out.
type ThreadPool struct {
	mu   sync.Mutex
	cond *sync.Cond
	free []int
}

// NewThreadPool creates a pool of n ids.
func NewThreadPool(n int) *ThreadPool {
	tp := &ThreadPool{
		free: make([]int, n),
	}
	for i := range tp.free {
		tp.free[i] = i
	}
	tp.cond = sync.NewCond(&tp.mu)
	return tp
}

// Get checks out an id, blocking until one becomes available.
func (tp *ThreadPool) Get() int {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	for len(tp.free) == 0 {
		tp.cond.Wait()
	}
	n := len(tp.free) - 1
	id := tp.free[n]
	tp.free = tp.free[:n]
	return id
}

// Put returns an id to the pool.
func (tp *ThreadPool) Put(id int) {
	tp.mu.Lock()
	tp.free = append(tp.free, id)
	tp.mu.Unlock()
	tp.cond.Signal()
}
