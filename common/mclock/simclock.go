// Copyright 2018 The go-ethereum Authors
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

package mclock

import (
	"container/heap"
	"sync"
	"time"
)

// Simulated implements Clock for testing. It simulates a virtual clock that
// only advances when Run is called, letting view-change timer tests (§4.11,
// §8 scenario 3) assert exact firing order without sleeping in real time.
type Simulated struct {
	mu     sync.RWMutex
	now    AbsTime
	timers simTimerHeap
	cond   *sync.Cond
}

type simTimer struct {
	at       AbsTime
	callback func()
	index    int
	c        chan AbsTime
}

func (s *Simulated) init() {
	if s.cond == nil {
		s.cond = sync.NewCond(&s.mu)
	}
}

// WaitForTimers blocks until the clock has at least n scheduled timers. It is
// used by tests that race a goroutine calling Sleep against the Run that
// advances the clock past the sleep deadline.
func (s *Simulated) WaitForTimers(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	for len(s.timers) < n {
		s.cond.Wait()
	}
}

// Run moves the clock forward by d and fires any timer scheduled at or
// before the new time.
func (s *Simulated) Run(d time.Duration) {
	s.mu.Lock()
	s.init()
	end := s.now + AbsTime(d)
	var fired []func()
	for len(s.timers) > 0 && s.timers[0].at <= end {
		t := heap.Pop(&s.timers).(*simTimer)
		fired = append(fired, func() { t.callback() })
		if t.c != nil {
			at := t.at
			fired = append(fired, func() {
				select {
				case t.c <- at:
				default:
				}
			})
		}
	}
	s.now = end
	s.mu.Unlock()

	for _, f := range fired {
		f()
	}
}

// ActiveTimers returns the number of timers currently scheduled.
func (s *Simulated) ActiveTimers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.timers)
}

func (s *Simulated) Now() AbsTime {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now
}

func (s *Simulated) Sleep(d time.Duration) {
	<-s.After(d)
}

func (s *Simulated) After(d time.Duration) <-chan AbsTime {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	ch := make(chan AbsTime, 1)
	t := &simTimer{at: s.now + AbsTime(d), c: ch, callback: func() {}}
	heap.Push(&s.timers, t)
	s.cond.Broadcast()
	return ch
}

func (s *Simulated) NewTimer(d time.Duration) ChanTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	ch := make(chan AbsTime, 1)
	t := &simTimer{at: s.now + AbsTime(d), c: ch, callback: func() {}}
	heap.Push(&s.timers, t)
	s.cond.Broadcast()
	return &simChanTimer{s: s, t: t}
}

func (s *Simulated) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	t := &simTimer{at: s.now + AbsTime(d), callback: f}
	heap.Push(&s.timers, t)
	s.cond.Broadcast()
	return &simChanTimer{s: s, t: t}
}

func (s *Simulated) removeTimer(t *simTimer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.index < 0 || t.index >= len(s.timers) || s.timers[t.index] != t {
		return false
	}
	heap.Remove(&s.timers, t.index)
	return true
}

type simChanTimer struct {
	s *Simulated
	t *simTimer
}

func (st *simChanTimer) C() <-chan AbsTime { return st.t.c }

func (st *simChanTimer) Stop() bool { return st.s.removeTimer(st.t) }

func (st *simChanTimer) Reset(d time.Duration) {
	st.s.removeTimer(st.t)
	st.s.mu.Lock()
	st.t.at = st.s.now + AbsTime(d)
	heap.Push(&st.s.timers, st.t)
	st.s.cond.Broadcast()
	st.s.mu.Unlock()
}

type simTimerHeap []*simTimer

func (h simTimerHeap) Len() int            { return len(h) }
func (h simTimerHeap) Less(i, j int) bool  { return h[i].at < h[j].at }
func (h simTimerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *simTimerHeap) Push(x any) {
	t := x.(*simTimer)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *simTimerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
