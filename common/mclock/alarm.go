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

package mclock

import (
	"sync"
	"time"
)

// Alarm sends timed notifications on a channel. It drives the view-change
// timer (§4.11): the timer is (re)scheduled for the deadline of the oldest
// outstanding batch and fires when no commit certificate has arrived in time.
// Scheduling for an earlier deadline than the one already pending moves the
// timer up; scheduling for a later one is ignored, matching the "fire no
// later than the earliest requested deadline" semantics the view-change
// timer needs.
type Alarm struct {
	mu       sync.Mutex
	clock    Clock
	timer    Timer
	deadline AbsTime
	pending  bool
	c        chan struct{}
}

// NewAlarm creates a new Alarm driven by clock. A nil clock uses the system
// clock.
func NewAlarm(clock Clock) *Alarm {
	if clock == nil {
		clock = System{}
	}
	return &Alarm{
		clock: clock,
		c:     make(chan struct{}, 1),
	}
}

// C returns the channel the alarm fires on.
func (e *Alarm) C() <-chan struct{} {
	return e.c
}

// Schedule arms the alarm to fire at (or after) deadline.
func (e *Alarm) Schedule(deadline AbsTime) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if e.pending && e.deadline <= deadline {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	d := deadline - now
	if d < 0 {
		d = 0
	}
	e.deadline = deadline
	e.pending = true
	e.timer = e.clock.AfterFunc(time.Duration(d), func() {
		e.mu.Lock()
		e.pending = false
		e.mu.Unlock()
		select {
		case e.c <- struct{}{}:
		default:
		}
	})
}
