// Copyright 2016 The go-ethereum Authors
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

// Package mclock is a wrapper for a monotonic clock source. It exists so the
// per-batch view-change timer (§4.11) can be driven by a Simulated clock in
// tests, without sleeping.
package mclock

import (
	"time"
)

// AbsTime represents an absolute monotonic time in nanoseconds.
type AbsTime int64

// Now returns the current absolute monotonic time.
func Now() AbsTime {
	return AbsTime(monotime())
}

// Add returns t + d.
func (t AbsTime) Add(d time.Duration) AbsTime {
	return t + AbsTime(d)
}

// Sub returns t - t2.
func (t AbsTime) Sub(t2 AbsTime) time.Duration {
	return time.Duration(t - t2)
}

// Clock interface makes it possible to replace the monotonic system clock
// with a simulated clock in tests.
type Clock interface {
	Now() AbsTime
	Sleep(time.Duration)
	NewTimer(time.Duration) ChanTimer
	After(time.Duration) <-chan AbsTime
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer represents a cancellable event returned by AfterFunc.
type Timer interface {
	// Stop cancels the timer. It returns false if the timer has already expired or been stopped.
	Stop() bool
}

// ChanTimer is a Timer that expires by sending a value on its channel.
type ChanTimer interface {
	Timer
	C() <-chan AbsTime
	Reset(time.Duration)
}

// System implements Clock using the system clock.
type System struct{}

func (System) Now() AbsTime { return Now() }

func (System) Sleep(d time.Duration) { time.Sleep(d) }

func (System) After(d time.Duration) <-chan AbsTime {
	ch := make(chan AbsTime, 1)
	t := time.AfterFunc(d, func() { ch <- Now() })
	_ = t
	return ch
}

func (System) NewTimer(d time.Duration) ChanTimer {
	ch := make(chan AbsTime, 1)
	t := time.AfterFunc(d, func() {
		select {
		case ch <- Now():
		default:
		}
	})
	return &systemTimer{t, ch}
}

func (System) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type systemTimer struct {
	*time.Timer
	ch chan AbsTime
}

func (st *systemTimer) C() <-chan AbsTime { return st.ch }

func (st *systemTimer) Reset(d time.Duration) { st.Timer.Reset(d) }

func monotime() int64 {
	return int64(time.Now().UnixNano())
}
