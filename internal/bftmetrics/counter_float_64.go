// Copyright 2013 The rcrowley/go-metrics Authors
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

package metrics

import "sync"

// CounterFloat64 holds a running float64 total, used for cumulative
// fractional quantities such as total bytes of state transferred.
type CounterFloat64 interface {
	Clear()
	Dec(float64)
	Inc(float64)
	Snapshot() CounterFloat64
	Count() float64
}

// NewCounterFloat64 constructs a new StandardCounterFloat64.
func NewCounterFloat64() CounterFloat64 {
	return &StandardCounterFloat64{}
}

// NewRegisteredCounterFloat64 constructs and registers a new StandardCounterFloat64.
func NewRegisteredCounterFloat64(name string, r Registry) CounterFloat64 {
	c := NewCounterFloat64()
	if r == nil {
		r = DefaultRegistry
	}
	r.Register(name, c)
	return c
}

// GetOrRegisterCounterFloat64 returns an existing CounterFloat64 or
// constructs and registers a new StandardCounterFloat64.
func GetOrRegisterCounterFloat64(name string, r Registry) CounterFloat64 {
	if r == nil {
		r = DefaultRegistry
	}
	return r.GetOrRegister(name, NewCounterFloat64).(CounterFloat64)
}

// CounterFloat64Snapshot is a read-only copy of a CounterFloat64.
type CounterFloat64Snapshot float64

// Clear panics.
func (CounterFloat64Snapshot) Clear() {
	panic("Clear called on a CounterFloat64Snapshot")
}

// Dec panics.
func (CounterFloat64Snapshot) Dec(float64) {
	panic("Dec called on a CounterFloat64Snapshot")
}

// Inc panics.
func (CounterFloat64Snapshot) Inc(float64) {
	panic("Inc called on a CounterFloat64Snapshot")
}

// Snapshot returns itself.
func (c CounterFloat64Snapshot) Snapshot() CounterFloat64 { return c }

// Count returns the count at the time the snapshot was taken.
func (c CounterFloat64Snapshot) Count() float64 { return float64(c) }

// StandardCounterFloat64 is the standard implementation of a CounterFloat64,
// guarded by a mutex since there is no atomic float64 add in the stdlib.
type StandardCounterFloat64 struct {
	mutex sync.Mutex
	count float64
}

// Clear sets the counter to zero.
func (c *StandardCounterFloat64) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.count = 0
}

// Dec decrements the counter by delta.
func (c *StandardCounterFloat64) Dec(delta float64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.count -= delta
}

// Inc increments the counter by delta.
func (c *StandardCounterFloat64) Inc(delta float64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.count += delta
}

// Snapshot returns a read-only copy of the counter.
func (c *StandardCounterFloat64) Snapshot() CounterFloat64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return CounterFloat64Snapshot(c.count)
}

// Count returns the current value.
func (c *StandardCounterFloat64) Count() float64 {
	return c.Snapshot().Count()
}
