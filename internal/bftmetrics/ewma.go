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

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// EWMA computes an exponentially-weighted moving average of a rate. Meter
// uses three of these (1/5/15-minute windows) to report batches/sec and
// messages/sec smoothed the way a load average smooths CPU usage.
type EWMA interface {
	Snapshot() EWMASnapshot
	Update(int64)
}

// EWMASnapshot is a read-only copy of an EWMA's rate at the instant it was taken.
type EWMASnapshot float64

// Rate returns the rate of events per second at the time the snapshot was taken.
func (a EWMASnapshot) Rate() float64 {
	return float64(a)
}

// NewEWMA constructs a new EWMA with the given smoothing constant, catching
// up whole elapsed intervals lazily on read rather than via a background
// ticker goroutine.
func NewEWMA(alpha float64, interval time.Duration) EWMA {
	return &StandardEWMA{
		alpha:     alpha,
		interval:  interval,
		timestamp: time.Now(),
	}
}

// NewEWMA1 constructs a new EWMA for a one-minute moving average.
func NewEWMA1() EWMA {
	return NewEWMA(1-math.Exp(-5.0/60.0/1), 5*time.Second)
}

// NewEWMA5 constructs a new EWMA for a five-minute moving average.
func NewEWMA5() EWMA {
	return NewEWMA(1-math.Exp(-5.0/60.0/5), 5*time.Second)
}

// NewEWMA15 constructs a new EWMA for a fifteen-minute moving average.
func NewEWMA15() EWMA {
	return NewEWMA(1-math.Exp(-5.0/60.0/15), 5*time.Second)
}

// StandardEWMA is the standard implementation of an EWMA. Update only
// accumulates into an uncounted bucket; rate() folds whole elapsed
// intervals into the decayed rate on read, so nothing needs to drive a
// periodic Tick() for the rate to stay current.
type StandardEWMA struct {
	uncounted int64 // atomic
	alpha     float64
	interval  time.Duration

	mutex     sync.Mutex
	rateValue float64
	init      bool
	timestamp time.Time
}

// Update adds n to the count pending inclusion in the next catch-up tick.
func (a *StandardEWMA) Update(n int64) {
	atomic.AddInt64(&a.uncounted, n)
}

// Snapshot catches up any whole elapsed intervals and returns the resulting rate.
func (a *StandardEWMA) Snapshot() EWMASnapshot {
	return EWMASnapshot(a.rate())
}

// rate folds in any whole intervals that have elapsed since the last tick
// and returns the decayed rate, in events per second.
func (a *StandardEWMA) rate() float64 {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	for time.Since(a.timestamp) >= a.interval {
		a.tick()
	}
	return a.rateValue
}

func (a *StandardEWMA) tick() {
	count := atomic.SwapInt64(&a.uncounted, 0)
	instantRate := float64(count) / a.interval.Seconds()
	if a.init {
		a.rateValue += a.alpha * (instantRate - a.rateValue)
	} else {
		a.rateValue = instantRate
		a.init = true
	}
	a.timestamp = a.timestamp.Add(a.interval)
}

// addToTimestamp shifts the last-tick timestamp by d, letting tests simulate
// elapsed time without sleeping.
func (a *StandardEWMA) addToTimestamp(d time.Duration) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.timestamp = a.timestamp.Add(d)
}
