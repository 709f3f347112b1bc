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
	"sync"
	"time"
)

// Timer captures the duration and rate of events, the type backing a
// replica's end-to-end commit-latency and per-phase-processing-time
// metrics: a Histogram of nanosecond durations plus a Meter of how often
// they occur.
type Timer interface {
	Count() int64
	Max() int64
	Mean() float64
	Min() int64
	Percentile(float64) float64
	Percentiles([]float64) []float64
	Rate1() float64
	Rate5() float64
	Rate15() float64
	RateMean() float64
	Snapshot() Timer
	StdDev() float64
	Stop()
	Sum() int64
	Time(func())
	Update(time.Duration)
	UpdateSince(time.Time)
	Variance() float64
}

// NewTimer constructs a new StandardTimer, using an exponentially-decaying
// sample with the same reservoir size and decay as other go-metrics-derived
// timers, so two long-running replicas can be compared apples to apples.
func NewTimer() Timer {
	return &StandardTimer{
		histogram: NewHistogram(NewExpDecaySample(1028, 0.015)),
		meter:     NewMeter(),
	}
}

// NewRegisteredTimer constructs and registers a new StandardTimer.
func NewRegisteredTimer(name string, r Registry) Timer {
	c := NewTimer()
	if r == nil {
		r = DefaultRegistry
	}
	r.Register(name, c)
	return c
}

// GetOrRegisterTimer returns an existing Timer or constructs and registers a
// new StandardTimer.
func GetOrRegisterTimer(name string, r Registry) Timer {
	if r == nil {
		r = DefaultRegistry
	}
	return r.GetOrRegister(name, NewTimer).(Timer)
}

// TimerSnapshot is a read-only copy of another Timer.
type TimerSnapshot struct {
	histogram *HistogramSnapshot
	meter     *MeterSnapshot
}

// Count returns the number of events recorded at the time the snapshot was taken.
func (t *TimerSnapshot) Count() int64 { return t.histogram.Count() }

// Max returns the maximum value at the time the snapshot was taken.
func (t *TimerSnapshot) Max() int64 { return t.histogram.Max() }

// Mean returns the mean value at the time the snapshot was taken.
func (t *TimerSnapshot) Mean() float64 { return t.histogram.Mean() }

// Min returns the minimum value at the time the snapshot was taken.
func (t *TimerSnapshot) Min() int64 { return t.histogram.Min() }

// Percentile returns an arbitrary percentile of sampled values at the time
// the snapshot was taken.
func (t *TimerSnapshot) Percentile(p float64) float64 { return t.histogram.Percentile(p) }

// Percentiles returns a slice of arbitrary percentiles of sampled values at
// the time the snapshot was taken.
func (t *TimerSnapshot) Percentiles(ps []float64) []float64 { return t.histogram.Percentiles(ps) }

// Rate1 returns the one-minute moving average rate at the time the
// snapshot was taken.
func (t *TimerSnapshot) Rate1() float64 { return t.meter.Rate1() }

// Rate5 returns the five-minute moving average rate at the time the
// snapshot was taken.
func (t *TimerSnapshot) Rate5() float64 { return t.meter.Rate5() }

// Rate15 returns the fifteen-minute moving average rate at the time the
// snapshot was taken.
func (t *TimerSnapshot) Rate15() float64 { return t.meter.Rate15() }

// RateMean returns the meter's mean rate at the time the snapshot was taken.
func (t *TimerSnapshot) RateMean() float64 { return t.meter.RateMean() }

// Snapshot returns itself.
func (t *TimerSnapshot) Snapshot() Timer { return t }

// StdDev returns the standard deviation of sampled values at the time the
// snapshot was taken.
func (t *TimerSnapshot) StdDev() float64 { return t.histogram.StdDev() }

// Stop is a no-op.
func (t *TimerSnapshot) Stop() {}

// Sum returns the sum of sampled values at the time the snapshot was taken.
func (t *TimerSnapshot) Sum() int64 { return t.histogram.Sum() }

// Time panics.
func (*TimerSnapshot) Time(func()) {
	panic("Time called on a TimerSnapshot")
}

// Update panics.
func (*TimerSnapshot) Update(time.Duration) {
	panic("Update called on a TimerSnapshot")
}

// UpdateSince panics.
func (*TimerSnapshot) UpdateSince(time.Time) {
	panic("UpdateSince called on a TimerSnapshot")
}

// Variance returns the variance of sampled values at the time the snapshot
// was taken.
func (t *TimerSnapshot) Variance() float64 { return t.histogram.Variance() }

// StandardTimer is the standard implementation of a Timer, combining a
// Histogram over observed durations with a Meter of how often Update is called.
type StandardTimer struct {
	histogram Histogram
	meter     Meter
	mutex     sync.Mutex
}

// Count returns the number of events recorded.
func (t *StandardTimer) Count() int64 { return t.histogram.Count() }

// Max returns the maximum time spent.
func (t *StandardTimer) Max() int64 { return t.histogram.Max() }

// Mean returns the mean time spent.
func (t *StandardTimer) Mean() float64 { return t.histogram.Mean() }

// Min returns the minimum time spent.
func (t *StandardTimer) Min() int64 { return t.histogram.Min() }

// Percentile returns an arbitrary percentile of recorded durations.
func (t *StandardTimer) Percentile(p float64) float64 { return t.histogram.Percentile(p) }

// Percentiles returns a slice of arbitrary percentiles of recorded durations.
func (t *StandardTimer) Percentiles(ps []float64) []float64 { return t.histogram.Percentiles(ps) }

// Rate1 returns the one-minute moving average rate of event occurrence.
func (t *StandardTimer) Rate1() float64 { return t.meter.Rate1() }

// Rate5 returns the five-minute moving average rate of event occurrence.
func (t *StandardTimer) Rate5() float64 { return t.meter.Rate5() }

// Rate15 returns the fifteen-minute moving average rate of event occurrence.
func (t *StandardTimer) Rate15() float64 { return t.meter.Rate15() }

// RateMean returns the meter's mean rate of event occurrence.
func (t *StandardTimer) RateMean() float64 { return t.meter.RateMean() }

// Snapshot returns a read-only copy of the timer.
func (t *StandardTimer) Snapshot() Timer {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return &TimerSnapshot{
		histogram: t.histogram.Snapshot().(*HistogramSnapshot),
		meter:     t.meter.Snapshot().(*MeterSnapshot),
	}
}

// StdDev returns the standard deviation of the time spent.
func (t *StandardTimer) StdDev() float64 { return t.histogram.StdDev() }

// Stop stops the timer's underlying Meter.
func (t *StandardTimer) Stop() { t.meter.Stop() }

// Sum returns the sum of the time spent.
func (t *StandardTimer) Sum() int64 { return t.histogram.Sum() }

// Time records the duration of executing f.
func (t *StandardTimer) Time(f func()) {
	ts := time.Now()
	f()
	t.Update(time.Since(ts))
}

// Update records the duration of an event.
func (t *StandardTimer) Update(d time.Duration) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.histogram.Update(int64(d))
	t.meter.Mark(1)
}

// UpdateSince records the duration of an event that started at ts.
func (t *StandardTimer) UpdateSince(ts time.Time) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.histogram.Update(int64(time.Since(ts)))
	t.meter.Mark(1)
}

// Variance returns the variance of the time spent.
func (t *StandardTimer) Variance() float64 { return t.histogram.Variance() }
