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
	"context"
	"time"

	"github.com/bftcore/bftcore/log"
)

// Log periodically walks r and writes every metric's current value to l,
// the replica's equivalent of a load-average line: one glance at the log
// tells an operator the commit rate and queue depths without attaching a
// metrics dashboard.
func Log(r Registry, freq time.Duration, l log.Logger) {
	LogOnce(r, l)
	for range time.Tick(freq) {
		LogOnce(r, l)
	}
}

// LogOnce writes every metric in r to l a single time.
func LogOnce(r Registry, l log.Logger) {
	r.Each(func(name string, i interface{}) {
		switch m := i.(type) {
		case Counter:
			l.Info("metric", "name", name, "count", m.Snapshot().Count())
		case CounterFloat64:
			l.Info("metric", "name", name, "count", m.Snapshot().Count())
		case Gauge:
			l.Info("metric", "name", name, "value", m.Snapshot().Value())
		case GaugeFloat64:
			l.Info("metric", "name", name, "value", m.Snapshot().Value())
		case Histogram:
			h := m.Snapshot()
			ps := h.Percentiles([]float64{0.5, 0.75, 0.95, 0.99})
			l.Info("metric", "name", name, "count", h.Count(), "min", h.Min(), "max", h.Max(),
				"mean", h.Mean(), "p50", ps[0], "p75", ps[1], "p95", ps[2], "p99", ps[3])
		case Meter:
			mt := m.Snapshot()
			l.Info("metric", "name", name, "count", mt.Count(), "rate1", mt.Rate1(),
				"rate5", mt.Rate5(), "rate15", mt.Rate15(), "rateMean", mt.RateMean())
		case Timer:
			tm := m.Snapshot()
			ps := tm.Percentiles([]float64{0.5, 0.75, 0.95, 0.99})
			l.Info("metric", "name", name, "count", tm.Count(), "min", tm.Min(), "max", tm.Max(),
				"mean", tm.Mean(), "p50", ps[0], "p75", ps[1], "p95", ps[2], "p99", ps[3])
		case EWMA:
			l.Info("metric", "name", name, "rate", m.Snapshot().Rate())
		}
	})
}

// LogUntil runs Log until ctx is cancelled, letting a caller tie the
// reporter's lifetime to its own shutdown signal.
func LogUntil(ctx context.Context, r Registry, freq time.Duration, l log.Logger) {
	ticker := time.NewTicker(freq)
	defer ticker.Stop()
	LogOnce(r, l)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			LogOnce(r, l)
		}
	}
}
