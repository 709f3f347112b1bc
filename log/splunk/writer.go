// Copyright 2021 The go-ethereum Authors
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

package splunk

import (
	"sync"
	"time"
)

const defaultFlushInterval = time.Second

// Writer is an io.Writer that buffers whatever is written to it and flushes
// the buffer to a Client either on FlushInterval or once FlushThreshold
// lines have accumulated, whichever comes first. It is safe for concurrent
// use, matching log.Logger's own concurrency promise.
type Writer struct {
	Client         *Client
	FlushInterval  time.Duration
	FlushThreshold int

	initOnce sync.Once
	mu       sync.Mutex
	pending  []string
	errors   chan error
	stop     chan struct{}
}

func (w *Writer) init() {
	w.initOnce.Do(func() {
		w.errors = make(chan error, 16)
		w.stop = make(chan struct{})
		interval := w.FlushInterval
		if interval <= 0 {
			interval = defaultFlushInterval
		}
		go w.flushLoop(interval)
	})
}

func (w *Writer) flushLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.flush()
		case <-w.stop:
			return
		}
	}
}

// Write appends p as a single event, flushing immediately if FlushThreshold
// is reached.
func (w *Writer) Write(p []byte) (int, error) {
	w.init()

	w.mu.Lock()
	w.pending = append(w.pending, string(p))
	full := w.FlushThreshold > 0 && len(w.pending) >= w.FlushThreshold
	w.mu.Unlock()

	if full {
		w.flush()
	}
	return len(p), nil
}

func (w *Writer) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	batch := w.pending
	w.pending = nil
	w.mu.Unlock()

	if err := w.Client.send(batch); err != nil {
		select {
		case w.errors <- err:
		default:
		}
	}
}

// Errors returns the channel failed flushes are reported on. The channel is
// buffered; a caller that never drains it only loses error visibility, not
// data, since a failed flush drops events instead of blocking Write.
func (w *Writer) Errors() <-chan error {
	w.init()
	return w.errors
}

// Close stops the flush loop after a final flush of whatever is still
// pending.
func (w *Writer) Close() error {
	w.init()
	w.flush()
	close(w.stop)
	return nil
}
