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

package log

import (
	"bufio"
	"io"
	"os"
)

// AsyncFileWriter buffers log lines and flushes them to disk from a single
// background goroutine, so replica threads (§5) never block on file I/O
// while logging at TRACE/DEBUG volume.
type AsyncFileWriter struct {
	path    string
	queueSz int

	queue chan []byte
	done  chan struct{}
	file  *bufferedFile
}

type bufferedFile struct {
	f     *os.File
	w     *bufio.Writer
	count int
}

func (b *bufferedFile) Close() error {
	if b == nil {
		return nil
	}
	b.w.Flush()
	return b.f.Close()
}

// prepFile opens path for appending and records how many newlines are
// already present in the returned file's line counter. Nothing advances
// that counter on later writes, and nothing rotates the file.
func prepFile(path string) (*bufferedFile, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	count, err := countLines(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, os.SEEK_END); err != nil {
		f.Close()
		return nil, err
	}
	return &bufferedFile{f: f, w: bufio.NewWriter(f), count: count}, nil
}

func countLines(f *os.File) (int, error) {
	buf := make([]byte, 32*1024)
	count := 0
	for {
		n, err := f.Read(buf)
		for i := 0; i < n; i++ {
			if buf[i] == '\n' {
				count++
			}
		}
		if err != nil {
			if err == io.EOF {
				return count, nil
			}
			return count, err
		}
		if n == 0 {
			return count, nil
		}
	}
}

// NewAsyncFileWriter creates a writer that appends to path, buffering up to
// queueSize pending writes before Write starts blocking the caller.
func NewAsyncFileWriter(path string, queueSize int) *AsyncFileWriter {
	return &AsyncFileWriter{
		path:    path,
		queueSz: queueSize,
	}
}

// Start opens the backing file and launches the flush goroutine.
func (w *AsyncFileWriter) Start() error {
	f, err := prepFile(w.path)
	if err != nil {
		return err
	}
	w.file = f
	w.queue = make(chan []byte, w.queueSz)
	w.done = make(chan struct{})
	go w.loop()
	return nil
}

func (w *AsyncFileWriter) loop() {
	defer close(w.done)
	for b := range w.queue {
		w.file.w.Write(b)
		w.file.w.Flush()
	}
}

// Write enqueues b to be written asynchronously. It never returns an error;
// a full queue simply blocks the caller.
func (w *AsyncFileWriter) Write(b []byte) (int, error) {
	cp := make([]byte, len(b))
	copy(cp, b)
	w.queue <- cp
	return len(b), nil
}

// Stop drains the queue and closes the backing file.
func (w *AsyncFileWriter) Stop() error {
	close(w.queue)
	<-w.done
	return w.file.Close()
}
