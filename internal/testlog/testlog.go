// Copyright 2019 The go-ethereum Authors
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

// Package testlog provides a log.Logger implementation that routes messages
// through a testing.T's own Logf, so log output is attributed to the test
// that produced it and only shown by `go test` on failure or with -v.
package testlog

import (
	"log/slog"

	"github.com/bftcore/bftcore/log"
)

// logT is the subset of *testing.T that Logger needs, so a caller can hand
// it a lightweight stand-in in unit tests of this package itself.
type logT interface {
	Helper()
	Logf(format string, args ...any)
}

// Logger returns a log.Logger that writes every message through t.Logf at
// or above level.
func Logger(t logT, level slog.Leveler) log.Logger {
	return log.NewLogger(log.NewTerminalHandlerWithLevel(&twriter{t: t}, level, false))
}

// twriter adapts logT to io.Writer so it can back a terminal handler.
type twriter struct {
	t logT
}

func (w *twriter) Write(b []byte) (int, error) {
	w.t.Helper()
	w.t.Logf("%s", string(b))
	return len(b), nil
}
