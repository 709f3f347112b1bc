// Copyright 2025 the libevm authors.
//
// The libevm additions to go-ethereum are free software: you can redistribute
// them and/or modify them under the terms of the GNU Lesser General Public License
// as published by the Free Software Foundation, either version 3 of the License,
// or (at your option) any later version.
//
// The libevm additions are distributed in the hope that they will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the GNU Lesser
// General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see
// <http://www.gnu.org/licenses/>.

package log

import (
	"fmt"
	"log/slog"
	"reflect"
)

// typeOfValue implements slog.LogValuer so TypeOf(x) logs x's type name
// instead of its value, useful when dumping a heterogeneous collection of
// messages (wire.Envelope payloads) without the payload bodies.
type typeOfValue struct {
	t reflect.Type
}

// TypeOf returns a slog.LogValuer that renders the Go type name of v.
func TypeOf(v any) typeOfValue {
	return typeOfValue{reflect.TypeOf(v)}
}

func (t typeOfValue) LogValue() slog.Value {
	if t.t == nil {
		return slog.StringValue("<nil>")
	}
	return slog.StringValue(t.t.String())
}

func (t typeOfValue) String() string {
	return t.LogValue().String()
}

// lazyValue implements slog.LogValuer, deferring evaluation of an expensive
// attribute until (and unless) a handler actually needs to render it.
type lazyValue struct {
	fn func() slog.Value
}

// Lazy wraps fn so its result is only computed if the log record is
// actually emitted at its configured level, avoiding the cost of rendering
// a batch/DAG-block dump on every TRACE call site when tracing is off.
func Lazy(fn func() slog.Value) slog.LogValuer {
	return lazyValue{fn}
}

func (l lazyValue) LogValue() slog.Value {
	return l.fn()
}

var _ fmt.Stringer = typeOfValue{}
