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

package log

import (
	"bytes"
	"math/big"
	"strconv"
	"time"
)

const termTimeFormat = "01-02|15:04:05.000"
const floatFormat = 'f'
const termMsgJust = 40

// writeTimeTermFormat writes on the format "01-02|15:04:05.000" into buf.
func writeTimeTermFormat(buf *bytes.Buffer, t time.Time) {
	_, month, day := t.Date()
	writePosIntWidth(buf, int(month), 2)
	buf.WriteByte('-')
	writePosIntWidth(buf, day, 2)
	buf.WriteByte('|')
	hour, min, sec := t.Clock()
	writePosIntWidth(buf, hour, 2)
	buf.WriteByte(':')
	writePosIntWidth(buf, min, 2)
	buf.WriteByte(':')
	writePosIntWidth(buf, sec, 2)
	ns := t.Nanosecond()
	buf.WriteByte('.')
	writePosIntWidth(buf, ns/1e6, 3)
}

// writePosIntWidth writes non-negative integer i to the buffer, padded on the
// left by zeroes to the given width. Use a width of 0 to omit padding.
func writePosIntWidth(buf *bytes.Buffer, i, width int) {
	if i < 0 {
		panic("negative int")
	}
	var bb [20]byte
	bp := len(bb) - 1
	for i >= 10 {
		q := i / 10
		bb[bp] = byte('0' + i - q*10)
		bp--
		i = q
	}
	bb[bp] = byte('0' + i)
	width -= len(bb) - bp
	for ; width > 0; width-- {
		buf.WriteByte('0')
	}
	buf.Write(bb[bp:])
}

// FormatLogfmtInt64 formats n with thousands separators.
func FormatLogfmtInt64(n int64) string {
	if n < 0 {
		return formatLogfmtUint64(uint64(-n), true)
	}
	return formatLogfmtUint64(uint64(n), false)
}

// FormatLogfmtUint64 formats n with thousands separators.
func FormatLogfmtUint64(n uint64) string {
	return formatLogfmtUint64(n, false)
}

func formatLogfmtUint64(n uint64, neg bool) string {
	s := strconv.FormatUint(n, 10)
	// Small numbers are fine as is.
	if len(s) <= 5 {
		if neg {
			return "-" + s
		}
		return s
	}
	// Large numbers get comma-separated in groups of three, from the right.
	var buf []byte
	lead := len(s) % 3
	if lead == 0 {
		lead = 3
	}
	buf = append(buf, s[:lead]...)
	for i := lead; i < len(s); i += 3 {
		buf = append(buf, ',')
		buf = append(buf, s[i:i+3]...)
	}
	if neg {
		return "-" + string(buf)
	}
	return string(buf)
}

// formatLogfmtBigInt formats n with thousands separators.
func formatLogfmtBigInt(n *big.Int) string {
	if n.IsInt64() {
		return FormatLogfmtInt64(n.Int64())
	}
	neg := n.Sign() < 0
	if neg {
		n = new(big.Int).Neg(n)
	}
	out := n.String()
	comma := 0
	result := make([]byte, len(out)*4/3+1)
	w := len(result)
	for i := len(out) - 1; i >= 0; i-- {
		result[w-1] = out[i]
		w--
		comma++
		if comma == 3 && i > 0 {
			comma = 0
			w--
			result[w] = ','
		}
	}
	if neg {
		w--
		result[w] = '-'
	}
	return string(result[w:])
}
