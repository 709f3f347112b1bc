// Copyright 2015 The go-ethereum Authors
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

// Package common holds small, dependency-free helper types shared across the
// replica: batch/request hashes, contiguous id ranges, and the generic
// collections the concurrency engine is built from.
package common

import (
	"encoding/hex"
	"fmt"
)

// HashLength is the length in bytes of a batch hash (SHA-256, §3).
const HashLength = 32

// Hash represents the SHA-256 digest of a batch's concatenated, canonically
// serialized requests.
type Hash [HashLength]byte

// BytesToHash sets the last HashLength bytes of b into a Hash, left-padding
// or truncating as needed.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

// IsZero reports whether h is the empty hash, i.e. no pre-prepare has
// arrived yet for the owning TxnManager (§3 TxnManager lifecycle).
func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Hash) Format(s fmt.State, c rune) {
	fmt.Fprintf(s, "%"+string(c), h[:])
}
