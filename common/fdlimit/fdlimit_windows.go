// Copyright 2016 The go-ethereum Authors
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

//go:build windows

package fdlimit

import "errors"

// Windows has no rlimit-style file descriptor accounting; the handle table
// is bounded only by available memory, so these report a conservative,
// fixed allowance rather than failing replica startup outright.
const hardLimit = 16384

// Maximum retrieves the operating system's hard limit on file descriptors.
func Maximum() (int, error) {
	return hardLimit, nil
}

// Current retrieves the process's current file descriptor allowance.
func Current() (int, error) {
	return hardLimit, nil
}

// Raise is a no-op on Windows; it reports success if max is within the
// fixed allowance and an error otherwise.
func Raise(max uint64) (uint64, error) {
	if max > hardLimit {
		return 0, errors.New("fdlimit: cannot raise file descriptor limit on windows")
	}
	return max, nil
}
