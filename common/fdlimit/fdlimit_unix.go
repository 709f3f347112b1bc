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

//go:build linux || darwin || freebsd || netbsd || openbsd

// Package fdlimit raises and reports the per-process file descriptor
// allowance. Every replica holds one socket per peer connection plus one per
// open kvstore/blockchainlog segment (§4.1, §9), so a node with a large
// membership list can exhaust a default 1024 limit during startup. No
// command in this module calls Raise; a process that needs a higher limit
// must call it itself before opening its listeners.
package fdlimit

import "syscall"

// Maximum retrieves the operating system's hard limit on file descriptors.
func Maximum() (int, error) {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return 0, err
	}
	return int(limit.Max), nil
}

// Current retrieves the process's current file descriptor allowance.
func Current() (int, error) {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return 0, err
	}
	return int(limit.Cur), nil
}

// Raise tries to raise the current file descriptor allowance of the process
// to the requested value, capped by the hard limit.
func Raise(max uint64) (uint64, error) {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return 0, err
	}
	if uint64(limit.Cur) >= max {
		return uint64(limit.Cur), nil
	}
	limit.Cur = limit.Max
	if max < uint64(limit.Max) {
		limit.Cur = max
	}
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return 0, err
	}
	return uint64(limit.Cur), nil
}
