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

// Package metrics provides counters, gauges, meters, histograms, and timers
// for instrumenting replica threads (§5). In this module the execution
// stage and txntable's pool register metrics, in a caller-supplied Registry
// or DefaultRegistry; Log periodically reports every metric of a Registry,
// and no command in this module starts it.
package metrics

import "os"

// Enabled is true unless the BFTCORE_METRICS_DISABLE environment variable
// is set when the process starts. No constructor in this package consults
// it: metrics are created and updated whatever its value.
var Enabled = os.Getenv("BFTCORE_METRICS_DISABLE") == ""
