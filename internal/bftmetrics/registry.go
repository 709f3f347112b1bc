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
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// DuplicateMetric is the error returned by Registry.Register when the name
// is already in use.
type DuplicateMetric string

func (err DuplicateMetric) Error() string {
	return fmt.Sprintf("duplicate metric: %s", string(err))
}

// Registry holds references to a set of metrics by name, letting a replica
// enumerate and report every counter/gauge/meter/timer it has registered
// (§11's periodic Log reporter walks DefaultRegistry this way).
type Registry interface {
	// Each calls fn for each registered metric.
	Each(fn func(string, interface{}))
	// Get returns the metric by name or nil if unknown.
	Get(name string) interface{}
	// GetOrRegister returns an existing metric or registers the given one
	// (instantiating it first if a constructor function was passed).
	GetOrRegister(name string, metric interface{}) interface{}
	// Register registers a new metric, returning a DuplicateMetric error if
	// the name is already taken.
	Register(name string, metric interface{}) error
	// RunHealthchecks runs registered healthchecks.
	RunHealthchecks()
	// GetAll returns all metrics, sample values, and their attributes.
	GetAll() map[string]map[string]interface{}
	// Unregister removes a metric by name.
	Unregister(name string)
}

// StandardRegistry is the standard implementation of a Registry, backed by
// a sync.Map.
type StandardRegistry struct {
	metrics sync.Map
}

// NewRegistry constructs a new StandardRegistry.
func NewRegistry() Registry {
	return &StandardRegistry{}
}

// Each calls fn for each registered metric.
func (r *StandardRegistry) Each(fn func(string, interface{})) {
	for name, i := range r.registered() {
		fn(name, i)
	}
}

// Get returns the metric by name or nil if unknown.
func (r *StandardRegistry) Get(name string) interface{} {
	item, ok := r.metrics.Load(name)
	if !ok {
		return nil
	}
	return item
}

// GetOrRegister returns an existing metric or registers the given one.
// Threadsafe alternative to calling Get and Register in sequence.
func (r *StandardRegistry) GetOrRegister(name string, i interface{}) interface{} {
	// Fast path: metric already registered.
	if metric, ok := r.metrics.Load(name); ok {
		return metric
	}
	if v := reflect.ValueOf(i); v.Kind() == reflect.Func {
		i = v.Call(nil)[0].Interface()
	}
	item, _ := r.metrics.LoadOrStore(name, i)
	return item
}

// Register registers the given metric under the given name, returning a
// DuplicateMetric error if the name is already registered.
func (r *StandardRegistry) Register(name string, i interface{}) error {
	if v := reflect.ValueOf(i); v.Kind() == reflect.Func {
		i = v.Call(nil)[0].Interface()
	}
	if _, loaded := r.metrics.LoadOrStore(name, i); loaded {
		return DuplicateMetric(name)
	}
	return nil
}

// RunHealthchecks runs registered healthchecks.
func (r *StandardRegistry) RunHealthchecks() {}

// GetAll returns all metrics, sample values, and their attributes.
func (r *StandardRegistry) GetAll() map[string]map[string]interface{} {
	data := make(map[string]map[string]interface{})
	r.Each(func(name string, i interface{}) {
		values := make(map[string]interface{})
		switch m := i.(type) {
		case Counter:
			values["count"] = m.Snapshot().Count()
		case CounterFloat64:
			values["count"] = m.Snapshot().Count()
		case Gauge:
			values["value"] = m.Snapshot().Value()
		case GaugeFloat64:
			values["value"] = m.Snapshot().Value()
		case Histogram:
			h := m.Snapshot()
			values["count"] = h.Count()
			values["min"] = h.Min()
			values["max"] = h.Max()
			values["mean"] = h.Mean()
		case Meter:
			mt := m.Snapshot()
			values["count"] = mt.Count()
			values["rate1"] = mt.Rate1()
			values["rate5"] = mt.Rate5()
			values["rate15"] = mt.Rate15()
		case Timer:
			tm := m.Snapshot()
			values["count"] = tm.Count()
			values["min"] = tm.Min()
			values["max"] = tm.Max()
			values["mean"] = tm.Mean()
		case EWMA:
			values["rate"] = m.Snapshot().Rate()
		}
		data[name] = values
	})
	return data
}

// Unregister removes the metric with the given name.
func (r *StandardRegistry) Unregister(name string) {
	i, ok := r.metrics.Load(name)
	if !ok {
		return
	}
	r.metrics.Delete(name)
	switch m := i.(type) {
	case Meter:
		m.Stop()
	case Timer:
		m.Stop()
	}
}

func (r *StandardRegistry) registered() map[string]interface{} {
	result := make(map[string]interface{})
	r.metrics.Range(func(key, value interface{}) bool {
		result[key.(string)] = value
		return true
	})
	return result
}

// PrefixedRegistry is a Registry decorator that adds a fixed prefix to every
// metric name, so several components can share one registry without name
// collisions.
type PrefixedRegistry struct {
	underlying Registry
	prefix     string
}

// NewPrefixedRegistry constructs a new PrefixedRegistry with its own,
// unshared underlying StandardRegistry.
func NewPrefixedRegistry(prefix string) Registry {
	return &PrefixedRegistry{
		underlying: NewRegistry(),
		prefix:     prefix,
	}
}

// NewPrefixedChildRegistry constructs a new PrefixedRegistry wrapping an
// existing parent Registry, so metrics registered through the child are
// visible to the parent's Each under the combined prefix.
func NewPrefixedChildRegistry(parent Registry, prefix string) Registry {
	return &PrefixedRegistry{
		underlying: parent,
		prefix:     prefix,
	}
}

// Each calls fn for each metric registered through this prefixed view,
// walking back to the base (non-prefixed) registry and filtering by the
// full accumulated prefix so a chain of nested PrefixedChildRegistry wraps
// still only sees its own metrics.
func (r *PrefixedRegistry) Each(fn func(string, interface{})) {
	baseRegistry, prefix := findPrefix(r.underlying, r.prefix)
	wrappedFn := func(prefixedName string, i interface{}) {
		if strings.HasPrefix(prefixedName, prefix) {
			fn(prefixedName, i)
		}
	}
	baseRegistry.Each(wrappedFn)
}

// Get returns the metric by its unprefixed name.
func (r *PrefixedRegistry) Get(name string) interface{} {
	return r.underlying.Get(r.prefix + name)
}

// GetOrRegister returns an existing metric or registers the given one under
// the prefixed name.
func (r *PrefixedRegistry) GetOrRegister(name string, metric interface{}) interface{} {
	return r.underlying.GetOrRegister(r.prefix+name, metric)
}

// Register registers the given metric under the prefixed name.
func (r *PrefixedRegistry) Register(name string, metric interface{}) error {
	return r.underlying.Register(r.prefix+name, metric)
}

// RunHealthchecks runs registered healthchecks.
func (r *PrefixedRegistry) RunHealthchecks() {
	r.underlying.RunHealthchecks()
}

// GetAll returns all metrics, sample values, and their attributes.
func (r *PrefixedRegistry) GetAll() map[string]map[string]interface{} {
	return r.underlying.GetAll()
}

// Unregister removes the metric by its unprefixed name.
func (r *PrefixedRegistry) Unregister(name string) {
	r.underlying.Unregister(r.prefix + name)
}

// findPrefix walks a chain of PrefixedRegistry wrappers back to the base
// Registry, accumulating the combined prefix along the way.
func findPrefix(registry Registry, prefix string) (Registry, string) {
	switch r := registry.(type) {
	case *PrefixedRegistry:
		return findPrefix(r.underlying, r.prefix+prefix)
	default:
		return registry, prefix
	}
}

// DefaultRegistry is the registry used by the package-level Register,
// GetOrRegister, and Each helpers.
var DefaultRegistry = NewRegistry()

// Each calls fn for each metric registered in DefaultRegistry.
func Each(fn func(string, interface{})) {
	DefaultRegistry.Each(fn)
}

// Get returns the metric by name registered in DefaultRegistry, or nil.
func Get(name string) interface{} {
	return DefaultRegistry.Get(name)
}

// GetOrRegister returns an existing metric or registers the given one in
// DefaultRegistry.
func GetOrRegister(name string, i interface{}) interface{} {
	return DefaultRegistry.GetOrRegister(name, i)
}

// Register registers the given metric under the given name in DefaultRegistry.
func Register(name string, i interface{}) error {
	return DefaultRegistry.Register(name, i)
}

// RunHealthchecks runs healthchecks registered in DefaultRegistry.
func RunHealthchecks() {
	DefaultRegistry.RunHealthchecks()
}

// Unregister removes the metric by name from DefaultRegistry.
func Unregister(name string) {
	DefaultRegistry.Unregister(name)
}
