// Copyright (c) 2021 6 River Systems
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

package faults

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"go.6river.tech/dockv/logging"
)

// Parameters constrain a fault to operations with matching attributes, e.g.
// a specific bucket or collection. Only keys present in the description are
// compared.
type Parameters map[string]string

// Description configures one injectable fault. While Count is positive,
// operations matching Operation and Parameters consume one count each and
// receive the OnFault error instead of being dispatched.
type Description struct {
	// Operation is the logical operation name the fault applies to, e.g.
	// "kv/get" or "query".
	Operation string
	// Parameters are optional exact match constraints.
	Parameters Parameters
	// Count is how many times this fault fires before going inert. It is
	// decremented atomically; leave the exhausted description in place for
	// inspection.
	Count int64
	// OnFault produces the injected error. It runs outside the set's lock.
	OnFault func(d *Description, params Parameters) error
}

func (d *Description) match(params Parameters) bool {
	for k, v := range d.Parameters {
		if params[k] != v {
			return false
		}
	}
	return true
}

func (d *Description) String() string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "%s", d.Operation)
	if len(d.Parameters) > 0 {
		keys := make([]string, 0, len(d.Parameters))
		for k := range d.Parameters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('(')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(sb, "%s=%s", k, d.Parameters[k])
		}
		sb.WriteByte(')')
	}
	fmt.Fprintf(sb, " x%d", atomic.LoadInt64(&d.Count))
	return sb.String()
}

// Set holds the armed fault descriptions for one injection point, keyed by
// operation name. The zero Set is not usable; a nil *Set is a valid always
// empty set, so callers can thread one through unconditionally.
type Set struct {
	name   string
	logger *logging.Logger

	mu     sync.RWMutex
	faults map[string][]*Description

	activeFaultsDesc    *prometheus.Desc
	remainingFaultsDesc *prometheus.Desc
}

// NewSet creates a fault set. The name becomes the metric namespace for the
// set's collector, so it should be a metrics safe token such as the app or
// component name.
func NewSet(name string) *Set {
	return &Set{
		name:   name,
		logger: logging.GetLogger("faults/" + name),
		faults: map[string][]*Description{},
		activeFaultsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(name, "faults", "active"),
			"Number of armed fault descriptions with remaining count, by operation",
			[]string{"operation"},
			nil,
		),
		remainingFaultsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(name, "faults", "remaining"),
			"Total remaining fault injection count, by operation",
			[]string{"operation"},
			nil,
		),
	}
}

// Name returns the name the set was created with.
func (s *Set) Name() string {
	return s.name
}

// Inject arms a fault. Descriptions with no OnFault or a non-positive Count
// are rejected.
func (s *Set) Inject(d Description) error {
	if d.Operation == "" {
		return fmt.Errorf("fault description requires an operation")
	}
	if d.OnFault == nil {
		return fmt.Errorf("fault description for %s requires an OnFault", d.Operation)
	}
	if atomic.LoadInt64(&d.Count) <= 0 {
		return fmt.Errorf("fault description for %s requires a positive count", d.Operation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dd := d
	s.faults[d.Operation] = append(s.faults[d.Operation], &dd)
	s.logger.Info().Stringer("fault", &dd).Msg("Armed fault")
	return nil
}

// InjectError arms a fault that fails matching operations with a fixed
// error.
func (s *Set) InjectError(operation string, params Parameters, count int64, err error) error {
	return s.Inject(Description{
		Operation:  operation,
		Parameters: params,
		Count:      count,
		OnFault: func(*Description, Parameters) error {
			return err
		},
	})
}

// Check consumes and returns a matching fault's error, or nil when no armed
// fault matches. A nil receiver always returns nil, keeping the empty path
// cheap for production configurations.
func (s *Set) Check(operation string, params Parameters) error {
	if s == nil {
		return nil
	}
	var fired *Description
	s.mu.RLock()
	for _, d := range s.faults[operation] {
		if !d.match(params) {
			continue
		}
		if atomic.AddInt64(&d.Count, -1) >= 0 {
			fired = d
			break
		}
		// lost the race to the last count; restore so inspection of an
		// exhausted description never shows a negative number
		atomic.CompareAndSwapInt64(&d.Count, -1, 0)
	}
	s.mu.RUnlock()
	if fired == nil {
		return nil
	}
	err := fired.OnFault(fired, params)
	s.logger.Info().
		Str("operation", operation).
		AnErr("injected", err).
		Msg("Injected fault")
	return err
}

// Current snapshots the armed descriptions, including exhausted ones, for
// inspection over the debug API.
func (s *Set) Current() map[string][]Description {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]Description, len(s.faults))
	for op, list := range s.faults {
		cp := make([]Description, len(list))
		for i, d := range list {
			cp[i] = Description{
				Operation:  d.Operation,
				Parameters: d.Parameters,
				Count:      atomic.LoadInt64(&d.Count),
				OnFault:    d.OnFault,
			}
		}
		out[op] = cp
	}
	return out
}

// Clear removes every description for the operation, or every description in
// the set when operation is empty. It reports how many were removed.
func (s *Set) Clear(operation string) int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if operation == "" {
		n := 0
		for _, list := range s.faults {
			n += len(list)
		}
		s.faults = map[string][]*Description{}
		return n
	}
	n := len(s.faults[operation])
	delete(s.faults, operation)
	return n
}
