// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package termstat provides a stats implementation which writes the
// statistics to the given writer. It is meant for runs at the terminal in
// lieu of an actual collector writing to an external tool like graphite or
// datadog. Gauges keep the last value.
package termstat

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Collector collects stats and prints them to the terminal
type Collector struct {
	lock    sync.Mutex
	indexes map[string]int
	names   []string
	stats   []float64
	timing  []bool
	changed bool
	out     io.Writer
}

// NewCollector initializes and returns a new Collector. Nothing is written
// until Flush is called or Start begins periodic writes.
func NewCollector(out io.Writer) *Collector {
	return &Collector{
		indexes: make(map[string]int),
		out:     out,
	}
}

// Start writes the stats every interval until the returned function is
// called.
func (t *Collector) Start(interval time.Duration) (stop func()) {
	done := make(chan struct{})
	tick := time.NewTicker(interval)
	go func() {
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				t.write("\r")
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// Flush writes the current stats on a line of their own.
func (t *Collector) Flush() {
	t.lock.Lock()
	t.changed = true
	t.lock.Unlock()
	t.write("")
	fmt.Fprintln(t.out)
}

func (t *Collector) index(name string) int {
	idx, ok := t.indexes[name]
	if !ok {
		idx = len(t.stats)
		t.stats = append(t.stats, 0)
		t.timing = append(t.timing, false)
		t.names = append(t.names, name)
		t.indexes[name] = idx
	}
	t.changed = true
	return idx
}

// Count adds value to the named stat.
func (t *Collector) Count(name string, value int64, rate float64, tags ...string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.stats[t.index(name)] += float64(value)
}

// Gauge sets the named stat to value.
func (t *Collector) Gauge(name string, value float64, rate float64, tags ...string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.stats[t.index(name)] = value
}

// Timing adds value to the named duration.
func (t *Collector) Timing(name string, value time.Duration, rate float64, tags ...string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	idx := t.index(name)
	t.timing[idx] = true
	t.stats[idx] += float64(value)
}

// Value returns the current value of the named stat.
func (t *Collector) Value(name string) (float64, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	idx, ok := t.indexes[name]
	if !ok {
		return 0, false
	}
	return t.stats[idx], true
}

func (t *Collector) write(prefix string) {
	sb := strings.Builder{}
	t.lock.Lock()
	defer t.lock.Unlock()
	if !t.changed {
		return
	}
	for i := 0; i < len(t.stats); i++ {
		if i > 0 {
			sb.WriteString(" ")
		}
		if t.timing[i] {
			fmt.Fprintf(&sb, "%s: %v", t.names[i], time.Duration(t.stats[i]))
		} else {
			fmt.Fprintf(&sb, "%s: %g", t.names[i], t.stats[i])
		}
	}
	t.changed = false
	fmt.Fprint(t.out, prefix+sb.String())
}

