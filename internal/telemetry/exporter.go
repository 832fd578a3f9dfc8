// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package telemetry

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Exporter periodically refreshes a Collector and writes a one-line snapshot
// to an io.Writer, the way the teacher's churn exporter loop periodically
// logged KPIs. The live ANSI-rendered dashboard the teacher's exporter also
// supported has no analog here and is dropped (see DESIGN.md); this keeps
// the plain periodic-snapshot half of that pattern.
type Exporter struct {
	collector *Collector
	out       io.Writer
	interval  time.Duration

	mu     sync.Mutex
	stop   chan struct{}
	done   chan struct{}
	active bool
}

// NewExporter returns an Exporter that logs a snapshot of collector to out
// every interval, once Start is called.
func NewExporter(collector *Collector, out io.Writer, interval time.Duration) *Exporter {
	return &Exporter{collector: collector, out: out, interval: interval}
}

// Start launches the snapshot loop. Calling Start twice without an
// intervening Stop is a no-op.
func (e *Exporter) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active {
		return
	}
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	e.active = true
	go e.loop(e.stop, e.done)
}

func (e *Exporter) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.snapshot()
		case <-stop:
			return
		}
	}
}

func (e *Exporter) snapshot() {
	e.collector.Refresh()
	fmt.Fprintf(e.out, "vppom: epoch=%.0f queue_pending=%.0f clients=%.0f\n",
		readGauge(e.collector.epoch), readGauge(e.collector.queueDepth), readGauge(e.collector.clientCount))
}

// Stop halts the snapshot loop and waits for it to exit. Safe to call on an
// Exporter that was never started.
func (e *Exporter) Stop() {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return
	}
	stop, done := e.stop, e.done
	e.active = false
	e.mu.Unlock()

	close(stop)
	<-done
}
