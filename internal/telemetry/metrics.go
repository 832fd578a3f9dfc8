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

// Package telemetry exports prometheus metrics for the reconciliation
// engine: command queue depth, connection epoch, per-family singular-table
// size and sweep/release counters. It plays the role the teacher's
// telemetry/churn package played for the rate limiter — a thin layer
// sitting in front of client_golang — generalized from a single churn
// aggregator to an arbitrary set of named gauges, one per registered
// family.
package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// FamilySize reports how many canonical instances a family currently has
// interned. Family packages don't import telemetry themselves, to keep the
// dependency arrow one-directional; callers pass a closure at registration.
type FamilySize func() int

// Collector owns one process's metric set against its own private registry,
// so tests can build independent collectors without fighting over the
// default global prometheus registry.
type Collector struct {
	registry *prometheus.Registry

	epoch        prometheus.Gauge
	queueDepth   prometheus.Gauge
	clientCount  prometheus.Gauge
	sweepTotal   prometheus.Counter
	releaseTotal prometheus.Counter
	sizes        *prometheus.GaugeVec

	mu         sync.Mutex
	families   map[string]FamilySize
	epochSrc   func() uint64
	queueSrc   func() int
	clientsSrc func() int
}

// NewCollector builds a Collector with its own private registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		epoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vppom_epoch",
			Help: "Current forwarder connection generation",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vppom_command_queue_pending",
			Help: "Number of commands currently awaiting a forwarder reply",
		}),
		clientCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vppom_clients",
			Help: "Number of clients that have committed a reference and not yet been forgotten",
		}),
		sweepTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vppom_sweep_total",
			Help: "Total number of Mark/Sweep cycles completed",
		}),
		releaseTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vppom_object_release_total",
			Help: "Total number of objects released (refcount reached zero)",
		}),
		sizes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vppom_family_singular_size",
			Help: "Number of canonical instances currently interned, by family",
		}, []string{"family"}),
		families: make(map[string]FamilySize),
	}
	reg.MustRegister(c.epoch, c.queueDepth, c.clientCount, c.sweepTotal, c.releaseTotal, c.sizes)
	return c
}

// RegisterFamily wires a family's singular-table size into the
// vppom_family_singular_size gauge, labeled by tag.
func (c *Collector) RegisterFamily(tag string, size FamilySize) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.families[tag] = size
}

// WatchEpoch wires src into the epoch gauge: every Refresh re-samples it,
// so a reconnect's epoch bump shows up without the caller polling it itself.
func (c *Collector) WatchEpoch(src func() uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epochSrc = src
}

// WatchQueueDepth wires src (typically CommandQueue.PendingCount) into the
// queue-depth gauge, re-sampled on every Refresh.
func (c *Collector) WatchQueueDepth(src func() int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queueSrc = src
}

// WatchClientCount wires src (typically OM.ClientCount) into the client
// gauge, re-sampled on every Refresh.
func (c *Collector) WatchClientCount(src func() int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clientsSrc = src
}

// SetEpoch records the current connection generation directly. Exporters
// that called WatchEpoch don't need this; it remains for one-off callers
// (e.g. a startup log line before the periodic exporter loop begins).
func (c *Collector) SetEpoch(epoch uint64) { c.epoch.Set(float64(epoch)) }

// SetQueueDepth records the number of commands currently pending.
func (c *Collector) SetQueueDepth(n int) { c.queueDepth.Set(float64(n)) }

// SetClientCount records the number of clients the engine currently tracks.
func (c *Collector) SetClientCount(n int) { c.clientCount.Set(float64(n)) }

// IncSweep counts one completed Mark/Sweep cycle.
func (c *Collector) IncSweep() { c.sweepTotal.Inc() }

// IncRelease counts one object reaching a zero refcount.
func (c *Collector) IncRelease() { c.releaseTotal.Inc() }

// Refresh re-samples every registered family's size gauge and, where a Watch
// source is set, the epoch, queue-depth and client gauges. The exporter's
// periodic loop calls this before each snapshot, and Handler calls it on
// every scrape.
func (c *Collector) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for tag, size := range c.families {
		c.sizes.WithLabelValues(tag).Set(float64(size()))
	}
	if c.epochSrc != nil {
		c.epoch.Set(float64(c.epochSrc()))
	}
	if c.queueSrc != nil {
		c.queueDepth.Set(float64(c.queueSrc()))
	}
	if c.clientsSrc != nil {
		c.clientCount.Set(float64(c.clientsSrc()))
	}
}

// Handler returns an http.Handler serving this collector's metrics in the
// Prometheus text exposition format. Each scrape calls Refresh first, so a
// request sees current values even if the periodic Exporter was never
// started.
func (c *Collector) Handler() http.Handler {
	inner := promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.Refresh()
		inner.ServeHTTP(w, r)
	})
}

// readGauge extracts a gauge's current value without going through a
// scrape, for the exporter's periodic log line.
func readGauge(g prometheus.Gauge) float64 {
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}
