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
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	ts := httptest.NewServer(c.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestCollectorFamilySizeScrapes(t *testing.T) {
	c := NewCollector()
	c.RegisterFamily("bridge-domain", func() int { return 3 })

	body := scrape(t, c)
	if !strings.Contains(body, `vppom_family_singular_size{family="bridge-domain"} 3`) {
		t.Fatalf("scrape missing family size gauge:\n%s", body)
	}
}

func TestCollectorWatchSourcesRefreshOnScrape(t *testing.T) {
	c := NewCollector()
	epoch := uint64(5)
	queue := 2
	clients := 7
	c.WatchEpoch(func() uint64 { return epoch })
	c.WatchQueueDepth(func() int { return queue })
	c.WatchClientCount(func() int { return clients })

	body := scrape(t, c)
	for _, want := range []string{
		"vppom_epoch 5",
		"vppom_command_queue_pending 2",
		"vppom_clients 7",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("scrape missing %q:\n%s", want, body)
		}
	}

	epoch, queue, clients = 9, 4, 1
	body = scrape(t, c)
	for _, want := range []string{
		"vppom_epoch 9",
		"vppom_command_queue_pending 4",
		"vppom_clients 1",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("second scrape missing %q (Watch sources not re-sampled):\n%s", want, body)
		}
	}
}

func TestCollectorIncSweepAndIncRelease(t *testing.T) {
	c := NewCollector()
	c.IncSweep()
	c.IncSweep()
	c.IncRelease()

	body := scrape(t, c)
	if !strings.Contains(body, "vppom_sweep_total 2") {
		t.Fatalf("scrape missing sweep counter at 2:\n%s", body)
	}
	if !strings.Contains(body, "vppom_object_release_total 1") {
		t.Fatalf("scrape missing release counter at 1:\n%s", body)
	}
}

func TestCollectorHandlerServesExpositionFormat(t *testing.T) {
	c := NewCollector()
	ts := httptest.NewServer(c.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
