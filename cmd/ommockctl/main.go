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

// Package main provides the entry point for ommockctl, a standalone
// demonstration of the reconciliation engine in internal/om against either
// an in-process mock forwarder (the default) or a real Redis-backed bridge,
// reachable with --redis_addr. It registers every family under
// internal/families with one engine, commits a bridge domain, an interface
// and a binding under one demo client, and serves live Prometheus metrics
// while it runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vppom/internal/families/binding"
	"vppom/internal/families/bridgedomain"
	"vppom/internal/families/iface"
	"vppom/internal/families/l3acl"
	"vppom/internal/families/subinterface"
	"vppom/internal/families/vxlantunnel"
	"vppom/internal/om"
	"vppom/internal/telemetry"
	"vppom/internal/transport"
	"vppom/internal/transport/memconn"
	"vppom/internal/transport/redisconn"
	"vppom/pkg/rc"
)

func main() {
	redisAddr := flag.String("redis_addr", "", "If non-empty, dial a Redis-backed forwarder bridge at this address instead of using the in-process mock")
	namespace := flag.String("namespace", "ommockctl", "Redis pub/sub namespace, used only with --redis_addr")
	httpAddr := flag.String("http_addr", ":8080", "HTTP listen address for the /metrics endpoint")
	exportInterval := flag.Duration("export_interval", 15*time.Second, "How often to log a telemetry snapshot; 0 disables the periodic logger")
	flag.Parse()

	engine := om.New()

	bridgeDomains := bridgedomain.New(engine)
	interfaces := iface.New(engine)
	subInterfaces := subinterface.New(engine)
	tunnels := vxlantunnel.New(engine)
	bindings := binding.New(engine)
	acls := l3acl.New(engine)

	collector := telemetry.NewCollector()
	collector.RegisterFamily(string(bridgeDomains.Tag()), bridgeDomains.Len)
	collector.RegisterFamily(string(interfaces.Tag()), interfaces.Len)
	collector.RegisterFamily(string(subInterfaces.Tag()), subInterfaces.Len)
	collector.RegisterFamily(string(tunnels.Tag()), tunnels.Len)
	collector.RegisterFamily(string(bindings.Tag()), bindings.Len)
	collector.RegisterFamily(string(acls.Tag()), acls.Len)
	collector.WatchEpoch(engine.Epoch)
	collector.WatchQueueDepth(engine.Queue.PendingCount)
	collector.WatchClientCount(engine.ClientCount)
	engine.OnSweep(collector.IncSweep)
	engine.OnRelease(collector.IncRelease)

	ctx := context.Background()

	var conn transport.Conn
	if *redisAddr != "" {
		rconn, err := redisconn.Dial(ctx, *redisAddr, *namespace)
		if err != nil {
			log.Fatalf("ommockctl: dial redis forwarder: %v", err)
		}
		conn = rconn
		fmt.Printf("ommockctl: connected to redis forwarder at %s (namespace %s)\n", *redisAddr, *namespace)
	} else {
		conn = memconn.New(mockForwarder)
		fmt.Println("ommockctl: using in-process mock forwarder")
	}

	if err := engine.Connect(ctx, conn); err != nil {
		log.Fatalf("ommockctl: connect: %v", err)
	}
	collector.SetEpoch(engine.Epoch())

	seedDemoState(engine, bridgeDomains, interfaces, bindings)

	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	httpServer := &http.Server{Addr: *httpAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	var exporter *telemetry.Exporter
	if *exportInterval > 0 {
		exporter = telemetry.NewExporter(collector, os.Stdout, *exportInterval)
		exporter.Start()
	}

	go func() {
		fmt.Printf("ommockctl: metrics server listening on %s\n", *httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ommockctl: metrics server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	fmt.Println("\nommockctl: shutting down...")

	if exporter != nil {
		exporter.Stop()
	}
	engine.Disconnect()
	if closer, ok := conn.(interface{ Close() error }); ok {
		_ = closer.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("ommockctl: metrics server shutdown failed: %v", err)
	}
	fmt.Println("ommockctl: stopped.")
}

// seedDemoState commits one bridge domain, one interface and one binding
// under a single demo client, so the mock forwarder and /metrics output have
// something to show immediately after startup.
func seedDemoState(engine *om.OM, bd *bridgedomain.Family, itf *iface.Family, bnd *binding.Family) {
	const client om.ClientKey = "demo"

	bridge := bd.Singular(1)
	bridge.Update(bd.Desired(1, bridgedomain.Config{Learn: true, Flood: true, Forward: true}))
	engine.Commit(client, bd.Tag(), bridge)

	eth0 := itf.Singular("eth0")
	eth0.Update(itf.Desired("eth0", iface.State{Up: true, MTU: 1500}))
	engine.Commit(client, itf.Tag(), eth0)

	bindObj := bnd.Singular("eth0")
	bindObj.Update(bnd.Desired("eth0", binding.Config{BridgeDomain: 1}))
	engine.Commit(client, bnd.Tag(), bindObj)

	if code := engine.Queue.Write(context.Background()); code != rc.OK {
		fmt.Printf("ommockctl: seed commit result: %s\n", code)
	}
}

// mockForwarder dispatches every submitted request to the owning family's
// MockAck helper. Families never talk to each other's wire types, so the
// dispatch is a plain type switch over every concrete request type in play.
func mockForwarder(req transport.Request) []transport.Message {
	if msgs := bridgedomain.MockAck(req); msgs != nil {
		return msgs
	}
	if msgs := iface.MockAck(req); msgs != nil {
		return msgs
	}
	if msgs := iface.MockAckDump(req); msgs != nil {
		return msgs
	}
	if msgs := subinterface.MockAckDump(req); msgs != nil {
		return msgs
	}
	if msgs := vxlantunnel.MockAckDump(req); msgs != nil {
		return msgs
	}
	if msgs := binding.MockAck(req); msgs != nil {
		return msgs
	}
	if msgs := l3acl.MockAck(req); msgs != nil {
		return msgs
	}
	return nil
}

