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

package om

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"vppom/internal/transport"
	"vppom/pkg/rc"
)

// OM is the object-model facade: the client/object ownership graph, the
// global reference counts that drive deterministic Release, the epoch
// counter, the command queue and the dependency-ordered listener registry.
// There is deliberately no package-level singleton (see DESIGN.md) —
// callers construct one OM per forwarder connection they manage.
type OM struct {
	Queue *CommandQueue

	mu        sync.Mutex
	clients   map[ClientKey]map[FamilyTag]map[Object]*refEntry
	refcounts map[Object]int
	registry  *listenerRegistry
	epoch     uint64
	onSweep   func()
	onRelease func()
}

// New returns an OM with an attached, not-yet-connected CommandQueue.
func New() *OM {
	return &OM{
		Queue:     NewCommandQueue(),
		clients:   make(map[ClientKey]map[FamilyTag]map[Object]*refEntry),
		refcounts: make(map[Object]int),
		registry:  newListenerRegistry(),
	}
}

// RegisterListener adds l to the dependency-ordered dispatch list used by
// Populate and Replay. Families register themselves once, at construction.
func (o *OM) RegisterListener(l Listener) {
	o.registry.register(l)
}

// OnSweep registers fn to run once after every completed Mark/Sweep cycle,
// regardless of how many objects it released. internal/telemetry's
// Collector.IncSweep is wired in through this hook rather than OM importing
// telemetry directly, the same closure-based arrangement families use to
// report their singular-table size.
func (o *OM) OnSweep(fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onSweep = fn
}

// OnRelease registers fn to run once for every object whose global refcount
// reaches zero, across Sweep, Remove, and ForgetClient.
func (o *OM) OnRelease(fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onRelease = fn
}

// Epoch reports the current connection generation. It increments on every
// Connect, before the populate or replay pass runs (so also when that pass
// fails), and families may use it to recognize a stale in-flight operation
// from a previous connection (SPEC_FULL.md §4).
func (o *OM) Epoch() uint64 {
	return atomic.LoadUint64(&o.epoch)
}

// Connect attaches conn to the command queue, bumps the epoch, and runs a
// populate pass for every client already known to this OM (the reconnect
// path: clients that were already present get their state reconciled
// against a fresh forwarder dump rather than blindly replayed).
func (o *OM) Connect(ctx context.Context, conn transport.Conn) error {
	o.Queue.Connect(conn)
	atomic.AddUint64(&o.epoch, 1)

	o.mu.Lock()
	clientKeys := make([]ClientKey, 0, len(o.clients))
	for k := range o.clients {
		clientKeys = append(clientKeys, k)
	}
	o.mu.Unlock()

	if len(clientKeys) == 0 {
		return o.Replay()
	}
	for _, ck := range clientKeys {
		if err := o.Populate(ck); err != nil {
			return fmt.Errorf("om: populate client %s: %w", ck, err)
		}
	}
	return nil
}

// Disconnect tears down the command queue, failing every in-flight command.
// The client/object ownership graph is left untouched: desired state survives
// a disconnect, and Connect will reconcile it against the new connection.
func (o *OM) Disconnect() {
	o.Queue.Disconnect()
}

// Populate runs every registered family's HandlePopulate for client, in
// ascending dependency order, with the command queue's kill-switch held
// disabled for the whole pass and guaranteed re-enabled on return even if a
// family returns an error (SPEC_FULL.md §5.D; this is a deliberate hardening
// over the original's trust-the-caller contract, see DESIGN.md).
func (o *OM) Populate(client ClientKey) error {
	o.Queue.disable()
	defer o.Queue.Enable()

	ctx := PopulateContext{client: client, queue: o.Queue}
	for _, l := range o.registry.ordered() {
		if err := l.HandlePopulate(ctx); err != nil {
			return fmt.Errorf("om: populate %s for client %s: %w", l.Tag(), client, err)
		}
	}
	return nil
}

// Replay re-issues create commands for every family's canonical instances
// that have ever reached rc.OK, in ascending dependency order. Used on first
// connect, when there is no prior client to populate against.
func (o *OM) Replay() error {
	for _, l := range o.registry.ordered() {
		if err := l.HandleReplay(); err != nil {
			return fmt.Errorf("om: replay %s: %w", l.Tag(), err)
		}
	}
	return nil
}

// Mark flags every object currently referenced by (client, family) as stale,
// in preparation for a fresh commit pass. Objects that get re-Commit-ed
// before the matching Sweep have their stale bit cleared; anything still
// stale at Sweep time is considered withdrawn by the client.
func (o *OM) Mark(client ClientKey, family FamilyTag) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, entry := range o.clients[client][family] {
		entry.stale = true
	}
}

// Commit registers client's reference to obj under family, clearing its
// stale bit (or creating the reference, with a fresh global refcount, if
// this is the first time client has referenced obj). It returns obj.Result()
// so callers can report the converged rc.Code back to whoever asked for the
// commit.
func (o *OM) Commit(client ClientKey, family FamilyTag, obj Object) rc.Code {
	o.mu.Lock()
	families, ok := o.clients[client]
	if !ok {
		families = make(map[FamilyTag]map[Object]*refEntry)
		o.clients[client] = families
	}
	refs, ok := families[family]
	if !ok {
		refs = make(map[Object]*refEntry)
		families[family] = refs
	}
	if entry, exists := refs[obj]; exists {
		entry.stale = false
	} else {
		refs[obj] = &refEntry{obj: obj, stale: false}
		o.refcounts[obj]++
	}
	o.mu.Unlock()

	return obj.Result()
}

// Remove explicitly withdraws client's reference to obj under family,
// independent of any in-progress Mark/Sweep cycle. If that was the last
// reference anywhere, obj.Release() runs synchronously before Remove
// returns.
func (o *OM) Remove(client ClientKey, family FamilyTag, obj Object) {
	release := false
	o.mu.Lock()
	if refs, ok := o.clients[client][family]; ok {
		if _, exists := refs[obj]; exists {
			delete(refs, obj)
			o.refcounts[obj]--
			if o.refcounts[obj] <= 0 {
				delete(o.refcounts, obj)
				release = true
			}
		}
	}
	onRelease := o.onRelease
	o.mu.Unlock()
	if release {
		obj.Release()
		if onRelease != nil {
			onRelease()
		}
	}
}

// Sweep drops every still-stale reference left over from the last Mark for
// (client, family), decrementing each object's global refcount and calling
// Release on any object that reaches zero references across every client.
// It returns the objects that were released.
func (o *OM) Sweep(client ClientKey, family FamilyTag) []Object {
	var released []Object

	o.mu.Lock()
	refs, ok := o.clients[client][family]
	if ok {
		for obj, entry := range refs {
			if !entry.stale {
				continue
			}
			delete(refs, obj)
			o.refcounts[obj]--
			if o.refcounts[obj] <= 0 {
				delete(o.refcounts, obj)
				released = append(released, obj)
			}
		}
	}
	onSweep, onRelease := o.onSweep, o.onRelease
	o.mu.Unlock()

	for _, obj := range released {
		obj.Release()
		if onRelease != nil {
			onRelease()
		}
	}
	if onSweep != nil {
		onSweep()
	}
	return released
}

// RefCount reports how many client/family references currently point at obj,
// across the whole ownership graph. Used by tests and telemetry.
func (o *OM) RefCount(obj Object) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.refcounts[obj]
}

// ClientCount reports how many distinct clients have ever committed a
// reference and not yet been fully torn down, used by internal/telemetry.
func (o *OM) ClientCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.clients)
}

// ForgetClient drops every reference client holds across every family,
// releasing any object whose refcount reaches zero as a result. Used when a
// client disconnects for good, as opposed to a forwarder reconnect.
func (o *OM) ForgetClient(client ClientKey) {
	var released []Object

	o.mu.Lock()
	for _, refs := range o.clients[client] {
		for obj := range refs {
			o.refcounts[obj]--
			if o.refcounts[obj] <= 0 {
				delete(o.refcounts, obj)
				released = append(released, obj)
			}
		}
	}
	delete(o.clients, client)
	onRelease := o.onRelease
	o.mu.Unlock()

	for _, obj := range released {
		obj.Release()
		if onRelease != nil {
			onRelease()
		}
	}
}
