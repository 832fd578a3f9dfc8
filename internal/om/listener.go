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
	"io"
	"sort"
	"sync"
)

// PopulateContext is the capability a family needs to run its populate pass.
// Only OM.Populate constructs one, bracketing the command queue's kill
// switch around the call so a family can never forget to re-enable it on an
// error path (see SPEC_FULL.md §5.D, and the PopulateContext kill-switch
// section of DESIGN.md).
type PopulateContext struct {
	client ClientKey
	queue  *CommandQueue
}

// Client is the client this populate pass is repopulating state for.
func (p PopulateContext) Client() ClientKey { return p.client }

// Queue gives a family access to the command queue for issuing its dump.
// Write is gated shut for the whole populate pass, so a family issues its
// dump with WriteDuringPopulate instead, which ignores that gate.
func (p PopulateContext) Queue() *CommandQueue { return p.queue }

// Listener is the contract a concrete family registers with OM so it can
// take part in populate/replay dispatch, ordered by Order() (SPEC_FULL.md
// §5.H, §6).
type Listener interface {
	// Tag names the family, used for logging and telemetry labeling.
	Tag() FamilyTag

	// Order reports the dependency level this family dispatches at.
	Order() Level

	// HandlePopulate reconciles this family's canonical instances against a
	// fresh dump from the forwarder for the given client, during reconnect.
	// A family with nothing to repopulate (SPEC_FULL.md §6, Open Question 1)
	// may implement this as a no-op returning nil.
	HandlePopulate(ctx PopulateContext) error

	// HandleReplay re-issues create commands for every canonical instance
	// that has ever reached rc.OK, after a connection is freshly established
	// with no prior dump (SPEC_FULL.md §8, epoch protocol).
	HandleReplay() error

	// Show writes a human-readable dump of this family's singular table to
	// w, for introspection tooling.
	Show(w io.Writer)
}

// listenerRegistry keeps every registered Listener sorted by Order, so
// Populate/Replay dispatch strictly in dependency order.
type listenerRegistry struct {
	mu        sync.Mutex
	listeners []Listener
	sorted    bool
}

func newListenerRegistry() *listenerRegistry {
	return &listenerRegistry{}
}

func (r *listenerRegistry) register(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
	r.sorted = false
}

// ordered returns every registered listener sorted by ascending Order. Ties
// are broken by registration order, which sort.SliceStable preserves.
func (r *listenerRegistry) ordered() []Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.sorted {
		sort.SliceStable(r.listeners, func(i, j int) bool {
			return r.listeners[i].Order() < r.listeners[j].Order()
		})
		r.sorted = true
	}
	out := make([]Listener, len(r.listeners))
	copy(out, r.listeners)
	return out
}
