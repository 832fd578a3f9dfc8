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

// Package iface is the base interface family, keyed by name, and the Base
// struct that families/subinterface and families/vxlantunnel embed for their
// own create_cmd/delete_cmd plumbing. VOM expressed this sharing through a
// C++ interface base class; Go has no class inheritance, so composition via
// an embedded Base stands in for it (see DESIGN.md).
package iface

import (
	"context"
	"encoding/gob"
	"fmt"
	"sync"

	"vppom/internal/om"
	"vppom/internal/transport"
	"vppom/pkg/hwitem"
	"vppom/pkg/rc"
)

func init() {
	gob.Register(State{})
	gob.Register(createRequest{})
	gob.Register(reply{})
}

// MockAck answers an interface-shaped create/delete request as if the
// forwarder accepted it immediately. It handles every request built by
// Base.Converge/Base.Teardown, regardless of which embedding family
// (iface, subinterface, vxlantunnel) issued it.
func MockAck(req transport.Request) []transport.Message {
	cr, ok := req.Payload.(createRequest)
	if !ok {
		return nil
	}
	return []transport.Message{{
		Correlation: req.Correlation,
		Kind:        transport.KindReply,
		Payload:     reply{State: cr.State, Code: rc.OK},
	}}
}

// State is the desired configuration shared by every interface-shaped
// object: administrative state and MTU. Concrete families add their own
// fields alongside an embedded Base rather than extending State, since each
// family's wire payload differs.
type State struct {
	Up  bool
	MTU uint32
}

type createRequest struct {
	Name  string
	Kind  string
	State State
}

type reply struct {
	State State
	Code  rc.Code
}

// Base is the shared HW-item bookkeeping and command issuance every
// interface-shaped family embeds. It does not itself implement om.Object:
// Key() and Release() stay with the embedding family, since only it knows
// its own SingularDB.
type Base struct {
	mu    sync.Mutex
	name  string
	kind  string
	item  hwitem.Item[State]
	queue *om.CommandQueue
}

// NewBase returns a Base for an interface-shaped object named name, of the
// given kind (used only as a label in command names and logging, e.g.
// "interface", "sub-interface", "vxlan-tunnel-itf").
func NewBase(name, kind string, queue *om.CommandQueue) Base {
	return Base{name: name, kind: kind, item: hwitem.New(State{}), queue: queue}
}

// NewDesiredBase builds a Base carrying state but with no queue attached,
// for use only as the throwaway "desired" argument to another Base-embedding
// Object's Update. Converge/Teardown must never be called on the result.
func NewDesiredBase(name, kind string, state State) Base {
	return Base{name: name, kind: kind, item: hwitem.New(state)}
}

func (b *Base) Name() string { return b.name }

func (b *Base) Data() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.item.Data()
}

func (b *Base) Result() rc.Code {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.item.Code()
}

func (b *Base) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fmt.Sprintf("%s[name=%s %s]", b.kind, b.name, b.item)
}

// Converge diffs desired against the current HW item and enqueues a create
// command if they differ.
func (b *Base) Converge(desired State) {
	b.mu.Lock()
	needsWrite := b.item.Update(hwitem.New(desired))
	name, kind := b.name, b.kind
	b.mu.Unlock()
	if !needsWrite {
		return
	}
	corr := b.queue.NextCorrelation()
	cmd := om.NewRPCCommand(corr, kind+"-create",
		func() any { return createRequest{Name: name, Kind: kind, State: desired} },
		&b.item,
		func(payload any) (State, rc.Code) {
			r, ok := payload.(reply)
			if !ok {
				return State{}, rc.INVALID
			}
			return r.State, r.Code
		})
	b.queue.Enqueue(cmd)
}

// SetConverged adopts state as already-converged, current forwarder fact —
// no command is built or enqueued. A family's HandlePopulate calls this for
// each dumped record instead of Converge: the object was just discovered by
// dump, not programmed by this engine, so there is nothing left to issue.
func (b *Base) SetConverged(state State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.item = hwitem.NewFull(state, rc.OK)
}

// Teardown issues a delete command if the interface is currently created.
func (b *Base) Teardown() {
	b.mu.Lock()
	created := b.item.Code() == rc.OK
	name, kind := b.name, b.kind
	b.mu.Unlock()
	if !created {
		return
	}
	corr := b.queue.NextCorrelation()
	cmd := om.NewRPCCommand(corr, kind+"-delete",
		func() any { return createRequest{Name: name, Kind: kind} },
		&b.item,
		func(payload any) (State, rc.Code) {
			r, ok := payload.(reply)
			if !ok {
				return State{}, rc.INVALID
			}
			if r.Code == rc.OK {
				return State{}, rc.NOOP
			}
			return r.State, r.Code
		})
	b.queue.Enqueue(cmd)
}

// Drain flushes the queue's backlog and reports the worst rc.Code seen.
func Drain(queue *om.CommandQueue) rc.Code {
	return queue.Write(context.Background())
}
