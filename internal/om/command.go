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

	"vppom/internal/transport"
	"vppom/pkg/hwitem"
	"vppom/pkg/rc"
)

// Command is the shared contract of the three command shapes described in
// SPEC_FULL.md §5.C. The queue only ever talks to commands through this
// interface; it never inspects a command's payload.
type Command interface {
	// Correlation is the id the queue demultiplexes replies by.
	Correlation() transport.CorrelationID
	// Issue builds and submits the wire request. Called by the queue's
	// Write, never by family code directly.
	Issue(ctx context.Context, conn transport.Conn) error
	// Deliver hands an inbound message addressed to this command's
	// correlation id to the command. It returns true once the command has
	// reached a terminal state (rpc reply received, or dump sentinel seen)
	// and should be dropped from the queue's pending map. Event commands
	// return false until Retire, and true afterwards so the queue drops them.
	Deliver(msg transport.Message) (done bool)
	// Await blocks until Deliver has made the command terminal, or ctx ends,
	// or the connection signals disconnection via Fail.
	Await(ctx context.Context) error
	// Fail forces the command into a terminal failure state, used when the
	// connection drops while the command is still pending.
	Fail(code rc.Code)
	String() string
	// Equal reports whether other is a command of the same concrete shape,
	// correlation id and label. Test-only: nothing in the queue itself
	// compares commands for equality.
	Equal(other Command) bool
}

// payloadBuilder lets each family supply the opaque wire payload for a
// command without the queue needing to know the family's wire format.
type payloadBuilder func() any

// RPCCommand is a single request -> single reply command that updates one
// HW item on completion.
type RPCCommand[T comparable] struct {
	corr    transport.CorrelationID
	build   payloadBuilder
	item    *hwitem.Item[T]
	apply   func(payload any) (T, rc.Code) // decode reply into (data, code)
	label   string

	mu   sync.Mutex
	done bool
	ch   chan struct{}
}

// NewRPCCommand constructs an RPC command that will populate item on reply.
// apply decodes the forwarder's reply payload into the new data and result
// code for item.
func NewRPCCommand[T comparable](corr transport.CorrelationID, label string, build payloadBuilder, item *hwitem.Item[T], apply func(any) (T, rc.Code)) *RPCCommand[T] {
	return &RPCCommand[T]{corr: corr, build: build, item: item, apply: apply, label: label, ch: make(chan struct{})}
}

func (c *RPCCommand[T]) Correlation() transport.CorrelationID { return c.corr }

func (c *RPCCommand[T]) Issue(ctx context.Context, conn transport.Conn) error {
	return conn.Submit(ctx, transport.Request{Correlation: c.corr, Payload: c.build()})
}

func (c *RPCCommand[T]) Deliver(msg transport.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return true
	}
	data, code := c.apply(msg.Payload)
	c.item.SetCode(code)
	if code == rc.OK {
		full := hwitem.NewFull(data, code)
		*c.item = full
	}
	c.done = true
	close(c.ch)
	return true
}

func (c *RPCCommand[T]) Await(ctx context.Context) error {
	// A command that is already terminal reports nil even if ctx has ended.
	select {
	case <-c.ch:
		return nil
	default:
	}
	select {
	case <-c.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *RPCCommand[T]) Fail(code rc.Code) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return
	}
	c.item.SetCode(code)
	c.done = true
	close(c.ch)
}

func (c *RPCCommand[T]) String() string {
	return fmt.Sprintf("rpc-cmd[%s corr=%d %s]", c.label, c.corr, c.item)
}

// Equal reports structural equality: same concrete type, correlation id and
// label. It does not compare the target hwitem or apply function.
func (c *RPCCommand[T]) Equal(other Command) bool {
	o, ok := other.(*RPCCommand[T])
	if !ok {
		return false
	}
	return c.corr == o.corr && c.label == o.label
}

// DumpCommand is a single request -> N streamed records, terminated by a
// control-ping sentinel. It is finite and single-pass: a family that wants a
// fresh scan must issue a new DumpCommand.
type DumpCommand[R any] struct {
	corr  transport.CorrelationID
	build payloadBuilder
	label string

	mu      sync.Mutex
	records []R
	done    bool
	ch      chan struct{}
}

func NewDumpCommand[R any](corr transport.CorrelationID, label string, build payloadBuilder) *DumpCommand[R] {
	return &DumpCommand[R]{corr: corr, build: build, label: label, ch: make(chan struct{})}
}

func (c *DumpCommand[R]) Correlation() transport.CorrelationID { return c.corr }

func (c *DumpCommand[R]) Issue(ctx context.Context, conn transport.Conn) error {
	return conn.Submit(ctx, transport.Request{Correlation: c.corr, Payload: c.build()})
}

func (c *DumpCommand[R]) Deliver(msg transport.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return true
	}
	if msg.Kind == transport.KindControlPing {
		c.done = true
		close(c.ch)
		return true
	}
	if rec, ok := msg.Payload.(R); ok {
		c.records = append(c.records, rec)
	}
	return false
}

func (c *DumpCommand[R]) Await(ctx context.Context) error {
	select {
	case <-c.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *DumpCommand[R]) Fail(rc.Code) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return
	}
	c.done = true
	close(c.ch)
}

// Records drains the buffered records. Single-pass: calling it again after
// the first drain returns nil, matching the single-pass drain in
// SPEC_FULL.md §5.C.
func (c *DumpCommand[R]) Records() []R {
	c.mu.Lock()
	defer c.mu.Unlock()
	recs := c.records
	c.records = nil
	return recs
}

func (c *DumpCommand[R]) String() string {
	return fmt.Sprintf("dump-cmd[%s corr=%d]", c.label, c.corr)
}

// Equal reports structural equality: same concrete type, correlation id and
// label. It does not compare buffered records.
func (c *DumpCommand[R]) Equal(other Command) bool {
	o, ok := other.(*DumpCommand[R])
	if !ok {
		return false
	}
	return c.corr == o.corr && c.label == o.label
}

// EventCommand is a persistent subscription: issue installs it, and it stays
// pending until Retire is called. Incoming events are pushed onto an
// internal queue under the command's own mutex; notify is invoked after that
// mutex is released.
type EventCommand[E any] struct {
	corr   transport.CorrelationID
	build  payloadBuilder
	label  string
	notify func(E)

	mu       sync.Mutex
	events   []E
	retired  bool
	ch       chan struct{}
}

func NewEventCommand[E any](corr transport.CorrelationID, label string, build payloadBuilder, notify func(E)) *EventCommand[E] {
	return &EventCommand[E]{corr: corr, build: build, label: label, notify: notify, ch: make(chan struct{})}
}

func (c *EventCommand[E]) Correlation() transport.CorrelationID { return c.corr }

func (c *EventCommand[E]) Issue(ctx context.Context, conn transport.Conn) error {
	return conn.Submit(ctx, transport.Request{Correlation: c.corr, Payload: c.build()})
}

// Deliver returns false while the subscription is live: an event command
// never completes on its own, only Retire ends its lifetime. After Retire it
// returns true, so the queue drops it from its pending map.
func (c *EventCommand[E]) Deliver(msg transport.Message) bool {
	c.mu.Lock()
	if c.retired {
		c.mu.Unlock()
		return true
	}
	ev, ok := msg.Payload.(E)
	if ok {
		c.events = append(c.events, ev)
	}
	c.mu.Unlock()
	if ok && c.notify != nil {
		c.notify(ev)
	}
	return false
}

// Await returns once Issue has submitted the subscription; events arrive
// asynchronously thereafter via Deliver/Notify, not through Await.
func (c *EventCommand[E]) Await(ctx context.Context) error {
	return nil
}

func (c *EventCommand[E]) Fail(rc.Code) {
	c.Retire()
}

// Retire unregisters the subscription; subsequent Delivers are dropped.
func (c *EventCommand[E]) Retire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.retired {
		return
	}
	c.retired = true
	close(c.ch)
}

func (c *EventCommand[E]) Retired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retired
}

func (c *EventCommand[E]) String() string {
	return fmt.Sprintf("event-cmd[%s corr=%d]", c.label, c.corr)
}

// Equal reports structural equality: same concrete type, correlation id and
// label. It does not compare buffered events or the notify callback.
func (c *EventCommand[E]) Equal(other Command) bool {
	o, ok := other.(*EventCommand[E])
	if !ok {
		return false
	}
	return c.corr == o.corr && c.label == o.label
}
