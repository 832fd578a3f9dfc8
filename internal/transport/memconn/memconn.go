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

// Package memconn is an in-process stand-in for the forwarder RPC channel,
// used by engine and family tests and by cmd/ommockctl's default mode. It
// plays the same role as the teacher's LoggingRedisEvaler/LoggingKafkaProducer:
// a dependency-free fake sitting behind the same interface as the real adapter.
package memconn

import (
	"context"
	"sync"

	"vppom/internal/transport"
)

// Handler computes the reply message(s) a fake forwarder sends back for a
// submitted request. Returning zero messages is valid for fire-and-forget
// event subscriptions; tests push further events with Conn.Push.
type Handler func(req transport.Request) []transport.Message

// Conn is a fake, in-memory transport.Conn. It is safe for concurrent Submit
// and Recv calls from separate goroutines, matching the real adapters.
type Conn struct {
	handler Handler

	mu     sync.Mutex
	closed bool
	inbox  chan transport.Message
}

// New returns a Conn that answers every Submit via handler.
func New(handler Handler) *Conn {
	return &Conn{
		handler: handler,
		inbox:   make(chan transport.Message, 256),
	}
}

// Submit runs the handler synchronously and queues any resulting messages
// for delivery through Recv, in order.
func (c *Conn) Submit(ctx context.Context, req transport.Request) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return transport.ErrClosed
	}
	c.mu.Unlock()

	msgs := c.handler(req)
	for _, m := range msgs {
		select {
		case c.inbox <- m:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Push injects a forwarder-originated message (e.g. an LLDP/ARP event, or a
// populate dump record) without going through Submit. Tests use this to
// simulate asynchronous forwarder activity.
func (c *Conn) Push(msg transport.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.inbox <- msg
}

// Recv blocks until a message is available, the context is cancelled, or the
// connection is closed.
func (c *Conn) Recv(ctx context.Context) (transport.Message, error) {
	select {
	case m, ok := <-c.inbox:
		if !ok {
			return transport.Message{}, transport.ErrClosed
		}
		return m, nil
	case <-ctx.Done():
		return transport.Message{}, ctx.Err()
	}
}

// Close tears the connection down; any blocked Recv returns ErrClosed.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.inbox)
	return nil
}
