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

// Package redisconn is a real, network-backed transport.Conn. It plays the
// role the teacher's GoRedisEvaler plays for persistence: a genuine client
// behind the same interface as the in-process fake, so cmd/ommockctl can be
// pointed at an actual forwarder-side bridge without any engine code change.
//
// Requests are published on a request channel; replies, dump records, control
// pings and events all arrive on a single per-connection reply channel, each
// envelope carrying its correlation id and kind so the command queue can
// demultiplex exactly as it would against the real forwarder wire protocol.
package redisconn

import (
	"context"
	"encoding/gob"
	"bytes"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"vppom/internal/transport"
)

func init() {
	gob.Register(envelope{})
}

// envelope is the wire shape published on Redis pub/sub channels.
type envelope struct {
	Correlation uint64
	Kind        int
	Payload     []byte
}

// Conn is a Redis-backed transport.Conn.
type Conn struct {
	client     *redis.Client
	requestCh  string
	replyCh    string
	sub        *redis.PubSub
	msgs       <-chan *redis.Message
}

// Dial connects to addr and subscribes to the reply channel for this client.
func Dial(ctx context.Context, addr, namespace string) (*Conn, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redisconn: dial %s: %w", addr, err)
	}
	replyCh := namespace + ":reply"
	sub := client.Subscribe(ctx, replyCh)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("redisconn: subscribe %s: %w", replyCh, err)
	}
	return &Conn{
		client:    client,
		requestCh: namespace + ":request",
		replyCh:   replyCh,
		sub:       sub,
		msgs:      sub.Channel(),
	}, nil
}

// Submit encodes req and publishes it on the request channel.
func (c *Conn) Submit(ctx context.Context, req transport.Request) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(req.Payload); err != nil {
		return fmt.Errorf("redisconn: encode payload: %w", err)
	}
	env := envelope{Correlation: uint64(req.Correlation), Payload: buf.Bytes()}
	var wire bytes.Buffer
	if err := gob.NewEncoder(&wire).Encode(env); err != nil {
		return fmt.Errorf("redisconn: encode envelope: %w", err)
	}
	return c.client.Publish(ctx, c.requestCh, wire.Bytes()).Err()
}

// Recv blocks for the next reply/record/ping/event on the reply channel.
func (c *Conn) Recv(ctx context.Context) (transport.Message, error) {
	select {
	case m, ok := <-c.msgs:
		if !ok {
			return transport.Message{}, transport.ErrClosed
		}
		var env envelope
		if err := gob.NewDecoder(bytes.NewReader([]byte(m.Payload))).Decode(&env); err != nil {
			return transport.Message{}, fmt.Errorf("redisconn: decode envelope: %w", err)
		}
		var payload any
		if len(env.Payload) > 0 {
			if err := gob.NewDecoder(bytes.NewReader(env.Payload)).Decode(&payload); err != nil {
				return transport.Message{}, fmt.Errorf("redisconn: decode payload: %w", err)
			}
		}
		return transport.Message{
			Correlation: transport.CorrelationID(env.Correlation),
			Kind:        transport.Kind(env.Kind),
			Payload:     payload,
		}, nil
	case <-ctx.Done():
		return transport.Message{}, ctx.Err()
	}
}

// Close unsubscribes and closes the underlying Redis client.
func (c *Conn) Close() error {
	_ = c.sub.Close()
	return c.client.Close()
}
