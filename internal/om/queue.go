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
	"vppom/pkg/rc"
)

// CommandQueue serializes outbound submissions to a single transport.Conn and
// demultiplexes inbound messages back to the Command that issued the request
// they answer. It also implements the kill-switch the populate protocol
// needs: while disabled, Write refuses new work so a family's populate pass
// can run against a frozen view of in-flight commands (SPEC_FULL.md §5.D,
// §7).
//
// Lock ordering for callers that also hold OM's client-db mutex: OM -> queue.
// Never the reverse.
type CommandQueue struct {
	mu      sync.Mutex
	conn    transport.Conn
	pending map[transport.CorrelationID]Command
	backlog []Command
	nextID  transport.CorrelationID
	enabled bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewCommandQueue returns a disconnected, disabled queue. Connect must be
// called before Write will issue anything.
func NewCommandQueue() *CommandQueue {
	return &CommandQueue{
		pending: make(map[transport.CorrelationID]Command),
	}
}

// NextCorrelation hands out the next correlation id. Families call this when
// building a command, before constructing its payload.
func (q *CommandQueue) NextCorrelation() transport.CorrelationID {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	return q.nextID
}

// Enqueue appends cmd to the write backlog. It does not block on issuing the
// command; call Write (or let the next Commit cycle do so) to flush.
func (q *CommandQueue) Enqueue(cmd Command) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.backlog = append(q.backlog, cmd)
}

// Write issues every backlogged command and waits for each to reach a
// terminal state, in submission order. It returns rc.RETRY without issuing
// anything if the queue is currently disabled or disconnected, mirroring the
// forwarder's own backpressure signal. Ordinary callers outside a populate
// pass — HandleReplay, a one-off Commit flush — use this.
func (q *CommandQueue) Write(ctx context.Context) rc.Code {
	q.mu.Lock()
	if !q.enabled {
		q.mu.Unlock()
		return rc.RETRY
	}
	q.mu.Unlock()
	return q.writeBacklog(ctx)
}

// WriteDuringPopulate issues every backlogged command the same way Write
// does, but ignores the kill-switch. OM.Populate disables the queue around
// the whole family dispatch specifically to hold off unrelated writers (a
// concurrent Commit-driven flush) while a dump is in flight; a family's own
// HandlePopulate still needs to issue its dump command through the same
// queue it was just locked out of, so it calls this instead of Write.
func (q *CommandQueue) WriteDuringPopulate(ctx context.Context) rc.Code {
	return q.writeBacklog(ctx)
}

func (q *CommandQueue) writeBacklog(ctx context.Context) rc.Code {
	q.mu.Lock()
	if q.conn == nil {
		q.mu.Unlock()
		return rc.RETRY
	}
	backlog := q.backlog
	q.backlog = nil
	conn := q.conn
	for _, cmd := range backlog {
		q.pending[cmd.Correlation()] = cmd
	}
	q.mu.Unlock()

	worst := rc.OK
	for _, cmd := range backlog {
		if err := cmd.Issue(ctx, conn); err != nil {
			cmd.Fail(rc.RETRY)
			worst = rc.RETRY
			continue
		}
		if err := cmd.Await(ctx); err != nil {
			cmd.Fail(rc.TIMEOUT)
			worst = rc.TIMEOUT
		}
	}
	return worst
}

// disable flips the kill-switch off. Only OM.Populate brackets calls with
// this; family code never calls it directly.
func (q *CommandQueue) disable() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enabled = false
}

// Enable flips the kill-switch back on. Exported because it doubles as the
// public "queue is ready for work" signal after Connect.
func (q *CommandQueue) Enable() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enabled = true
}

// Enabled reports the current kill-switch state.
func (q *CommandQueue) Enabled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enabled
}

// Connect attaches conn and starts the receive loop. The receive loop of any
// previously attached connection is stopped first, failing its pending
// commands; the previous conn itself is not closed. The queue starts enabled:
// callers that need a populate pass before taking live traffic should
// disable immediately after Connect returns.
func (q *CommandQueue) Connect(conn transport.Conn) {
	q.mu.Lock()
	prevCancel, prevDone := q.cancel, q.done
	q.cancel = nil
	q.mu.Unlock()
	if prevCancel != nil {
		prevCancel()
		<-prevDone
	}

	q.mu.Lock()
	ctx, cancel := context.WithCancel(context.Background())
	q.conn = conn
	q.cancel = cancel
	q.done = make(chan struct{})
	q.enabled = true
	done := q.done
	q.mu.Unlock()

	go q.receiveLoop(ctx, conn, done)
}

func (q *CommandQueue) receiveLoop(ctx context.Context, conn transport.Conn, done chan struct{}) {
	defer close(done)
	for {
		msg, err := conn.Recv(ctx)
		if err != nil {
			q.failAllPending(rc.TIMEOUT)
			return
		}
		q.dispatch(msg)
	}
}

func (q *CommandQueue) dispatch(msg transport.Message) {
	q.mu.Lock()
	cmd, ok := q.pending[msg.Correlation]
	q.mu.Unlock()
	if !ok {
		return
	}
	if cmd.Deliver(msg) {
		q.mu.Lock()
		delete(q.pending, msg.Correlation)
		q.mu.Unlock()
	}
}

func (q *CommandQueue) failAllPending(code rc.Code) {
	q.mu.Lock()
	pending := q.pending
	q.pending = make(map[transport.CorrelationID]Command)
	q.conn = nil
	q.mu.Unlock()
	for _, cmd := range pending {
		cmd.Fail(code)
	}
}

// Disconnect tears down the current connection, if any, failing every
// command still awaiting a reply. Safe to call when already disconnected.
func (q *CommandQueue) Disconnect() {
	q.mu.Lock()
	cancel := q.cancel
	done := q.done
	q.cancel = nil
	q.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// PendingCount reports the number of commands awaiting a reply, used by
// internal/telemetry to export queue depth.
func (q *CommandQueue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// BacklogCount reports the number of commands enqueued but not yet issued,
// used by tests to confirm a populate pass issued nothing beyond its own
// dump.
func (q *CommandQueue) BacklogCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}

func (q *CommandQueue) String() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return fmt.Sprintf("command-queue[enabled=%t pending=%d backlog=%d]", q.enabled, len(q.pending), len(q.backlog))
}
