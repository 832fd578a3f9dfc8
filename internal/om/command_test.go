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
	"testing"

	"vppom/internal/transport"
	"vppom/pkg/hwitem"
	"vppom/pkg/rc"
)

// recordingConn captures every submitted request; Recv is never exercised
// here since these tests drive Deliver directly.
type recordingConn struct {
	submitted []transport.Request
}

func (c *recordingConn) Submit(ctx context.Context, req transport.Request) error {
	c.submitted = append(c.submitted, req)
	return nil
}

func (c *recordingConn) Recv(ctx context.Context) (transport.Message, error) {
	<-ctx.Done()
	return transport.Message{}, ctx.Err()
}

func (c *recordingConn) Close() error { return nil }

type widgetReply struct {
	Value int
	Code  rc.Code
}

func TestRPCCommandDeliverAppliesReply(t *testing.T) {
	item := hwitem.New(0)
	cmd := NewRPCCommand(1, "widget-create",
		func() any { return "widget-request" },
		&item,
		func(payload any) (int, rc.Code) {
			r := payload.(widgetReply)
			return r.Value, r.Code
		})

	conn := &recordingConn{}
	if err := cmd.Issue(context.Background(), conn); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(conn.submitted) != 1 || conn.submitted[0].Correlation != 1 {
		t.Fatalf("Issue submitted %v, want one request with correlation 1", conn.submitted)
	}

	done := cmd.Deliver(transport.Message{Correlation: 1, Payload: widgetReply{Value: 7, Code: rc.OK}})
	if !done {
		t.Fatal("Deliver on an RPC command's only reply returned false, want true")
	}
	if item.Data() != 7 || item.Code() != rc.OK {
		t.Fatalf("item after Deliver = %v, want data=7 code=ok", item)
	}

	// A second Deliver for an already-terminal command must be a no-op, not
	// a panic on a closed channel.
	if !cmd.Deliver(transport.Message{Correlation: 1, Payload: widgetReply{Value: 9, Code: rc.OK}}) {
		t.Fatal("Deliver on an already-terminal command returned false")
	}
	if item.Data() != 7 {
		t.Fatalf("item mutated by a redundant Deliver: got %d, want 7", item.Data())
	}
}

func TestRPCCommandFailBeforeReply(t *testing.T) {
	item := hwitem.New(0)
	cmd := NewRPCCommand(2, "widget-create",
		func() any { return "widget-request" },
		&item,
		func(any) (int, rc.Code) { return 0, rc.OK })

	cmd.Fail(rc.RETRY)
	if item.Code() != rc.RETRY {
		t.Fatalf("item code after Fail = %s, want %s", item.Code(), rc.RETRY)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := cmd.Await(ctx); err != nil {
		t.Fatalf("Await after Fail returned %v, want nil (already terminal)", err)
	}
}

func TestDumpCommandRecordsAndControlPing(t *testing.T) {
	cmd := NewDumpCommand[int](3, "widget-dump", func() any { return "dump-request" })

	if done := cmd.Deliver(transport.Message{Correlation: 3, Kind: transport.KindRecord, Payload: 10}); done {
		t.Fatal("Deliver on a record message returned done=true, want false")
	}
	if done := cmd.Deliver(transport.Message{Correlation: 3, Kind: transport.KindRecord, Payload: 20}); done {
		t.Fatal("Deliver on a second record message returned done=true, want false")
	}
	done := cmd.Deliver(transport.Message{Correlation: 3, Kind: transport.KindControlPing})
	if !done {
		t.Fatal("Deliver on the control-ping sentinel returned done=false, want true")
	}

	got := cmd.Records()
	if len(got) != 2 || got[0] != 10 || got[1] != 20 {
		t.Fatalf("Records() = %v, want [10 20]", got)
	}

	// Single-pass: a second drain is empty even though nothing new arrived.
	if got := cmd.Records(); got != nil {
		t.Fatalf("second Records() call = %v, want nil", got)
	}
}

func TestDumpCommandIgnoresWrongType(t *testing.T) {
	cmd := NewDumpCommand[int](4, "widget-dump", func() any { return "dump-request" })
	cmd.Deliver(transport.Message{Correlation: 4, Kind: transport.KindRecord, Payload: "not-an-int"})
	cmd.Deliver(transport.Message{Correlation: 4, Kind: transport.KindControlPing})
	if got := cmd.Records(); len(got) != 0 {
		t.Fatalf("Records() = %v, want empty (mistyped record dropped)", got)
	}
}

func TestEventCommandNeverSelfCompletes(t *testing.T) {
	var notified []int
	cmd := NewEventCommand(5, "widget-events",
		func() any { return "subscribe" },
		func(v int) { notified = append(notified, v) })

	if done := cmd.Deliver(transport.Message{Correlation: 5, Kind: transport.KindEvent, Payload: 1}); done {
		t.Fatal("EventCommand.Deliver returned done=true before Retire, want false")
	}
	if done := cmd.Deliver(transport.Message{Correlation: 5, Kind: transport.KindEvent, Payload: 2}); done {
		t.Fatal("EventCommand.Deliver returned done=true on a second event, want false")
	}
	if len(notified) != 2 || notified[0] != 1 || notified[1] != 2 {
		t.Fatalf("notify callback saw %v, want [1 2]", notified)
	}
	if cmd.Retired() {
		t.Fatal("Retired() = true before Retire was called")
	}

	cmd.Retire()
	if !cmd.Retired() {
		t.Fatal("Retired() = false after Retire")
	}
	// Retiring twice must not panic on a closed channel.
	cmd.Retire()

	if done := cmd.Deliver(transport.Message{Correlation: 5, Kind: transport.KindEvent, Payload: 3}); !done {
		t.Fatal("Deliver after Retire returned done=false, want true (drop from pending)")
	}
}

func TestEventCommandFailRetires(t *testing.T) {
	cmd := NewEventCommand[int](6, "widget-events", func() any { return "subscribe" }, nil)
	cmd.Fail(rc.RETRY)
	if !cmd.Retired() {
		t.Fatal("Fail did not retire the event command")
	}
}

func TestCommandEqual(t *testing.T) {
	item := hwitem.New(0)
	rpcA := NewRPCCommand(1, "widget-create", func() any { return nil }, &item, func(any) (int, rc.Code) { return 0, rc.OK })
	rpcB := NewRPCCommand(1, "widget-create", func() any { return nil }, &item, func(any) (int, rc.Code) { return 0, rc.OK })
	rpcOtherCorr := NewRPCCommand(2, "widget-create", func() any { return nil }, &item, func(any) (int, rc.Code) { return 0, rc.OK })
	rpcOtherLabel := NewRPCCommand(1, "widget-delete", func() any { return nil }, &item, func(any) (int, rc.Code) { return 0, rc.OK })

	if !rpcA.Equal(rpcB) {
		t.Fatal("two distinct RPCCommand instances with the same correlation and label reported unequal")
	}
	if rpcA.Equal(rpcOtherCorr) {
		t.Fatal("RPCCommand.Equal ignored a differing correlation id")
	}
	if rpcA.Equal(rpcOtherLabel) {
		t.Fatal("RPCCommand.Equal ignored a differing label")
	}

	dump := NewDumpCommand[int](1, "widget-dump", func() any { return nil })
	if rpcA.Equal(dump) {
		t.Fatal("RPCCommand.Equal reported equal against a DumpCommand with the same correlation id")
	}

	evtA := NewEventCommand[int](3, "widget-events", func() any { return nil }, nil)
	evtB := NewEventCommand[int](3, "widget-events", func() any { return nil }, nil)
	if !evtA.Equal(evtB) {
		t.Fatal("two distinct EventCommand instances with the same correlation and label reported unequal")
	}

	dumpA := NewDumpCommand[int](4, "widget-dump", func() any { return nil })
	dumpB := NewDumpCommand[int](4, "widget-dump", func() any { return nil })
	if !dumpA.Equal(dumpB) {
		t.Fatal("two distinct DumpCommand instances with the same correlation and label reported unequal")
	}
}
