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

package bridgedomain

import (
	"context"
	"testing"

	"vppom/internal/om"
	"vppom/internal/transport"
	"vppom/internal/transport/memconn"
	"vppom/pkg/rc"
)

func TestBridgeDomainSingularInternsOnce(t *testing.T) {
	parent := om.New()
	fam := New(parent)

	a := fam.Singular(1)
	b := fam.Singular(1)
	if a != b {
		t.Fatal("Singular returned two different instances for the same id")
	}
	if fam.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", fam.Len())
	}
}

func TestBridgeDomainUpdateConverges(t *testing.T) {
	parent := om.New()
	fam := New(parent)
	conn := memconn.New(MockAck)
	parent.Queue.Connect(conn)
	defer parent.Queue.Disconnect()

	obj := fam.Singular(1)
	desired := fam.Desired(1, Config{Learn: true, Flood: true, Forward: true})
	obj.Update(desired)

	if code := parent.Queue.Write(context.Background()); code != rc.OK {
		t.Fatalf("Write = %s, want %s", code, rc.OK)
	}
	if obj.Result() != rc.OK {
		t.Fatalf("Result() after converging update = %s, want %s", obj.Result(), rc.OK)
	}
}

func TestBridgeDomainCommitSweepReleasesOnWithdraw(t *testing.T) {
	parent := om.New()
	fam := New(parent)
	conn := memconn.New(MockAck)
	parent.Queue.Connect(conn)
	defer parent.Queue.Disconnect()

	obj := fam.Singular(1)
	obj.Update(fam.Desired(1, Config{Learn: true}))
	parent.Queue.Write(context.Background())
	parent.Commit("client-a", fam.Tag(), obj)

	parent.Mark("client-a", fam.Tag())
	released := parent.Sweep("client-a", fam.Tag())

	if len(released) != 1 {
		t.Fatalf("Sweep released %d objects, want 1", len(released))
	}
	// Release ran a delete (enqueued) and scrubbed the singular table.
	if fam.Len() != 0 {
		t.Fatalf("Len() after Release = %d, want 0", fam.Len())
	}
}

func TestBridgeDomainHandleReplayReissuesCreates(t *testing.T) {
	parent := om.New()
	fam := New(parent)
	conn := memconn.New(MockAck)
	parent.Queue.Connect(conn)
	defer parent.Queue.Disconnect()

	obj := fam.Singular(7)
	obj.Update(fam.Desired(7, Config{Flood: true}))
	if code := parent.Queue.Write(context.Background()); code != rc.OK {
		t.Fatalf("initial Write = %s, want %s", code, rc.OK)
	}

	if err := fam.HandleReplay(); err != nil {
		t.Fatalf("HandleReplay: %v", err)
	}
	if obj.Result() != rc.OK {
		t.Fatalf("Result() after HandleReplay = %s, want %s", obj.Result(), rc.OK)
	}
}

func TestBridgeDomainHandlePopulateInternsDumpedRecords(t *testing.T) {
	parent := om.New()
	fam := New(parent)

	handler := func(req transport.Request) []transport.Message {
		switch req.Payload.(type) {
		case dumpRequest:
			return []transport.Message{
				{Correlation: req.Correlation, Kind: transport.KindRecord, Payload: dumpRecord{ID: 3, Config: Config{Learn: true}}},
				{Correlation: req.Correlation, Kind: transport.KindControlPing},
			}
		default:
			return MockAck(req)
		}
	}
	conn := memconn.New(handler)
	parent.Queue.Connect(conn)
	defer parent.Queue.Disconnect()

	if err := parent.Populate("client-a"); err != nil {
		t.Fatalf("Populate: %v", err)
	}

	if fam.Len() != 1 {
		t.Fatalf("Len() after Populate = %d, want 1", fam.Len())
	}
	obj := fam.Singular(3)
	if obj.Result() != rc.OK {
		t.Fatalf("dumped object Result() = %s, want %s", obj.Result(), rc.OK)
	}
	if parent.RefCount(obj) != 1 {
		t.Fatalf("RefCount after Populate = %d, want 1", parent.RefCount(obj))
	}
}

func TestBridgeDomainHandlePopulateSweepsWithdrawnRecords(t *testing.T) {
	parent := om.New()
	fam := New(parent)

	present := true
	handler := func(req transport.Request) []transport.Message {
		switch req.Payload.(type) {
		case dumpRequest:
			msgs := []transport.Message{}
			if present {
				msgs = append(msgs, transport.Message{Correlation: req.Correlation, Kind: transport.KindRecord, Payload: dumpRecord{ID: 3, Config: Config{}}})
			}
			msgs = append(msgs, transport.Message{Correlation: req.Correlation, Kind: transport.KindControlPing})
			return msgs
		default:
			return MockAck(req)
		}
	}
	conn := memconn.New(handler)
	parent.Queue.Connect(conn)
	defer parent.Queue.Disconnect()

	if err := parent.Populate("client-a"); err != nil {
		t.Fatalf("first Populate: %v", err)
	}
	if fam.Len() != 1 {
		t.Fatalf("Len() after first Populate = %d, want 1", fam.Len())
	}

	present = false
	if err := parent.Populate("client-a"); err != nil {
		t.Fatalf("second Populate: %v", err)
	}
	if fam.Len() != 0 {
		t.Fatalf("Len() after second Populate with the record withdrawn = %d, want 0", fam.Len())
	}
}
