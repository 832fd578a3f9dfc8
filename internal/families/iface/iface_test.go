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

package iface

import (
	"testing"

	"vppom/internal/om"
	"vppom/internal/transport"
	"vppom/internal/transport/memconn"
	"vppom/pkg/rc"
)

func TestInterfaceHandlePopulateInternsDumpedRecordsWithoutReprogramming(t *testing.T) {
	parent := om.New()
	fam := New(parent)

	handler := func(req transport.Request) []transport.Message {
		switch req.Payload.(type) {
		case dumpRequest:
			return []transport.Message{
				{Correlation: req.Correlation, Kind: transport.KindRecord, Payload: dumpRecord{Name: "eth0", State: State{Up: true, MTU: 1500}}},
				{Correlation: req.Correlation, Kind: transport.KindControlPing},
			}
		default:
			return MockAckDump(req)
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
	obj := fam.Singular("eth0")
	if obj.Result() != rc.OK {
		t.Fatalf("dumped object Result() = %s, want %s", obj.Result(), rc.OK)
	}
	if obj.Data() != (State{Up: true, MTU: 1500}) {
		t.Fatalf("dumped object Data() = %+v, want {Up:true MTU:1500}", obj.Data())
	}

	// The whole point: discovering the object via dump must not leave a
	// create command sitting in the backlog to be silently issued later.
	if got := parent.Queue.BacklogCount(); got != 0 {
		t.Fatalf("BacklogCount() after Populate = %d, want 0 (no reprogram-on-populate)", got)
	}
	if got := parent.Queue.PendingCount(); got != 0 {
		t.Fatalf("PendingCount() after Populate = %d, want 0", got)
	}
}
