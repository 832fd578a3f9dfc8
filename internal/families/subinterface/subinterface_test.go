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

package subinterface

import (
	"testing"

	"vppom/internal/families/iface"
	"vppom/internal/om"
	"vppom/internal/transport"
	"vppom/internal/transport/memconn"
	"vppom/pkg/rc"
)

func TestSubInterfaceHandlePopulateInternsDumpedRecordsWithoutReprogramming(t *testing.T) {
	parent := om.New()
	fam := New(parent)
	key := Key{Parent: "eth0", Vlan: 100}

	handler := func(req transport.Request) []transport.Message {
		switch req.Payload.(type) {
		case dumpRequest:
			return []transport.Message{
				{Correlation: req.Correlation, Kind: transport.KindRecord, Payload: dumpRecord{Key: key, State: iface.State{Up: true, MTU: 1400}}},
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
	obj := fam.Singular(key)
	if obj.Result() != rc.OK {
		t.Fatalf("dumped object Result() = %s, want %s", obj.Result(), rc.OK)
	}
	if obj.Data() != (iface.State{Up: true, MTU: 1400}) {
		t.Fatalf("dumped object Data() = %+v, want {Up:true MTU:1400}", obj.Data())
	}

	if got := parent.Queue.BacklogCount(); got != 0 {
		t.Fatalf("BacklogCount() after Populate = %d, want 0 (no reprogram-on-populate)", got)
	}
	if got := parent.Queue.PendingCount(); got != 0 {
		t.Fatalf("PendingCount() after Populate = %d, want 0", got)
	}
}
