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

// Package om is the reconciliation kernel: the singular interning layer, the
// client/object ownership graph, the command pipeline, the epoch protocol
// and the dependency-ordered dispatch between object families. Concrete
// families live under internal/families and only ever talk to this package
// through the Object/Listener contracts below.
package om

import "vppom/pkg/rc"

// ClientKey identifies the application-level owner of a set of desired-state
// objects (e.g. a control-plane client id, a config source name).
type ClientKey string

// FamilyTag identifies an object family (bridge-domain, interface, ...).
type FamilyTag string

// Level is the dependency-ordering tag used to sequence listener dispatch
// during Populate and Replay. Lower levels are fully dispatched before any
// higher level begins.
type Level int

const (
	LevelBond Level = iota
	LevelInterface
	LevelSubInterface
	LevelVirtualInterface
	LevelForwardingDomain
	LevelTunnel
	LevelACL
	LevelBinding
)

func (l Level) String() string {
	switch l {
	case LevelBond:
		return "bond"
	case LevelInterface:
		return "interface"
	case LevelSubInterface:
		return "sub-interface"
	case LevelVirtualInterface:
		return "virtual-interface"
	case LevelForwardingDomain:
		return "forwarding-domain"
	case LevelTunnel:
		return "tunnel"
	case LevelACL:
		return "acl"
	case LevelBinding:
		return "binding"
	default:
		return "level(unknown)"
	}
}

// Object is the contract every family's canonical instance satisfies. A
// family additionally exposes its own typed Singular()/constructor pair;
// Go's lack of covariant generics means that part can't live in a shared
// interface the way C++'s shared_ptr<Derived> did (see DESIGN.md).
type Object interface {
	// Key returns the family-specific interning key for this object.
	Key() any

	// String renders the object for logging/introspection.
	String() string

	// Update diffs desired against the receiver's current HW items and
	// enqueues whatever commands are needed to converge. It does not itself
	// write to the forwarder — the caller (OM.Commit) drains the queue.
	Update(desired Object)

	// Result reports the rc.Code of the object's primary HW item, after the
	// queue has been drained. Used by OM.Commit to form its return value.
	Result() rc.Code

	// Replay re-issues create commands from current desired state, for
	// every HW item that has ever reached rc.OK.
	Replay()

	// Sweep issues delete commands for every HW item that is currently
	// rc.OK. Called by Release, and safe to call redundantly.
	Sweep()

	// Release runs exactly once, when the last client reference to this
	// object is dropped. Implementations must call Sweep() and scrub the
	// object out of their family's SingularDB. Release must never panic;
	// sweep errors are not raised (see SPEC_FULL.md §9).
	Release()
}

// refEntry is the mutable per-client-reference wrapper around an Object: the
// stale bit used by mark/sweep. It is not part of any key's equality — the
// Object pointer itself is the map key; refEntry is only ever a map value.
type refEntry struct {
	obj   Object
	stale bool
}
