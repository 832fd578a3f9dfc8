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

import "testing"

func TestListenerRegistryOrdersByLevel(t *testing.T) {
	r := newListenerRegistry()
	last := &fakeListener{tag: "last", order: LevelBinding}
	first := &fakeListener{tag: "first", order: LevelBond}
	middle := &fakeListener{tag: "middle", order: LevelTunnel}

	// Register out of order; ordered() must still sort by Level.
	r.register(last)
	r.register(first)
	r.register(middle)

	got := r.ordered()
	if len(got) != 3 {
		t.Fatalf("ordered() returned %d listeners, want 3", len(got))
	}
	if got[0].Tag() != "first" || got[1].Tag() != "middle" || got[2].Tag() != "last" {
		t.Fatalf("ordered() = [%s %s %s], want [first middle last]", got[0].Tag(), got[1].Tag(), got[2].Tag())
	}
}

func TestListenerRegistryBreaksTiesByRegistrationOrder(t *testing.T) {
	r := newListenerRegistry()
	a := &fakeListener{tag: "a", order: LevelInterface}
	b := &fakeListener{tag: "b", order: LevelInterface}
	c := &fakeListener{tag: "c", order: LevelInterface}
	r.register(a)
	r.register(b)
	r.register(c)

	got := r.ordered()
	if got[0].Tag() != "a" || got[1].Tag() != "b" || got[2].Tag() != "c" {
		t.Fatalf("ordered() with tied Level = [%s %s %s], want registration order [a b c]", got[0].Tag(), got[1].Tag(), got[2].Tag())
	}
}

func TestListenerRegistryOrderedReturnsACopy(t *testing.T) {
	r := newListenerRegistry()
	r.register(&fakeListener{tag: "only", order: LevelBond})

	snap := r.ordered()
	r.register(&fakeListener{tag: "another", order: LevelBond})

	if len(snap) != 1 {
		t.Fatalf("earlier ordered() snapshot grew to %d entries after a later register, want 1", len(snap))
	}
}

func TestPopulateContextAccessors(t *testing.T) {
	q := NewCommandQueue()
	ctx := PopulateContext{client: "c1", queue: q}

	if ctx.Client() != "c1" {
		t.Fatalf("Client() = %s, want c1", ctx.Client())
	}
	if ctx.Queue() != q {
		t.Fatal("Queue() did not return the same CommandQueue passed in")
	}
}
