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

func TestSingularDBFindOrAddInternsOnce(t *testing.T) {
	db := NewSingularDB[string, *int]()
	builds := 0
	build := func() *int {
		builds++
		v := 1
		return &v
	}

	first, created := db.FindOrAdd("a", build)
	if !created {
		t.Fatal("first FindOrAdd reported created=false")
	}
	second, created := db.FindOrAdd("a", build)
	if created {
		t.Fatal("second FindOrAdd reported created=true")
	}
	if first != second {
		t.Fatal("FindOrAdd returned two different pointers for the same key")
	}
	if builds != 1 {
		t.Fatalf("build ran %d times, want 1", builds)
	}
}

func TestSingularDBAddOverwrites(t *testing.T) {
	db := NewSingularDB[string, int]()
	db.Add("a", 1)
	db.Add("a", 2)
	v, ok := db.Find("a")
	if !ok || v != 2 {
		t.Fatalf("Find after two Adds = (%d, %v), want (2, true)", v, ok)
	}
}

func TestSingularDBReleaseAndLen(t *testing.T) {
	db := NewSingularDB[string, int]()
	db.Add("a", 1)
	db.Add("b", 2)
	if db.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", db.Len())
	}
	db.Release("a")
	if db.Len() != 1 {
		t.Fatalf("Len() after Release = %d, want 1", db.Len())
	}
	if _, ok := db.Find("a"); ok {
		t.Fatal("Find after Release still reports present")
	}
}

func TestSingularDBSnapshotIsACopy(t *testing.T) {
	db := NewSingularDB[string, int]()
	db.Add("a", 1)
	snap := db.Snapshot()
	db.Add("b", 2)
	if len(snap) != 1 {
		t.Fatalf("Snapshot taken before a later Add grew to %d entries, want 1", len(snap))
	}
}
