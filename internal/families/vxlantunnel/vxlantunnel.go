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

// Package vxlantunnel is a VXLAN tunnel, keyed by its src/dst/vni endpoint
// tuple and published a second time under a synthesized interface name, so
// other families (families/binding) can reference it the way they reference
// any other interface. Grounded on original_source/vxlan_tunnel.hpp/.cpp,
// whose singular_db registers the same object under both an endpoint_t key
// and a handle_t/name key.
package vxlantunnel

import (
	"context"
	"encoding/gob"
	"fmt"
	"io"

	"vppom/internal/families/iface"
	"vppom/internal/om"
	"vppom/internal/transport"
	"vppom/pkg/rc"
)

func init() {
	gob.Register(dumpRecord{})
	gob.Register(dumpRequest{})
}

type dumpRequest struct{}

// MockAckDump answers a VXLAN tunnel dump request with an immediate empty
// dump, for demo/test forwarders with no pre-existing tunnels.
func MockAckDump(req transport.Request) []transport.Message {
	if _, ok := req.Payload.(dumpRequest); !ok {
		return nil
	}
	return []transport.Message{{Correlation: req.Correlation, Kind: transport.KindControlPing}}
}

// Endpoint is the VXLAN tunnel's interning key: source and destination
// addresses (stored as their string form so the key stays comparable) and
// the VXLAN network identifier.
type Endpoint struct {
	Src string
	Dst string
	VNI uint32
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s-%s:%d", e.Src, e.Dst, e.VNI)
}

// InterfaceName is the synthesized name this tunnel is also published under,
// so bindings can target it like any other interface.
func (e Endpoint) InterfaceName() string {
	return "vxlan-tunnel-itf-" + e.String()
}

// Less orders endpoints lexicographically by (Src, Dst, VNI). Go map keys
// compare with ==, not <, so Less does not affect interning, and nothing in
// this module calls it (Open Question 3 resolution, see DESIGN.md).
func (e Endpoint) Less(other Endpoint) bool {
	if e.Src != other.Src {
		return e.Src < other.Src
	}
	if e.Dst != other.Dst {
		return e.Dst < other.Dst
	}
	return e.VNI < other.VNI
}

type dumpRecord struct {
	Endpoint Endpoint
	State    iface.State
}

// Object is the canonical instance for one VXLAN endpoint.
type Object struct {
	iface.Base
	key Endpoint
	fam *Family
}

func (o *Object) Key() any { return o.key }

func (o *Object) Update(desired om.Object) {
	d, ok := desired.(*Object)
	if !ok {
		return
	}
	o.Converge(d.Data())
}

func (o *Object) Replay() {
	if o.Result() != rc.OK {
		return
	}
	o.Converge(o.Data())
}

func (o *Object) Sweep() {
	o.Teardown()
}

func (o *Object) Release() {
	o.Sweep()
	o.fam.db.Release(o.key)
	o.fam.byName.Release(o.key.InterfaceName())
}

// Family is the dual-keyed VXLAN tunnel singular table and om.Listener.
type Family struct {
	parent *om.OM
	db     *om.SingularDB[Endpoint, *Object]
	byName *om.SingularDB[string, *Object]
}

func New(parent *om.OM) *Family {
	f := &Family{
		parent: parent,
		db:     om.NewSingularDB[Endpoint, *Object](),
		byName: om.NewSingularDB[string, *Object](),
	}
	parent.RegisterListener(f)
	return f
}

// Singular returns the canonical Object for ep, creating and dual-publishing
// it on first use.
func (f *Family) Singular(ep Endpoint) *Object {
	obj, created := f.db.FindOrAdd(ep, func() *Object {
		return &Object{
			Base: iface.NewBase(ep.InterfaceName(), "vxlan-tunnel-itf", f.parent.Queue),
			key:  ep,
			fam:  f,
		}
	})
	if created {
		f.byName.Add(ep.InterfaceName(), obj)
	}
	return obj
}

// Desired builds a throwaway, uninterned Object carrying state, suitable
// only as the argument to an existing Object's Update.
func (f *Family) Desired(ep Endpoint, state iface.State) *Object {
	return &Object{Base: iface.NewDesiredBase(ep.InterfaceName(), "vxlan-tunnel-itf", state), key: ep}
}

// ByName looks a tunnel up by its synthesized interface name, for families
// (e.g. binding) that reference it as a plain interface.
func (f *Family) ByName(name string) (*Object, bool) {
	return f.byName.Find(name)
}

func (f *Family) Tag() om.FamilyTag { return "vxlan-tunnel" }
func (f *Family) Order() om.Level   { return om.LevelTunnel }

func (f *Family) HandlePopulate(ctx om.PopulateContext) error {
	corr := ctx.Queue().NextCorrelation()
	dump := om.NewDumpCommand[dumpRecord](corr, "vxlan-tunnel-dump", func() any { return dumpRequest{} })
	ctx.Queue().Enqueue(dump)
	if code := ctx.Queue().WriteDuringPopulate(context.Background()); code == rc.RETRY || code == rc.TIMEOUT {
		return fmt.Errorf("vxlantunnel: populate dump: %s", code)
	}

	f.parent.Mark(ctx.Client(), f.Tag())
	for _, rec := range dump.Records() {
		obj := f.Singular(rec.Endpoint)
		obj.SetConverged(rec.State)
		f.parent.Commit(ctx.Client(), f.Tag(), obj)
	}
	f.parent.Sweep(ctx.Client(), f.Tag())
	return nil
}

func (f *Family) HandleReplay() error {
	for _, obj := range f.db.Snapshot() {
		obj.Replay()
	}
	if code := iface.Drain(f.parent.Queue); code == rc.RETRY || code == rc.TIMEOUT {
		return fmt.Errorf("vxlantunnel: replay drain: %s", code)
	}
	return nil
}

func (f *Family) Show(w io.Writer) {
	f.db.Each(func(_ Endpoint, obj *Object) {
		fmt.Fprintln(w, obj.String())
	})
}

// Len reports the number of interned tunnels, keyed by endpoint.
func (f *Family) Len() int { return f.db.Len() }
