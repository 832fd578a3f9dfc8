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

// Package subinterface is a VLAN sub-interface, keyed by (parent interface
// name, vlan id). Grounded on original_source/sub_interface_cmds.cpp.
//
// sub_interface::delete_cmd::issue in the original sets rc = noop and
// returns without waiting for the forwarder's reply. Here the delete goes
// through Base.Teardown, shared across every interface-shaped family: it is
// an ordinary RPCCommand, so the Write that issues it waits for the
// forwarder's reply and records the outcome in the HW item. Release does not
// wait for that reply: it enqueues the delete and removes the sub-interface
// from the singular table straight away. See DESIGN.md.
package subinterface

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

// MockAckDump answers a sub-interface dump request with an immediate empty
// dump, for demo/test forwarders with no pre-existing sub-interfaces.
func MockAckDump(req transport.Request) []transport.Message {
	if _, ok := req.Payload.(dumpRequest); !ok {
		return nil
	}
	return []transport.Message{{Correlation: req.Correlation, Kind: transport.KindControlPing}}
}

// Key identifies a sub-interface by its parent and VLAN tag.
type Key struct {
	Parent string
	Vlan   uint16
}

func (k Key) String() string {
	return fmt.Sprintf("%s.%d", k.Parent, k.Vlan)
}

type dumpRecord struct {
	Key   Key
	State iface.State
}

// Object is the canonical instance for one (parent, vlan) pair.
type Object struct {
	iface.Base
	key Key
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
}

// Family is the sub-interface singular table and om.Listener.
type Family struct {
	parent *om.OM
	db     *om.SingularDB[Key, *Object]
}

func New(parent *om.OM) *Family {
	f := &Family{parent: parent, db: om.NewSingularDB[Key, *Object]()}
	parent.RegisterListener(f)
	return f
}

func (f *Family) Singular(key Key) *Object {
	obj, _ := f.db.FindOrAdd(key, func() *Object {
		return &Object{
			Base: iface.NewBase(key.String(), "sub-interface", f.parent.Queue),
			key:  key,
			fam:  f,
		}
	})
	return obj
}

// Desired builds a throwaway, uninterned Object carrying state, suitable
// only as the argument to an existing Object's Update.
func (f *Family) Desired(key Key, state iface.State) *Object {
	return &Object{Base: iface.NewDesiredBase(key.String(), "sub-interface", state), key: key}
}

func (f *Family) Tag() om.FamilyTag { return "sub-interface" }
func (f *Family) Order() om.Level   { return om.LevelSubInterface }

func (f *Family) HandlePopulate(ctx om.PopulateContext) error {
	corr := ctx.Queue().NextCorrelation()
	dump := om.NewDumpCommand[dumpRecord](corr, "sub-interface-dump", func() any { return dumpRequest{} })
	ctx.Queue().Enqueue(dump)
	if code := ctx.Queue().WriteDuringPopulate(context.Background()); code == rc.RETRY || code == rc.TIMEOUT {
		return fmt.Errorf("subinterface: populate dump: %s", code)
	}

	f.parent.Mark(ctx.Client(), f.Tag())
	for _, rec := range dump.Records() {
		obj := f.Singular(rec.Key)
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
		return fmt.Errorf("subinterface: replay drain: %s", code)
	}
	return nil
}

func (f *Family) Show(w io.Writer) {
	f.db.Each(func(_ Key, obj *Object) {
		fmt.Fprintln(w, obj.String())
	})
}

// Len reports the number of interned sub-interfaces.
func (f *Family) Len() int { return f.db.Len() }
