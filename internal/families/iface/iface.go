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
	"context"
	"encoding/gob"
	"fmt"
	"io"

	"vppom/internal/om"
	"vppom/internal/transport"
	"vppom/pkg/rc"
)

func init() {
	gob.Register(dumpRecord{})
	gob.Register(dumpRequest{})
}

type dumpRecord struct {
	Name  string
	State State
}

type dumpRequest struct{}

// MockAckDump answers an interface dump request with an immediate empty
// dump, for demo/test forwarders with no pre-existing interfaces.
func MockAckDump(req transport.Request) []transport.Message {
	if _, ok := req.Payload.(dumpRequest); !ok {
		return nil
	}
	return []transport.Message{{Correlation: req.Correlation, Kind: transport.KindControlPing}}
}

// Object is the canonical instance for one top-level interface.
type Object struct {
	Base
	fam *Family
}

func (o *Object) Key() any { return o.Name() }

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
	o.fam.db.Release(o.Name())
}

// Family is the top-level interface singular table and om.Listener.
type Family struct {
	parent *om.OM
	db     *om.SingularDB[string, *Object]
}

func New(parent *om.OM) *Family {
	f := &Family{parent: parent, db: om.NewSingularDB[string, *Object]()}
	parent.RegisterListener(f)
	return f
}

func (f *Family) Singular(name string) *Object {
	obj, _ := f.db.FindOrAdd(name, func() *Object {
		return &Object{Base: NewBase(name, "interface", f.parent.Queue), fam: f}
	})
	return obj
}

// Desired builds a throwaway, uninterned Object carrying state, suitable
// only as the argument to an existing Object's Update.
func (f *Family) Desired(name string, state State) *Object {
	return &Object{Base: NewDesiredBase(name, "interface", state)}
}

func (f *Family) Tag() om.FamilyTag { return "interface" }
func (f *Family) Order() om.Level   { return om.LevelInterface }

func (f *Family) HandlePopulate(ctx om.PopulateContext) error {
	corr := ctx.Queue().NextCorrelation()
	dump := om.NewDumpCommand[dumpRecord](corr, "interface-dump", func() any { return dumpRequest{} })
	ctx.Queue().Enqueue(dump)
	if code := ctx.Queue().WriteDuringPopulate(context.Background()); code == rc.RETRY || code == rc.TIMEOUT {
		return fmt.Errorf("iface: populate dump: %s", code)
	}

	f.parent.Mark(ctx.Client(), f.Tag())
	for _, rec := range dump.Records() {
		obj := f.Singular(rec.Name)
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
	if code := Drain(f.parent.Queue); code == rc.RETRY || code == rc.TIMEOUT {
		return fmt.Errorf("iface: replay drain: %s", code)
	}
	return nil
}

func (f *Family) Show(w io.Writer) {
	f.db.Each(func(_ string, obj *Object) {
		fmt.Fprintln(w, obj.String())
	})
}

// Len reports the number of interned top-level interfaces.
func (f *Family) Len() int { return f.db.Len() }
