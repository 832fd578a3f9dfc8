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

// Package binding is an interface-to-bridge-domain membership record, keyed
// by interface name. It dispatches at LevelBinding, strictly after
// LevelForwardingDomain and LevelInterface, so a binding is only ever
// converged once both endpoints of the membership already exist.
package binding

import (
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"sync"

	"vppom/internal/families/bridgedomain"
	"vppom/internal/om"
	"vppom/internal/transport"
	"vppom/pkg/hwitem"
	"vppom/pkg/rc"
)

func init() {
	gob.Register(Config{})
	gob.Register(createRequest{})
	gob.Register(reply{})
	gob.Register(dumpRecord{})
	gob.Register(dumpRequest{})
}

// Config is the desired bridge-domain membership for an interface.
type Config struct {
	BridgeDomain bridgedomain.ID
	L2Tag        bool // tagged (dot1q) vs untagged membership
}

type createRequest struct {
	InterfaceName string
	Config        Config
}

type reply struct {
	Config Config
	Code   rc.Code
}

type dumpRecord struct {
	InterfaceName string
	Config        Config
}

type dumpRequest struct{}

// Object is the canonical binding for one interface name.
type Object struct {
	mu     sync.Mutex
	name   string
	config hwitem.Item[Config]
	fam    *Family
}

func (o *Object) Key() any { return o.name }

func (o *Object) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return fmt.Sprintf("binding[itf=%s %s]", o.name, o.config)
}

func (o *Object) Update(desired om.Object) {
	d, ok := desired.(*Object)
	if !ok {
		return
	}
	o.mu.Lock()
	want := hwitem.New(d.config.Data())
	needsWrite := o.config.Update(want)
	name := o.name
	o.mu.Unlock()
	if !needsWrite {
		return
	}
	o.fam.enqueueCreate(name, want.Data(), &o.config)
}

func (o *Object) Result() rc.Code {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.config.Code()
}

func (o *Object) Replay() {
	o.mu.Lock()
	ok := o.config.Code() == rc.OK
	cfg := o.config.Data()
	name := o.name
	o.mu.Unlock()
	if !ok {
		return
	}
	o.fam.enqueueCreate(name, cfg, &o.config)
}

func (o *Object) Sweep() {
	o.mu.Lock()
	ok := o.config.Code() == rc.OK
	name := o.name
	o.mu.Unlock()
	if !ok {
		return
	}
	o.fam.enqueueDelete(name, &o.config)
}

func (o *Object) Release() {
	o.Sweep()
	o.fam.db.Release(o.name)
}

// Family is the binding singular table and om.Listener.
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
		return &Object{name: name, config: hwitem.New(Config{}), fam: f}
	})
	return obj
}

// Desired builds a throwaway, uninterned Object carrying cfg, suitable only
// as the argument to an existing Object's Update.
func (f *Family) Desired(name string, cfg Config) *Object {
	return &Object{name: name, config: hwitem.New(cfg)}
}

func (f *Family) Tag() om.FamilyTag { return "binding" }
func (f *Family) Order() om.Level   { return om.LevelBinding }

func (f *Family) enqueueCreate(name string, cfg Config, item *hwitem.Item[Config]) {
	corr := f.parent.Queue.NextCorrelation()
	cmd := om.NewRPCCommand(corr, "binding-create",
		func() any { return createRequest{InterfaceName: name, Config: cfg} },
		item,
		func(payload any) (Config, rc.Code) {
			r, ok := payload.(reply)
			if !ok {
				return Config{}, rc.INVALID
			}
			return r.Config, r.Code
		})
	f.parent.Queue.Enqueue(cmd)
}

func (f *Family) enqueueDelete(name string, item *hwitem.Item[Config]) {
	corr := f.parent.Queue.NextCorrelation()
	cmd := om.NewRPCCommand(corr, "binding-delete",
		func() any { return createRequest{InterfaceName: name} },
		item,
		func(payload any) (Config, rc.Code) {
			r, ok := payload.(reply)
			if !ok {
				return Config{}, rc.INVALID
			}
			if r.Code == rc.OK {
				return Config{}, rc.NOOP
			}
			return r.Config, r.Code
		})
	f.parent.Queue.Enqueue(cmd)
}

func (f *Family) HandlePopulate(ctx om.PopulateContext) error {
	corr := ctx.Queue().NextCorrelation()
	dump := om.NewDumpCommand[dumpRecord](corr, "binding-dump", func() any { return dumpRequest{} })
	ctx.Queue().Enqueue(dump)
	if code := ctx.Queue().WriteDuringPopulate(context.Background()); code == rc.RETRY || code == rc.TIMEOUT {
		return fmt.Errorf("binding: populate dump: %s", code)
	}

	f.parent.Mark(ctx.Client(), f.Tag())
	for _, rec := range dump.Records() {
		obj := f.Singular(rec.InterfaceName)
		obj.mu.Lock()
		obj.config = hwitem.NewFull(rec.Config, rc.OK)
		obj.mu.Unlock()
		f.parent.Commit(ctx.Client(), f.Tag(), obj)
	}
	f.parent.Sweep(ctx.Client(), f.Tag())
	return nil
}

func (f *Family) HandleReplay() error {
	for _, obj := range f.db.Snapshot() {
		obj.Replay()
	}
	if code := f.parent.Queue.Write(context.Background()); code == rc.RETRY || code == rc.TIMEOUT {
		return fmt.Errorf("binding: replay drain: %s", code)
	}
	return nil
}

func (f *Family) Show(w io.Writer) {
	f.db.Each(func(_ string, obj *Object) {
		fmt.Fprintln(w, obj.String())
	})
}

// Len reports the number of interned bindings.
func (f *Family) Len() int { return f.db.Len() }

// MockAck answers a binding request as if the forwarder accepted it
// immediately.
func MockAck(req transport.Request) []transport.Message {
	switch p := req.Payload.(type) {
	case createRequest:
		return []transport.Message{{
			Correlation: req.Correlation,
			Kind:        transport.KindReply,
			Payload:     reply{Config: p.Config, Code: rc.OK},
		}}
	case dumpRequest:
		return []transport.Message{{Correlation: req.Correlation, Kind: transport.KindControlPing}}
	default:
		return nil
	}
}
