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

// Package bridgedomain is the simplest concrete family: a bridge domain
// keyed by a uint32 id, with learn/flood/forward flags. Grounded on
// original_source/bridge_domain.hpp/.cpp.
package bridgedomain

import (
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"sync"

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

// ID is the bridge domain's forwarder-assigned identifier.
type ID uint32

// Config is the desired configuration of a bridge domain.
type Config struct {
	Learn   bool
	Flood   bool
	Forward bool
}

type createRequest struct {
	ID     ID
	Config Config
}

type reply struct {
	Config Config
	Code   rc.Code
}

type dumpRecord struct {
	ID     ID
	Config Config
}

type dumpRequest struct{}

// Object is the canonical, interned instance for one bridge domain id.
type Object struct {
	mu     sync.Mutex
	key    ID
	config hwitem.Item[Config]
	fam    *Family
}

func (o *Object) Key() any { return o.key }

func (o *Object) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return fmt.Sprintf("bridge-domain[id=%d %s]", o.key, o.config)
}

// Update diffs desired against the current HW item and, if they differ,
// enqueues a create command that will converge them.
func (o *Object) Update(desired om.Object) {
	d, ok := desired.(*Object)
	if !ok {
		return
	}
	o.mu.Lock()
	want := hwitem.New(d.config.Data())
	needsWrite := o.config.Update(want)
	key := o.key
	o.mu.Unlock()
	if !needsWrite {
		return
	}
	o.fam.enqueueCreate(key, want.Data(), &o.config)
}

func (o *Object) Result() rc.Code {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.config.Code()
}

// Replay re-issues the create command from current desired state.
func (o *Object) Replay() {
	o.mu.Lock()
	ok := o.config.Code() == rc.OK
	cfg := o.config.Data()
	key := o.key
	o.mu.Unlock()
	if !ok {
		return
	}
	o.fam.enqueueCreate(key, cfg, &o.config)
}

// Sweep issues a delete for the bridge domain if it is currently created.
func (o *Object) Sweep() {
	o.mu.Lock()
	ok := o.config.Code() == rc.OK
	key := o.key
	o.mu.Unlock()
	if !ok {
		return
	}
	o.fam.enqueueDelete(key, &o.config)
}

// Release runs Sweep and scrubs this instance out of the family's table.
func (o *Object) Release() {
	o.Sweep()
	o.fam.db.Release(o.key)
}

// Family is the bridge-domain singular table and om.Listener.
type Family struct {
	parent *om.OM
	db     *om.SingularDB[ID, *Object]
}

// New registers a new bridge-domain family against parent and returns it.
func New(parent *om.OM) *Family {
	f := &Family{parent: parent, db: om.NewSingularDB[ID, *Object]()}
	parent.RegisterListener(f)
	return f
}

// Singular returns the canonical Object for id, creating it (with an empty,
// not-yet-converged configuration) on first use.
func (f *Family) Singular(id ID) *Object {
	obj, _ := f.db.FindOrAdd(id, func() *Object {
		return &Object{key: id, config: hwitem.New(Config{}), fam: f}
	})
	return obj
}

// Desired builds a throwaway, uninterned Object carrying cfg, suitable only
// as the argument to an existing Object's Update — it is never itself
// published to the singular table.
func (f *Family) Desired(id ID, cfg Config) *Object {
	return &Object{key: id, config: hwitem.New(cfg)}
}

func (f *Family) Tag() om.FamilyTag { return "bridge-domain" }
func (f *Family) Order() om.Level   { return om.LevelForwardingDomain }

func (f *Family) enqueueCreate(id ID, cfg Config, item *hwitem.Item[Config]) {
	corr := f.parent.Queue.NextCorrelation()
	cmd := om.NewRPCCommand(corr, "bridge-domain-create",
		func() any { return createRequest{ID: id, Config: cfg} },
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

func (f *Family) enqueueDelete(id ID, item *hwitem.Item[Config]) {
	corr := f.parent.Queue.NextCorrelation()
	cmd := om.NewRPCCommand(corr, "bridge-domain-delete",
		func() any { return createRequest{ID: id} },
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

// HandlePopulate issues a dump and reconciles every record against the
// family's singular table, committing a reference for client on every
// bridge domain the forwarder reports.
func (f *Family) HandlePopulate(ctx om.PopulateContext) error {
	corr := ctx.Queue().NextCorrelation()
	dump := om.NewDumpCommand[dumpRecord](corr, "bridge-domain-dump", func() any { return dumpRequest{} })
	ctx.Queue().Enqueue(dump)
	if code := ctx.Queue().WriteDuringPopulate(context.Background()); code == rc.RETRY || code == rc.TIMEOUT {
		return fmt.Errorf("bridgedomain: populate dump: %s", code)
	}

	f.parent.Mark(ctx.Client(), f.Tag())
	for _, rec := range dump.Records() {
		obj := f.Singular(rec.ID)
		obj.mu.Lock()
		obj.config = hwitem.NewFull(rec.Config, rc.OK)
		obj.mu.Unlock()
		f.parent.Commit(ctx.Client(), f.Tag(), obj)
	}
	f.parent.Sweep(ctx.Client(), f.Tag())
	return nil
}

// HandleReplay re-issues create commands for every created bridge domain.
func (f *Family) HandleReplay() error {
	for _, obj := range f.db.Snapshot() {
		obj.Replay()
	}
	return f.drain()
}

func (f *Family) drain() error {
	if code := f.parent.Queue.Write(context.Background()); code == rc.RETRY || code == rc.TIMEOUT {
		return fmt.Errorf("bridgedomain: drain: %s", code)
	}
	return nil
}

// Show writes every interned bridge domain to w.
func (f *Family) Show(w io.Writer) {
	f.db.Each(func(id ID, obj *Object) {
		fmt.Fprintln(w, obj.String())
	})
}

// Len reports the number of interned bridge domains.
func (f *Family) Len() int { return f.db.Len() }

// MockAck answers a bridge-domain request as if the forwarder accepted it
// immediately, the way the teacher's core.NewMockPersister stands in for a
// real persistence backend in the demo binary.
func MockAck(req transport.Request) []transport.Message {
	switch p := req.Payload.(type) {
	case createRequest:
		return []transport.Message{{
			Correlation: req.Correlation,
			Kind:        transport.KindReply,
			Payload:     reply{Config: p.Config, Code: rc.OK},
		}}
	case dumpRequest:
		return []transport.Message{{
			Correlation: req.Correlation,
			Kind:        transport.KindControlPing,
		}}
	default:
		return nil
	}
}
