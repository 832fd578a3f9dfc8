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

// Package l3acl is an L3 ACL rule family, keyed by a rule tuple. Grounded on
// original_source/acl_l3_rule.hpp.
//
// HandlePopulate is intentionally a no-op: forwarder-side ACL dumps are not
// wire-stable enough to reconstruct desired state safely (rule ordering and
// the wildcard encoding the forwarder returns do not round-trip reliably
// into the tuple this package interns on). L3-ACL is therefore documented as
// non-repopulating — a client that needs its ACLs to survive a reconnect's
// Populate pass must re-Commit them itself (Open Question 1 resolution, see
// DESIGN.md). Every other lifecycle operation behaves like any other family.
package l3acl

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
	gob.Register(Rule{})
	gob.Register(createRequest{})
	gob.Register(reply{})
}

// Action is the disposition an L3 ACL rule applies to matching traffic.
type Action int

const (
	ActionDeny Action = iota
	ActionPermit
)

func (a Action) String() string {
	if a == ActionPermit {
		return "permit"
	}
	return "deny"
}

// Rule is the interning key and desired configuration for one ACL entry in
// a single type, since an L3 ACL rule has no mutable state beyond its own
// identity: changing any field is a different rule, not an update to this
// one.
type Rule struct {
	SrcPrefix string
	DstPrefix string
	Proto     uint8
	Action    Action
}

type createRequest struct {
	Rule Rule
}

type reply struct {
	Code rc.Code
}

// Object is the canonical instance for one ACL rule.
type Object struct {
	mu   sync.Mutex
	rule Rule
	item hwitem.Item[Rule]
	fam  *Family
}

func (o *Object) Key() any { return o.rule }

func (o *Object) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return fmt.Sprintf("l3-acl-rule[%s %s]", o.rule.Action, o.item)
}

// Update is a no-op beyond (re)issuing the create if it has never succeeded:
// a Rule is its own key, so there is nothing to diff.
func (o *Object) Update(om.Object) {
	o.mu.Lock()
	needsWrite := o.item.Code() != rc.OK
	rule := o.rule
	o.mu.Unlock()
	if !needsWrite {
		return
	}
	o.fam.enqueueCreate(rule, &o.item)
}

func (o *Object) Result() rc.Code {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.item.Code()
}

func (o *Object) Replay() {
	o.mu.Lock()
	ok := o.item.Code() == rc.OK
	rule := o.rule
	o.mu.Unlock()
	if !ok {
		return
	}
	o.fam.enqueueCreate(rule, &o.item)
}

func (o *Object) Sweep() {
	o.mu.Lock()
	ok := o.item.Code() == rc.OK
	rule := o.rule
	o.mu.Unlock()
	if !ok {
		return
	}
	o.fam.enqueueDelete(rule, &o.item)
}

func (o *Object) Release() {
	o.Sweep()
	o.fam.db.Release(o.rule)
}

// Family is the L3 ACL singular table and om.Listener.
type Family struct {
	parent *om.OM
	db     *om.SingularDB[Rule, *Object]
}

func New(parent *om.OM) *Family {
	f := &Family{parent: parent, db: om.NewSingularDB[Rule, *Object]()}
	parent.RegisterListener(f)
	return f
}

func (f *Family) Singular(rule Rule) *Object {
	obj, _ := f.db.FindOrAdd(rule, func() *Object {
		return &Object{rule: rule, item: hwitem.New(rule), fam: f}
	})
	return obj
}

func (f *Family) Tag() om.FamilyTag { return "l3-acl" }
func (f *Family) Order() om.Level   { return om.LevelACL }

func (f *Family) enqueueCreate(rule Rule, item *hwitem.Item[Rule]) {
	corr := f.parent.Queue.NextCorrelation()
	cmd := om.NewRPCCommand(corr, "l3-acl-create",
		func() any { return createRequest{Rule: rule} },
		item,
		func(payload any) (Rule, rc.Code) {
			r, ok := payload.(reply)
			if !ok {
				return Rule{}, rc.INVALID
			}
			return rule, r.Code
		})
	f.parent.Queue.Enqueue(cmd)
}

func (f *Family) enqueueDelete(rule Rule, item *hwitem.Item[Rule]) {
	corr := f.parent.Queue.NextCorrelation()
	cmd := om.NewRPCCommand(corr, "l3-acl-delete",
		func() any { return createRequest{Rule: rule} },
		item,
		func(payload any) (Rule, rc.Code) {
			r, ok := payload.(reply)
			if !ok {
				return Rule{}, rc.INVALID
			}
			if r.Code == rc.OK {
				return Rule{}, rc.NOOP
			}
			return rule, r.Code
		})
	f.parent.Queue.Enqueue(cmd)
}

// HandlePopulate is intentionally a no-op. See the package doc comment.
func (f *Family) HandlePopulate(ctx om.PopulateContext) error {
	return nil
}

func (f *Family) HandleReplay() error {
	for _, obj := range f.db.Snapshot() {
		obj.Replay()
	}
	if code := f.parent.Queue.Write(context.Background()); code == rc.RETRY || code == rc.TIMEOUT {
		return fmt.Errorf("l3acl: replay drain: %s", code)
	}
	return nil
}

func (f *Family) Show(w io.Writer) {
	f.db.Each(func(_ Rule, obj *Object) {
		fmt.Fprintln(w, obj.String())
	})
}

// Len reports the number of interned ACL rules.
func (f *Family) Len() int { return f.db.Len() }

// MockAck answers an ACL create/delete request as if the forwarder accepted
// it immediately.
func MockAck(req transport.Request) []transport.Message {
	if _, ok := req.Payload.(createRequest); !ok {
		return nil
	}
	return []transport.Message{{
		Correlation: req.Correlation,
		Kind:        transport.KindReply,
		Payload:     reply{Code: rc.OK},
	}}
}
