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

// Package hwitem provides the HW::item primitive: a pair of desired data and
// the last result code the forwarder reported for it. It is the update-diff
// primitive every object family builds its state machine on.
package hwitem

import (
	"fmt"

	"vppom/pkg/rc"
)

// Item is data that is either to be written to, or read from, the forwarder.
// rc == OK implies Data reflects what the forwarder currently holds; any
// other code implies Data is desired-only.
type Item[T comparable] struct {
	data T
	code rc.Code
}

// New creates an item carrying desired data, not yet programmed (NOOP).
func New[T comparable](data T) Item[T] {
	return Item[T]{data: data, code: rc.NOOP}
}

// NewWithCode creates an item with no data, only a result code.
func NewWithCode[T comparable](code rc.Code) Item[T] {
	return Item[T]{code: code}
}

// NewFull creates a fully-specified item.
func NewFull[T comparable](data T, code rc.Code) Item[T] {
	return Item[T]{data: data, code: code}
}

// Data returns the desired/reported data.
func (i Item[T]) Data() T { return i.data }

// Code returns the last-known forwarder result code.
func (i Item[T]) Code() rc.Code { return i.code }

// SetCode should only be called from the command that owns this item.
func (i *Item[T]) SetCode(code rc.Code) { i.code = code }

// Bool reports whether the item is actually programmed in the forwarder.
func (i Item[T]) Bool() bool { return i.code == rc.OK }

// Equal compares data only, never the code — this is what lets an idempotent
// Commit see a matching Update as a no-op regardless of outstanding rc.
func (i Item[T]) Equal(other Item[T]) bool {
	return i.data == other.data
}

// Update diffs desired against the current item, adopts the desired data,
// and reports whether a forwarder write is required: true iff the data
// differs or the item is not currently OK.
func (i *Item[T]) Update(desired Item[T]) (needsWrite bool) {
	needsWrite = i.data != desired.data || i.code != rc.OK
	i.data = desired.data
	return needsWrite
}

func (i Item[T]) String() string {
	return fmt.Sprintf("hw-item:[rc:%s data:%v]", i.code, i.data)
}
