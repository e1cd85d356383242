// Copyright (C) 2025-2026  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package xfsdefer

import (
	"context"
	"fmt"

	"git.lukeshu.com/go/typedsync"

	"git.lukeshu.com/xfs-progs-ng/lib/fmtutil"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsmount"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsprim"
)

// AttrOp is which extended-attribute manipulation an AttrItem
// performs.
type AttrOp int8

const (
	AttrSet AttrOp = iota
	AttrReplace
	AttrRemove
)

func (op AttrOp) String() string {
	switch op {
	case AttrSet:
		return "set"
	case AttrReplace:
		return "replace"
	case AttrRemove:
		return "remove"
	default:
		return fmt.Sprintf("AttrOp(%d)", int8(op))
	}
}

// AttrFilter is the attribute namespace filter bits.
type AttrFilter uint8

const (
	AttrRoot AttrFilter = 1 << iota
	AttrSecure
	AttrParent
)

var attrFilterNames = []string{
	"ROOT",
	"SECURE",
	"PARENT",
}

func (f AttrFilter) String() string {
	return fmtutil.BitfieldString(f, attrFilterNames, fmtutil.HexNone)
}

// ParentRecSize is the fixed on-disk size of a parent-pointer value
// record.
const ParentRecSize = 12

// AttrArgs is the argument block shared by one attribute operation
// and all steps of its inner state machine.
type AttrArgs struct {
	Ino      xfsprim.Ino
	Name     []byte
	Value    []byte
	NewValue []byte // Replace only

	Filter AttrFilter
	// Logged: the operation is persisted through intent logging
	// rather than synchronous writes.  Required for
	// parent-pointer updates.
	Logged bool
}

// AttrCursor is the attribute operation's private multi-step state
// machine, owned by the work item and advanced one step per finish
// call by the AttrSetter collaborator.  Its internal states are not
// the engine's business.
type AttrCursor interface {
	Done() bool
	Close()
}

// AttrItem performs one extended-attribute update.  At most one item
// is batched per intent (Kind.maxItems), because the inner cursor
// must run to completion or be explicitly abandoned.
type AttrItem struct {
	itemState

	Op   AttrOp
	Args *AttrArgs

	// Cursor is installed by the AttrSetter on its first Step
	// call and advanced on each subsequent one.
	Cursor AttrCursor

	owner *xfsmount.InodeRef
}

var attrPool = &typedsync.Pool[*AttrItem]{New: func() *AttrItem { return new(AttrItem) }}

func NewAttrItem() *AttrItem {
	ret, _ := attrPool.Get()
	return ret
}

func (*AttrItem) isDeferItem() {}

func (*AttrItem) Kind() Kind { return KindAttr }

func (ai *AttrItem) Free() {
	*ai = AttrItem{}
	attrPool.Put(ai)
}

// IsParentPointer reports whether the operation targets the
// parent-pointer namespace.
func (ai *AttrItem) IsParentPointer() bool {
	return ai.Args.Filter&AttrParent != 0
}

// AddAttr queues an attribute update on tp's transaction chain,
// pinning the owning inode.  The preconditions are checked before any
// resource is acquired; a rejected operation never reaches the
// queue.
func AddAttr(tp Txn, args *AttrArgs, op AttrOp) (*AttrItem, error) {
	if args.Filter&AttrParent != 0 {
		switch {
		case !args.Logged:
			return nil, fmt.Errorf("xfsdefer.AddAttr: parent-pointer updates must be logged")
		case args.Filter&^AttrParent == 0:
			return nil, fmt.Errorf("xfsdefer.AddAttr: parent-pointer updates need a namespace beyond the parent bit")
		case len(args.Value) != ParentRecSize:
			return nil, fmt.Errorf("xfsdefer.AddAttr: parent-pointer value must be %d bytes, got %d",
				ParentRecSize, len(args.Value))
		case op == AttrReplace && len(args.NewValue) != len(args.Value):
			return nil, fmt.Errorf("xfsdefer.AddAttr: parent-pointer replace with mismatched value lengths (%d != %d)",
				len(args.NewValue), len(args.Value))
		}
	}
	if len(args.Name) == 0 {
		return nil, fmt.Errorf("xfsdefer.AddAttr: empty attribute name")
	}

	ai := NewAttrItem()
	ai.Op = op
	ai.Args = args
	ai.owner = tp.Mount().IntentGetInode(args.Ino)
	tp.Queue().add(ai)
	return ai, nil
}

func (ai *AttrItem) finish(ctx context.Context, tp Txn) (StepResult, error) {
	if err := tp.Backends().Attr.Step(ctx, tp, ai); err != nil {
		return 0, err
	}
	if ai.Cursor == nil {
		panic(fmt.Errorf("xfsdefer: attr collaborator did not install a cursor"))
	}
	if !ai.Cursor.Done() {
		return StepAgain, nil
	}
	return StepDone, nil
}
