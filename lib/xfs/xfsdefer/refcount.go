// Copyright (C) 2025-2026  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package xfsdefer

import (
	"context"
	"fmt"

	"git.lukeshu.com/go/typedsync"

	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsmount"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsprim"
)

// RefcountOp is which shared-extent refcount manipulation a
// RefcountItem performs.
type RefcountOp int8

const (
	RefcountIncrease RefcountOp = iota
	RefcountDecrease
	RefcountAllocCow
	RefcountFreeCow
)

func (op RefcountOp) String() string {
	switch op {
	case RefcountIncrease:
		return "increase"
	case RefcountDecrease:
		return "decrease"
	case RefcountAllocCow:
		return "alloc_cow"
	case RefcountFreeCow:
		return "free_cow"
	default:
		return fmt.Sprintf("RefcountOp(%d)", int8(op))
	}
}

// RefcountItem adjusts the reference count of a run of shared
// blocks.  The backend may truncate a long run at a btree-shape or
// reservation boundary; StartBlock advances and BlockCount shrinks as
// progress is made, and the remainder is re-processed on the next
// step.
type RefcountItem struct {
	itemState

	Op         RefcountOp
	StartBlock xfsprim.FSBlock
	BlockCount xfsprim.BlockCount

	agRef *xfsmount.AGRef
}

var refcountPool = &typedsync.Pool[*RefcountItem]{New: func() *RefcountItem { return new(RefcountItem) }}

func NewRefcountItem() *RefcountItem {
	ret, _ := refcountPool.Get()
	return ret
}

func (*RefcountItem) isDeferItem() {}

func (*RefcountItem) Kind() Kind { return KindRefcount }

func (ci *RefcountItem) Free() {
	*ci = RefcountItem{}
	refcountPool.Put(ci)
}

// AddRefcount queues ci on tp's transaction chain, pinning the AG
// that contains the blocks.  Malformed items are rejected here,
// before any resource is acquired.
func AddRefcount(tp Txn, ci *RefcountItem) error {
	mount := tp.Mount()
	if err := checkAGExtent(mount.Geometry(), "AddRefcount", ci.StartBlock, ci.BlockCount); err != nil {
		return err
	}
	ci.agRef = mount.IntentGet(ci.StartBlock)
	tp.Queue().add(ci)
	return nil
}

func (ci *RefcountItem) finish(ctx context.Context, tp Txn, state *StepState) (StepResult, error) {
	if err := tp.Backends().Refcount.FinishOne(ctx, tp, ci, state); err != nil {
		return 0, err
	}
	if ci.BlockCount > 0 {
		// Ran out of reservation; requeue what didn't finish.
		if ci.Op != RefcountIncrease && ci.Op != RefcountDecrease {
			panic(fmt.Errorf("xfsdefer: partial progress on refcount %v", ci.Op))
		}
		return StepAgain, nil
	}
	return StepDone, nil
}
