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

// AGResv selects which reservation pool freed blocks are accounted
// against.
type AGResv int8

const (
	AGResvNone AGResv = iota
	AGResvMetadata
	AGResvAGFL
)

type ExtentFreeFlags uint8

const (
	// EFIAttrFork: the blocks belonged to the owner's attribute
	// fork.
	EFIAttrFork ExtentFreeFlags = 1 << iota
	// EFIBmbtBlock: the blocks were part of the owner's block-map
	// btree.
	EFIBmbtBlock
	// EFISkipDiscard: don't issue a discard for the freed range.
	EFISkipDiscard
	// EFICancelled: the free has been called off; the item
	// completes without touching the free-space structures.
	EFICancelled
)

var extentFreeFlagNames = []string{
	"ATTR_FORK",
	"BMBT_BLOCK",
	"SKIP_DISCARD",
	"CANCELLED",
}

func (f ExtentFreeFlags) Has(req ExtentFreeFlags) bool { return f&req == req }
func (f ExtentFreeFlags) String() string {
	return fmtutil.BitfieldString(f, extentFreeFlagNames, fmtutil.HexNone)
}

// ExtentFreeItem frees a contiguous run of blocks back to an
// allocation group.  With Resv == AGResvAGFL the run must be exactly
// one block long, and it is freed to the AG free list instead of the
// general free-space structures.
type ExtentFreeItem struct {
	itemState

	StartBlock xfsprim.FSBlock
	BlockCount xfsprim.BlockCount
	Owner      xfsprim.OwnerID
	Flags      ExtentFreeFlags
	Resv       AGResv

	agRef *xfsmount.AGRef
}

var extentFreePool = &typedsync.Pool[*ExtentFreeItem]{New: func() *ExtentFreeItem { return new(ExtentFreeItem) }}

func NewExtentFreeItem() *ExtentFreeItem {
	ret, _ := extentFreePool.Get()
	return ret
}

func (*ExtentFreeItem) isDeferItem() {}

func (xefi *ExtentFreeItem) Kind() Kind {
	if xefi.Resv == AGResvAGFL {
		return KindAGFLFree
	}
	return KindExtentFree
}

func (xefi *ExtentFreeItem) Free() {
	*xefi = ExtentFreeItem{}
	extentFreePool.Put(xefi)
}

// OwnerInfo returns the reverse-map owner description of the blocks
// being freed.
func (xefi *ExtentFreeItem) OwnerInfo() xfsprim.OwnerInfo {
	return xfsprim.OwnerInfo{
		Owner:     xefi.Owner,
		AttrFork:  xefi.Flags&EFIAttrFork != 0,
		BmbtBlock: xefi.Flags&EFIBmbtBlock != 0,
	}
}

// AddExtentFree queues xefi on tp's transaction chain, pinning the AG
// that contains the blocks.  Malformed items are rejected here,
// before any resource is acquired.
func AddExtentFree(tp Txn, xefi *ExtentFreeItem) error {
	mount := tp.Mount()
	if err := checkAGExtent(mount.Geometry(), "AddExtentFree", xefi.StartBlock, xefi.BlockCount); err != nil {
		return err
	}
	if xefi.Resv == AGResvAGFL && xefi.BlockCount != 1 {
		return fmt.Errorf("xfsdefer.AddExtentFree: free-list frees must be a single block, got %d",
			xefi.BlockCount)
	}
	xefi.agRef = mount.IntentGet(xefi.StartBlock)
	tp.Queue().add(xefi)
	return nil
}

func (xefi *ExtentFreeItem) finish(ctx context.Context, tp Txn) (StepResult, error) {
	if xefi.Flags&EFICancelled != 0 {
		return StepDone, nil
	}
	if err := tp.Backends().Space.FreeExtent(ctx, tp, xefi); err != nil {
		return 0, err
	}
	if xefi.BlockCount > 0 {
		return StepAgain, nil
	}
	return StepDone, nil
}

// finishAGFL is the free-list variant: one block, accounted against
// the AGFL reservation, never discarded.
func (xefi *ExtentFreeItem) finishAGFL(ctx context.Context, tp Txn) (StepResult, error) {
	if xefi.BlockCount != 1 {
		panic(fmt.Errorf("xfsdefer: agfl free of %d blocks", xefi.BlockCount))
	}
	if err := tp.Backends().Space.FreeAGFLBlock(ctx, tp, xefi); err != nil {
		return 0, err
	}
	return StepDone, nil
}
