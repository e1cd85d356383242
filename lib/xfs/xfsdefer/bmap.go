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

// BmapOp is which direction a block-map update goes.
type BmapOp int8

const (
	// BmapMap establishes new block ownership in the fork.  A map
	// is atomic per item.
	BmapMap BmapOp = iota
	// BmapUnmap releases blocks from the fork.  An unmap may be
	// split across transaction rolls.
	BmapUnmap
)

func (op BmapOp) String() string {
	switch op {
	case BmapMap:
		return "map"
	case BmapUnmap:
		return "unmap"
	default:
		return fmt.Sprintf("BmapOp(%d)", int8(op))
	}
}

// BmapItem remaps or unmaps a range of one inode fork's blocks.
// Extent.BlockCount is the remaining work; the backend advances the
// extent as it goes.
//
// A map item provisionally credits the inode's delayed-block counter
// when it is queued; the allocator moves that credit to real blocks
// as it maps, and canceling an unfinished map undoes only the credit
// that is still provisional.
type BmapItem struct {
	itemState

	Op     BmapOp
	Ino    xfsprim.Ino
	Fork   xfsprim.Fork
	Extent xfsprim.FileExtent

	owner *xfsmount.InodeRef
	agRef *xfsmount.AGRef // nil when the fork is on the realtime device
}

var bmapPool = &typedsync.Pool[*BmapItem]{New: func() *BmapItem { return new(BmapItem) }}

func NewBmapItem() *BmapItem {
	ret, _ := bmapPool.Get()
	return ret
}

func (*BmapItem) isDeferItem() {}

func (*BmapItem) Kind() Kind { return KindBmap }

func (bi *BmapItem) Free() {
	*bi = BmapItem{}
	bmapPool.Put(bi)
}

// Owner returns the pinned inode the item operates on; it is only
// valid between AddBmap and the item's terminal status.
func (bi *BmapItem) Owner() *xfsmount.Inode {
	return bi.owner.Inode()
}

// AddBmap queues bi on tp's transaction chain, pinning the owning
// inode and (unless the fork is realtime) the AG containing the
// mapped blocks.  Malformed items are rejected here, before any
// resource is acquired; realtime blocks live outside the allocation
// groups, so for a realtime fork only the length is checked.
func AddBmap(tp Txn, bi *BmapItem) error {
	mount := tp.Mount()
	if mount.Inode(bi.Ino).IsRealtime(bi.Fork) {
		if bi.Extent.BlockCount == 0 {
			return fmt.Errorf("xfsdefer.AddBmap: zero-length extent")
		}
	} else if err := checkAGExtent(mount.Geometry(), "AddBmap", bi.Extent.StartBlock, bi.Extent.BlockCount); err != nil {
		return err
	}
	bi.owner = mount.IntentGetInode(bi.Ino)
	if !bi.owner.Inode().IsRealtime(bi.Fork) {
		bi.agRef = mount.IntentGet(bi.Extent.StartBlock)
	}
	// Pre-record the mapping in the delayed-block counter, so
	// that stat of the inode's block count sees the eventual
	// total while the mapping is still in flight.
	if bi.Op == BmapMap {
		bi.owner.Inode().AddDelayedBlocks(int64(bi.Extent.BlockCount))
	}
	tp.Queue().add(bi)
	return nil
}

func (bi *BmapItem) finish(ctx context.Context, tp Txn) (StepResult, error) {
	if err := tp.Backends().Bmap.FinishOne(ctx, tp, bi); err != nil {
		return 0, err
	}
	if bi.Extent.BlockCount > 0 {
		if bi.Op != BmapUnmap {
			panic(fmt.Errorf("xfsdefer: partial progress on bmap %v", bi.Op))
		}
		return StepAgain, nil
	}
	return StepDone, nil
}
