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

// RmapOp is which reverse-map tree manipulation an RmapItem performs.
type RmapOp int8

const (
	RmapMap RmapOp = iota
	RmapMapShared
	RmapUnmap
	RmapUnmapShared
	RmapConvert
	RmapConvertShared
	RmapAlloc
	RmapFree
)

func (op RmapOp) String() string {
	switch op {
	case RmapMap:
		return "map"
	case RmapMapShared:
		return "map_shared"
	case RmapUnmap:
		return "unmap"
	case RmapUnmapShared:
		return "unmap_shared"
	case RmapConvert:
		return "convert"
	case RmapConvertShared:
		return "convert_shared"
	case RmapAlloc:
		return "alloc"
	case RmapFree:
		return "free"
	default:
		return fmt.Sprintf("RmapOp(%d)", int8(op))
	}
}

// RmapItem adds, removes, or updates one reverse-map record keyed by
// (AG, block, owner).  Each item is a single step; rmap updates are
// never left partially done.
type RmapItem struct {
	itemState

	Op     RmapOp
	Owner  xfsprim.OwnerID
	Fork   xfsprim.Fork
	Extent xfsprim.FileExtent

	agRef *xfsmount.AGRef
}

var rmapPool = &typedsync.Pool[*RmapItem]{New: func() *RmapItem { return new(RmapItem) }}

func NewRmapItem() *RmapItem {
	ret, _ := rmapPool.Get()
	return ret
}

func (*RmapItem) isDeferItem() {}

func (*RmapItem) Kind() Kind { return KindRmap }

func (ri *RmapItem) Free() {
	*ri = RmapItem{}
	rmapPool.Put(ri)
}

// AddRmap queues ri on tp's transaction chain, pinning the AG that
// contains the mapped blocks.  Malformed items are rejected here,
// before any resource is acquired.
func AddRmap(tp Txn, ri *RmapItem) error {
	mount := tp.Mount()
	if err := checkAGExtent(mount.Geometry(), "AddRmap", ri.Extent.StartBlock, ri.Extent.BlockCount); err != nil {
		return err
	}
	ri.agRef = mount.IntentGet(ri.Extent.StartBlock)
	tp.Queue().add(ri)
	return nil
}

func (ri *RmapItem) finish(ctx context.Context, tp Txn, state *StepState) (StepResult, error) {
	if err := tp.Backends().Rmap.FinishOne(ctx, tp, ri, state); err != nil {
		return 0, err
	}
	return StepDone, nil
}
