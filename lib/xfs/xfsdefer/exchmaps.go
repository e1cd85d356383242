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

type ExchMapsFlags uint8

const (
	// ExchAttrForks: exchange the attribute forks instead of the
	// data forks.
	ExchAttrForks ExchMapsFlags = 1 << iota
	// ExchSetSizes: exchange the file sizes when the exchange
	// completes.
	ExchSetSizes
)

var exchMapsFlagNames = []string{
	"ATTR_FORKS",
	"SET_SIZES",
}

func (f ExchMapsFlags) String() string {
	return fmtutil.BitfieldString(f, exchMapsFlagNames, fmtutil.HexNone)
}

// ExchMapsItem exchanges ranges of block mappings between two files'
// forks, one extent per step.  BlockCount is the remaining length of
// the requested range.
type ExchMapsItem struct {
	itemState

	Ino1, Ino2           xfsprim.Ino
	StartOff1, StartOff2 xfsprim.FileOff
	BlockCount           xfsprim.BlockCount
	Flags                ExchMapsFlags

	ref1, ref2 *xfsmount.InodeRef
}

var exchMapsPool = &typedsync.Pool[*ExchMapsItem]{New: func() *ExchMapsItem { return new(ExchMapsItem) }}

func NewExchMapsItem() *ExchMapsItem {
	ret, _ := exchMapsPool.Get()
	return ret
}

func (*ExchMapsItem) isDeferItem() {}

func (*ExchMapsItem) Kind() Kind { return KindExchMaps }

func (xmi *ExchMapsItem) Free() {
	*xmi = ExchMapsItem{}
	exchMapsPool.Put(xmi)
}

// AddExchMaps queues xmi on tp's transaction chain, pinning both
// inodes.  Malformed items are rejected here, before any resource is
// acquired.
func AddExchMaps(tp Txn, xmi *ExchMapsItem) error {
	if xmi.BlockCount == 0 {
		return fmt.Errorf("xfsdefer.AddExchMaps: zero-length exchange")
	}
	mount := tp.Mount()
	xmi.ref1 = mount.IntentGetInode(xmi.Ino1)
	xmi.ref2 = mount.IntentGetInode(xmi.Ino2)
	tp.Queue().add(xmi)
	return nil
}

func (xmi *ExchMapsItem) finish(ctx context.Context, tp Txn) (StepResult, error) {
	// Exchange one more extent between the two files.
	if err := tp.Backends().Exchange.FinishOne(ctx, tp, xmi); err != nil {
		return 0, err
	}
	if xmi.BlockCount > 0 {
		return StepAgain, nil
	}
	return StepDone, nil
}
