// Copyright (C) 2025-2026  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package xfsdefer

import (
	"fmt"

	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsprim"
)

// Item is one unit of deferred work.  The implementations are the
// closed set of per-kind payload types in this package; nothing
// outside this package may implement it.
type Item interface {
	isDeferItem()

	Kind() Kind

	// Free returns the item to its kind's pool; the engine calls
	// it once the item reaches a terminal status.  Callers that
	// constructed an item but never queued it may Free it
	// themselves.
	Free()
}

// Status is the lifecycle state of a work item.  Queued items may be
// stepped any number of times; exactly one terminal status is reached
// exactly once.
type Status int8

const (
	StatusQueued Status = iota
	StatusCompleted
	StatusCanceled
	StatusAborted
)

func (st Status) String() string {
	switch st {
	case StatusQueued:
		return "queued"
	case StatusCompleted:
		return "completed"
	case StatusCanceled:
		return "canceled"
	case StatusAborted:
		return "aborted"
	default:
		return fmt.Sprintf("Status(%d)", int8(st))
	}
}

type itemState struct {
	status Status
}

func (s *itemState) markTerminal(st Status) {
	if s.status != StatusQueued {
		panic(fmt.Errorf("xfsdefer: item reached %v after already being %v",
			st, s.status))
	}
	s.status = st
}

// checkAGExtent validates that a deferred extent names real blocks
// and stays within one allocation group.  Every Add entry point calls
// it before acquiring any resource, so malformed input is a
// synchronous error rather than a crash mid-chain.
func checkAGExtent(geo xfsprim.Geometry, fn string, startBlock xfsprim.FSBlock, blockCount xfsprim.BlockCount) error {
	switch {
	case blockCount == 0:
		return fmt.Errorf("xfsdefer.%s: zero-length extent", fn)
	case !geo.ContainsFSB(startBlock):
		return fmt.Errorf("xfsdefer.%s: fsbno=%#x outside the filesystem",
			fn, uint64(startBlock))
	case xfsprim.BlockCount(geo.FSBToAGBlock(startBlock))+blockCount > geo.AGBlocks():
		return fmt.Errorf("xfsdefer.%s: extent crosses an AG boundary", fn)
	}
	return nil
}

// itemTerminalHook, if set, is called with every item as it reaches a
// terminal status, before the item's resources are released.  For
// tests.
var itemTerminalHook func(it Item, st Status)

// terminate marks the item terminal, releases the region references
// and provisional credits it holds, and frees it.  This is the only
// path out of the queue for any item.
func terminate(it Item, st Status) {
	if itemTerminalHook != nil {
		itemTerminalHook(it, st)
	}
	switch it := it.(type) {
	case *ExtentFreeItem:
		it.markTerminal(st)
		it.agRef.Put()
	case *RmapItem:
		it.markTerminal(st)
		it.agRef.Put()
	case *RefcountItem:
		it.markTerminal(st)
		it.agRef.Put()
	case *BmapItem:
		it.markTerminal(st)
		if it.Op == BmapMap {
			// Undo whatever part of the provisional
			// delayed-block credit the allocator has not
			// already converted to real blocks.
			it.owner.Inode().AddDelayedBlocks(-int64(it.Extent.BlockCount))
		}
		if it.agRef != nil {
			it.agRef.Put()
		}
		it.owner.Put()
	case *AttrItem:
		it.markTerminal(st)
		if it.Cursor != nil {
			it.Cursor.Close()
			it.Cursor = nil
		}
		it.owner.Put()
	case *ExchMapsItem:
		it.markTerminal(st)
		it.ref2.Put()
		it.ref1.Put()
	default:
		panic(fmt.Errorf("xfsdefer: unknown item type %T", it))
	}
	it.Free()
}
