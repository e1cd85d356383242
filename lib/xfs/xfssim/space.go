// Copyright (C) 2025-2026  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package xfssim

import (
	"context"
	"fmt"
	"sync"

	"github.com/datawire/dlib/dlog"

	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsdefer"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsprim"
)

type span struct {
	start xfsprim.AGBlock
	len   xfsprim.BlockCount
}

type agSpace struct {
	mu     sync.Mutex
	free   []span // sorted by start, non-overlapping
	freed  xfsprim.BlockCount
	agfl   []xfsprim.AGBlock
	broken error
}

// insertFree records [start,start+n) as free.  Freeing free space is
// corruption.
func (ag *agSpace) insertFree(start xfsprim.AGBlock, n xfsprim.BlockCount) error {
	i := 0
	for i < len(ag.free) && ag.free[i].start < start {
		i++
	}
	if i > 0 {
		prev := ag.free[i-1]
		if xfsprim.BlockCount(prev.start)+prev.len > xfsprim.BlockCount(start) {
			return fmt.Errorf("%w: freeing already-free block agbno=%d", ErrCorrupt, start)
		}
	}
	if i < len(ag.free) {
		next := ag.free[i]
		if xfsprim.BlockCount(start)+n > xfsprim.BlockCount(next.start) {
			return fmt.Errorf("%w: freeing already-free block agbno=%d", ErrCorrupt, next.start)
		}
	}
	ag.free = append(ag.free, span{})
	copy(ag.free[i+1:], ag.free[i:])
	ag.free[i] = span{start: start, len: n}
	ag.freed += n
	return nil
}

// FreedBlocks returns the total number of blocks ever freed into an
// AG.
func (fs *FS) FreedBlocks(agno xfsprim.AGNumber) xfsprim.BlockCount {
	ag := &fs.space[agno]
	ag.mu.Lock()
	defer ag.mu.Unlock()
	return ag.freed
}

// AGFL returns the blocks currently on an AG's free list.
func (fs *FS) AGFL(agno xfsprim.AGNumber) []xfsprim.AGBlock {
	ag := &fs.space[agno]
	ag.mu.Lock()
	defer ag.mu.Unlock()
	ret := make([]xfsprim.AGBlock, len(ag.agfl))
	copy(ret, ag.agfl)
	return ret
}

type spaceManager struct{ fs *FS }

var _ xfsdefer.SpaceManager = spaceManager{}

func (sm spaceManager) FreeExtent(ctx context.Context, tp xfsdefer.Txn, xefi *xfsdefer.ExtentFreeItem) error {
	stp := tp.(*Txn)
	stp.consume()
	geo := sm.fs.geo()
	agno := geo.FSBToAGNumber(xefi.StartBlock)
	ag := &sm.fs.space[agno]
	ag.mu.Lock()
	defer ag.mu.Unlock()
	if ag.broken != nil {
		return ag.broken
	}
	n := xefi.BlockCount
	if lim := sm.fs.opts.FreeStepLimit; lim > 0 && n > lim {
		n = lim
	}
	if err := ag.insertFree(geo.FSBToAGBlock(xefi.StartBlock), n); err != nil {
		return err
	}
	dlog.Tracef(ctx, "space: freed %v+%d x%d (owner=%v)",
		agno, geo.FSBToAGBlock(xefi.StartBlock), n, xefi.Owner)
	xefi.StartBlock += xfsprim.FSBlock(n)
	xefi.BlockCount -= n
	return nil
}

func (sm spaceManager) FreeAGFLBlock(ctx context.Context, tp xfsdefer.Txn, xefi *xfsdefer.ExtentFreeItem) error {
	stp := tp.(*Txn)
	stp.consume()
	geo := sm.fs.geo()
	agno := geo.FSBToAGNumber(xefi.StartBlock)
	agbno := geo.FSBToAGBlock(xefi.StartBlock)
	ag := &sm.fs.space[agno]
	ag.mu.Lock()
	defer ag.mu.Unlock()
	if ag.broken != nil {
		return ag.broken
	}
	for _, have := range ag.agfl {
		if have == agbno {
			return fmt.Errorf("%w: agbno=%d already on the %v free list", ErrCorrupt, agbno, agno)
		}
	}
	ag.agfl = append(ag.agfl, agbno)
	dlog.Tracef(ctx, "space: freed %v+%d to the free list", agno, agbno)
	xefi.BlockCount = 0
	return nil
}
