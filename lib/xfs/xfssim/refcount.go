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

type refcountStore struct {
	mu     sync.Mutex
	counts map[xfsprim.FSBlock]int64
}

// Refcount returns the extra reference count recorded for a block; 0
// means the block is unshared.
func (fs *FS) Refcount(fsbno xfsprim.FSBlock) int64 {
	fs.refcounts.mu.Lock()
	defer fs.refcounts.mu.Unlock()
	return fs.refcounts.counts[fsbno]
}

// SetRefcount seeds the extra reference count for a run of blocks,
// bypassing the deferred-work machinery.
func (fs *FS) SetRefcount(start xfsprim.FSBlock, blockCount xfsprim.BlockCount, count int64) {
	fs.refcounts.mu.Lock()
	defer fs.refcounts.mu.Unlock()
	for i := xfsprim.BlockCount(0); i < blockCount; i++ {
		if count == 0 {
			delete(fs.refcounts.counts, start+xfsprim.FSBlock(i))
		} else {
			fs.refcounts.counts[start+xfsprim.FSBlock(i)] = count
		}
	}
}

type refcountUpdater struct{ fs *FS }

var _ xfsdefer.RefcountUpdater = refcountUpdater{}

func (ru refcountUpdater) FinishOne(ctx context.Context, tp xfsdefer.Txn, ci *xfsdefer.RefcountItem, state *xfsdefer.StepState) error {
	stp := tp.(*Txn)
	stp.consume()
	geo := ru.fs.geo()
	ru.fs.reuseCursor(state, geo.FSBToAGNumber(ci.StartBlock))

	// A long run may be truncated at the reservation boundary;
	// the remainder stays in the item for the next step.
	n := ci.BlockCount
	if lim := ru.fs.opts.RefcountStepLimit; lim > 0 && n > lim {
		n = lim
	}

	ru.fs.refcounts.mu.Lock()
	defer ru.fs.refcounts.mu.Unlock()
	for i := xfsprim.BlockCount(0); i < n; i++ {
		fsbno := ci.StartBlock + xfsprim.FSBlock(i)
		switch ci.Op {
		case xfsdefer.RefcountIncrease, xfsdefer.RefcountAllocCow:
			ru.fs.refcounts.counts[fsbno]++
		case xfsdefer.RefcountDecrease, xfsdefer.RefcountFreeCow:
			if ru.fs.refcounts.counts[fsbno] == 0 {
				return fmt.Errorf("%w: refcount underflow at fsbno=%#x",
					ErrCorrupt, uint64(fsbno))
			}
			ru.fs.refcounts.counts[fsbno]--
			if ru.fs.refcounts.counts[fsbno] == 0 {
				delete(ru.fs.refcounts.counts, fsbno)
			}
		default:
			panic(fmt.Errorf("xfssim: unknown refcount op %v", ci.Op))
		}
	}
	dlog.Tracef(ctx, "refcount: %v x%d at fsbno=%#x, %d remaining",
		ci.Op, n, uint64(ci.StartBlock), ci.BlockCount-n)
	ci.StartBlock += xfsprim.FSBlock(n)
	ci.BlockCount -= n
	return nil
}
