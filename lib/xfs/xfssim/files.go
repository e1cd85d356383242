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

type forkKey struct {
	ino  xfsprim.Ino
	fork xfsprim.Fork
}

// fileStore is the inode block-map: per fork, a list of extents
// sorted by file offset, non-overlapping.
type fileStore struct {
	mu    sync.Mutex
	forks map[forkKey][]xfsprim.FileExtent
}

// lookup returns the mapping at file offset off: the tail of the
// extent containing off, starting exactly at off.
func (st *fileStore) lookup(k forkKey, off xfsprim.FileOff) (xfsprim.FileExtent, bool) {
	for _, e := range st.forks[k] {
		if e.StartOff <= off && off < e.StartOff+xfsprim.FileOff(e.BlockCount) {
			skip := xfsprim.BlockCount(off - e.StartOff)
			return xfsprim.FileExtent{
				StartOff:   off,
				StartBlock: e.StartBlock + xfsprim.FSBlock(skip),
				BlockCount: e.BlockCount - skip,
				Written:    e.Written,
			}, true
		}
	}
	return xfsprim.FileExtent{}, false
}

func (st *fileStore) mapExt(k forkKey, ext xfsprim.FileExtent) error {
	// A zero-length mapping is a no-op; inserting it would leave a
	// record that lookup and unmap can never match.
	if ext.BlockCount == 0 {
		return nil
	}
	exts := st.forks[k]
	i := 0
	for i < len(exts) && exts[i].StartOff < ext.StartOff {
		i++
	}
	if i > 0 {
		prev := exts[i-1]
		if prev.StartOff+xfsprim.FileOff(prev.BlockCount) > ext.StartOff {
			return fmt.Errorf("%w: mapping over mapped range at fileoff=%d", ErrCorrupt, ext.StartOff)
		}
	}
	if i < len(exts) {
		if ext.StartOff+xfsprim.FileOff(ext.BlockCount) > exts[i].StartOff {
			return fmt.Errorf("%w: mapping over mapped range at fileoff=%d", ErrCorrupt, exts[i].StartOff)
		}
	}
	exts = append(exts, xfsprim.FileExtent{})
	copy(exts[i+1:], exts[i:])
	exts[i] = ext
	st.forks[k] = exts
	return nil
}

// unmap removes exactly [off,off+n) from the fork, splitting extents
// as needed.  An unmapped hole in the range is corruption.
func (st *fileStore) unmap(k forkKey, off xfsprim.FileOff, n xfsprim.BlockCount) error {
	end := off + xfsprim.FileOff(n)
	var kept []xfsprim.FileExtent
	var removed xfsprim.BlockCount
	for _, e := range st.forks[k] {
		eEnd := e.StartOff + xfsprim.FileOff(e.BlockCount)
		if eEnd <= off || e.StartOff >= end {
			kept = append(kept, e)
			continue
		}
		if e.StartOff < off {
			left := e
			left.BlockCount = xfsprim.BlockCount(off - e.StartOff)
			kept = append(kept, left)
		}
		if eEnd > end {
			skip := xfsprim.BlockCount(end - e.StartOff)
			right := xfsprim.FileExtent{
				StartOff:   end,
				StartBlock: e.StartBlock + xfsprim.FSBlock(skip),
				BlockCount: e.BlockCount - skip,
				Written:    e.Written,
			}
			kept = append(kept, right)
		}
		lo := e.StartOff
		if lo < off {
			lo = off
		}
		hi := eEnd
		if hi > end {
			hi = end
		}
		removed += xfsprim.BlockCount(hi - lo)
	}
	if removed != n {
		return fmt.Errorf("%w: unmapping a hole at fileoff=%d", ErrCorrupt, off)
	}
	st.forks[k] = kept
	return nil
}

// SetForkExtents replaces a fork's block map; for scenario setup.
func (fs *FS) SetForkExtents(ino xfsprim.Ino, fork xfsprim.Fork, exts []xfsprim.FileExtent) {
	fs.files.mu.Lock()
	defer fs.files.mu.Unlock()
	cp := make([]xfsprim.FileExtent, len(exts))
	copy(cp, exts)
	fs.files.forks[forkKey{ino: ino, fork: fork}] = cp
}

// ForkExtents returns a copy of a fork's block map.
func (fs *FS) ForkExtents(ino xfsprim.Ino, fork xfsprim.Fork) []xfsprim.FileExtent {
	fs.files.mu.Lock()
	defer fs.files.mu.Unlock()
	exts := fs.files.forks[forkKey{ino: ino, fork: fork}]
	cp := make([]xfsprim.FileExtent, len(exts))
	copy(cp, exts)
	return cp
}

type bmapUpdater struct{ fs *FS }

var _ xfsdefer.BmapUpdater = bmapUpdater{}

func (bu bmapUpdater) FinishOne(ctx context.Context, tp xfsdefer.Txn, bi *xfsdefer.BmapItem) error {
	stp := tp.(*Txn)
	stp.consume()
	k := forkKey{ino: bi.Ino, fork: bi.Fork}
	bu.fs.files.mu.Lock()
	defer bu.fs.files.mu.Unlock()
	switch bi.Op {
	case xfsdefer.BmapMap:
		// Maps are atomic per item: the whole extent goes in
		// at once, and the provisional delayed-block credit
		// becomes real blocks.
		n := bi.Extent.BlockCount
		if err := bu.fs.files.mapExt(k, bi.Extent); err != nil {
			return err
		}
		bi.Owner().AddDelayedBlocks(-int64(n))
		dlog.Tracef(ctx, "bmap: mapped ino=%d fileoff=%d x%d", bi.Ino, bi.Extent.StartOff, n)
		bi.Extent.StartOff += xfsprim.FileOff(n)
		bi.Extent.StartBlock += xfsprim.FSBlock(n)
		bi.Extent.BlockCount = 0
	case xfsdefer.BmapUnmap:
		n := bi.Extent.BlockCount
		if lim := bu.fs.opts.UnmapStepLimit; lim > 0 && n > lim {
			n = lim
		}
		if err := bu.fs.files.unmap(k, bi.Extent.StartOff, n); err != nil {
			return err
		}
		dlog.Tracef(ctx, "bmap: unmapped ino=%d fileoff=%d x%d, %d remaining",
			bi.Ino, bi.Extent.StartOff, n, bi.Extent.BlockCount-n)
		bi.Extent.StartOff += xfsprim.FileOff(n)
		bi.Extent.StartBlock += xfsprim.FSBlock(n)
		bi.Extent.BlockCount -= n
	default:
		panic(fmt.Errorf("xfssim: unknown bmap op %v", bi.Op))
	}
	return nil
}

type mapExchanger struct{ fs *FS }

var _ xfsdefer.MapExchanger = mapExchanger{}

func (me mapExchanger) FinishOne(ctx context.Context, tp xfsdefer.Txn, xmi *xfsdefer.ExchMapsItem) error {
	stp := tp.(*Txn)
	stp.consume()
	fork := xfsprim.DataFork
	if xmi.Flags&xfsdefer.ExchAttrForks != 0 {
		fork = xfsprim.AttrFork
	}
	k1 := forkKey{ino: xmi.Ino1, fork: fork}
	k2 := forkKey{ino: xmi.Ino2, fork: fork}

	me.fs.files.mu.Lock()
	defer me.fs.files.mu.Unlock()
	e1, ok := me.fs.files.lookup(k1, xmi.StartOff1)
	if !ok {
		return fmt.Errorf("%w: ino=%d has no mapping at fileoff=%d", ErrCorrupt, xmi.Ino1, xmi.StartOff1)
	}
	e2, ok := me.fs.files.lookup(k2, xmi.StartOff2)
	if !ok {
		return fmt.Errorf("%w: ino=%d has no mapping at fileoff=%d", ErrCorrupt, xmi.Ino2, xmi.StartOff2)
	}

	// Exchange one extent's worth: the largest run both files map
	// contiguously, clamped to the remaining request.
	n := xmi.BlockCount
	if e1.BlockCount < n {
		n = e1.BlockCount
	}
	if e2.BlockCount < n {
		n = e2.BlockCount
	}
	if err := me.fs.files.unmap(k1, xmi.StartOff1, n); err != nil {
		return err
	}
	if err := me.fs.files.unmap(k2, xmi.StartOff2, n); err != nil {
		return err
	}
	if err := me.fs.files.mapExt(k1, xfsprim.FileExtent{
		StartOff: xmi.StartOff1, StartBlock: e2.StartBlock, BlockCount: n, Written: e2.Written,
	}); err != nil {
		return err
	}
	if err := me.fs.files.mapExt(k2, xfsprim.FileExtent{
		StartOff: xmi.StartOff2, StartBlock: e1.StartBlock, BlockCount: n, Written: e1.Written,
	}); err != nil {
		return err
	}
	dlog.Tracef(ctx, "exchmaps: exchanged ino=%d/ino=%d x%d, %d remaining",
		xmi.Ino1, xmi.Ino2, n, xmi.BlockCount-n)
	xmi.StartOff1 += xfsprim.FileOff(n)
	xmi.StartOff2 += xfsprim.FileOff(n)
	xmi.BlockCount -= n
	return nil
}
