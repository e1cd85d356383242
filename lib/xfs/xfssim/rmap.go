// Copyright (C) 2025-2026  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package xfssim

import (
	"context"
	"fmt"
	"sync"

	"git.lukeshu.com/xfs-progs-ng/lib/containers"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsdefer"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsprim"
)

type rmapKey struct {
	agno  xfsprim.AGNumber
	agbno xfsprim.AGBlock
	owner xfsprim.OwnerID
}

func (a rmapKey) Compare(b rmapKey) int {
	if d := containers.NativeCompare(a.agno, b.agno); d != 0 {
		return d
	}
	if d := containers.NativeCompare(a.agbno, b.agbno); d != 0 {
		return d
	}
	return containers.NativeCompare(a.owner, b.owner)
}

// rmapRec is one reverse-map record, keyed the way the on-disk rmap
// btree keys its records.
type rmapRec struct {
	rmapKey

	len     xfsprim.BlockCount
	off     xfsprim.FileOff
	fork    xfsprim.Fork
	written bool
}

func (a rmapRec) Compare(b rmapRec) int {
	return a.rmapKey.Compare(b.rmapKey)
}

type rmapStore struct {
	mu   sync.Mutex
	tree containers.RBTree[rmapRec]
}

func (st *rmapStore) search(key rmapKey) *containers.RBNode[rmapRec] {
	return st.tree.Search(func(rec rmapRec) int {
		return key.Compare(rec.rmapKey)
	})
}

// RmapCount returns how many reverse-map records exist.
func (fs *FS) RmapCount() int {
	fs.rmaps.mu.Lock()
	defer fs.rmaps.mu.Unlock()
	return fs.rmaps.tree.Len()
}

// Rmap returns the reverse-map record for owner at fsbno.
func (fs *FS) Rmap(owner xfsprim.OwnerID, fsbno xfsprim.FSBlock) (ext xfsprim.FileExtent, fork xfsprim.Fork, ok bool) {
	geo := fs.geo()
	key := rmapKey{
		agno:  geo.FSBToAGNumber(fsbno),
		agbno: geo.FSBToAGBlock(fsbno),
		owner: owner,
	}
	fs.rmaps.mu.Lock()
	defer fs.rmaps.mu.Unlock()
	node := fs.rmaps.search(key)
	if node == nil {
		return xfsprim.FileExtent{}, 0, false
	}
	rec := node.Value
	return xfsprim.FileExtent{
		StartOff:   rec.off,
		StartBlock: fsbno,
		BlockCount: rec.len,
		Written:    rec.written,
	}, rec.fork, true
}

// SetRmap seeds a reverse-map record, bypassing the deferred-work
// machinery.
func (fs *FS) SetRmap(owner xfsprim.OwnerID, fork xfsprim.Fork, ext xfsprim.FileExtent) {
	geo := fs.geo()
	fs.rmaps.mu.Lock()
	defer fs.rmaps.mu.Unlock()
	fs.rmaps.tree.Insert(rmapRec{
		rmapKey: rmapKey{
			agno:  geo.FSBToAGNumber(ext.StartBlock),
			agbno: geo.FSBToAGBlock(ext.StartBlock),
			owner: owner,
		},
		len:     ext.BlockCount,
		off:     ext.StartOff,
		fork:    fork,
		written: ext.Written,
	})
}

type rmapUpdater struct{ fs *FS }

var _ xfsdefer.RmapUpdater = rmapUpdater{}

// reuseCursor parks (or re-parks) a cursor for agno in state,
// closing a previously parked cursor for a different AG.
func (fs *FS) reuseCursor(state *xfsdefer.StepState, agno xfsprim.AGNumber) {
	if cur, ok := state.Cursor().(*treeCursor); ok {
		if cur.agno == agno {
			return
		}
		cur.Close(nil)
	}
	state.SetCursor(fs.openCursor(agno))
}

func (ru rmapUpdater) FinishOne(ctx context.Context, tp xfsdefer.Txn, ri *xfsdefer.RmapItem, state *xfsdefer.StepState) error {
	stp := tp.(*Txn)
	stp.consume()
	geo := ru.fs.geo()
	agno := geo.FSBToAGNumber(ri.Extent.StartBlock)
	ru.fs.reuseCursor(state, agno)

	key := rmapKey{
		agno:  agno,
		agbno: geo.FSBToAGBlock(ri.Extent.StartBlock),
		owner: ri.Owner,
	}
	ru.fs.rmaps.mu.Lock()
	defer ru.fs.rmaps.mu.Unlock()
	node := ru.fs.rmaps.search(key)
	switch ri.Op {
	case xfsdefer.RmapMap, xfsdefer.RmapMapShared, xfsdefer.RmapAlloc:
		if node != nil {
			return fmt.Errorf("%w: rmap record for %v+%d owner=%v already exists",
				ErrCorrupt, key.agno, key.agbno, key.owner)
		}
		ru.fs.rmaps.tree.Insert(rmapRec{
			rmapKey: key,
			len:     ri.Extent.BlockCount,
			off:     ri.Extent.StartOff,
			fork:    ri.Fork,
			written: ri.Extent.Written,
		})
	case xfsdefer.RmapUnmap, xfsdefer.RmapUnmapShared, xfsdefer.RmapFree:
		if node == nil {
			return fmt.Errorf("%w: no rmap record for %v+%d owner=%v",
				ErrCorrupt, key.agno, key.agbno, key.owner)
		}
		ru.fs.rmaps.tree.Delete(node)
	case xfsdefer.RmapConvert, xfsdefer.RmapConvertShared:
		if node == nil {
			return fmt.Errorf("%w: no rmap record for %v+%d owner=%v",
				ErrCorrupt, key.agno, key.agbno, key.owner)
		}
		rec := node.Value
		rec.written = !rec.written
		ru.fs.rmaps.tree.Insert(rec)
	default:
		panic(fmt.Errorf("xfssim: unknown rmap op %v", ri.Op))
	}
	return nil
}
