// Copyright (C) 2025-2026  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package xfssim provides an in-memory rendition of the deferred
// engine's external collaborators: a reservation-counting journal, a
// free-space manager, reverse-map and refcount trees, an inode
// block-map, an attribute tree with a multi-step cursor, and a
// file-map exchanger.
//
// It is what the userspace tooling runs the engine against, and what
// the engine's tests use; it models just enough allocator behavior to
// catch double-frees, dangling intents, and cursors held across roll
// boundaries.
package xfssim

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsmount"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsprim"
)

var (
	// ErrCorrupt is returned when a collaborator detects
	// inconsistent metadata mid-step; the engine treats it as a
	// hard error with no retry.
	ErrCorrupt = errors.New("corrupt metadata")

	// ErrNoAttr is returned when an attribute operation requires
	// an attribute that does not exist.
	ErrNoAttr = errors.New("no such attribute")
)

// Options configures an FS.  The step limits exist to provoke the
// partial-progress and transaction-roll paths; zero means unlimited.
type Options struct {
	Geometry xfsprim.Geometry

	// StepBudget is how many collaborator steps one transaction's
	// reservation covers before the engine must roll.
	StepBudget int

	// FreeStepLimit caps how many blocks one extent-free step may
	// return to free space.
	FreeStepLimit xfsprim.BlockCount

	// RefcountStepLimit caps how many blocks one refcount step
	// may adjust.
	RefcountStepLimit xfsprim.BlockCount

	// UnmapStepLimit caps how many blocks one unmap step may
	// release.
	UnmapStepLimit xfsprim.BlockCount

	// AttrSteps is how many steps an attribute operation's inner
	// state machine takes; default 3.
	AttrSteps int
}

// FS is the whole in-memory filesystem model.
type FS struct {
	opts  Options
	mount *xfsmount.Mount

	journal journal
	space   []agSpace
	files   fileStore
	attrs   attrStore

	// cursors counts btree cursors currently parked in a
	// StepState; Roll refuses to proceed while any are open.
	cursors int32

	rmaps     rmapStore
	refcounts refcountStore
}

func New(opts Options) (*FS, error) {
	mount, err := xfsmount.NewMount(opts.Geometry)
	if err != nil {
		return nil, err
	}
	if opts.AttrSteps == 0 {
		opts.AttrSteps = 3
	}
	if opts.AttrSteps < 0 {
		return nil, fmt.Errorf("xfssim: attrsteps=%d must be positive", opts.AttrSteps)
	}
	fs := &FS{
		opts:  opts,
		mount: mount,
		space: make([]agSpace, opts.Geometry.AGCount),
	}
	fs.files.forks = make(map[forkKey][]xfsprim.FileExtent)
	fs.attrs.attrs = make(map[attrKey][]byte)
	fs.refcounts.counts = make(map[xfsprim.FSBlock]int64)
	return fs, nil
}

func (fs *FS) Mount() *xfsmount.Mount { return fs.mount }

func (fs *FS) geo() xfsprim.Geometry { return fs.mount.Geometry() }

// BreakAG injects a hard error into every subsequent free-space
// operation in the given AG.
func (fs *FS) BreakAG(agno xfsprim.AGNumber, err error) {
	ag := &fs.space[agno]
	ag.mu.Lock()
	ag.broken = err
	ag.mu.Unlock()
}

func (fs *FS) openCursor(agno xfsprim.AGNumber) *treeCursor {
	atomic.AddInt32(&fs.cursors, 1)
	return &treeCursor{fs: fs, agno: agno}
}

// OpenCursors returns how many btree cursors are currently parked.
func (fs *FS) OpenCursors() int {
	return int(atomic.LoadInt32(&fs.cursors))
}

// A treeCursor stands in for an open btree cursor parked across
// consecutive finish calls within one transaction.
type treeCursor struct {
	fs     *FS
	agno   xfsprim.AGNumber
	closed bool
	mu     sync.Mutex
}

func (c *treeCursor) Close(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		panic(fmt.Errorf("xfssim: cursor for %v closed twice", c.agno))
	}
	c.closed = true
	atomic.AddInt32(&c.fs.cursors, -1)
}
