// Copyright (C) 2025-2026  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package xfsmount tracks the in-memory state that is shared between
// concurrent transaction chains: the per-allocation-group intent
// reference counts, and the inode table.
//
// The reference counts exist only to pin liveness of per-region state
// while deferred work items that touch the region are in flight; they
// grant no exclusion.  Exclusion is the allocator's job.
package xfsmount

import (
	"fmt"
	"sync/atomic"

	"git.lukeshu.com/xfs-progs-ng/lib/containers"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsprim"
)

type agSlot struct {
	intents int64
}

// Mount is the per-filesystem state shared by all transaction chains.
type Mount struct {
	geo    xfsprim.Geometry
	ags    []agSlot
	inodes containers.SyncMap[xfsprim.Ino, *Inode]
}

func NewMount(geo xfsprim.Geometry) (*Mount, error) {
	if err := geo.Validate(); err != nil {
		return nil, err
	}
	return &Mount{
		geo: geo,
		ags: make([]agSlot, geo.AGCount),
	}, nil
}

func (m *Mount) Geometry() xfsprim.Geometry { return m.geo }

// An AGRef pins one allocation group's state for the life of a work
// item.  It must be released exactly once.
type AGRef struct {
	m    *Mount
	agno xfsprim.AGNumber
	put  int32
}

// IntentGet pins the allocation group containing fsbno.  Pinning an
// AG always succeeds; fsbno must name a block inside the filesystem.
func (m *Mount) IntentGet(fsbno xfsprim.FSBlock) *AGRef {
	return m.IntentGetAG(m.geo.FSBToAGNumber(fsbno))
}

func (m *Mount) IntentGetAG(agno xfsprim.AGNumber) *AGRef {
	if agno >= m.geo.AGCount {
		panic(fmt.Errorf("xfsmount.Mount.IntentGetAG: agno=%v >= agcount=%v",
			agno, m.geo.AGCount))
	}
	atomic.AddInt64(&m.ags[agno].intents, 1)
	return &AGRef{m: m, agno: agno}
}

func (r *AGRef) AGNumber() xfsprim.AGNumber { return r.agno }

// Put releases the pin.  Put panics if called twice; a leaked or
// double-released region reference is a bug in the caller, not a
// runtime condition to tolerate.
func (r *AGRef) Put() {
	if !atomic.CompareAndSwapInt32(&r.put, 0, 1) {
		panic(fmt.Errorf("xfsmount.AGRef.Put: %v released twice", r.agno))
	}
	if atomic.AddInt64(&r.m.ags[r.agno].intents, -1) < 0 {
		panic(fmt.Errorf("xfsmount: %v intent count went negative", r.agno))
	}
}

// AGIntents returns the current intent count on an AG; used by
// callers that must wait for in-flight work to drain, and by tests.
func (m *Mount) AGIntents(agno xfsprim.AGNumber) int64 {
	return atomic.LoadInt64(&m.ags[agno].intents)
}
