// Copyright (C) 2025-2026  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package xfsmount

import (
	"fmt"
	"sync/atomic"

	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsprim"
)

// Inode is the in-memory inode record.  Only the bookkeeping that the
// deferred-work layer needs lives here; the block map itself belongs
// to the block-map collaborator.
type Inode struct {
	ino      xfsprim.Ino
	realtime bool

	intents     int64
	delayedBlks int64
}

// Inode returns the in-memory inode for ino, creating it on first
// use.
func (m *Mount) Inode(ino xfsprim.Ino) *Inode {
	ip, ok := m.inodes.Load(ino)
	if !ok {
		ip, _ = m.inodes.LoadOrStore(ino, &Inode{ino: ino})
	}
	return ip
}

// RealtimeInode is like Inode, but the returned inode's data fork
// lives on the realtime device, outside any allocation group.
func (m *Mount) RealtimeInode(ino xfsprim.Ino) *Inode {
	ip, _ := m.inodes.LoadOrStore(ino, &Inode{ino: ino, realtime: true})
	return ip
}

func (ip *Inode) Ino() xfsprim.Ino { return ip.ino }

// IsRealtime reports whether the inode's data fork is allocated from
// the realtime device rather than from an allocation group.
func (ip *Inode) IsRealtime(fork xfsprim.Fork) bool {
	return ip.realtime && fork == xfsprim.DataFork
}

// An InodeRef pins an inode for the life of a work item, in the same
// way that an AGRef pins an allocation group.
type InodeRef struct {
	ip  *Inode
	put int32
}

func (m *Mount) IntentGetInode(ino xfsprim.Ino) *InodeRef {
	ip := m.Inode(ino)
	atomic.AddInt64(&ip.intents, 1)
	return &InodeRef{ip: ip}
}

func (r *InodeRef) Inode() *Inode { return r.ip }

func (r *InodeRef) Put() {
	if !atomic.CompareAndSwapInt32(&r.put, 0, 1) {
		panic(fmt.Errorf("xfsmount.InodeRef.Put: ino=%d released twice", r.ip.ino))
	}
	if atomic.AddInt64(&r.ip.intents, -1) < 0 {
		panic(fmt.Errorf("xfsmount: ino=%d intent count went negative", r.ip.ino))
	}
}

func (ip *Inode) Intents() int64 {
	return atomic.LoadInt64(&ip.intents)
}

// AddDelayedBlocks adjusts the inode's delayed-block counter, which
// pre-records in-flight block-map work so that an observer of the
// inode's block count sees the eventual total mid-operation.
func (ip *Inode) AddDelayedBlocks(n int64) {
	if atomic.AddInt64(&ip.delayedBlks, n) < 0 {
		panic(fmt.Errorf("xfsmount: ino=%d delayed blocks went negative", ip.ino))
	}
}

func (ip *Inode) DelayedBlocks() int64 {
	return atomic.LoadInt64(&ip.delayedBlks)
}
