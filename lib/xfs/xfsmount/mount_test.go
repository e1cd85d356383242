// Copyright (C) 2025-2026  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package xfsmount_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsmount"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsprim"
)

func newTestMount(t *testing.T) *xfsmount.Mount {
	t.Helper()
	m, err := xfsmount.NewMount(xfsprim.Geometry{AGCount: 4, AGBlkLog: 16})
	require.NoError(t, err)
	return m
}

func TestNewMountValidates(t *testing.T) {
	t.Parallel()
	_, err := xfsmount.NewMount(xfsprim.Geometry{AGCount: 0, AGBlkLog: 16})
	assert.Error(t, err)
	_, err = xfsmount.NewMount(xfsprim.Geometry{AGCount: 4, AGBlkLog: 0})
	assert.Error(t, err)
	_, err = xfsmount.NewMount(xfsprim.Geometry{AGCount: 4, AGBlkLog: 33})
	assert.Error(t, err)
}

func TestAGRefCounting(t *testing.T) {
	t.Parallel()
	m := newTestMount(t)

	ref1 := m.IntentGet(m.Geometry().AGBToFSB(2, 100))
	ref2 := m.IntentGetAG(2)
	assert.Equal(t, xfsprim.AGNumber(2), ref1.AGNumber())
	assert.Equal(t, int64(2), m.AGIntents(2))
	assert.Zero(t, m.AGIntents(0))

	ref1.Put()
	assert.Equal(t, int64(1), m.AGIntents(2))
	ref2.Put()
	assert.Zero(t, m.AGIntents(2))
}

func TestAGRefDoublePut(t *testing.T) {
	t.Parallel()
	m := newTestMount(t)
	ref := m.IntentGetAG(1)
	ref.Put()
	assert.Panics(t, func() { ref.Put() })
}

func TestIntentGetAGOutOfRange(t *testing.T) {
	t.Parallel()
	m := newTestMount(t)
	assert.Panics(t, func() { m.IntentGetAG(4) })
}

func TestInodeRefCounting(t *testing.T) {
	t.Parallel()
	m := newTestMount(t)

	ref := m.IntentGetInode(128)
	assert.Equal(t, xfsprim.Ino(128), ref.Inode().Ino())
	assert.Equal(t, int64(1), m.Inode(128).Intents())
	// The table hands out one record per inode number.
	assert.Same(t, ref.Inode(), m.Inode(128))

	ref.Put()
	assert.Zero(t, m.Inode(128).Intents())
	assert.Panics(t, func() { ref.Put() })
}

func TestRealtimeInode(t *testing.T) {
	t.Parallel()
	m := newTestMount(t)

	ip := m.RealtimeInode(131)
	assert.True(t, ip.IsRealtime(xfsprim.DataFork))
	// Only the data fork lives on the realtime device.
	assert.False(t, ip.IsRealtime(xfsprim.AttrFork))
	assert.False(t, ip.IsRealtime(xfsprim.CowFork))

	// A plain inode created first stays plain.
	m.Inode(132)
	assert.False(t, m.RealtimeInode(132).IsRealtime(xfsprim.DataFork))
}

func TestDelayedBlocks(t *testing.T) {
	t.Parallel()
	m := newTestMount(t)
	ip := m.Inode(128)

	ip.AddDelayedBlocks(50)
	ip.AddDelayedBlocks(25)
	assert.Equal(t, int64(75), ip.DelayedBlocks())
	ip.AddDelayedBlocks(-75)
	assert.Zero(t, ip.DelayedBlocks())
	assert.Panics(t, func() { ip.AddDelayedBlocks(-1) })
}

func TestConcurrentRefs(t *testing.T) {
	t.Parallel()
	m := newTestMount(t)

	const workers = 8
	const refsPerWorker = 100
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < refsPerWorker; j++ {
				agRef := m.IntentGetAG(3)
				inoRef := m.IntentGetInode(128)
				inoRef.Inode().AddDelayedBlocks(1)
				inoRef.Inode().AddDelayedBlocks(-1)
				inoRef.Put()
				agRef.Put()
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, m.AGIntents(3))
	assert.Zero(t, m.Inode(128).Intents())
	assert.Zero(t, m.Inode(128).DelayedBlocks())
}
