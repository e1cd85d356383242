// Copyright (C) 2025-2026  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package xfssim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsprim"
)

func TestFileStoreMapExt(t *testing.T) {
	t.Parallel()
	st := &fileStore{forks: make(map[forkKey][]xfsprim.FileExtent)}
	k := forkKey{ino: 128, fork: xfsprim.DataFork}

	// A zero-length extent is dropped, not stored.
	require.NoError(t, st.mapExt(k, xfsprim.FileExtent{StartOff: 10, StartBlock: 0x100, BlockCount: 0}))
	assert.Empty(t, st.forks[k])
	_, ok := st.lookup(k, 10)
	assert.False(t, ok)

	require.NoError(t, st.mapExt(k, xfsprim.FileExtent{StartOff: 10, StartBlock: 0x100, BlockCount: 8}))
	require.NoError(t, st.mapExt(k, xfsprim.FileExtent{StartOff: 0, StartBlock: 0x200, BlockCount: 4}))
	require.Len(t, st.forks[k], 2)
	assert.Equal(t, xfsprim.FileOff(0), st.forks[k][0].StartOff)

	// Mid-extent lookup returns the tail starting at the asked
	// offset.
	got, ok := st.lookup(k, 13)
	require.True(t, ok)
	assert.Equal(t, xfsprim.FSBlock(0x103), got.StartBlock)
	assert.Equal(t, xfsprim.BlockCount(5), got.BlockCount)

	// Overlaps are corruption, from either side.
	assert.ErrorIs(t, st.mapExt(k, xfsprim.FileExtent{StartOff: 12, StartBlock: 0x300, BlockCount: 2}), ErrCorrupt)
	assert.ErrorIs(t, st.mapExt(k, xfsprim.FileExtent{StartOff: 8, StartBlock: 0x300, BlockCount: 4}), ErrCorrupt)
}

func TestFileStoreUnmapSplits(t *testing.T) {
	t.Parallel()
	st := &fileStore{forks: make(map[forkKey][]xfsprim.FileExtent)}
	k := forkKey{ino: 128, fork: xfsprim.DataFork}
	require.NoError(t, st.mapExt(k, xfsprim.FileExtent{StartOff: 0, StartBlock: 0x100, BlockCount: 16, Written: true}))

	require.NoError(t, st.unmap(k, 4, 8))
	require.Len(t, st.forks[k], 2)
	assert.Equal(t, xfsprim.BlockCount(4), st.forks[k][0].BlockCount)
	assert.Equal(t, xfsprim.FileOff(12), st.forks[k][1].StartOff)
	assert.Equal(t, xfsprim.FSBlock(0x10c), st.forks[k][1].StartBlock)

	// The hole left behind cannot be unmapped again.
	assert.ErrorIs(t, st.unmap(k, 4, 8), ErrCorrupt)
}
