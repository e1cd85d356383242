// Copyright (C) 2025-2026  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package xfsprim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsprim"
)

func TestGeometryValidate(t *testing.T) {
	t.Parallel()
	assert.NoError(t, xfsprim.Geometry{AGCount: 1, AGBlkLog: 1}.Validate())
	assert.NoError(t, xfsprim.Geometry{AGCount: 4, AGBlkLog: 32}.Validate())
	assert.Error(t, xfsprim.Geometry{AGCount: 0, AGBlkLog: 16}.Validate())
	assert.Error(t, xfsprim.Geometry{AGCount: 4, AGBlkLog: 0}.Validate())
	assert.Error(t, xfsprim.Geometry{AGCount: 4, AGBlkLog: 33}.Validate())
}

func TestGeometryAddressing(t *testing.T) {
	t.Parallel()
	geo := xfsprim.Geometry{AGCount: 4, AGBlkLog: 16}

	assert.Equal(t, xfsprim.BlockCount(65536), geo.AGBlocks())

	// Round-tripping through the segmented encoding.
	fsbno := geo.AGBToFSB(2, 100)
	assert.Equal(t, xfsprim.FSBlock(2<<16|100), fsbno)
	assert.Equal(t, xfsprim.AGNumber(2), geo.FSBToAGNumber(fsbno))
	assert.Equal(t, xfsprim.AGBlock(100), geo.FSBToAGBlock(fsbno))

	// AG boundaries.
	last := geo.AGBToFSB(3, 65535)
	assert.Equal(t, xfsprim.AGNumber(3), geo.FSBToAGNumber(last))
	assert.Equal(t, xfsprim.AGBlock(65535), geo.FSBToAGBlock(last))
}

func TestGeometryContainsFSB(t *testing.T) {
	t.Parallel()
	geo := xfsprim.Geometry{AGCount: 4, AGBlkLog: 16}

	assert.True(t, geo.ContainsFSB(0))
	assert.True(t, geo.ContainsFSB(geo.AGBToFSB(3, 65535)))
	// Anything in a fifth AG is outside the filesystem.
	assert.False(t, geo.ContainsFSB(geo.AGBToFSB(4, 0)))
	assert.False(t, geo.ContainsFSB(xfsprim.NullFSBlock))
}

func TestForkString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "data", xfsprim.DataFork.String())
	assert.Equal(t, "attr", xfsprim.AttrFork.String())
	assert.Equal(t, "cow", xfsprim.CowFork.String())
	assert.Equal(t, "ag2", xfsprim.AGNumber(2).String())
}
