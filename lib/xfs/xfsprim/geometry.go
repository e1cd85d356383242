// Copyright (C) 2025-2026  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package xfsprim

import (
	"fmt"
)

// Geometry describes the allocation-group layout of a filesystem.
// AGBlkLog is log2 of the (power-of-two) AG size in blocks, matching
// the segmented FSBlock address encoding.
type Geometry struct {
	AGCount  AGNumber
	AGBlkLog uint8
}

func (g Geometry) Validate() error {
	if g.AGCount == 0 {
		return fmt.Errorf("geometry: agcount must be positive")
	}
	if g.AGBlkLog == 0 || g.AGBlkLog > 32 {
		return fmt.Errorf("geometry: agblklog=%d out of range (1..32)", g.AGBlkLog)
	}
	return nil
}

// AGBlocks returns the size of one allocation group in blocks.
func (g Geometry) AGBlocks() BlockCount {
	return BlockCount(1) << g.AGBlkLog
}

func (g Geometry) FSBToAGNumber(fsbno FSBlock) AGNumber {
	return AGNumber(fsbno >> g.AGBlkLog)
}

func (g Geometry) FSBToAGBlock(fsbno FSBlock) AGBlock {
	return AGBlock(fsbno & (FSBlock(1)<<g.AGBlkLog - 1))
}

func (g Geometry) AGBToFSB(agno AGNumber, agbno AGBlock) FSBlock {
	return FSBlock(agno)<<g.AGBlkLog | FSBlock(agbno)
}

// ContainsFSB reports whether fsbno names a block inside the
// filesystem.
func (g Geometry) ContainsFSB(fsbno FSBlock) bool {
	return g.FSBToAGNumber(fsbno) < g.AGCount
}
