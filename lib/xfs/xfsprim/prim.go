// Copyright (C) 2025-2026  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package xfsprim contains the primitive scalar types that the rest
// of the xfs libraries are built on.
package xfsprim

import (
	"fmt"
)

type (
	// AGNumber identifies one allocation group within the
	// filesystem.
	AGNumber uint32

	// AGBlock is a block address relative to the start of an
	// allocation group.
	AGBlock uint32

	// FSBlock is a segmented filesystem-wide block address; the
	// high bits are the AGNumber and the low bits are the
	// AGBlock.
	FSBlock uint64

	// BlockCount is a count of filesystem blocks.
	BlockCount uint64

	// FileOff is a block offset within a file fork.
	FileOff uint64

	// Ino is an inode number.
	Ino uint64
)

const (
	NullFSBlock FSBlock = ^FSBlock(0)
	NullAGBlock AGBlock = ^AGBlock(0)
	NullIno     Ino     = ^Ino(0)
)

func (a AGNumber) String() string { return fmt.Sprintf("ag%d", uint32(a)) }

// Fork selects which block-map fork of an inode an operation acts on.
type Fork int8

const (
	DataFork Fork = iota
	AttrFork
	CowFork
)

func (f Fork) String() string {
	switch f {
	case DataFork:
		return "data"
	case AttrFork:
		return "attr"
	case CowFork:
		return "cow"
	default:
		return fmt.Sprintf("Fork(%d)", int8(f))
	}
}

// A FileExtent is one contiguous mapping from a file fork to
// filesystem blocks.
type FileExtent struct {
	StartOff   FileOff
	StartBlock FSBlock
	BlockCount BlockCount
	Written    bool
}
