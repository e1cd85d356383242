// Copyright (C) 2025-2026  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package xfsprim

import (
	"fmt"
)

// OwnerID identifies the owner of an extent as recorded in the
// reverse-map tree; either an inode number, or one of the negative
// special owners below.
type OwnerID int64

const (
	OwnerNull    OwnerID = -1 // no owner; freshly freed space
	OwnerUnknown OwnerID = -2 // unknown owner, for recovery only
	OwnerFS      OwnerID = -3 // static filesystem metadata
	OwnerLog     OwnerID = -4 // the journal
	OwnerAG      OwnerID = -5 // per-AG metadata, including the free list
	OwnerInoBt   OwnerID = -6 // the inode btree
	OwnerInodes  OwnerID = -7 // inode chunks
	OwnerRefc    OwnerID = -8 // the refcount btree
	OwnerCow     OwnerID = -9 // copy-on-write staging extents
)

func (o OwnerID) String() string {
	switch o {
	case OwnerNull:
		return "NULL"
	case OwnerUnknown:
		return "UNKNOWN"
	case OwnerFS:
		return "FS"
	case OwnerLog:
		return "LOG"
	case OwnerAG:
		return "AG"
	case OwnerInoBt:
		return "INOBT"
	case OwnerInodes:
		return "INODES"
	case OwnerRefc:
		return "REFC"
	case OwnerCow:
		return "COW"
	default:
		return fmt.Sprintf("ino:%d", int64(o))
	}
}

// OwnerInfo qualifies an OwnerID with which part of the owner the
// blocks belong to.
type OwnerInfo struct {
	Owner     OwnerID
	AttrFork  bool // blocks belong to the owner's attribute fork
	BmbtBlock bool // blocks are part of the owner's block-map btree
}
