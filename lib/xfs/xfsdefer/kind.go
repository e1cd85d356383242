// Copyright (C) 2025-2026  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package xfsdefer implements the deferred metadata-update engine:
// multi-step on-disk structural changes are split into work items
// that are queued on a transaction, and finished across however many
// transaction rolls the log reservation requires.
//
// The set of work-item kinds is closed; each kind's behavior is
// implemented by exhaustive switches in this package rather than by a
// runtime registration table.
package xfsdefer

import (
	"fmt"
)

// Kind names one of the deferred-operation types.
type Kind int8

const (
	KindExtentFree Kind = iota
	KindAGFLFree
	KindRmap
	KindRefcount
	KindBmap
	KindAttr
	KindExchMaps
)

func (k Kind) String() string {
	switch k {
	case KindExtentFree:
		return "extent_free"
	case KindAGFLFree:
		return "agfl_free"
	case KindRmap:
		return "rmap"
	case KindRefcount:
		return "refcount"
	case KindBmap:
		return "bmap"
	case KindAttr:
		return "attr"
	case KindExchMaps:
		return "exchmaps"
	default:
		return fmt.Sprintf("Kind(%d)", int8(k))
	}
}

// maxItems returns how many items of this kind one intent record may
// batch; 0 means unlimited.  Attribute updates each carry a private
// multi-step cursor that cannot be batched safely, so they go one to
// an intent.
func (k Kind) maxItems() int {
	if k == KindAttr {
		return 1
	}
	return 0
}

// StepResult is what one finish step reports about its work item.
type StepResult int8

const (
	// StepDone: the item is fully applied.
	StepDone StepResult = iota
	// StepAgain: the step made progress but the item needs another
	// finish call, possibly in a later transaction.  This is
	// normal control flow, not an error.
	StepAgain
)

func (r StepResult) String() string {
	switch r {
	case StepDone:
		return "done"
	case StepAgain:
		return "again"
	default:
		return fmt.Sprintf("StepResult(%d)", int8(r))
	}
}
