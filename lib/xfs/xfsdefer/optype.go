// Copyright (C) 2025-2026  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package xfsdefer

import (
	"context"
	"fmt"

	"git.lukeshu.com/xfs-progs-ng/lib/slices"
)

// sortItems puts a group's items in its kind's total order: AG number
// for AG-scoped work, inode number for inode-scoped work.  Concurrent
// chains processing disjoint regions then take region locks in one
// global order, and a chain touching many AGs holds at most one AG
// lock at a time.
func sortItems(dfp *pending) {
	switch dfp.kind {
	case KindExtentFree, KindAGFLFree:
		slices.SortStableFunc(dfp.items, func(a, b Item) bool {
			return a.(*ExtentFreeItem).agRef.AGNumber() < b.(*ExtentFreeItem).agRef.AGNumber()
		})
	case KindRmap:
		slices.SortStableFunc(dfp.items, func(a, b Item) bool {
			return a.(*RmapItem).agRef.AGNumber() < b.(*RmapItem).agRef.AGNumber()
		})
	case KindRefcount:
		slices.SortStableFunc(dfp.items, func(a, b Item) bool {
			return a.(*RefcountItem).agRef.AGNumber() < b.(*RefcountItem).agRef.AGNumber()
		})
	case KindBmap:
		slices.SortStableFunc(dfp.items, func(a, b Item) bool {
			return a.(*BmapItem).Ino < b.(*BmapItem).Ino
		})
	case KindAttr, KindExchMaps:
		// single-item intents in practice; no ordering needed
	default:
		panic(fmt.Errorf("xfsdefer: unknown kind %v", dfp.kind))
	}
}

// finishItem performs one step of real work on one item.
func finishItem(ctx context.Context, tp Txn, it Item, state *StepState) (StepResult, error) {
	switch it := it.(type) {
	case *ExtentFreeItem:
		if it.Kind() == KindAGFLFree {
			return it.finishAGFL(ctx, tp)
		}
		return it.finish(ctx, tp)
	case *RmapItem:
		return it.finish(ctx, tp, state)
	case *RefcountItem:
		return it.finish(ctx, tp, state)
	case *BmapItem:
		return it.finish(ctx, tp)
	case *AttrItem:
		return it.finish(ctx, tp)
	case *ExchMapsItem:
		return it.finish(ctx, tp)
	default:
		panic(fmt.Errorf("xfsdefer: unknown item type %T", it))
	}
}
