// Copyright (C) 2025-2026  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package xfsdefer

import (
	"context"

	"github.com/datawire/dlib/dlog"
)

// pending is an ordered run of same-kind items created together; the
// unit that one intent record covers.
type pending struct {
	kind Kind

	// sorted: the one-time sort has been done.  Re-created
	// intents for a rolled remainder keep the original order.
	sorted bool

	hasIntent bool
	intent    LogRef

	// completed counts items finished under the current intent,
	// for the paired done record.
	completed int

	items []Item
}

// Queue is the deferred work attached to one transaction chain:
// a FIFO of pending groups, emptied by Finish.
type Queue struct {
	groups []*pending
}

func (q *Queue) add(it Item) {
	kind := it.Kind()
	var dfp *pending
	if n := len(q.groups); n > 0 {
		last := q.groups[n-1]
		if last.kind == kind && !last.hasIntent &&
			(kind.maxItems() == 0 || len(last.items) < kind.maxItems()) {
			dfp = last
		}
	}
	if dfp == nil {
		dfp = &pending{kind: kind}
		q.groups = append(q.groups, dfp)
	}
	dfp.items = append(dfp.items, it)
}

func (q *Queue) Empty() bool { return len(q.groups) == 0 }

// PendingItems returns how many items are still queued, across all
// groups.
func (q *Queue) PendingItems() int {
	var n int
	for _, dfp := range q.groups {
		n += len(dfp.items)
	}
	return n
}

func (q *Queue) head() *pending { return q.groups[0] }

func (q *Queue) pop() {
	q.groups[0] = nil
	q.groups = q.groups[1:]
}

// createIntents makes sure every group has a live intent record
// before any of this transaction's work is done.  A group is sorted
// by its kind's region key the first time its intent is created, and
// never re-sorted after a roll.
func (q *Queue) createIntents(ctx context.Context, tp Txn) error {
	for _, dfp := range q.groups {
		if dfp.hasIntent || len(dfp.items) == 0 {
			continue
		}
		if !dfp.sorted {
			sortItems(dfp)
			dfp.sorted = true
		}
		ref, err := tp.CreateIntent(ctx, dfp.kind, len(dfp.items))
		if err != nil {
			return err
		}
		dfp.intent = ref
		dfp.hasIntent = true
		dfp.completed = 0
	}
	return nil
}

// Cancel cancels every still-pending item exactly once, releasing
// every held region reference and freeing every record, regardless of
// which group or roll it was in.  Items whose intent record was
// already created are marked aborted rather than canceled; the
// journal learns of the abandoned intents through Txn.Abort.
// Canceling an already-empty queue is a no-op.
func (q *Queue) Cancel(ctx context.Context) {
	for _, dfp := range q.groups {
		st := StatusCanceled
		if dfp.hasIntent {
			abortIntent(ctx, dfp)
			st = StatusAborted
		}
		for _, it := range dfp.items {
			terminate(it, st)
		}
		dfp.items = nil
	}
	q.groups = nil
}

// abortIntent is the per-kind hook for an intent record whose
// transaction is being abandoned before any item finished.  No kind
// currently needs work beyond the journal-side pairing that Txn.Abort
// provides.
func abortIntent(ctx context.Context, dfp *pending) {
	dlog.Tracef(ctx, "defer: aborting %v intent covering %d item(s)",
		dfp.kind, len(dfp.items))
}
