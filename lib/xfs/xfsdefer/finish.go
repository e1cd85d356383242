// Copyright (C) 2025-2026  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package xfsdefer

import (
	"context"
	"fmt"

	"github.com/datawire/dlib/dlog"
)

// Finish drives tp's queue until every deferred item is applied,
// rolling to fresh transactions as the reservation runs out.  It
// returns the transaction the chain ended on; on success the caller
// commits it, and on error the caller must Abort it.  By the time an
// error comes back the queue is already fully drained of items and
// resources, and whatever earlier rolls committed stays committed.
func Finish(ctx context.Context, tp Txn) (Txn, error) {
	q := tp.Queue()
	var state StepState
	for !q.Empty() {
		if err := q.createIntents(ctx, tp); err != nil {
			q.Cancel(ctx)
			return tp, fmt.Errorf("defer: creating intents: %w", err)
		}

		dfp := q.head()
		res, err := finishGroup(ctx, tp, dfp, &state)
		if err != nil {
			state.closeCursor(err)
			q.Cancel(ctx)
			return tp, fmt.Errorf("defer: finishing %v work: %w", dfp.kind, err)
		}
		state.closeCursor(nil)

		if res == StepAgain {
			// Out of reservation with work left in the
			// group.  Pair off the intent with what got
			// done, roll, and let the next pass re-create
			// an intent for the remainder.
			if dfp.hasIntent {
				if _, err := tp.CreateDone(ctx, dfp.intent, dfp.completed); err != nil {
					q.Cancel(ctx)
					return tp, fmt.Errorf("defer: creating done record: %w", err)
				}
				dfp.hasIntent = false
				dfp.intent = nil
				dfp.completed = 0
			}
			dlog.Debugf(ctx, "defer: rolling with %d %v item(s) remaining",
				len(dfp.items), dfp.kind)
			tp2, err := tp.Roll(ctx)
			if err != nil {
				q.Cancel(ctx)
				return tp, fmt.Errorf("defer: rolling transaction: %w", err)
			}
			tp = tp2
			continue
		}

		// The group is drained.
		if dfp.hasIntent {
			if _, err := tp.CreateDone(ctx, dfp.intent, dfp.completed); err != nil {
				q.Cancel(ctx)
				return tp, fmt.Errorf("defer: creating done record: %w", err)
			}
		}
		q.pop()
	}
	return tp, nil
}

// finishGroup processes the head group's items in their sorted order.
// It returns StepDone when the group is empty, or StepAgain when the
// head item needs another transaction and the current one's
// reservation is exhausted.
func finishGroup(ctx context.Context, tp Txn, dfp *pending, state *StepState) (StepResult, error) {
	for len(dfp.items) > 0 {
		it := dfp.items[0]
		res, err := finishItem(ctx, tp, it, state)
		if err != nil {
			return 0, err
		}
		if res == StepAgain {
			dlog.Tracef(ctx, "defer: %v item needs more work", dfp.kind)
			if tp.Exhausted() {
				return StepAgain, nil
			}
			// Reservation still covers another step; keep
			// going in this transaction.
			continue
		}
		dfp.items = dfp.items[1:]
		dfp.completed++
		terminate(it, StatusCompleted)
	}
	return StepDone, nil
}
