// Copyright (C) 2025-2026  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package xfsdefer

import (
	"context"

	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsmount"
)

// LogRef is an opaque reference to an intent or done record in the
// journal.  The engine never interprets it; a journal that does no
// logging may return nil.
type LogRef any

// Txn is the physical-transaction collaborator.  One Txn is one log
// reservation's worth of work; Roll commits the progress so far and
// returns a fresh Txn that inherits the same Queue (and with it the
// unfinished remainder of the logical operation).
type Txn interface {
	Mount() *xfsmount.Mount
	Backends() Backends

	// Queue returns the deferred work attached to this
	// transaction chain.
	Queue() *Queue

	CreateIntent(ctx context.Context, kind Kind, count int) (LogRef, error)
	CreateDone(ctx context.Context, intent LogRef, completed int) (LogRef, error)

	// Roll commits this transaction's progress and returns the
	// successor transaction.  The receiver must not be used
	// afterwards.
	Roll(ctx context.Context) (Txn, error)

	// Abort abandons the transaction; every intent record created
	// in it that has not been paired with a done record is
	// reported as aborted.
	Abort(ctx context.Context)

	// Exhausted reports whether the reservation still covers
	// another finish step.  When it returns true the engine rolls
	// before continuing.
	Exhausted() bool
}

// Backends is the set of allocator/btree collaborators that do the
// real per-kind work.  The engine treats them as black boxes that
// either finish a step, leave remaining work behind in the item, or
// fail hard.
type Backends struct {
	Space    SpaceManager
	Rmap     RmapUpdater
	Refcount RefcountUpdater
	Bmap     BmapUpdater
	Attr     AttrSetter
	Exchange MapExchanger
}

type SpaceManager interface {
	// FreeExtent returns as much of xefi's run of blocks to the
	// AG's free-space structures as the transaction allows,
	// advancing the item's start and shrinking its block count by
	// however much it got done.
	FreeExtent(ctx context.Context, tp Txn, xefi *ExtentFreeItem) error

	// FreeAGFLBlock returns xefi's single block directly to the
	// AG free list, which is accounted separately from ordinary
	// free space.
	FreeAGFLBlock(ctx context.Context, tp Txn, xefi *ExtentFreeItem) error
}

type RmapUpdater interface {
	// FinishOne applies one reverse-map update.  It may park a
	// btree cursor in state for reuse by the next item in the
	// same transaction.
	FinishOne(ctx context.Context, tp Txn, ri *RmapItem, state *StepState) error
}

type RefcountUpdater interface {
	// FinishOne applies as much of one refcount update as the
	// transaction allows, moving ri's start forward and shrinking
	// its block count by however much it got done.
	FinishOne(ctx context.Context, tp Txn, ci *RefcountItem, state *StepState) error
}

type BmapUpdater interface {
	// FinishOne maps or unmaps as much of bi's extent as the
	// transaction allows; only unmaps may be left partially done.
	FinishOne(ctx context.Context, tp Txn, bi *BmapItem) error
}

type AttrSetter interface {
	// Step advances the attribute operation's inner state machine
	// by one step, installing ai's cursor on the first call.
	Step(ctx context.Context, tp Txn, ai *AttrItem) error
}

type MapExchanger interface {
	// FinishOne exchanges one more extent between the two files,
	// shrinking xmi's remaining block count as it goes.
	FinishOne(ctx context.Context, tp Txn, xmi *ExchMapsItem) error
}

// A StepCursor is whatever per-group state a backend wants carried
// between consecutive finish calls within one transaction, typically
// an open btree cursor.
type StepCursor interface {
	// Close releases the cursor.  err is the error that ended the
	// run of finish calls, or nil.
	Close(err error)
}

// StepState carries a parked StepCursor across consecutive finish
// calls.  The engine closes it before every transaction roll and on
// every error; a cursor must never be held across a roll boundary,
// since the next step may run under a different transaction's locks.
type StepState struct {
	cursor StepCursor
}

func (s *StepState) Cursor() StepCursor     { return s.cursor }
func (s *StepState) SetCursor(c StepCursor) { s.cursor = c }

func (s *StepState) closeCursor(err error) {
	if s.cursor != nil {
		s.cursor.Close(err)
		s.cursor = nil
	}
}
