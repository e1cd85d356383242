// Copyright (C) 2025-2026  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package xfssim

import (
	"context"
	"fmt"
	"sync"

	"github.com/datawire/dlib/dlog"

	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsdefer"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsmount"
)

// IntentState is the journal-side lifecycle of an intent record: it
// is live from creation until it is paired with a done record or
// reported aborted.  A live intent after a chain ends is a dangling
// intent, which the real journal would replay at recovery.
type IntentState int8

const (
	IntentLive IntentState = iota
	IntentPaired
	IntentAborted
)

// An IntentRecord is the journal's record of work that is about to be
// performed.  The engine treats it as an opaque LogRef.
type IntentRecord struct {
	Kind  xfsdefer.Kind
	Count int
	state IntentState
}

// A DoneRecord pairs an intent with how much of it completed.
type DoneRecord struct {
	Intent    *IntentRecord
	Completed int
}

type journal struct {
	mu      sync.Mutex
	intents []*IntentRecord
	txns    int
	rolls   int
}

// IntentStats returns how many intent records are live, paired, and
// aborted.
func (fs *FS) IntentStats() (live, paired, aborted int) {
	fs.journal.mu.Lock()
	defer fs.journal.mu.Unlock()
	for _, rec := range fs.journal.intents {
		switch rec.state {
		case IntentLive:
			live++
		case IntentPaired:
			paired++
		case IntentAborted:
			aborted++
		}
	}
	return live, paired, aborted
}

// Rolls returns how many transaction rolls have happened.
func (fs *FS) Rolls() int {
	fs.journal.mu.Lock()
	defer fs.journal.mu.Unlock()
	return fs.journal.rolls
}

// Transactions returns how many transactions have been opened,
// counting each roll's successor.
func (fs *FS) Transactions() int {
	fs.journal.mu.Lock()
	defer fs.journal.mu.Unlock()
	return fs.journal.txns
}

// chain is the state shared by all transactions of one logical
// operation.
type chain struct {
	queue   xfsdefer.Queue
	intents []*IntentRecord
}

// Txn is one physical transaction of a chain.
type Txn struct {
	fs    *FS
	chain *chain
	steps int
	dead  bool
}

var _ xfsdefer.Txn = (*Txn)(nil)

// Begin opens a new transaction chain.
func (fs *FS) Begin(ctx context.Context) *Txn {
	fs.journal.mu.Lock()
	fs.journal.txns++
	fs.journal.mu.Unlock()
	return &Txn{fs: fs, chain: new(chain)}
}

func (tp *Txn) Mount() *xfsmount.Mount { return tp.fs.mount }

func (tp *Txn) Backends() xfsdefer.Backends {
	return xfsdefer.Backends{
		Space:    spaceManager{fs: tp.fs},
		Rmap:     rmapUpdater{fs: tp.fs},
		Refcount: refcountUpdater{fs: tp.fs},
		Bmap:     bmapUpdater{fs: tp.fs},
		Attr:     attrSetter{fs: tp.fs},
		Exchange: mapExchanger{fs: tp.fs},
	}
}

func (tp *Txn) Queue() *xfsdefer.Queue { return &tp.chain.queue }

func (tp *Txn) CreateIntent(ctx context.Context, kind xfsdefer.Kind, count int) (xfsdefer.LogRef, error) {
	tp.checkAlive()
	rec := &IntentRecord{Kind: kind, Count: count}
	tp.fs.journal.mu.Lock()
	tp.fs.journal.intents = append(tp.fs.journal.intents, rec)
	tp.fs.journal.mu.Unlock()
	tp.chain.intents = append(tp.chain.intents, rec)
	dlog.Tracef(ctx, "journal: intent %v x%d", kind, count)
	return rec, nil
}

func (tp *Txn) CreateDone(ctx context.Context, intent xfsdefer.LogRef, completed int) (xfsdefer.LogRef, error) {
	tp.checkAlive()
	rec, ok := intent.(*IntentRecord)
	if !ok {
		return nil, fmt.Errorf("journal: done record for non-intent %T", intent)
	}
	tp.fs.journal.mu.Lock()
	defer tp.fs.journal.mu.Unlock()
	if rec.state != IntentLive {
		return nil, fmt.Errorf("journal: done record for %v intent in state %d", rec.Kind, rec.state)
	}
	rec.state = IntentPaired
	dlog.Tracef(ctx, "journal: done %v, %d of %d completed", rec.Kind, completed, rec.Count)
	return &DoneRecord{Intent: rec, Completed: completed}, nil
}

// Roll commits this transaction's progress and opens the successor.
// Rolling with a btree cursor still open is refused: whatever locks
// the cursor pinned would be held across the commit.
func (tp *Txn) Roll(ctx context.Context) (xfsdefer.Txn, error) {
	tp.checkAlive()
	if n := tp.fs.OpenCursors(); n != 0 {
		return nil, fmt.Errorf("journal: rolling with %d btree cursor(s) open", n)
	}
	tp.fs.journal.mu.Lock()
	tp.fs.journal.rolls++
	tp.fs.journal.txns++
	tp.fs.journal.mu.Unlock()
	tp.dead = true
	return &Txn{fs: tp.fs, chain: tp.chain}, nil
}

// Abort abandons the transaction; every live intent record of the
// chain is reported aborted, so that nothing is left dangling.
func (tp *Txn) Abort(ctx context.Context) {
	tp.fs.journal.mu.Lock()
	defer tp.fs.journal.mu.Unlock()
	tp.dead = true
	for _, rec := range tp.chain.intents {
		if rec.state == IntentLive {
			rec.state = IntentAborted
			dlog.Tracef(ctx, "journal: aborted %v intent", rec.Kind)
		}
	}
}

// Commit finishes the chain.  Committing with deferred work still
// queued or with dangling intents is a bug in the caller.
func (tp *Txn) Commit(ctx context.Context) error {
	tp.checkAlive()
	tp.dead = true
	if !tp.chain.queue.Empty() {
		return fmt.Errorf("journal: committing with %d deferred item(s) still queued",
			tp.chain.queue.PendingItems())
	}
	for _, rec := range tp.chain.intents {
		if rec.state == IntentLive {
			return fmt.Errorf("journal: committing with a dangling %v intent", rec.Kind)
		}
	}
	return nil
}

func (tp *Txn) Exhausted() bool {
	return tp.fs.opts.StepBudget > 0 && tp.steps >= tp.fs.opts.StepBudget
}

// consume charges one collaborator step against the reservation.
func (tp *Txn) consume() {
	tp.steps++
}

func (tp *Txn) checkAlive() {
	if tp.dead {
		panic(fmt.Errorf("xfssim: use of transaction after roll/abort/commit"))
	}
}
