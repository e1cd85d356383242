// Copyright (C) 2025-2026  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package xfsdefer

import (
	"context"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsmount"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsprim"
)

var testGeo = xfsprim.Geometry{AGCount: 4, AGBlkLog: 16}

// mockChain is the state shared by a mockTxn and its roll successors.
type mockChain struct {
	queue   Queue
	intents []*mockIntent
	rolls   int
	aborts  int
}

type mockIntent struct {
	kind      Kind
	count     int
	done      bool
	completed int
}

// mockTxn is a Txn for engine-only tests; the journal is a slice and
// the backends are whatever the test plugs in.
type mockTxn struct {
	mount    *xfsmount.Mount
	backends Backends
	chain    *mockChain
	budget   int
	steps    int
}

var _ Txn = (*mockTxn)(nil)

func newMockTxn(t *testing.T, budget int) *mockTxn {
	t.Helper()
	mount, err := xfsmount.NewMount(testGeo)
	require.NoError(t, err)
	return &mockTxn{
		mount:  mount,
		chain:  new(mockChain),
		budget: budget,
	}
}

func (tp *mockTxn) Mount() *xfsmount.Mount { return tp.mount }
func (tp *mockTxn) Backends() Backends     { return tp.backends }
func (tp *mockTxn) Queue() *Queue          { return &tp.chain.queue }

func (tp *mockTxn) CreateIntent(_ context.Context, kind Kind, count int) (LogRef, error) {
	rec := &mockIntent{kind: kind, count: count}
	tp.chain.intents = append(tp.chain.intents, rec)
	return rec, nil
}

func (tp *mockTxn) CreateDone(_ context.Context, intent LogRef, completed int) (LogRef, error) {
	rec := intent.(*mockIntent)
	rec.done = true
	rec.completed = completed
	return rec, nil
}

func (tp *mockTxn) Roll(context.Context) (Txn, error) {
	tp.chain.rolls++
	return &mockTxn{
		mount:    tp.mount,
		backends: tp.backends,
		chain:    tp.chain,
		budget:   tp.budget,
	}, nil
}

func (tp *mockTxn) Abort(context.Context) {
	tp.chain.aborts++
}

func (tp *mockTxn) Exhausted() bool {
	return tp.budget > 0 && tp.steps >= tp.budget
}

func addTestExtentFree(t *testing.T, tp Txn, agno xfsprim.AGNumber, agbno xfsprim.AGBlock, n xfsprim.BlockCount) *ExtentFreeItem {
	t.Helper()
	xefi := NewExtentFreeItem()
	xefi.StartBlock = testGeo.AGBToFSB(agno, agbno)
	xefi.BlockCount = n
	xefi.Owner = 128
	require.NoError(t, AddExtentFree(tp, xefi))
	return xefi
}

func TestQueueGrouping(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	tp := newMockTxn(t, 0)
	q := tp.Queue()

	addTestExtentFree(t, tp, 0, 10, 1)
	addTestExtentFree(t, tp, 1, 20, 1)
	require.Len(t, q.groups, 1)
	assert.Len(t, q.groups[0].items, 2)

	ri := NewRmapItem()
	ri.Op = RmapAlloc
	ri.Owner = 128
	ri.Extent = xfsprim.FileExtent{StartBlock: testGeo.AGBToFSB(2, 5), BlockCount: 1}
	require.NoError(t, AddRmap(tp, ri))
	require.Len(t, q.groups, 2)

	// The tail group is rmap now, so a new extent-free item opens
	// a third group rather than joining the first.
	addTestExtentFree(t, tp, 0, 30, 1)
	require.Len(t, q.groups, 3)
	assert.Equal(t, KindExtentFree, q.groups[2].kind)

	// AGFL frees are a separate kind, and never share a group
	// with ordinary frees.
	agfl := NewExtentFreeItem()
	agfl.StartBlock = testGeo.AGBToFSB(0, 40)
	agfl.BlockCount = 1
	agfl.Resv = AGResvAGFL
	require.NoError(t, AddExtentFree(tp, agfl))
	require.Len(t, q.groups, 4)
	assert.Equal(t, KindAGFLFree, q.groups[3].kind)

	q.Cancel(ctx)
	assert.True(t, q.Empty())
	for agno := xfsprim.AGNumber(0); agno < testGeo.AGCount; agno++ {
		assert.Zero(t, tp.mount.AGIntents(agno))
	}
}

func TestQueueAttrSingleton(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	tp := newMockTxn(t, 0)
	q := tp.Queue()

	for i := 0; i < 3; i++ {
		_, err := AddAttr(tp, &AttrArgs{
			Ino:   128,
			Name:  []byte("user.comment"),
			Value: []byte("v"),
		}, AttrSet)
		require.NoError(t, err)
	}
	require.Len(t, q.groups, 3)
	for _, dfp := range q.groups {
		assert.Len(t, dfp.items, 1)
	}

	q.Cancel(ctx)
	assert.Zero(t, tp.mount.Inode(128).Intents())
}

func TestCreateIntentsSortsOnce(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	tp := newMockTxn(t, 0)
	q := tp.Queue()

	it3 := addTestExtentFree(t, tp, 3, 1, 1)
	it1 := addTestExtentFree(t, tp, 1, 1, 1)
	it2 := addTestExtentFree(t, tp, 2, 1, 1)

	require.NoError(t, q.createIntents(ctx, tp))
	dfp := q.head()
	require.True(t, dfp.hasIntent)
	assert.Equal(t, []Item{it1, it2, it3}, dfp.items)
	require.Len(t, tp.chain.intents, 1)
	assert.Equal(t, 3, tp.chain.intents[0].count)

	// After a roll the remainder gets a fresh intent, but is not
	// re-sorted: deliberately perturb the order and observe that
	// it sticks.
	dfp.hasIntent = false
	dfp.intent = nil
	dfp.items[0], dfp.items[2] = dfp.items[2], dfp.items[0]
	require.NoError(t, q.createIntents(ctx, tp))
	assert.Equal(t, []Item{it3, it2, it1}, dfp.items)

	q.Cancel(ctx)
}

func TestCreateIntentsSortsBmapByIno(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	tp := newMockTxn(t, 0)
	q := tp.Queue()

	var items []Item
	for _, ino := range []xfsprim.Ino{9, 3, 7} {
		bi := NewBmapItem()
		bi.Op = BmapUnmap
		bi.Ino = ino
		bi.Extent = xfsprim.FileExtent{StartBlock: testGeo.AGBToFSB(0, 100), BlockCount: 4}
		require.NoError(t, AddBmap(tp, bi))
		items = append(items, bi)
	}
	require.NoError(t, q.createIntents(ctx, tp))
	assert.Equal(t, []Item{items[1], items[2], items[0]}, q.head().items)

	q.Cancel(ctx)
}

func TestCancelStatuses(t *testing.T) {
	// Not Parallel: itemTerminalHook is package-global.
	ctx := dlog.NewTestContext(t, false)
	tp := newMockTxn(t, 0)
	q := tp.Queue()

	var got []Status
	itemTerminalHook = func(_ Item, st Status) {
		got = append(got, st)
	}
	defer func() { itemTerminalHook = nil }()

	// First group gets an intent; the group added afterwards does
	// not.
	addTestExtentFree(t, tp, 0, 10, 1)
	require.NoError(t, q.createIntents(ctx, tp))
	ri := NewRmapItem()
	ri.Op = RmapAlloc
	ri.Owner = 128
	ri.Extent = xfsprim.FileExtent{StartBlock: testGeo.AGBToFSB(1, 5), BlockCount: 1}
	require.NoError(t, AddRmap(tp, ri))

	q.Cancel(ctx)
	assert.Equal(t, []Status{StatusAborted, StatusCanceled}, got)

	// Idempotent: nothing left to visit.
	q.Cancel(ctx)
	assert.Len(t, got, 2)

	for agno := xfsprim.AGNumber(0); agno < testGeo.AGCount; agno++ {
		assert.Zero(t, tp.mount.AGIntents(agno))
	}
}

func TestAddExtentFreeValidation(t *testing.T) {
	t.Parallel()
	tp := newMockTxn(t, 0)

	type testcase struct {
		start xfsprim.FSBlock
		count xfsprim.BlockCount
		resv  AGResv
	}
	testcases := map[string]testcase{
		"zero-length":  {start: testGeo.AGBToFSB(0, 10), count: 0},
		"outside-fs":   {start: testGeo.AGBToFSB(4, 0), count: 1},
		"crosses-ag":   {start: testGeo.AGBToFSB(1, 65530), count: 100},
		"agfl-too-big": {start: testGeo.AGBToFSB(1, 10), count: 2, resv: AGResvAGFL},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			xefi := NewExtentFreeItem()
			xefi.StartBlock = tc.start
			xefi.BlockCount = tc.count
			xefi.Resv = tc.resv
			err := AddExtentFree(tp, xefi)
			assert.Error(t, err)
			xefi.Free()
		})
	}

	assert.True(t, tp.Queue().Empty())
	for agno := xfsprim.AGNumber(0); agno < testGeo.AGCount; agno++ {
		assert.Zero(t, tp.mount.AGIntents(agno))
	}
}

func TestAddExtentValidation(t *testing.T) {
	t.Parallel()
	tp := newMockTxn(t, 0)

	badExtents := map[string]xfsprim.FileExtent{
		"zero-length": {StartBlock: testGeo.AGBToFSB(0, 10), BlockCount: 0},
		"outside-fs":  {StartBlock: testGeo.AGBToFSB(7, 0), BlockCount: 1},
		"crosses-ag":  {StartBlock: testGeo.AGBToFSB(1, 65530), BlockCount: 100},
	}
	adders := map[string]func(ext xfsprim.FileExtent) error{
		"rmap": func(ext xfsprim.FileExtent) error {
			ri := NewRmapItem()
			ri.Op = RmapAlloc
			ri.Owner = 128
			ri.Extent = ext
			err := AddRmap(tp, ri)
			ri.Free()
			return err
		},
		"refcount": func(ext xfsprim.FileExtent) error {
			ci := NewRefcountItem()
			ci.Op = RefcountIncrease
			ci.StartBlock = ext.StartBlock
			ci.BlockCount = ext.BlockCount
			err := AddRefcount(tp, ci)
			ci.Free()
			return err
		},
		"bmap": func(ext xfsprim.FileExtent) error {
			bi := NewBmapItem()
			bi.Op = BmapMap
			bi.Ino = 128
			bi.Extent = ext
			err := AddBmap(tp, bi)
			bi.Free()
			return err
		},
	}
	for adderName, add := range adders {
		add := add
		t.Run(adderName, func(t *testing.T) {
			for extName, ext := range badExtents {
				assert.Error(t, add(ext), extName)
			}
		})
	}
	t.Run("exchmaps", func(t *testing.T) {
		xmi := NewExchMapsItem()
		xmi.Ino1 = 128
		xmi.Ino2 = 129
		xmi.BlockCount = 0
		assert.Error(t, AddExchMaps(tp, xmi))
		xmi.Free()
	})

	assert.True(t, tp.Queue().Empty())
	for agno := xfsprim.AGNumber(0); agno < testGeo.AGCount; agno++ {
		assert.Zero(t, tp.mount.AGIntents(agno))
	}
	assert.Zero(t, tp.mount.Inode(128).Intents())
	assert.Zero(t, tp.mount.Inode(128).DelayedBlocks())
}

func TestAddAttrValidation(t *testing.T) {
	t.Parallel()
	tp := newMockTxn(t, 0)

	pptrVal := make([]byte, ParentRecSize)
	type testcase struct {
		args AttrArgs
		op   AttrOp
	}
	testcases := map[string]testcase{
		"empty-name": {
			args: AttrArgs{Ino: 128},
			op:   AttrSet,
		},
		"pptr-not-logged": {
			args: AttrArgs{Ino: 128, Name: []byte("p"), Value: pptrVal, Filter: AttrParent | AttrRoot},
			op:   AttrSet,
		},
		"pptr-no-namespace": {
			args: AttrArgs{Ino: 128, Name: []byte("p"), Value: pptrVal, Filter: AttrParent, Logged: true},
			op:   AttrSet,
		},
		"pptr-bad-size": {
			args: AttrArgs{Ino: 128, Name: []byte("p"), Value: []byte("xy"), Filter: AttrParent | AttrRoot, Logged: true},
			op:   AttrSet,
		},
		"pptr-replace-mismatch": {
			args: AttrArgs{Ino: 128, Name: []byte("p"), Value: pptrVal, NewValue: []byte("xy"), Filter: AttrParent | AttrRoot, Logged: true},
			op:   AttrReplace,
		},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			_, err := AddAttr(tp, &tc.args, tc.op)
			assert.Error(t, err)
		})
	}

	assert.True(t, tp.Queue().Empty())
	assert.Zero(t, tp.mount.Inode(128).Intents())
}
