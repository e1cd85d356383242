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
	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsprim"
)

type attrKey struct {
	ino  xfsprim.Ino
	name string
}

type attrStore struct {
	mu    sync.Mutex
	attrs map[attrKey][]byte
}

// Attr returns the stored value of an attribute.
func (fs *FS) Attr(ino xfsprim.Ino, name string) ([]byte, bool) {
	fs.attrs.mu.Lock()
	defer fs.attrs.mu.Unlock()
	val, ok := fs.attrs.attrs[attrKey{ino: ino, name: name}]
	return val, ok
}

// SetAttr seeds an attribute, bypassing the deferred-work machinery.
func (fs *FS) SetAttr(ino xfsprim.Ino, name string, value []byte) {
	fs.attrs.mu.Lock()
	defer fs.attrs.mu.Unlock()
	fs.attrs.attrs[attrKey{ino: ino, name: name}] = append([]byte(nil), value...)
}

// attrCursor models the attribute code's internal da-tree state
// machine: a fixed number of traversal steps, with the mutation
// landing on the last one.
type attrCursor struct {
	stepsLeft int
}

func (c *attrCursor) Done() bool { return c.stepsLeft <= 0 }
func (c *attrCursor) Close()     {}

type attrSetter struct{ fs *FS }

var _ xfsdefer.AttrSetter = attrSetter{}

func (as attrSetter) Step(ctx context.Context, tp xfsdefer.Txn, ai *xfsdefer.AttrItem) error {
	stp := tp.(*Txn)
	stp.consume()
	cur, ok := ai.Cursor.(*attrCursor)
	if !ok {
		cur = &attrCursor{stepsLeft: as.fs.opts.AttrSteps}
		ai.Cursor = cur
	}
	cur.stepsLeft--
	if cur.stepsLeft > 0 {
		// another da-tree traversal step to go
		dlog.Tracef(ctx, "attr: %v ino=%d %q, %d step(s) left",
			ai.Op, ai.Args.Ino, ai.Args.Name, cur.stepsLeft)
		return nil
	}

	key := attrKey{ino: ai.Args.Ino, name: string(ai.Args.Name)}
	as.fs.attrs.mu.Lock()
	defer as.fs.attrs.mu.Unlock()
	switch ai.Op {
	case xfsdefer.AttrSet:
		as.fs.attrs.attrs[key] = append([]byte(nil), ai.Args.Value...)
	case xfsdefer.AttrReplace:
		if _, ok := as.fs.attrs.attrs[key]; !ok {
			return fmt.Errorf("%w: replace of ino=%d %q", ErrNoAttr, key.ino, key.name)
		}
		as.fs.attrs.attrs[key] = append([]byte(nil), ai.Args.NewValue...)
	case xfsdefer.AttrRemove:
		if _, ok := as.fs.attrs.attrs[key]; !ok {
			return fmt.Errorf("%w: remove of ino=%d %q", ErrNoAttr, key.ino, key.name)
		}
		delete(as.fs.attrs.attrs, key)
	default:
		panic(fmt.Errorf("xfssim: unknown attr op %v", ai.Op))
	}
	dlog.Tracef(ctx, "attr: %v ino=%d %q applied", ai.Op, ai.Args.Ino, ai.Args.Name)
	return nil
}
