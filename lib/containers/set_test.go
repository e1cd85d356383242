// Copyright (C) 2025-2026  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package containers_test

import (
	"strings"
	"testing"

	"git.lukeshu.com/go/lowmemjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/xfs-progs-ng/lib/containers"
)

func TestSetJSON(t *testing.T) {
	t.Parallel()

	set := make(containers.Set[uint32])
	for _, v := range []uint32{30, 10, 20, 10} {
		set.Insert(v)
	}
	require.Len(t, set, 3)

	// Encodes as a sorted array regardless of insertion order.
	var buf strings.Builder
	require.NoError(t, lowmemjson.Encode(&buf, set))
	assert.Equal(t, `[10,20,30]`, buf.String())

	var got containers.Set[uint32]
	require.NoError(t, lowmemjson.DecodeThenEOF(strings.NewReader(buf.String()), &got))
	assert.Equal(t, set, got)

	var null containers.Set[uint32]
	require.NoError(t, lowmemjson.DecodeThenEOF(strings.NewReader(`null`), &null))
	assert.Nil(t, null)

	set.Delete(20)
	assert.Len(t, set, 2)
}
