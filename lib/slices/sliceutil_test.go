// Copyright (C) 2025-2026  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package slices_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"git.lukeshu.com/xfs-progs-ng/lib/slices"
)

func TestContains(t *testing.T) {
	t.Parallel()
	assert.True(t, slices.Contains(2, []int{1, 2, 3}))
	assert.False(t, slices.Contains(4, []int{1, 2, 3}))
	assert.False(t, slices.Contains(1, nil))
}

func TestSort(t *testing.T) {
	t.Parallel()
	s := []int{3, 1, 2}
	slices.Sort(s)
	assert.Equal(t, []int{1, 2, 3}, s)
}

func TestSortStableFunc(t *testing.T) {
	t.Parallel()
	type pair struct {
		key, seq int
	}
	s := []pair{
		{2, 0}, {1, 1}, {2, 2}, {1, 3}, {2, 4},
	}
	slices.SortStableFunc(s, func(a, b pair) bool { return a.key < b.key })
	// Equal keys keep their insertion order.
	assert.Equal(t, []pair{
		{1, 1}, {1, 3}, {2, 0}, {2, 2}, {2, 4},
	}, s)
}

func TestIsSortedFunc(t *testing.T) {
	t.Parallel()
	less := func(a, b int) bool { return a < b }
	assert.True(t, slices.IsSortedFunc(nil, less))
	assert.True(t, slices.IsSortedFunc([]int{1}, less))
	assert.True(t, slices.IsSortedFunc([]int{1, 2, 2, 3}, less))
	assert.False(t, slices.IsSortedFunc([]int{1, 3, 2}, less))
}

func TestSearch(t *testing.T) {
	t.Parallel()
	s := []int{10, 20, 30, 40, 50}
	find := func(needle int) func(int) int {
		return func(straw int) int { return needle - straw }
	}

	i, ok := slices.Search(s, find(30))
	assert.True(t, ok)
	assert.Equal(t, 2, i)

	i, ok = slices.Search(s, find(10))
	assert.True(t, ok)
	assert.Equal(t, 0, i)

	i, ok = slices.Search(s, find(50))
	assert.True(t, ok)
	assert.Equal(t, 4, i)

	_, ok = slices.Search(s, find(35))
	assert.False(t, ok)
	_, ok = slices.Search(nil, find(1))
	assert.False(t, ok)
}
