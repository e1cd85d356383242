// Copyright (C) 2025-2026  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package fmtutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"git.lukeshu.com/xfs-progs-ng/lib/fmtutil"
)

func TestBitfieldString(t *testing.T) {
	t.Parallel()
	names := []string{"SKIP_DISCARD", "CANCELLED"}

	assert.Equal(t, "none", fmtutil.BitfieldString(uint8(0), names, fmtutil.HexNone))
	assert.Equal(t, "SKIP_DISCARD", fmtutil.BitfieldString(uint8(0b01), names, fmtutil.HexNone))
	assert.Equal(t, "SKIP_DISCARD|CANCELLED", fmtutil.BitfieldString(uint8(0b11), names, fmtutil.HexNone))
	assert.Equal(t, "0x4((1<<2))", fmtutil.BitfieldString(uint8(0b100), names, fmtutil.HexLower))
	assert.Equal(t, "0x0(none)", fmtutil.BitfieldString(uint8(0), names, fmtutil.HexUpper))
}
