// SPDX-License-Identifier: MIT

package obj

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelocationsInsert(t *testing.T) {
	var r Relocations
	require.NoError(t, r.Insert(0x8, Reloc{Kind: RelocRel24, TargetSymbol: 1}))
	require.NoError(t, r.Insert(0x0, Reloc{Kind: RelocAbsolute, TargetSymbol: 2}))
	assert.Error(t, r.Insert(0x8, Reloc{Kind: RelocAbsolute}), "occupied offset")

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, uint32(0x0), all[0].Addr, "ascending offset order")
	assert.Equal(t, uint32(0x8), all[1].Addr)

	reloc, ok := r.At(0x8)
	require.True(t, ok)
	assert.Equal(t, RelocRel24, reloc.Kind)
	_, ok = r.At(0x4)
	assert.False(t, ok)
}
