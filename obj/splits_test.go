// SPDX-License-Identifier: MIT

package obj

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitIndexOrder(t *testing.T) {
	var idx SplitIndex
	idx.Push(0x100, &Split{Unit: "b.c"})
	idx.Push(0x0, &Split{Unit: "a.c"})
	idx.Push(0x200, &Split{Unit: "c.c"})
	assert.Equal(t, 3, idx.Len(), "split count")
	all := idx.All()
	require.Len(t, all, 3)
	assert.Equal(t, uint32(0x0), all[0].Addr, "first split address")
	assert.Equal(t, uint32(0x100), all[1].Addr, "second split address")
	assert.Equal(t, uint32(0x200), all[2].Addr, "third split address")
}

func TestSplitIndexForAddress(t *testing.T) {
	var idx SplitIndex
	idx.Push(0x0, &Split{Unit: "a.c", End: 0x100})
	idx.Push(0x100, &Split{Unit: "b.c", End: 0x200})
	idx.Push(0x200, &Split{Unit: "c.c"})

	at, ok := idx.ForAddress(0x80)
	require.True(t, ok, "address inside first split")
	assert.Equal(t, "a.c", at.Split.Unit)
	assert.Equal(t, uint32(0x0), at.Addr)

	at, ok = idx.ForAddress(0x100)
	require.True(t, ok, "split start is inclusive")
	assert.Equal(t, "b.c", at.Split.Unit)

	at, ok = idx.ForAddress(0x1FF)
	require.True(t, ok, "split end is exclusive")
	assert.Equal(t, "b.c", at.Split.Unit)

	at, ok = idx.ForAddress(0x5000)
	require.True(t, ok, "open-ended split extends upward")
	assert.Equal(t, "c.c", at.Split.Unit)
}

func TestSplitIndexForAddressSkipsClosedRanges(t *testing.T) {
	// The nearest preceding split ends before the address; the lookup must
	// keep scanning downward to the open-ended one below it.
	var idx SplitIndex
	idx.Push(0x0, &Split{Unit: "low.c"})
	idx.Push(0x100, &Split{Unit: "mid.c", End: 0x180})

	at, ok := idx.ForAddress(0x1C0)
	require.True(t, ok)
	assert.Equal(t, "low.c", at.Split.Unit, "closed range is skipped over")

	var empty SplitIndex
	_, ok = empty.ForAddress(0x0)
	assert.False(t, ok, "empty index has no match")
}

func TestSplitIndexSharedStart(t *testing.T) {
	var idx SplitIndex
	idx.Push(0x40, &Split{Unit: "frag1.c", End: 0x40})
	idx.Push(0x40, &Split{Unit: "frag2.c", End: 0x80})
	assert.Equal(t, 2, idx.Len(), "two splits at one address")
	assert.True(t, idx.HasSplitAt(0x40))

	at, ok := idx.ForAddress(0x40)
	require.True(t, ok)
	assert.Equal(t, "frag2.c", at.Split.Unit, "zero-length fragment is not a container")

	removed := idx.Remove(0x40)
	assert.Len(t, removed, 2, "remove returns all splits at the address")
	assert.False(t, idx.HasSplitAt(0x40))
	assert.Equal(t, 0, idx.Len())
}

func TestSplitIndexForRange(t *testing.T) {
	var idx SplitIndex
	idx.Push(0x0, &Split{Unit: "a.c"})
	idx.Push(0x100, &Split{Unit: "b.c"})
	idx.Push(0x200, &Split{Unit: "c.c"})

	in := idx.ForRange(0x100, 0x200)
	require.Len(t, in, 1, "half-open range")
	assert.Equal(t, "b.c", in[0].Split.Unit)

	in = idx.ForRange(0x100, 0)
	assert.Len(t, in, 2, "zero end is unbounded")
}

func TestSplitIndexForUnit(t *testing.T) {
	var idx SplitIndex
	idx.Push(0x0, &Split{Unit: "a.c"})
	idx.Push(0x100, &Split{Unit: "b.c"})

	at, ok, err := idx.ForUnit("b.c")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(0x100), at.Addr)

	_, ok, err = idx.ForUnit("missing.c")
	require.NoError(t, err)
	assert.False(t, ok)

	idx.Push(0x200, &Split{Unit: "b.c"})
	_, _, err = idx.ForUnit("b.c")
	assert.Error(t, err, "duplicate unit reference")
}

func TestSplitAlignment(t *testing.T) {
	section := &Section{Name: ".data", Kind: SectionData, Size: 0x200}
	o := New(KindExecutable, ArchPowerPC, "", []*Symbol{
		{Name: "aligned", Section: 0, Address: 0x20, Size: 4, SizeKnown: true, Align: 32},
		{Name: "unknownSize", Section: 0, Address: 0x40, Align: 64},
		{Name: "outside", Section: 0, Address: 0x180, Size: 4, SizeKnown: true, Align: 128},
	}, []*Section{section})

	s := &Split{Unit: "a.c", End: 0x100}
	assert.Equal(t, uint32(32), s.Alignment(o, 0, section, 0),
		"max symbol alignment wins over section default")

	s = &Split{Unit: "a.c", End: 0x100, Align: 16}
	assert.Equal(t, uint32(16), s.Alignment(o, 0, section, 0), "explicit override")

	s = &Split{Unit: "b.c"}
	code := &Section{Name: ".text", Kind: SectionCode, Size: 0x100}
	assert.Equal(t, uint32(4), s.Alignment(o, 1, code, 0), "code section default")
}
