// SPDX-License-Identifier: MIT

package elf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CelestialAmber/decomp-toolkit/comment"
	"github.com/CelestialAmber/decomp-toolkit/obj"
)

// canonicalRelocatable builds a relocatable object the writer itself would
// produce: all sections at address zero, relocated words pre-masked, vendor
// metadata present.
func canonicalRelocatable(t *testing.T) *obj.Object {
	t.Helper()
	textData := []byte{
		0x00, 0x00, 0x00, 0x00,
		0x48, 0x00, 0x00, 0x01,
	}
	text := &obj.Section{Name: ".text", Kind: obj.SectionCode, Size: 8, Data: textData, Align: 4}
	data := &obj.Section{Name: ".data", Kind: obj.SectionData, Size: 4, Data: []byte{0, 0, 0, 0x2A}, Align: 8}
	bss := &obj.Section{Name: ".bss", Kind: obj.SectionBss, Size: 16, Align: 8}

	symbols := []*obj.Symbol{
		{Name: "fn", Kind: obj.SymbolFunction, Section: 0, Size: 8, SizeKnown: true, Flags: obj.SymbolLocal, Align: 4},
		{Name: "var", Kind: obj.SymbolObject, Section: 1, Size: 4, SizeKnown: true, Flags: obj.SymbolGlobal, Align: 8},
	}
	require.NoError(t, text.Relocations.Insert(0, obj.Reloc{Kind: obj.RelocAbsolute, TargetSymbol: 1}))
	require.NoError(t, text.Relocations.Insert(4, obj.Reloc{Kind: obj.RelocRel24, TargetSymbol: 0, Addend: 4}))

	o := obj.New(obj.KindRelocatable, obj.ArchPowerPC, "main.c", symbols, []*obj.Section{text, data, bss})
	o.Comment = &comment.Header{
		Version:         14,
		CompilerVersion: [4]uint8{2, 4, 2, 1},
		Float:           comment.FloatHard,
		Processor:       0x16,
	}
	return o
}

func TestRoundTripIdempotent(t *testing.T) {
	o := canonicalRelocatable(t)

	first, err := NewWriter(nil).Write(o)
	require.NoError(t, err)

	readBack, err := NewReader(nil).Process(first)
	require.NoError(t, err)
	assert.Equal(t, "main.c", readBack.Name)
	require.NotNil(t, readBack.Comment)
	assert.Equal(t, o.Comment, readBack.Comment)

	second, err := NewWriter(nil).Write(readBack)
	require.NoError(t, err)
	assert.Equal(t, first, second, "write(read(bytes)) reproduces the image")
}

func TestRoundTripPreservesModel(t *testing.T) {
	o := canonicalRelocatable(t)
	image, err := NewWriter(nil).Write(o)
	require.NoError(t, err)
	back, err := NewReader(nil).Process(image)
	require.NoError(t, err)

	require.Len(t, back.Sections, 3)
	assert.Equal(t, obj.SectionCode, back.Sections[0].Kind)
	assert.Equal(t, obj.SectionBss, back.Sections[2].Kind)
	assert.Nil(t, back.Sections[2].Data, "no file bytes for bss")
	assert.Equal(t, uint64(16), back.Sections[2].Size)

	// Section symbols come back as model symbols; the originals follow.
	names := make([]string, 0, len(back.Symbols))
	for _, sym := range back.Symbols {
		names = append(names, sym.Name)
	}
	assert.Equal(t, []string{".text", ".data", ".bss", "fn", "var"}, names)

	fn := back.Symbols[3]
	assert.True(t, fn.Flags.IsLocal())
	assert.Equal(t, uint32(4), fn.Align, "alignment hint from vendor metadata")
	v := back.Symbols[4]
	assert.True(t, v.Flags.IsGlobal())
	assert.Equal(t, uint32(8), v.Align)

	require.Equal(t, 2, back.Sections[0].Relocations.Len())
	reloc, ok := back.Sections[0].Relocations.At(4)
	require.True(t, ok)
	assert.Equal(t, obj.RelocRel24, reloc.Kind)
	assert.Equal(t, int64(4), reloc.Addend)
	assert.Equal(t, 3, reloc.TargetSymbol, "remapped to the model index of fn")
}
