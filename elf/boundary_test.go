// SPDX-License-Identifier: MIT

package elf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scannerUnits(b *boundaryScanner) map[string][]boundaryEntry {
	out := make(map[string][]boundaryEntry)
	for _, u := range b.units {
		out[u.unit] = u.entries
	}
	return out
}

// File symbol first, section symbols after: the MWCC ordering.
func TestBoundaryScanFileFirst(t *testing.T) {
	b := newBoundaryScanner(nil)
	require.NoError(t, b.fileSymbol("a.c"))
	b.sectionSymbol(0x100, ".text", true)
	b.sectionSymbol(0x800, ".data", true)
	require.NoError(t, b.fileSymbol("b.c"))
	b.sectionSymbol(0x200, ".text", true)

	require.Len(t, b.units, 2)
	assert.Equal(t, "a.c", b.units[0].unit, "first-seen order")
	assert.Equal(t, "b.c", b.units[1].unit)
	units := scannerUnits(b)
	assert.Equal(t, []boundaryEntry{{0x100, ".text"}, {0x800, ".data"}}, units["a.c"])
	assert.Equal(t, []boundaryEntry{{0x200, ".text"}}, units["b.c"])
}

// Section symbols before any file symbol are buffered and attributed to
// the first unit: the GCC ordering.
func TestBoundaryScanSectionsFirst(t *testing.T) {
	b := newBoundaryScanner(nil)
	b.sectionSymbol(0x100, ".text", true)
	b.sectionSymbol(0x800, ".data", true)
	require.NoError(t, b.fileSymbol("a.c"))
	b.sectionSymbol(0x200, ".text", true)
	require.NoError(t, b.fileSymbol("b.c"))

	units := scannerUnits(b)
	assert.Equal(t, []boundaryEntry{{0x100, ".text"}, {0x800, ".data"}, {0x200, ".text"}}, units["a.c"],
		"queued entries flushed into the first unit, which then collects sections")
	assert.Empty(t, units["b.c"])
}

func TestBoundaryScanDroppedSections(t *testing.T) {
	b := newBoundaryScanner(nil)
	require.NoError(t, b.fileSymbol("a.c"))
	b.sectionSymbol(0x100, ".text", true)
	b.sectionSymbol(0x0, ".debug_info", false)

	units := scannerUnits(b)
	assert.Equal(t, []boundaryEntry{{0x100, ".text"}}, units["a.c"], "dropped sections are ignored")
}

func TestBoundaryScanDuplicateUnits(t *testing.T) {
	b := newBoundaryScanner(nil)
	require.NoError(t, b.fileSymbol("a.c"))
	require.NoError(t, b.fileSymbol("a.c"))
	require.NoError(t, b.fileSymbol("a.c"))
	require.Len(t, b.units, 3)
	assert.Equal(t, "a.c", b.units[0].unit)
	assert.Equal(t, "a.c_1", b.units[1].unit)
	assert.Equal(t, "a.c_2", b.units[2].unit)
}

func TestBoundaryScanDuplicateRenameCollision(t *testing.T) {
	b := newBoundaryScanner(nil)
	require.NoError(t, b.fileSymbol("a.c"))
	require.NoError(t, b.fileSymbol("a.c_1"))
	assert.Error(t, b.fileSymbol("a.c"), "generated name already taken")
}

// An absolute symbol ends boundary recovery: later section symbols are not
// attributed to any unit, but later units are still registered.
func TestBoundaryScanFilesEnded(t *testing.T) {
	b := newBoundaryScanner(nil)
	require.NoError(t, b.fileSymbol("a.c"))
	b.sectionSymbol(0x100, ".text", true)
	b.absoluteSymbol()
	b.sectionSymbol(0x200, ".text", true)
	b.ordinarySymbol(0x300, ".text", true)
	require.NoError(t, b.fileSymbol("late.c"))

	require.Len(t, b.units, 2)
	units := scannerUnits(b)
	assert.Equal(t, []boundaryEntry{{0x100, ".text"}}, units["a.c"], "no entries after files ended")
	assert.Empty(t, units["late.c"])
}

func TestBoundaryScanOrdinarySymbols(t *testing.T) {
	b := newBoundaryScanner(nil)

	// Before any unit is known, ordinary symbols are ignored.
	b.ordinarySymbol(0x500, ".text", true)
	require.NoError(t, b.fileSymbol("a.c"))

	// A zero-address placeholder entry is patched in place.
	b.sectionSymbol(0x0, ".text", true)
	b.ordinarySymbol(0x100, ".text", true)
	units := scannerUnits(b)
	assert.Equal(t, []boundaryEntry{{0x100, ".text"}}, units["a.c"])

	// A later symbol in the same section changes nothing.
	b.ordinarySymbol(0x140, ".text", true)
	units = scannerUnits(b)
	assert.Equal(t, []boundaryEntry{{0x100, ".text"}}, units["a.c"])

	// A symbol in a section with no entry yet synthesizes one.
	b.ordinarySymbol(0x800, ".data", true)
	units = scannerUnits(b)
	assert.Equal(t, []boundaryEntry{{0x100, ".text"}, {0x800, ".data"}}, units["a.c"])

	// Dropped sections never synthesize entries.
	b.ordinarySymbol(0x10, ".debug_line", false)
	units = scannerUnits(b)
	assert.Len(t, units["a.c"], 2)
}

func TestIsPCHUnit(t *testing.T) {
	assert.True(t, isPCHUnit("Precompiled.cpp"))
	assert.True(t, isPCHUnit("stdafx.cpp"))
	assert.True(t, isPCHUnit("Game.h"), "header suffix")
	assert.True(t, isPCHUnit("MyPrecompiled.cpp"))
	assert.True(t, isPCHUnit("GamePCH.cpp"), "case-insensitive match")
	assert.False(t, isPCHUnit("main.c"))
	assert.False(t, isPCHUnit("patch.c"))
}
