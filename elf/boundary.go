// SPDX-License-Identifier: MIT

package elf

import (
	"fmt"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

// Unit-boundary recovery walks the symbol table left to right. Toolchains
// disagree on ordering: some emit the FILE symbol first and its SECTION
// symbols after, others the reverse, so the scan carries one of three
// states over the stream of symbol events.

type boundaryEntry struct {
	addr    uint64
	section string
}

type boundaryState interface{ boundaryState() }

// lookForFile buffers section symbols seen before any file symbol.
type lookForFile struct {
	queue []boundaryEntry
}

// lookForSections accumulates boundary entries for the named unit.
type lookForSections struct {
	unit string
}

// filesEnded disables boundary recovery for the rest of the table.
type filesEnded struct{}

func (*lookForFile) boundaryState()     {}
func (*lookForSections) boundaryState() {}
func (*filesEnded) boundaryState()      {}

type unitBoundaries struct {
	unit    string
	entries []boundaryEntry
}

type boundaryScanner struct {
	logger  log.Logger
	state   boundaryState
	units   []*unitBoundaries
	index   map[string]*unitBoundaries
	renames map[string]int
}

func newBoundaryScanner(logger log.Logger) *boundaryScanner {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &boundaryScanner{
		logger:  logger,
		state:   &lookForFile{},
		index:   make(map[string]*unitBoundaries),
		renames: make(map[string]int),
	}
}

// isPCHUnit reports whether a FILE symbol names a precompiled-header
// pseudo-unit, which never forms a unit of its own.
func isPCHUnit(name string) bool {
	if name == "Precompiled.cpp" || name == "stdafx.cpp" {
		return true
	}
	if strings.HasSuffix(name, ".h") {
		return true
	}
	lower := strings.ToLower(name)
	return strings.Contains(lower, "precompiled") || strings.Contains(lower, "pch")
}

// fileSymbol registers a new unit and transitions the scan state. A name
// collision with an existing unit renames to <name>_<n>; a collision of the
// generated name is a hard error.
func (b *boundaryScanner) fileSymbol(name string) error {
	if _, ok := b.index[name]; ok {
		b.renames[name]++
		newName := fmt.Sprintf("%s_%d", name, b.renames[name])
		if _, ok := b.index[newName]; ok {
			return errors.Errorf("duplicate unit name %q", newName)
		}
		level.Warn(b.logger).Log("msg", "duplicate unit name, renaming", "unit", name, "renamed", newName)
		name = newName
	}
	unit := &unitBoundaries{unit: name}
	b.units = append(b.units, unit)
	b.index[name] = unit

	switch state := b.state.(type) {
	case *lookForFile:
		unit.entries = append(unit.entries, state.queue...)
		b.state = &lookForSections{unit: name}
	case *lookForSections:
		b.state = &lookForSections{unit: name}
	case *filesEnded:
		level.Warn(b.logger).Log("msg", "file symbol after files ended", "unit", name)
	}
	return nil
}

// sectionSymbol records a (address, section) boundary entry for the current
// unit, or buffers it while no unit is known yet.
func (b *boundaryScanner) sectionSymbol(addr uint64, section string, kept bool) {
	switch state := b.state.(type) {
	case *lookForFile:
		state.queue = append(state.queue, boundaryEntry{addr: addr, section: section})
	case *lookForSections:
		if kept {
			unit := b.index[state.unit]
			unit.entries = append(unit.entries, boundaryEntry{addr: addr, section: section})
		}
	case *filesEnded:
		level.Warn(b.logger).Log("msg", "section symbol after files ended", "section", section, "address", fmt.Sprintf("%#010x", addr))
	}
}

// absoluteSymbol permanently ends boundary recovery; linker-generated
// absolute symbols mark the end of unit information.
func (b *boundaryScanner) absoluteSymbol() {
	b.state = &filesEnded{}
}

// ordinarySymbol patches a placeholder (address 0) boundary entry for the
// symbol's section, or synthesizes one if the section has no entry yet in
// the current unit.
func (b *boundaryScanner) ordinarySymbol(addr uint64, section string, kept bool) {
	state, ok := b.state.(*lookForSections)
	if !ok || !kept {
		return
	}
	unit := b.index[state.unit]
	for i := range unit.entries {
		if unit.entries[i].addr == 0 && unit.entries[i].section == section {
			unit.entries[i].addr = addr
			return
		}
	}
	for _, e := range unit.entries {
		if e.section == section {
			return
		}
	}
	unit.entries = append(unit.entries, boundaryEntry{addr: addr, section: section})
}
