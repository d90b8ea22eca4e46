// SPDX-License-Identifier: MIT

// Package obj holds the in-memory object model recovered from a linked
// PowerPC ELF image: sections, symbols, relocations, link-order units and
// the per-section split indexes marking compilation unit boundaries.
package obj

import (
	"github.com/CelestialAmber/decomp-toolkit/comment"
)

type Kind int

const (
	KindExecutable Kind = iota
	KindRelocatable
)

func (k Kind) String() string {
	switch k {
	case KindExecutable:
		return "executable"
	case KindRelocatable:
		return "relocatable"
	default:
		return "unknown"
	}
}

type Architecture int

const (
	ArchPowerPC Architecture = iota
)

// Unit is one compilation unit in link order.
type Unit struct {
	Name          string
	Autogenerated bool
	// CommentVersion is the vendor metadata version this unit was built
	// with, when known.
	CommentVersion *uint8
}

// Object is the full model of one ELF image. It is built wholesale by the
// reader, optionally edited by split tooling, and consumed read-only by the
// writer.
type Object struct {
	Kind         Kind
	Architecture Architecture
	Name         string
	// Entry is the entry address; 0 means none.
	Entry     uint64
	Sections  []*Section
	Symbols   []*Symbol
	LinkOrder []Unit

	// Vendor metadata header, carried through for round-tripping.
	Comment *comment.Header

	// Well-known linker-generated addresses, when present.
	StackAddress *uint32
	StackEnd     *uint32
	DbStackAddr  *uint32
	ArenaLo      *uint32
	ArenaHi      *uint32
	SdaBase      *uint32
	Sda2Base     *uint32
}

func New(kind Kind, arch Architecture, name string, symbols []*Symbol, sections []*Section) *Object {
	return &Object{
		Kind:         kind,
		Architecture: arch,
		Name:         name,
		Symbols:      symbols,
		Sections:     sections,
	}
}

// SectionContaining returns the index and section whose address range
// contains addr, or -1 and nil.
func (o *Object) SectionContaining(addr uint32) (int, *Section) {
	for i, section := range o.Sections {
		if section.Contains(addr) {
			return i, section
		}
	}
	return -1, nil
}

// SymbolsForSectionRange returns the symbols belonging to the given section
// with start <= address < end, in table order. end == 0 means unbounded.
func (o *Object) SymbolsForSectionRange(section int, start, end uint32) []*Symbol {
	var out []*Symbol
	for _, sym := range o.Symbols {
		if sym.Section != section {
			continue
		}
		if sym.Address < uint64(start) {
			continue
		}
		if end != 0 && sym.Address >= uint64(end) {
			continue
		}
		out = append(out, sym)
	}
	return out
}
