// SPDX-License-Identifier: MIT

package obj

import (
	"sort"

	"github.com/pkg/errors"
)

type RelocKind int

const (
	RelocAbsolute RelocKind = iota
	RelocAddr16Hi
	RelocAddr16Ha
	RelocAddr16Lo
	RelocRel24
	RelocRel14
	RelocEmbSda21
)

func (k RelocKind) String() string {
	switch k {
	case RelocAbsolute:
		return "Absolute"
	case RelocAddr16Hi:
		return "Addr16Hi"
	case RelocAddr16Ha:
		return "Addr16Ha"
	case RelocAddr16Lo:
		return "Addr16Lo"
	case RelocRel24:
		return "Rel24"
	case RelocRel14:
		return "Rel14"
	case RelocEmbSda21:
		return "EmbSda21"
	default:
		return "unknown"
	}
}

type Reloc struct {
	Kind RelocKind
	// TargetSymbol is an index into Object.Symbols.
	TargetSymbol int
	Addend       int64
	// Module references a symbol in another module; unused here.
	Module *uint32
}

// RelocAt pairs a relocation with its in-section byte offset.
type RelocAt struct {
	Addr  uint32
	Reloc Reloc
}

// Relocations is an ordered map of in-section offset to relocation.
// Offsets are unique.
type Relocations struct {
	entries []RelocAt
}

func (r *Relocations) Len() int { return len(r.entries) }

func (r *Relocations) search(addr uint32) int {
	return sort.Search(len(r.entries), func(i int) bool { return r.entries[i].Addr >= addr })
}

// Insert adds a relocation at the given offset. Inserting at an occupied
// offset is an error.
func (r *Relocations) Insert(addr uint32, reloc Reloc) error {
	i := r.search(addr)
	if i < len(r.entries) && r.entries[i].Addr == addr {
		return errors.Errorf("duplicate relocation at offset %#x", addr)
	}
	r.entries = append(r.entries, RelocAt{})
	copy(r.entries[i+1:], r.entries[i:])
	r.entries[i] = RelocAt{Addr: addr, Reloc: reloc}
	return nil
}

func (r *Relocations) At(addr uint32) (Reloc, bool) {
	i := r.search(addr)
	if i < len(r.entries) && r.entries[i].Addr == addr {
		return r.entries[i].Reloc, true
	}
	return Reloc{}, false
}

// All returns the relocations in ascending offset order.
func (r *Relocations) All() []RelocAt {
	out := make([]RelocAt, len(r.entries))
	copy(out, r.entries)
	return out
}
