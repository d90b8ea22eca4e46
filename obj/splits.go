// SPDX-License-Identifier: MIT

package obj

import (
	"sort"

	"github.com/pkg/errors"
)

// Split marks where one compilation unit's contribution to a section begins.
type Split struct {
	// Unit is the owning unit name.
	Unit string
	// End is the exclusive end address; 0 means open, extending to the next
	// split or the section end.
	End uint32
	// Align overrides the computed alignment when non-zero.
	Align uint32
	// Common marks part of common BSS.
	Common bool
	// Autogenerated splits are replaceable by the user.
	Autogenerated bool
	// Skip when emitting the split object.
	Skip bool
	// Rename overrides the output section name (e.g. ".ctors$10").
	Rename string
}

func (s *Split) contains(start, addr uint32) bool {
	return addr >= start && (s.End == 0 || addr < s.End)
}

// Alignment resolves the split's effective alignment: the explicit override
// if set, else the maximum of the section default and the alignment hint of
// every fully-known, non-zero-size symbol within the split's range.
func (s *Split) Alignment(o *Object, sectionIndex int, section *Section, splitAddr uint32) uint32 {
	if s.Align != 0 {
		return s.Align
	}
	align := DefaultSectionAlign(section.Kind)
	for _, sym := range o.SymbolsForSectionRange(sectionIndex, splitAddr, s.End) {
		if sym.SizeKnown && sym.Size > 0 && sym.Align > align {
			align = sym.Align
		}
	}
	return align
}

// SplitAt pairs a split with its start address.
type SplitAt struct {
	Addr  uint32
	Split *Split
}

// SplitIndex is an ordered map from section-relative start address to the
// splits beginning there. Multiple splits may share a start address
// (zero-length fragments); no overlap validation is performed here.
type SplitIndex struct {
	entries []splitEntry
}

type splitEntry struct {
	addr   uint32
	splits []*Split
}

func (x *SplitIndex) search(addr uint32) int {
	return sort.Search(len(x.entries), func(i int) bool { return x.entries[i].addr >= addr })
}

func (x *SplitIndex) Len() int {
	n := 0
	for _, e := range x.entries {
		n += len(e.splits)
	}
	return n
}

// Push inserts a split at the given start address.
func (x *SplitIndex) Push(addr uint32, split *Split) {
	i := x.search(addr)
	if i < len(x.entries) && x.entries[i].addr == addr {
		x.entries[i].splits = append(x.entries[i].splits, split)
		return
	}
	x.entries = append(x.entries, splitEntry{})
	copy(x.entries[i+1:], x.entries[i:])
	x.entries[i] = splitEntry{addr: addr, splits: []*Split{split}}
}

// Remove removes and returns all splits starting at the given address.
func (x *SplitIndex) Remove(addr uint32) []*Split {
	i := x.search(addr)
	if i >= len(x.entries) || x.entries[i].addr != addr {
		return nil
	}
	splits := x.entries[i].splits
	x.entries = append(x.entries[:i], x.entries[i+1:]...)
	return splits
}

func (x *SplitIndex) HasSplitAt(addr uint32) bool {
	i := x.search(addr)
	return i < len(x.entries) && x.entries[i].addr == addr
}

// ForAddress locates the split containing the given address: among splits
// whose range covers addr, one with the greatest start address.
func (x *SplitIndex) ForAddress(addr uint32) (SplitAt, bool) {
	for i := x.search(addr+1) - 1; i >= 0; i-- {
		e := x.entries[i]
		for j := len(e.splits) - 1; j >= 0; j-- {
			if e.splits[j].contains(e.addr, addr) {
				return SplitAt{Addr: e.addr, Split: e.splits[j]}, true
			}
		}
	}
	return SplitAt{}, false
}

// At returns the split containing the given address for mutation, or nil.
func (x *SplitIndex) At(addr uint32) *Split {
	at, ok := x.ForAddress(addr)
	if !ok {
		return nil
	}
	return at.Split
}

// ForRange returns all splits with start address in [start, end), in
// ascending order. end == 0 means unbounded.
func (x *SplitIndex) ForRange(start, end uint32) []SplitAt {
	var out []SplitAt
	for _, e := range x.entries {
		if e.addr < start {
			continue
		}
		if end != 0 && e.addr >= end {
			break
		}
		for _, s := range e.splits {
			out = append(out, SplitAt{Addr: e.addr, Split: s})
		}
	}
	return out
}

// All returns every split in ascending start order.
func (x *SplitIndex) All() []SplitAt {
	return x.ForRange(0, 0)
}

// ForUnit locates the single split referencing the given unit name. More
// than one split for the same unit is a contract violation.
func (x *SplitIndex) ForUnit(unit string) (SplitAt, bool, error) {
	var found SplitAt
	var ok bool
	for _, e := range x.entries {
		for _, s := range e.splits {
			if s.Unit != unit {
				continue
			}
			if ok {
				return SplitAt{}, false, errors.Errorf("multiple splits for unit %s", unit)
			}
			found = SplitAt{Addr: e.addr, Split: s}
			ok = true
		}
	}
	return found, ok, nil
}
