// SPDX-License-Identifier: MIT

package obj

type SectionKind int

const (
	SectionCode SectionKind = iota
	SectionData
	SectionReadOnlyData
	SectionBss
)

func (k SectionKind) String() string {
	switch k {
	case SectionCode:
		return "code"
	case SectionData:
		return "data"
	case SectionReadOnlyData:
		return "rodata"
	case SectionBss:
		return "bss"
	default:
		return "unknown"
	}
}

type Section struct {
	Name    string
	Kind    SectionKind
	Address uint64
	Size    uint64
	// Data is the raw section content; nil for Bss.
	Data  []byte
	Align uint32
	// ElfIndex is the section header index in the original image.
	ElfIndex    int
	FileOffset  uint64
	Relocations Relocations
	Splits      SplitIndex
}

func (s *Section) Contains(addr uint32) bool {
	return uint64(addr) >= s.Address && uint64(addr) < s.Address+s.Size
}

// DefaultSectionAlign is the alignment assumed for a split with no explicit
// override and no aligned symbols: 4 for code, 8 for data sections.
func DefaultSectionAlign(kind SectionKind) uint32 {
	if kind == SectionCode {
		return 4
	}
	return 8
}
