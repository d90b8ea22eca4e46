// SPDX-License-Identifier: MIT

package elf

import (
	"github.com/pkg/errors"

	"github.com/CelestialAmber/decomp-toolkit/obj"
)

// sectionKind maps a section header to the model's section kinds. Sections
// outside the mapping are dropped during admission.
func sectionKind(hdr sectionHeader) (obj.SectionKind, bool) {
	flags := SectionHeaderFlag(hdr.Flags)
	switch SectionHeaderType(hdr.Type) {
	case SHT_PROGBITS:
		switch {
		case flags&SHF_EXECINSTR != 0:
			return obj.SectionCode, true
		case flags&SHF_ALLOC != 0 && flags&SHF_WRITE != 0:
			return obj.SectionData, true
		case flags&SHF_ALLOC != 0:
			return obj.SectionReadOnlyData, true
		}
	case SHT_NOBITS:
		if flags&SHF_ALLOC != 0 {
			return obj.SectionBss, true
		}
	}
	return 0, false
}

// toRelocKind maps a PowerPC relocation type code to the model's closed
// kind enumeration. Unmapped types are a hard error.
func toRelocKind(relType uint32) (obj.RelocKind, error) {
	switch relType {
	case R_PPC_ADDR32, R_PPC_UADDR32:
		return obj.RelocAbsolute, nil
	case R_PPC_ADDR16_LO:
		return obj.RelocAddr16Lo, nil
	case R_PPC_ADDR16_HI:
		return obj.RelocAddr16Hi, nil
	case R_PPC_ADDR16_HA:
		return obj.RelocAddr16Ha, nil
	case R_PPC_REL24:
		return obj.RelocRel24, nil
	case R_PPC_REL14:
		return obj.RelocRel14, nil
	case R_PPC_EMB_SDA21:
		return obj.RelocEmbSda21, nil
	default:
		return 0, errors.Errorf("unhandled ELF relocation type %d", relType)
	}
}

// relocCode returns the relocation type code and adjusted file offset for a
// relocation of the given kind at the given address. The Addr16 kinds point
// at the low half-word of the relocated instruction; the rest at the word.
func relocCode(kind obj.RelocKind, addr uint32) (uint32, uint32) {
	switch kind {
	case obj.RelocAbsolute:
		if addr&3 == 0 {
			return R_PPC_ADDR32, addr
		}
		return R_PPC_UADDR32, addr
	case obj.RelocAddr16Lo:
		return R_PPC_ADDR16_LO, (addr &^ 3) + 2
	case obj.RelocAddr16Hi:
		return R_PPC_ADDR16_HI, (addr &^ 3) + 2
	case obj.RelocAddr16Ha:
		return R_PPC_ADDR16_HA, (addr &^ 3) + 2
	case obj.RelocRel24:
		return R_PPC_REL24, addr &^ 3
	case obj.RelocRel14:
		return R_PPC_REL14, addr &^ 3
	case obj.RelocEmbSda21:
		return R_PPC_EMB_SDA21, addr &^ 3
	default:
		panic("unhandled relocation kind")
	}
}

// maskReloc clears the link-time bits of an instruction word for the given
// relocation kind, leaving all other bits intact.
func maskReloc(kind obj.RelocKind, word uint32) uint32 {
	switch kind {
	case obj.RelocAbsolute:
		return 0
	case obj.RelocAddr16Lo, obj.RelocAddr16Hi, obj.RelocAddr16Ha:
		return word &^ 0xFFFF
	case obj.RelocRel24:
		return word &^ 0x03FFFFFC
	case obj.RelocRel14:
		return word &^ 0xFFFC
	case obj.RelocEmbSda21:
		return word &^ 0x001FFFFF
	default:
		panic("unhandled relocation kind")
	}
}

// toObjSymbol converts a raw symbol table entry to the model. Section
// symbols inherit their section's name; align is the vendor metadata
// alignment hint, 0 when absent.
func toObjSymbol(raw *rawSymbol, sections []*rawSection, sectionIndexes []int, demangle func(string) (string, bool), align uint32) (*obj.Symbol, error) {
	shndx := raw.sym.Shndx
	var section *rawSection
	sectionIdx := -1
	if shndx > SHN_UNDEF && shndx < SHN_LORESERVE {
		if int(shndx) >= len(sections) {
			return nil, errors.Errorf("symbol %q references invalid section %d", raw.name, shndx)
		}
		section = sections[shndx]
		sectionIdx = sectionIndexes[shndx]
	}

	name := raw.name
	if raw.sym.symType() == STT_SECTION {
		if section == nil {
			return nil, errors.Errorf("section symbol without section")
		}
		name = section.name
	}
	if name == "" {
		return nil, errors.New("empty symbol name")
	}

	var kind obj.SymbolKind
	switch raw.sym.symType() {
	case STT_FUNC:
		kind = obj.SymbolFunction
	case STT_OBJECT:
		kind = obj.SymbolObject
	case STT_SECTION:
		kind = obj.SymbolSection
	case STT_NOTYPE:
		kind = obj.SymbolUnknown
	default:
		return nil, errors.Errorf("unsupported symbol type %d for %q", raw.sym.symType(), name)
	}

	var flags obj.SymbolFlags
	switch raw.sym.binding() {
	case STB_LOCAL:
		flags |= obj.SymbolLocal
	case STB_GLOBAL:
		flags |= obj.SymbolGlobal
	case STB_WEAK:
		flags |= obj.SymbolGlobal | obj.SymbolWeak
	}
	if shndx == SHN_COMMON || raw.sym.symType() == STT_COMMON {
		flags |= obj.SymbolCommon
	}
	if raw.sym.binding() != STB_LOCAL {
		switch raw.sym.visibility() {
		case STV_HIDDEN, STV_INTERNAL:
			flags |= obj.SymbolHidden
		}
	}

	sym := &obj.Symbol{
		Name:      name,
		Address:   uint64(raw.sym.Value),
		Section:   sectionIdx,
		Size:      uint64(raw.sym.Size),
		SizeKnown: true,
		Flags:     flags,
		Kind:      kind,
		Align:     align,
	}
	if demangle != nil {
		if demangled, ok := demangle(name); ok {
			sym.DemangledName = demangled
		}
	}
	return sym, nil
}

// symInfo encodes the symbol type and binding. Bind precedence is
// Weak > Local > Global.
func symInfo(sym *obj.Symbol) uint8 {
	var symType SymbolType
	switch sym.Kind {
	case obj.SymbolFunction:
		symType = STT_FUNC
	case obj.SymbolObject:
		symType = STT_OBJECT
	case obj.SymbolSection:
		symType = STT_SECTION
	default:
		symType = STT_NOTYPE
	}
	var bind SymbolBinding
	switch {
	case sym.Flags.IsWeak():
		bind = STB_WEAK
	case sym.Flags.IsLocal():
		bind = STB_LOCAL
	default:
		bind = STB_GLOBAL
	}
	return uint8(bind)<<4 | uint8(symType)
}

func symOther(sym *obj.Symbol) uint8 {
	if sym.Flags.IsHidden() {
		return uint8(STV_HIDDEN)
	}
	return uint8(STV_DEFAULT)
}
