// SPDX-License-Identifier: MIT

// Package elf implements a bidirectional codec between 32-bit big-endian
// PowerPC ELF images and the object model: symbol, section and relocation
// recovery with compilation-unit boundary detection on read, and exact,
// deterministic layout reconstruction on write.
package elf

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/CelestialAmber/decomp-toolkit/comment"
	"github.com/CelestialAmber/decomp-toolkit/demangler"
	"github.com/CelestialAmber/decomp-toolkit/mapfile"
	"github.com/CelestialAmber/decomp-toolkit/obj"
)

// Reader parses ELF images into the object model. A read either fully
// succeeds or fails with nothing usable returned.
type Reader struct {
	logger   log.Logger
	demangle func(string) (string, bool)
}

func NewReader(logger log.Logger) *Reader {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Reader{logger: logger, demangle: demangler.Demangle}
}

// WithDemangler replaces the demangler collaborator.
func (r *Reader) WithDemangler(fn func(string) (string, bool)) *Reader {
	r.demangle = fn
	return r
}

// ProcessFile maps the file at path into memory and processes it.
func (r *Reader) ProcessFile(path string) (*obj.Object, error) {
	f, err := mapfile.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return r.Process(f.Bytes())
}

// Process parses an ELF image into an Object, recovering unit boundaries
// from the symbol table.
func (r *Reader) Process(data []byte) (*obj.Object, error) {
	f, err := parseFile(data)
	if err != nil {
		return nil, err
	}
	kind := obj.KindExecutable
	if FileType(f.hdr.Type) == ET_REL {
		kind = obj.KindRelocatable
	}

	// Section admission: keep non-empty sections of known kind. Everything
	// else is dropped, and sectionIndexes records the remapping so symbols
	// and relocations against dropped sections can be filtered.
	var sections []*obj.Section
	sectionIndexes := make([]int, len(f.sections))
	for i := range sectionIndexes {
		sectionIndexes[i] = -1
	}
	for i, sec := range f.sections {
		if sec.hdr.Size == 0 {
			continue
		}
		secKind, ok := sectionKind(sec.hdr)
		if !ok {
			continue
		}
		secData := sec.data
		if secKind == obj.SectionBss {
			secData = nil
		}
		sectionIndexes[i] = len(sections)
		sections = append(sections, &obj.Section{
			Name:       sec.name,
			Kind:       secKind,
			Address:    uint64(sec.hdr.Addr),
			Size:       uint64(sec.hdr.Size),
			Data:       secData,
			Align:      sec.hdr.AddrAlign,
			ElfIndex:   i,
			FileOffset: uint64(sec.hdr.Offset),
		})
	}

	// Vendor metadata: a fixed header followed by exactly one record per
	// symbol table entry, consumed exactly.
	var commentHeader *comment.Header
	var commentSyms []comment.Sym
	for _, sec := range f.sections {
		if sec.name != ".comment" || len(sec.data) == 0 {
			continue
		}
		rd := bytes.NewReader(sec.data)
		commentHeader, err = comment.ParseHeader(rd)
		if err != nil {
			return nil, errors.Wrap(err, "while reading .comment section")
		}
		level.Debug(r.logger).Log("msg", "loaded .comment section header", "version", commentHeader.Version)
		for i := range f.symbols {
			sym, err := comment.ReadSym(rd)
			if err != nil {
				return nil, errors.Wrapf(err, "reading .comment record %d", i)
			}
			commentSyms = append(commentSyms, sym)
		}
		if rd.Len() != 0 {
			return nil, errors.New(".comment section data not fully read")
		}
		break
	}

	scanner := newBoundaryScanner(r.logger)
	var symbols []*obj.Symbol
	symbolIndexes := make([]int, len(f.symbols))
	for i := range symbolIndexes {
		symbolIndexes[i] = -1
	}
	objName := ""
	var stackAddress, stackEnd, dbStackAddr, arenaLo, arenaHi, sdaBase, sda2Base *uint32

	for i, sym := range f.symbols {
		// Locate linker-generated symbols
		switch sym.name {
		case "_stack_addr":
			stackAddress = u32ptr(sym.sym.Value)
		case "_stack_end":
			stackEnd = u32ptr(sym.sym.Value)
		case "_db_stack_addr":
			dbStackAddr = u32ptr(sym.sym.Value)
		case "__ArenaLo":
			arenaLo = u32ptr(sym.sym.Value)
		case "__ArenaHi":
			arenaHi = u32ptr(sym.sym.Value)
		case "_SDA_BASE_":
			sdaBase = u32ptr(sym.sym.Value)
		case "_SDA2_BASE_":
			sda2Base = u32ptr(sym.sym.Value)
		}

		symType := sym.sym.symType()
		switch symType {
		case STT_FILE:
			if isPCHUnit(sym.name) {
				continue
			}
			if kind == obj.KindRelocatable {
				objName = sym.name
			}
			if err := scanner.fileSymbol(sym.name); err != nil {
				return nil, err
			}
		case STT_SECTION:
			shndx := sym.sym.Shndx
			if shndx == SHN_UNDEF || shndx >= SHN_LORESERVE || int(shndx) >= len(f.sections) {
				return nil, errors.New("section symbol without section")
			}
			scanner.sectionSymbol(uint64(sym.sym.Value), f.sections[shndx].name, sectionIndexes[shndx] >= 0)
		default:
			shndx := sym.sym.Shndx
			switch {
			case shndx == SHN_ABS:
				scanner.absoluteSymbol()
			case shndx == SHN_UNDEF || shndx == SHN_COMMON:
			case shndx < SHN_LORESERVE:
				if int(shndx) >= len(f.sections) {
					return nil, errors.Errorf("symbol %q references invalid section %d", sym.name, shndx)
				}
				scanner.ordinarySymbol(uint64(sym.sym.Value), f.sections[shndx].name, sectionIndexes[shndx] >= 0)
			default:
				return nil, errors.Errorf("unsupported symbol section index %#x for %q", shndx, sym.name)
			}
		}

		// Generate symbols
		if i == 0 || symType == STT_FILE {
			continue
		}
		if shndx := sym.sym.Shndx; shndx > SHN_UNDEF && shndx < SHN_LORESERVE && sectionIndexes[shndx] < 0 {
			continue
		}
		var align uint32
		if commentSyms != nil {
			align = commentSyms[i].Align
		}
		converted, err := toObjSymbol(sym, f.sections, sectionIndexes, r.demangle, align)
		if err != nil {
			return nil, err
		}
		symbolIndexes[i] = len(symbols)
		symbols = append(symbols, converted)
	}

	o := obj.New(kind, obj.ArchPowerPC, objName, symbols, sections)

	// Link order is first-seen order; each recorded boundary address maps
	// to the kept section containing it.
	for _, unit := range scanner.units {
		o.LinkOrder = append(o.LinkOrder, obj.Unit{Name: unit.unit})
	}
	for _, unit := range scanner.units {
		for _, e := range unit.entries {
			_, section := o.SectionContaining(uint32(e.addr))
			if section == nil {
				level.Warn(r.logger).Log(
					"msg", "failed to find section containing address",
					"address", fmt.Sprintf("%#010x", e.addr), "unit", unit.unit)
				continue
			}
			section.Splits.Push(uint32(e.addr), &obj.Split{Unit: unit.unit})
		}
	}

	// Generate relocations
	for origIdx := range f.sections {
		outIdx := sectionIndexes[origIdx]
		if outIdx < 0 {
			continue
		}
		section := sections[outIdx]
		for _, rel := range f.relocs[origIdx] {
			reloc, ok, err := r.toObjReloc(f, symbolIndexes, section.Data, rel)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if err := section.Relocations.Insert(rel.offset, reloc); err != nil {
				return nil, err
			}
		}
	}

	o.Entry = uint64(f.hdr.Entry)
	o.Comment = commentHeader
	o.StackAddress = stackAddress
	o.StackEnd = stackEnd
	o.DbStackAddr = dbStackAddr
	o.ArenaLo = arenaLo
	o.ArenaHi = arenaHi
	o.SdaBase = sdaBase
	o.Sda2Base = sda2Base
	return o, nil
}

// toObjReloc converts one relocation. Absolute-target relocations (no
// symbol) are dropped; section-kind targets with an implicit addend read it
// from the relocation site.
func (r *Reader) toObjReloc(f *rawFile, symbolIndexes []int, sectionData []byte, rel rawReloc) (obj.Reloc, bool, error) {
	kind, err := toRelocKind(rel.relType)
	if err != nil {
		return obj.Reloc{}, false, err
	}
	if rel.symIdx == 0 {
		level.Debug(r.logger).Log("msg", "skipping absolute relocation", "address", fmt.Sprintf("%#010x", rel.offset))
		return obj.Reloc{}, false, nil
	}
	raw := f.symbols[rel.symIdx]
	target := symbolIndexes[rel.symIdx]
	if target < 0 {
		return obj.Reloc{}, false, errors.Errorf("relocation against stripped symbol %q", raw.name)
	}
	var addend int64
	switch raw.sym.symType() {
	case STT_FUNC, STT_OBJECT, STT_NOTYPE:
		addend = rel.addend
	case STT_SECTION:
		if rel.implicit {
			if int(rel.offset)+4 > len(sectionData) {
				return obj.Reloc{}, false, errors.Errorf("relocation site %#x outside section data", rel.offset)
			}
			addend = int64(int32(binary.BigEndian.Uint32(sectionData[rel.offset:])))
			if kind != obj.RelocAbsolute {
				return obj.Reloc{}, false, errors.Errorf("unsupported implicit relocation kind %s", kind)
			}
		} else {
			addend = rel.addend
		}
		if addend < 0 {
			return obj.Reloc{}, false, errors.Errorf("negative addend %d in section relocation", addend)
		}
	default:
		return obj.Reloc{}, false, errors.Errorf("unhandled relocation target symbol type %d", raw.sym.symType())
	}
	return obj.Reloc{Kind: kind, TargetSymbol: target, Addend: addend}, true, nil
}

func u32ptr(v uint32) *uint32 { return &v }
