// SPDX-License-Identifier: MIT

package elf

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// Fixed record sizes for 32-bit ELF.
const (
	identSize   = 16
	ehSize      = 52
	phEntSize   = 32
	shEntSize   = 40
	symEntSize  = 16
	relEntSize  = 8
	relaEntSize = 12
)

type fileHeader struct {
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint32
	PhOff     uint32
	ShOff     uint32
	Flags     uint32
	EhSize    uint16
	PhEntSize uint16
	PhNum     uint16
	ShEntSize uint16
	ShNum     uint16
	ShStrNdx  uint16
}

type sectionHeader struct {
	Name      uint32
	Type      uint32
	Flags     uint32
	Addr      uint32
	Offset    uint32
	Size      uint32
	Link      uint32
	Info      uint32
	AddrAlign uint32
	EntSize   uint32
}

type programHeader struct {
	Type     uint32
	Offset   uint32
	VAddr    uint32
	PAddr    uint32
	FileSize uint32
	MemSize  uint32
	Flags    uint32
	Align    uint32
}

type symbolEnt struct {
	Name  uint32
	Value uint32
	Size  uint32
	Info  uint8
	Other uint8
	Shndx uint16
}

func (s symbolEnt) binding() SymbolBinding { return SymbolBinding(s.Info >> 4) }

func (s symbolEnt) symType() SymbolType { return SymbolType(s.Info & 0xF) }

func (s symbolEnt) visibility() SymbolVisibility { return SymbolVisibility(s.Other & 0x3) }

type relaEnt struct {
	Offset uint32
	Info   uint32
	Addend int32
}

type relEnt struct {
	Offset uint32
	Info   uint32
}

type rawSection struct {
	name string
	hdr  sectionHeader
	data []byte
}

type rawSymbol struct {
	name string
	sym  symbolEnt
}

type rawReloc struct {
	offset   uint32
	symIdx   int
	relType  uint32
	addend   int64
	implicit bool
}

type rawFile struct {
	hdr      fileHeader
	sections []*rawSection
	symbols  []*rawSymbol
	// relocs is keyed by the original index of the relocated section.
	relocs map[int][]rawReloc
}

func view(data []byte, off, size uint64) ([]byte, error) {
	if off+size < off || off+size > uint64(len(data)) {
		return nil, errors.Errorf("region [%#x, %#x) outside file of size %#x", off, off+size, len(data))
	}
	return data[off : off+size], nil
}

func getString(tab []byte, off uint32) (string, error) {
	if uint64(off) >= uint64(len(tab)) {
		return "", errors.Errorf("string offset %#x outside string table of size %#x", off, len(tab))
	}
	end := bytes.IndexByte(tab[off:], 0)
	if end < 0 {
		return "", errors.Errorf("unterminated string at offset %#x", off)
	}
	return string(tab[off : int(off)+end]), nil
}

// parseFile decodes the raw structure of a 32-bit big-endian PowerPC ELF
// image: headers, section contents, the symbol table and relocation tables.
func parseFile(data []byte) (*rawFile, error) {
	if len(data) < ehSize {
		return nil, errors.New("file too small for ELF header")
	}
	ident := data[:identSize]
	if ident[0] != 0x7F || ident[1] != 'E' || ident[2] != 'L' || ident[3] != 'F' {
		return nil, errors.New("invalid ELF magic")
	}
	if FileClass(ident[4]) != ELFCLASS32 {
		return nil, errors.Errorf("unsupported ELF class %d, expected 32-bit", ident[4])
	}
	if FileEndian(ident[5]) != ELFDATA2MSB {
		return nil, errors.New("unsupported endianness, expected big endian")
	}

	f := &rawFile{relocs: make(map[int][]rawReloc)}
	if err := binary.Read(bytes.NewReader(data[identSize:ehSize]), binary.BigEndian, &f.hdr); err != nil {
		return nil, errors.Wrap(err, "reading file header")
	}
	if MachineType(f.hdr.Machine) != EM_PPC {
		return nil, errors.Errorf("unsupported machine %d, expected PowerPC", f.hdr.Machine)
	}
	switch FileType(f.hdr.Type) {
	case ET_EXEC, ET_REL:
	default:
		return nil, errors.Errorf("unsupported ELF type %d, expected executable or relocatable", f.hdr.Type)
	}

	// Section headers
	if f.hdr.ShNum > 0 && f.hdr.ShEntSize != shEntSize {
		return nil, errors.Errorf("unexpected section header entry size %d", f.hdr.ShEntSize)
	}
	shdrs, err := view(data, uint64(f.hdr.ShOff), uint64(f.hdr.ShNum)*shEntSize)
	if err != nil {
		return nil, errors.Wrap(err, "reading section headers")
	}
	shdrReader := bytes.NewReader(shdrs)
	for i := 0; i < int(f.hdr.ShNum); i++ {
		sec := &rawSection{}
		if err := binary.Read(shdrReader, binary.BigEndian, &sec.hdr); err != nil {
			return nil, errors.Wrapf(err, "reading section header %d", i)
		}
		if sec.hdr.Size > 0 && SectionHeaderType(sec.hdr.Type).HasDataInFile() {
			raw, err := view(data, uint64(sec.hdr.Offset), uint64(sec.hdr.Size))
			if err != nil {
				return nil, errors.Wrapf(err, "reading section %d data", i)
			}
			sec.data = make([]byte, len(raw))
			copy(sec.data, raw)
		}
		f.sections = append(f.sections, sec)
	}

	// Section names
	if f.hdr.ShStrNdx != SHN_UNDEF {
		if int(f.hdr.ShStrNdx) >= len(f.sections) {
			return nil, errors.Errorf("section name table index %d out of range", f.hdr.ShStrNdx)
		}
		shstrtab := f.sections[f.hdr.ShStrNdx].data
		for i, sec := range f.sections {
			name, err := getString(shstrtab, sec.hdr.Name)
			if err != nil {
				return nil, errors.Wrapf(err, "resolving name of section %d", i)
			}
			sec.name = name
		}
	}

	// Symbol table
	for i, sec := range f.sections {
		if SectionHeaderType(sec.hdr.Type) != SHT_SYMTAB {
			continue
		}
		if sec.hdr.EntSize != symEntSize {
			return nil, errors.Errorf("unexpected symbol entry size %d", sec.hdr.EntSize)
		}
		if int(sec.hdr.Link) >= len(f.sections) {
			return nil, errors.Errorf("symbol table %d links to invalid string table %d", i, sec.hdr.Link)
		}
		strtab := f.sections[sec.hdr.Link].data
		symReader := bytes.NewReader(sec.data)
		count := int(sec.hdr.Size / symEntSize)
		for j := 0; j < count; j++ {
			sym := &rawSymbol{}
			if err := binary.Read(symReader, binary.BigEndian, &sym.sym); err != nil {
				return nil, errors.Wrapf(err, "reading symbol %d", j)
			}
			name, err := getString(strtab, sym.sym.Name)
			if err != nil {
				return nil, errors.Wrapf(err, "resolving name of symbol %d", j)
			}
			sym.name = name
			f.symbols = append(f.symbols, sym)
		}
		break
	}

	// Relocation tables
	for i, sec := range f.sections {
		secType := SectionHeaderType(sec.hdr.Type)
		if secType != SHT_REL && secType != SHT_RELA {
			continue
		}
		target := int(sec.hdr.Info)
		if target >= len(f.sections) {
			return nil, errors.Errorf("relocation section %d targets invalid section %d", i, target)
		}
		entSize := uint32(relEntSize)
		if secType == SHT_RELA {
			entSize = relaEntSize
		}
		if sec.hdr.EntSize != entSize {
			return nil, errors.Errorf("unexpected relocation entry size %d in section %d", sec.hdr.EntSize, i)
		}
		relReader := bytes.NewReader(sec.data)
		count := int(sec.hdr.Size / entSize)
		for j := 0; j < count; j++ {
			var rel rawReloc
			if secType == SHT_RELA {
				var ent relaEnt
				if err := binary.Read(relReader, binary.BigEndian, &ent); err != nil {
					return nil, errors.Wrapf(err, "reading relocation %d in section %d", j, i)
				}
				rel = rawReloc{offset: ent.Offset, symIdx: int(ent.Info >> 8), relType: ent.Info & 0xFF, addend: int64(ent.Addend)}
			} else {
				var ent relEnt
				if err := binary.Read(relReader, binary.BigEndian, &ent); err != nil {
					return nil, errors.Wrapf(err, "reading relocation %d in section %d", j, i)
				}
				rel = rawReloc{offset: ent.Offset, symIdx: int(ent.Info >> 8), relType: ent.Info & 0xFF, implicit: true}
			}
			if rel.symIdx >= len(f.symbols) {
				return nil, errors.Errorf("relocation %d in section %d references invalid symbol %d", j, i, rel.symIdx)
			}
			f.relocs[target] = append(f.relocs[target], rel)
		}
	}

	return f, nil
}
