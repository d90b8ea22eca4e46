// SPDX-License-Identifier: MIT

package elf

import (
	"bytes"
	"encoding/binary"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/CelestialAmber/decomp-toolkit/comment"
	"github.com/CelestialAmber/decomp-toolkit/obj"
)

// Writer serializes an Object back into ELF bytes. Layout is computed in a
// reserve phase first; the write phase re-walks the same order and asserts
// the output position at every checkpoint.
type Writer struct {
	logger log.Logger
}

func NewWriter(logger log.Logger) *Writer {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Writer{logger: logger}
}

type stringTable struct {
	offsets map[string]uint32
	pos     uint32
}

func newStringTable() *stringTable {
	// Offset 0 is the empty string.
	return &stringTable{offsets: make(map[string]uint32), pos: 1}
}

func (t *stringTable) Add(s string) uint32 {
	if s == "" {
		return 0
	}
	if off, ok := t.offsets[s]; ok {
		return off
	}
	off := t.pos
	t.pos += uint32(len(s)) + 1
	t.offsets[s] = off
	return off
}

func (t *stringTable) ToData() []byte {
	data := make([]byte, t.pos)
	for s, off := range t.offsets {
		copy(data[off:], s)
	}
	return data
}

type outSection struct {
	index       int
	relaIndex   int // 0 when the section has no relocations
	offset      uint32
	relaOffset  uint32
	nameOff     uint32
	relaNameOff uint32
}

// layoutPlan is the immutable result of the reserve phase: every region's
// byte offset, the final symbol table and both string tables.
type layoutPlan struct {
	exec     bool
	phOff    uint32
	sections []outSection

	symtabOff   uint32
	strtabOff   uint32
	shstrtabOff uint32
	commentOff  uint32
	shOff       uint32
	total       uint32

	symtabIdx   int
	strtabIdx   int
	shstrtabIdx int
	commentIdx  int
	shCount     int

	symtabNameOff   uint32
	strtabNameOff   uint32
	shstrtabNameOff uint32
	commentNameOff  uint32

	// syms excludes the null symbol; numLocal counts it.
	syms      []symbolEnt
	symbolMap []int
	numLocal  uint32

	strtabData   []byte
	shstrtabData []byte
	commentData  []byte
}

func alignTo(v, align uint32) uint32 {
	return (v + align - 1) &^ (align - 1)
}

// Write serializes the object. Internal inconsistencies (size mismatches,
// layout divergence between the two phases) fail loudly; no bytes are
// returned on error.
func (w *Writer) Write(o *obj.Object) ([]byte, error) {
	for _, sec := range o.Sections {
		if sec.Kind == obj.SectionBss {
			continue
		}
		if uint64(len(sec.Data)) != sec.Size {
			return nil, errors.Errorf("section %s declared size %#x does not match data length %#x",
				sec.Name, sec.Size, len(sec.Data))
		}
	}

	plan, err := w.layout(o)
	if err != nil {
		return nil, err
	}
	level.Debug(w.logger).Log("msg", "computed layout", "sections", len(o.Sections),
		"symbols", len(plan.syms)+1, "size", plan.total)
	return w.emit(o, plan)
}

// layout is the reserve phase: it assigns section header indexes, builds
// the final symbol table with its string tables, and computes the offset of
// every region in the fixed output order.
func (w *Writer) layout(o *obj.Object) (*layoutPlan, error) {
	plan := &layoutPlan{
		exec:     o.Kind == obj.KindExecutable,
		sections: make([]outSection, len(o.Sections)),
	}
	shstr := newStringTable()
	str := newStringTable()

	// Section header indexes: null, model sections, rela sections, symtab,
	// strtab, shstrtab, then the vendor metadata section last.
	idx := 1
	for i, sec := range o.Sections {
		plan.sections[i].index = idx
		plan.sections[i].nameOff = shstr.Add(sec.Name)
		idx++
	}
	for i, sec := range o.Sections {
		if sec.Relocations.Len() == 0 {
			continue
		}
		plan.sections[i].relaIndex = idx
		plan.sections[i].relaNameOff = shstr.Add(".rela" + sec.Name)
		idx++
	}
	plan.symtabIdx = idx
	plan.symtabNameOff = shstr.Add(".symtab")
	idx++
	plan.strtabIdx = idx
	plan.strtabNameOff = shstr.Add(".strtab")
	idx++
	plan.shstrtabIdx = idx
	plan.shstrtabNameOff = shstr.Add(".shstrtab")
	idx++
	if o.Comment != nil {
		plan.commentIdx = idx
		plan.commentNameOff = shstr.Add(".comment")
		idx++
	}
	plan.shCount = idx

	// Vendor metadata is emitted in lock-step with the symbol table: one
	// record per entry, the null symbol included.
	var commentBuf *bytes.Buffer
	if o.Comment != nil {
		commentBuf = &bytes.Buffer{}
		if err := o.Comment.Write(commentBuf); err != nil {
			return nil, err
		}
		if err := comment.WriteSym(commentBuf, comment.Sym{}); err != nil {
			return nil, err
		}
	}

	plan.symbolMap = make([]int, len(o.Symbols))
	for i := range plan.symbolMap {
		plan.symbolMap[i] = -1
	}
	plan.numLocal = 1 // the null symbol

	// Synthetic FILE symbol, basename only.
	sectionSymBase := 1
	if o.Name != "" {
		plan.syms = append(plan.syms, symbolEnt{
			Name:  str.Add(filepath.Base(o.Name)),
			Info:  uint8(STB_LOCAL)<<4 | uint8(STT_FILE),
			Shndx: SHN_ABS,
		})
		if commentBuf != nil {
			if err := comment.WriteSym(commentBuf, comment.Sym{Align: 1}); err != nil {
				return nil, err
			}
		}
		sectionSymBase = 2
		plan.numLocal = 2
	}

	// One unnamed SECTION symbol per section, relocatable objects only.
	if o.Kind == obj.KindRelocatable {
		for i, sec := range o.Sections {
			plan.syms = append(plan.syms, symbolEnt{
				Info:  uint8(STB_LOCAL)<<4 | uint8(STT_SECTION),
				Shndx: uint16(plan.sections[i].index),
			})
			if commentBuf != nil {
				if err := comment.WriteSym(commentBuf, comment.Sym{Align: sec.Align}); err != nil {
					return nil, err
				}
			}
		}
		plan.numLocal = uint32(len(plan.syms)) + 1
	}

	// Remaining symbols: all local-flagged ones first in original order,
	// then the rest in original order.
	emit := func(local bool) error {
		for i, sym := range o.Symbols {
			if sym.Flags.IsLocal() != local {
				continue
			}
			if o.Kind == obj.KindRelocatable && sym.Kind == obj.SymbolSection {
				// Section symbols were written above; map to them.
				if sym.Section < 0 {
					return errors.New("section symbol without section index")
				}
				plan.symbolMap[i] = sectionSymBase + sym.Section
				continue
			}
			var shndx uint16
			switch {
			case sym.Section >= 0:
				if sym.Section >= len(o.Sections) {
					return errors.Errorf("symbol %q references invalid section %d", sym.Name, sym.Section)
				}
				shndx = uint16(plan.sections[sym.Section].index)
			case sym.Flags.IsCommon():
				shndx = SHN_COMMON
			case sym.Address != 0:
				shndx = SHN_ABS
			default:
				shndx = SHN_UNDEF
			}
			ent := symbolEnt{
				Name:  str.Add(sym.Name),
				Value: uint32(sym.Address),
				Size:  uint32(sym.Size),
				Info:  symInfo(sym),
				Other: symOther(sym),
				Shndx: shndx,
			}
			plan.symbolMap[i] = len(plan.syms) + 1
			plan.syms = append(plan.syms, ent)
			if ent.binding() == STB_LOCAL {
				plan.numLocal = uint32(len(plan.syms)) + 1
			}
			if commentBuf != nil {
				if err := comment.WriteSym(commentBuf, comment.SymFor(sym.Align, sym.Flags.IsHidden())); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := emit(true); err != nil {
		return nil, err
	}
	if err := emit(false); err != nil {
		return nil, err
	}

	plan.strtabData = str.ToData()
	plan.shstrtabData = shstr.ToData()
	if commentBuf != nil {
		plan.commentData = commentBuf.Bytes()
	}

	// Offsets, in the fixed output order.
	off := uint32(ehSize)
	if plan.exec && len(o.Sections) > 0 {
		plan.phOff = off
		off += uint32(len(o.Sections)) * phEntSize
	}
	for i, sec := range o.Sections {
		if sec.Kind == obj.SectionBss {
			continue
		}
		off = alignTo(off, 32)
		plan.sections[i].offset = off
		off += uint32(len(sec.Data))
	}
	for i, sec := range o.Sections {
		n := sec.Relocations.Len()
		if n == 0 {
			continue
		}
		off = alignTo(off, 4)
		plan.sections[i].relaOffset = off
		off += uint32(n) * relaEntSize
	}
	off = alignTo(off, 4)
	plan.symtabOff = off
	off += uint32(len(plan.syms)+1) * symEntSize
	plan.strtabOff = off
	off += uint32(len(plan.strtabData))
	plan.shstrtabOff = off
	off += uint32(len(plan.shstrtabData))
	if plan.commentData != nil {
		off = alignTo(off, 32)
		plan.commentOff = off
		off += uint32(len(plan.commentData))
	}
	off = alignTo(off, 4)
	plan.shOff = off
	off += uint32(plan.shCount) * shEntSize
	plan.total = off
	return plan, nil
}

// emit is the write phase: it re-walks the layout order, asserting that the
// current output position matches the plan before every region.
func (w *Writer) emit(o *obj.Object, plan *layoutPlan) ([]byte, error) {
	buf := &bytes.Buffer{}
	padTo := func(off uint32, what string) error {
		if uint32(buf.Len()) > off {
			return errors.Errorf("internal: %s at offset %#x, past planned %#x", what, buf.Len(), off)
		}
		for uint32(buf.Len()) < off {
			buf.WriteByte(0)
		}
		return nil
	}
	check := func(off uint32, what string) error {
		if uint32(buf.Len()) != off {
			return errors.Errorf("internal: %s at offset %#x, planned %#x", what, buf.Len(), off)
		}
		return nil
	}

	// File header
	ident := make([]byte, identSize)
	ident[0], ident[1], ident[2], ident[3] = 0x7F, 'E', 'L', 'F'
	ident[4] = uint8(ELFCLASS32)
	ident[5] = uint8(ELFDATA2MSB)
	ident[6] = EV_CURRENT
	ident[7] = ELFOSABI_SYSV
	buf.Write(ident)
	fileType := ET_REL
	if plan.exec {
		fileType = ET_EXEC
	}
	hdr := fileHeader{
		Type:      uint16(fileType),
		Machine:   uint16(EM_PPC),
		Version:   EV_CURRENT,
		Entry:     uint32(o.Entry),
		PhOff:     plan.phOff,
		ShOff:     plan.shOff,
		Flags:     EF_PPC_EMB,
		EhSize:    ehSize,
		ShEntSize: shEntSize,
		ShNum:     uint16(plan.shCount),
		ShStrNdx:  uint16(plan.shstrtabIdx),
	}
	if plan.exec && len(o.Sections) > 0 {
		hdr.PhEntSize = phEntSize
		hdr.PhNum = uint16(len(o.Sections))
	}
	if err := binary.Write(buf, binary.BigEndian, &hdr); err != nil {
		return nil, err
	}

	// Program headers: one PT_LOAD per section, executables only.
	if plan.exec && len(o.Sections) > 0 {
		if err := check(plan.phOff, "program headers"); err != nil {
			return nil, err
		}
		for i, sec := range o.Sections {
			var flags ProgramHeaderFlag
			switch sec.Kind {
			case obj.SectionCode:
				flags = PF_R | PF_X
			case obj.SectionData, obj.SectionBss:
				flags = PF_R | PF_W
			case obj.SectionReadOnlyData:
				flags = PF_R
			}
			fileSize := uint32(sec.Size)
			if sec.Kind == obj.SectionBss {
				fileSize = 0
			}
			ph := programHeader{
				Type:     uint32(PT_LOAD),
				Offset:   plan.sections[i].offset,
				VAddr:    uint32(sec.Address),
				FileSize: fileSize,
				MemSize:  uint32(sec.Size),
				Flags:    uint32(flags),
				Align:    32,
			}
			if err := binary.Write(buf, binary.BigEndian, &ph); err != nil {
				return nil, err
			}
		}
	}

	// Section data. Relocatable objects have link-time bits masked out of
	// each relocated word; executables are written verbatim.
	for i, sec := range o.Sections {
		if sec.Kind == obj.SectionBss {
			continue
		}
		if err := padTo(plan.sections[i].offset, "section "+sec.Name); err != nil {
			return nil, err
		}
		if o.Kind == obj.KindRelocatable {
			if err := writeMaskedSectionData(buf, sec); err != nil {
				return nil, err
			}
		} else {
			buf.Write(sec.Data)
		}
	}

	// Relocation tables
	for i, sec := range o.Sections {
		if sec.Relocations.Len() == 0 {
			continue
		}
		if err := padTo(plan.sections[i].relaOffset, "relocations for "+sec.Name); err != nil {
			return nil, err
		}
		for _, ra := range sec.Relocations.All() {
			code, offset := relocCode(ra.Reloc.Kind, ra.Addr)
			target := ra.Reloc.TargetSymbol
			if target < 0 || target >= len(plan.symbolMap) || plan.symbolMap[target] < 0 {
				return nil, errors.Errorf("relocation at %#x in %s against stripped symbol", ra.Addr, sec.Name)
			}
			ent := relaEnt{
				Offset: offset,
				Info:   uint32(plan.symbolMap[target])<<8 | code,
				Addend: int32(ra.Reloc.Addend),
			}
			if err := binary.Write(buf, binary.BigEndian, &ent); err != nil {
				return nil, err
			}
		}
	}

	// Symbol table
	if err := padTo(plan.symtabOff, "symbol table"); err != nil {
		return nil, err
	}
	buf.Write(make([]byte, symEntSize)) // null symbol
	for i := range plan.syms {
		if err := binary.Write(buf, binary.BigEndian, &plan.syms[i]); err != nil {
			return nil, err
		}
	}

	// String tables
	if err := check(plan.strtabOff, "string table"); err != nil {
		return nil, err
	}
	buf.Write(plan.strtabData)
	if err := check(plan.shstrtabOff, "section name table"); err != nil {
		return nil, err
	}
	buf.Write(plan.shstrtabData)

	// Vendor metadata
	if plan.commentData != nil {
		if err := padTo(plan.commentOff, "comment section"); err != nil {
			return nil, err
		}
		buf.Write(plan.commentData)
	}

	// Section headers
	if err := padTo(plan.shOff, "section headers"); err != nil {
		return nil, err
	}
	writeShdr := func(sh sectionHeader) error {
		return binary.Write(buf, binary.BigEndian, &sh)
	}
	if err := writeShdr(sectionHeader{}); err != nil {
		return nil, err
	}
	for i, sec := range o.Sections {
		shType := SHT_PROGBITS
		if sec.Kind == obj.SectionBss {
			shType = SHT_NOBITS
		}
		var flags SectionHeaderFlag
		switch sec.Kind {
		case obj.SectionCode:
			flags = SHF_ALLOC | SHF_EXECINSTR
		case obj.SectionData, obj.SectionBss:
			flags = SHF_ALLOC | SHF_WRITE
		case obj.SectionReadOnlyData:
			flags = SHF_ALLOC
		}
		err := writeShdr(sectionHeader{
			Name:      plan.sections[i].nameOff,
			Type:      uint32(shType),
			Flags:     uint32(flags),
			Addr:      uint32(sec.Address),
			Offset:    plan.sections[i].offset,
			Size:      uint32(sec.Size),
			AddrAlign: sec.Align,
		})
		if err != nil {
			return nil, err
		}
	}
	for i, sec := range o.Sections {
		if plan.sections[i].relaIndex == 0 {
			continue
		}
		err := writeShdr(sectionHeader{
			Name:      plan.sections[i].relaNameOff,
			Type:      uint32(SHT_RELA),
			Offset:    plan.sections[i].relaOffset,
			Size:      uint32(sec.Relocations.Len()) * relaEntSize,
			Link:      uint32(plan.symtabIdx),
			Info:      uint32(plan.sections[i].index),
			AddrAlign: 4,
			EntSize:   relaEntSize,
		})
		if err != nil {
			return nil, err
		}
	}
	err := writeShdr(sectionHeader{
		Name:      plan.symtabNameOff,
		Type:      uint32(SHT_SYMTAB),
		Offset:    plan.symtabOff,
		Size:      uint32(len(plan.syms)+1) * symEntSize,
		Link:      uint32(plan.strtabIdx),
		Info:      plan.numLocal,
		AddrAlign: 4,
		EntSize:   symEntSize,
	})
	if err != nil {
		return nil, err
	}
	err = writeShdr(sectionHeader{
		Name:      plan.strtabNameOff,
		Type:      uint32(SHT_STRTAB),
		Offset:    plan.strtabOff,
		Size:      uint32(len(plan.strtabData)),
		AddrAlign: 1,
	})
	if err != nil {
		return nil, err
	}
	err = writeShdr(sectionHeader{
		Name:      plan.shstrtabNameOff,
		Type:      uint32(SHT_STRTAB),
		Offset:    plan.shstrtabOff,
		Size:      uint32(len(plan.shstrtabData)),
		AddrAlign: 1,
	})
	if err != nil {
		return nil, err
	}
	if plan.commentData != nil {
		err = writeShdr(sectionHeader{
			Name:      plan.commentNameOff,
			Type:      uint32(SHT_PROGBITS),
			Offset:    plan.commentOff,
			Size:      uint32(len(plan.commentData)),
			AddrAlign: 1,
			EntSize:   1,
		})
		if err != nil {
			return nil, err
		}
	}

	if err := check(plan.total, "end of file"); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeMaskedSectionData emits section data with the link-time bits of
// every relocated word cleared.
func writeMaskedSectionData(buf *bytes.Buffer, sec *obj.Section) error {
	if sec.Address != 0 {
		return errors.Errorf("relocatable section %s has non-zero address %#x", sec.Name, sec.Address)
	}
	cur := 0
	for _, ra := range sec.Relocations.All() {
		addr := int(ra.Addr)
		if addr < cur || addr+4 > len(sec.Data) {
			return errors.Errorf("internal: relocation at %#x outside section %s", ra.Addr, sec.Name)
		}
		buf.Write(sec.Data[cur:addr])
		word := binary.BigEndian.Uint32(sec.Data[addr:])
		var masked [4]byte
		binary.BigEndian.PutUint32(masked[:], maskReloc(ra.Reloc.Kind, word))
		buf.Write(masked[:])
		cur = addr + 4
	}
	buf.Write(sec.Data[cur:])
	return nil
}
