// SPDX-License-Identifier: MIT

package elf

type FileClass uint8

const (
	ELFCLASS32 FileClass = 1
	ELFCLASS64 FileClass = 2
)

type FileEndian uint8

const (
	ELFDATA2LSB FileEndian = 1
	ELFDATA2MSB FileEndian = 2
)

const (
	EV_CURRENT    = 1
	ELFOSABI_SYSV = 0
)

type FileType uint16

const (
	ET_NONE FileType = 0
	ET_REL  FileType = 1
	ET_EXEC FileType = 2
	ET_DYN  FileType = 3
	ET_CORE FileType = 4
)

type MachineType uint16

const (
	EM_NONE MachineType = 0
	EM_PPC  MachineType = 20 // PowerPC
)

// EF_PPC_EMB marks PowerPC embedded ABI conformance in e_flags.
const EF_PPC_EMB = 0x80000000

// Section header index
const (
	SHN_UNDEF     = 0
	SHN_LORESERVE = 0xFF00
	SHN_ABS       = 0xFFF1
	SHN_COMMON    = 0xFFF2
	SHN_XINDEX    = 0xFFFF
)

type SectionHeaderType uint32

const (
	SHT_NULL     SectionHeaderType = 0
	SHT_PROGBITS SectionHeaderType = 1
	SHT_SYMTAB   SectionHeaderType = 2
	SHT_STRTAB   SectionHeaderType = 3
	SHT_RELA     SectionHeaderType = 4
	SHT_HASH     SectionHeaderType = 5
	SHT_DYNAMIC  SectionHeaderType = 6
	SHT_NOTE     SectionHeaderType = 7
	SHT_NOBITS   SectionHeaderType = 8
	SHT_REL      SectionHeaderType = 9
	SHT_SHLIB    SectionHeaderType = 10
	SHT_DYNSYM   SectionHeaderType = 11
)

func (s SectionHeaderType) HasDataInFile() bool {
	return s != SHT_NULL && s != SHT_NOBITS
}

type SectionHeaderFlag uint32

const (
	SHF_WRITE     SectionHeaderFlag = 0x00000001
	SHF_ALLOC     SectionHeaderFlag = 0x00000002
	SHF_EXECINSTR SectionHeaderFlag = 0x00000004
	SHF_MERGE     SectionHeaderFlag = 0x00000010
	SHF_STRINGS   SectionHeaderFlag = 0x00000020
)

type SymbolType uint8

const (
	STT_NOTYPE  SymbolType = 0
	STT_OBJECT  SymbolType = 1
	STT_FUNC    SymbolType = 2
	STT_SECTION SymbolType = 3
	STT_FILE    SymbolType = 4
	STT_COMMON  SymbolType = 5
)

type SymbolBinding uint8

const (
	STB_LOCAL  SymbolBinding = 0
	STB_GLOBAL SymbolBinding = 1
	STB_WEAK   SymbolBinding = 2
)

type SymbolVisibility uint8

const (
	STV_DEFAULT   SymbolVisibility = 0
	STV_INTERNAL  SymbolVisibility = 1
	STV_HIDDEN    SymbolVisibility = 2
	STV_PROTECTED SymbolVisibility = 3
)

type ProgramHeaderType uint32

const (
	PT_NULL ProgramHeaderType = 0
	PT_LOAD ProgramHeaderType = 1
)

type ProgramHeaderFlag uint32

const (
	PF_X ProgramHeaderFlag = 0x1
	PF_W ProgramHeaderFlag = 0x2
	PF_R ProgramHeaderFlag = 0x4
)

// PowerPC relocation types
const (
	R_PPC_NONE      uint32 = 0
	R_PPC_ADDR32    uint32 = 1
	R_PPC_ADDR16_LO uint32 = 4
	R_PPC_ADDR16_HI uint32 = 5
	R_PPC_ADDR16_HA uint32 = 6
	R_PPC_REL24     uint32 = 10
	R_PPC_REL14     uint32 = 11
	R_PPC_UADDR32   uint32 = 24
	R_PPC_EMB_SDA21 uint32 = 109
)
