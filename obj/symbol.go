// SPDX-License-Identifier: MIT

package obj

type SymbolKind int

const (
	SymbolUnknown SymbolKind = iota
	SymbolFunction
	SymbolObject
	SymbolSection
)

func (k SymbolKind) String() string {
	switch k {
	case SymbolFunction:
		return "function"
	case SymbolObject:
		return "object"
	case SymbolSection:
		return "section"
	default:
		return "unknown"
	}
}

type SymbolFlags uint8

const (
	SymbolGlobal SymbolFlags = 1 << iota
	SymbolLocal
	SymbolWeak
	SymbolCommon
	SymbolHidden
)

func (f SymbolFlags) IsGlobal() bool { return f&SymbolGlobal != 0 }
func (f SymbolFlags) IsLocal() bool  { return f&SymbolLocal != 0 }
func (f SymbolFlags) IsWeak() bool   { return f&SymbolWeak != 0 }
func (f SymbolFlags) IsCommon() bool { return f&SymbolCommon != 0 }
func (f SymbolFlags) IsHidden() bool { return f&SymbolHidden != 0 }

type Symbol struct {
	Name string
	// DemangledName is a best-effort demangling of Name; empty if the name
	// did not demangle.
	DemangledName string
	Address       uint64
	// Section is an index into Object.Sections, or -1 when the symbol is
	// undefined, absolute or common.
	Section   int
	Size      uint64
	SizeKnown bool
	Flags     SymbolFlags
	Kind      SymbolKind
	// Align is an alignment hint recovered from vendor metadata; 0 when
	// unknown.
	Align uint32
}
