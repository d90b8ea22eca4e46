// SPDX-License-Identifier: MIT

// Package comment implements the vendor ".comment" metadata sub-format: a
// fixed header followed by one fixed-size record per symbol table entry,
// carrying alignment and visibility hints not representable in standard ELF
// symbol records.
package comment

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const (
	// HeaderSize is the encoded size of Header.
	HeaderSize = 44
	// SymSize is the encoded size of one per-symbol record.
	SymSize = 8
)

var magic = [12]byte{'C', 'o', 'd', 'e', 'W', 'a', 'r', 'r', 'i', 'o', 'r', '\n'}

type FloatKind uint8

const (
	FloatNone FloatKind = iota
	FloatSoft
	FloatHard
)

// Header is the fixed section header preceding the per-symbol records.
type Header struct {
	Version         uint8
	CompilerVersion [4]uint8
	PooledData      bool
	Float           FloatKind
	Processor       uint16
	IncompatFlags   uint8
}

type rawHeader struct {
	Magic           [12]byte
	Version         uint8
	CompilerVersion [4]uint8
	PooledData      uint8
	Float           uint8
	Processor       uint16
	IncompatFlags   uint8
	Reserved        [22]uint8
}

// ParseHeader reads and validates the fixed section header.
func ParseHeader(r io.Reader) (*Header, error) {
	var raw rawHeader
	if err := binary.Read(r, binary.BigEndian, &raw); err != nil {
		return nil, errors.Wrap(err, "reading comment header")
	}
	if !bytes.Equal(raw.Magic[:], magic[:]) {
		return nil, errors.Errorf("invalid comment section magic %q", raw.Magic)
	}
	if raw.PooledData > 1 {
		return nil, errors.Errorf("invalid pooled data flag %d", raw.PooledData)
	}
	if raw.Float > uint8(FloatHard) {
		return nil, errors.Errorf("invalid float kind %d", raw.Float)
	}
	return &Header{
		Version:         raw.Version,
		CompilerVersion: raw.CompilerVersion,
		PooledData:      raw.PooledData != 0,
		Float:           FloatKind(raw.Float),
		Processor:       raw.Processor,
		IncompatFlags:   raw.IncompatFlags,
	}, nil
}

func (h *Header) Write(w io.Writer) error {
	raw := rawHeader{
		Magic:           magic,
		Version:         h.Version,
		CompilerVersion: h.CompilerVersion,
		Float:           uint8(h.Float),
		Processor:       h.Processor,
		IncompatFlags:   h.IncompatFlags,
	}
	if h.PooledData {
		raw.PooledData = 1
	}
	return errors.Wrap(binary.Write(w, binary.BigEndian, &raw), "writing comment header")
}

// Sym is the per-symbol metadata record. Records appear in symbol table
// order, one per entry including the null symbol.
type Sym struct {
	Align       uint32
	VisFlags    uint8
	ActiveFlags uint8
}

// VisFlagHidden marks a symbol with hidden linkage visibility.
const VisFlagHidden = 0x0E

type rawSym struct {
	Align       uint32
	VisFlags    uint8
	ActiveFlags uint8
	Reserved    [2]uint8
}

func ReadSym(r io.Reader) (Sym, error) {
	var raw rawSym
	if err := binary.Read(r, binary.BigEndian, &raw); err != nil {
		return Sym{}, errors.Wrap(err, "reading comment symbol record")
	}
	return Sym{Align: raw.Align, VisFlags: raw.VisFlags, ActiveFlags: raw.ActiveFlags}, nil
}

func WriteSym(w io.Writer, s Sym) error {
	raw := rawSym{Align: s.Align, VisFlags: s.VisFlags, ActiveFlags: s.ActiveFlags}
	return errors.Wrap(binary.Write(w, binary.BigEndian, &raw), "writing comment symbol record")
}

// SymFor builds the record emitted alongside an ordinary symbol.
func SymFor(align uint32, hidden bool) Sym {
	s := Sym{Align: align}
	if hidden {
		s.VisFlags = VisFlagHidden
	}
	return s
}
