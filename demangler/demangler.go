// SPDX-License-Identifier: MIT

// Package demangler provides best-effort demangling of linker symbol names.
package demangler

import (
	"github.com/ianlancetaylor/demangle"
)

// Demangle returns the demangled form of name, or false if the name does
// not demangle.
func Demangle(name string) (string, bool) {
	out, err := demangle.ToString(name)
	if err != nil {
		return "", false
	}
	return out, true
}
