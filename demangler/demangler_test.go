// SPDX-License-Identifier: MIT

package demangler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDemangle(t *testing.T) {
	out, ok := Demangle("_ZN3Foo3barEv")
	assert.True(t, ok)
	assert.Equal(t, "Foo::bar()", out)

	_, ok = Demangle("main")
	assert.False(t, ok, "plain names do not demangle")
}
