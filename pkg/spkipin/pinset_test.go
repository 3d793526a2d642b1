// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package spkipin

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakePin(b byte) Pin {
	return Pin{Algorithm: SHA256, Digest: bytes.Repeat([]byte{b}, sha256.Size)}
}

func TestNewPinSet_Deduplicates(t *testing.T) {
	set := NewPinSet(fakePin(1), fakePin(2), fakePin(1))
	require.Len(t, set, 2)
	assert.True(t, set[0].Equal(fakePin(1)))
	assert.True(t, set[1].Equal(fakePin(2)))
}

func TestPinSet_Intersects(t *testing.T) {
	a := NewPinSet(fakePin(1), fakePin(2))
	b := NewPinSet(fakePin(3), fakePin(2))
	c := NewPinSet(fakePin(4))

	assert.True(t, a.Intersects(b))
	assert.False(t, a.Intersects(c))
	assert.False(t, a.Intersects(nil))
	assert.False(t, PinSet(nil).Intersects(a))
}

func TestPinSet_AddDoesNotAlias(t *testing.T) {
	base := make(PinSet, 0, 4)
	base = base.Add(fakePin(1))

	x := base.Add(fakePin(2))
	y := base.Add(fakePin(3))

	assert.True(t, x[1].Equal(fakePin(2)))
	assert.True(t, y[1].Equal(fakePin(3)))
}

func TestPinSet_Algorithms(t *testing.T) {
	set := NewPinSet(fakePin(1), Pin{Algorithm: SHA512, Digest: make([]byte, 64)}, fakePin(2))
	assert.Equal(t, []Algorithm{SHA256, SHA512}, set.Algorithms())
}

func TestParsePinSet(t *testing.T) {
	set, err := ParsePinSet([]string{fakePin(1).String(), fakePin(1).String(), fakePin(9).String()})
	require.NoError(t, err)
	assert.Equal(t, []string{fakePin(1).String(), fakePin(9).String()}, set.Strings())

	_, err = ParsePinSet([]string{"nope"})
	assert.ErrorIs(t, err, ErrInvalidPinFormat)
}

func TestPinSet_Clone(t *testing.T) {
	set := NewPinSet(fakePin(1))
	clone := set.Clone()
	clone[0].Digest[0] = 0xff

	assert.Equal(t, byte(1), set[0].Digest[0])
	assert.Nil(t, PinSet(nil).Clone())
}
