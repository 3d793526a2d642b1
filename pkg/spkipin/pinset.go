// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package spkipin

// PinSet is an ordered set of pins. The zero value is an empty set.
// Methods never modify the receiver's backing array in place.
type PinSet []Pin

// NewPinSet builds a set from pins, dropping duplicates while keeping the
// first occurrence order.
func NewPinSet(pins ...Pin) PinSet {
	var set PinSet
	for _, p := range pins {
		set = set.Add(p)
	}
	return set
}

// ParsePinSet parses each string with ParsePin.
func ParsePinSet(values []string) (PinSet, error) {
	set := make(PinSet, 0, len(values))
	for _, v := range values {
		p, err := ParsePin(v)
		if err != nil {
			return nil, err
		}
		set = set.Add(p)
	}
	return set, nil
}

// Add returns the set with p appended unless already present.
func (s PinSet) Add(p Pin) PinSet {
	if s.Contains(p) {
		return s
	}
	return append(s[:len(s):len(s)], p)
}

// Contains reports whether p is a member of the set.
func (s PinSet) Contains(p Pin) bool {
	for _, q := range s {
		if q.Equal(p) {
			return true
		}
	}
	return false
}

// Intersects reports whether the two sets share at least one pin.
func (s PinSet) Intersects(other PinSet) bool {
	for _, p := range other {
		if s.Contains(p) {
			return true
		}
	}
	return false
}

// Algorithms returns the distinct algorithms used by the set, in first-seen order.
func (s PinSet) Algorithms() []Algorithm {
	var algs []Algorithm
	seen := make(map[Algorithm]bool, 2)
	for _, p := range s {
		if !seen[p.Algorithm] {
			seen[p.Algorithm] = true
			algs = append(algs, p.Algorithm)
		}
	}
	return algs
}

// Strings renders every pin with Pin.String.
func (s PinSet) Strings() []string {
	out := make([]string, len(s))
	for i, p := range s {
		out[i] = p.String()
	}
	return out
}

// Clone returns an independent copy of the set.
func (s PinSet) Clone() PinSet {
	if s == nil {
		return nil
	}
	out := make(PinSet, len(s))
	for i, p := range s {
		out[i] = Pin{Algorithm: p.Algorithm, Digest: append([]byte(nil), p.Digest...)}
	}
	return out
}
