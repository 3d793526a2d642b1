// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package spkipin

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// Algorithm identifies the hash function a pin was computed with.
type Algorithm string

const (
	// SHA256 is the SHA-256 pin algorithm. This is the only algorithm
	// accepted by HPKP and the most widely deployed.
	SHA256 Algorithm = "sha256"

	// SHA512 is the SHA-512 pin algorithm.
	SHA512 Algorithm = "sha512"
)

// Hasher computes a digest over the DER-encoded SubjectPublicKeyInfo.
type Hasher func(spki []byte) []byte

// hashers provides O(1) lookup from algorithm tag to hash strategy.
var hashers = map[Algorithm]Hasher{
	SHA256: func(d []byte) []byte { h := sha256.Sum256(d); return h[:] },
	SHA512: func(d []byte) []byte { h := sha512.Sum512(d); return h[:] },
}

// digestSizes holds the expected digest length per algorithm.
var digestSizes = map[Algorithm]int{
	SHA256: sha256.Size,
	SHA512: sha512.Size,
}

// HasherFor returns the hash strategy registered for alg.
func HasherFor(alg Algorithm) (Hasher, error) {
	h, ok := hashers[alg]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
	return h, nil
}

// Pin is a public key fingerprint: an algorithm tag and the digest of a
// certificate's SubjectPublicKeyInfo.
type Pin struct {
	Algorithm Algorithm
	Digest    []byte
}

// String renders the pin as "<algorithm>/<base64 digest>".
func (p Pin) String() string {
	return string(p.Algorithm) + "/" + base64.StdEncoding.EncodeToString(p.Digest)
}

// Equal reports whether two pins have the same algorithm and digest.
// The digest comparison is constant-time.
func (p Pin) Equal(other Pin) bool {
	if p.Algorithm != other.Algorithm {
		return false
	}
	return subtle.ConstantTimeCompare(p.Digest, other.Digest) == 1
}

// MarshalText implements encoding.TextMarshaler.
func (p Pin) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Pin) UnmarshalText(text []byte) error {
	parsed, err := ParsePin(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePin parses a pin in "sha256/<base64>" or "sha256:<base64>" form.
// The algorithm tag is case-insensitive and the decoded digest must have
// the length of the named algorithm.
func ParsePin(s string) (Pin, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Pin{}, ErrNoPinConfigured
	}
	idx := strings.IndexAny(s, "/:")
	if idx <= 0 || idx == len(s)-1 {
		return Pin{}, fmt.Errorf("%w: %q", ErrInvalidPinFormat, s)
	}
	alg := Algorithm(strings.ToLower(s[:idx]))
	size, ok := digestSizes[alg]
	if !ok {
		return Pin{}, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, s[:idx])
	}
	digest, err := base64.StdEncoding.DecodeString(s[idx+1:])
	if err != nil {
		return Pin{}, fmt.Errorf("%w: %q: %w", ErrInvalidPinFormat, s, err)
	}
	if len(digest) != size {
		return Pin{}, fmt.Errorf("%w: %s digest must be %d bytes, got %d",
			ErrInvalidPinFormat, alg, size, len(digest))
	}
	return Pin{Algorithm: alg, Digest: digest}, nil
}

// ComputePin hashes the certificate's SubjectPublicKeyInfo with alg.
func ComputePin(cert *x509.Certificate, alg Algorithm) (Pin, error) {
	if cert == nil {
		return Pin{}, ErrInvalidCertificate
	}
	h, err := HasherFor(alg)
	if err != nil {
		return Pin{}, err
	}
	return Pin{Algorithm: alg, Digest: h(cert.RawSubjectPublicKeyInfo)}, nil
}

// ComputeChainPins computes one pin per certificate and algorithm, in
// chain order. Nil certificates are skipped.
func ComputeChainPins(chain []*x509.Certificate, algs []Algorithm) (PinSet, error) {
	var set PinSet
	for _, cert := range chain {
		if cert == nil {
			continue
		}
		for _, alg := range algs {
			pin, err := ComputePin(cert, alg)
			if err != nil {
				return nil, err
			}
			set = set.Add(pin)
		}
	}
	return set, nil
}

// ComputeSPKIPin returns the hex-encoded SHA-256 digest of the certificate's
// SubjectPublicKeyInfo, the form used in TLSA record data.
func ComputeSPKIPin(cert *x509.Certificate) string {
	hash := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
	return hex.EncodeToString(hash[:])
}
