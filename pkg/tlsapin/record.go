// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package tlsapin

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/jeremyhahn/go-trustpin/pkg/spkipin"
)

// Certificate usage values, RFC 6698 Section 2.1.1.
const (
	UsagePKIXTA uint8 = 0
	UsagePKIXEE uint8 = 1
	UsageDANETA uint8 = 2
	UsageDANEEE uint8 = 3
)

// Selector values, RFC 6698 Section 2.1.2.
const (
	SelectorCert uint8 = 0
	SelectorSPKI uint8 = 1
)

// Matching type values, RFC 6698 Section 2.1.3.
const (
	MatchingExact  uint8 = 0
	MatchingSHA256 uint8 = 1
	MatchingSHA512 uint8 = 2
)

// matchingAlgorithms maps hash matching types onto pin algorithms.
var matchingAlgorithms = map[uint8]spkipin.Algorithm{
	MatchingSHA256: spkipin.SHA256,
	MatchingSHA512: spkipin.SHA512,
}

// algorithmMatching is the inverse of matchingAlgorithms.
var algorithmMatching = map[spkipin.Algorithm]uint8{
	spkipin.SHA256: MatchingSHA256,
	spkipin.SHA512: MatchingSHA512,
}

// Record is a parsed TLSA resource record.
type Record struct {
	Usage        uint8
	Selector     uint8
	MatchingType uint8
	Data         []byte
}

// Pin converts an SPKI hash record into a pin. Records over the full
// certificate or carrying raw key material fail with ErrUnsupportedRecord.
func (r *Record) Pin() (spkipin.Pin, error) {
	if r.Selector != SelectorSPKI {
		return spkipin.Pin{}, fmt.Errorf("%w: selector %d", ErrUnsupportedRecord, r.Selector)
	}
	alg, ok := matchingAlgorithms[r.MatchingType]
	if !ok {
		return spkipin.Pin{}, fmt.Errorf("%w: matching type %d", ErrUnsupportedRecord, r.MatchingType)
	}
	// Round-trip through the canonical form so the digest length is checked.
	pin := spkipin.Pin{Algorithm: alg, Digest: r.Data}
	return spkipin.ParsePin(pin.String())
}

// ZoneRecord is a TLSA record rendered for a DNS zone file.
type ZoneRecord struct {
	// Name is the owner name, e.g. "_443._tcp.example.com.".
	Name string

	// Line is the zone file line,
	// e.g. "_443._tcp.example.com. IN TLSA 2 1 1 a1b2...".
	Line string
}

// FormatRecord renders pin as a TLSA record for hostname and port with the
// given certificate usage.
func FormatRecord(pin spkipin.Pin, hostname string, port uint16, usage uint8) (*ZoneRecord, error) {
	if err := validateName(hostname); err != nil {
		return nil, err
	}
	if port == 0 {
		return nil, ErrInvalidPort
	}
	matching, ok := algorithmMatching[pin.Algorithm]
	if !ok {
		return nil, fmt.Errorf("%w: %s", spkipin.ErrUnsupportedAlgorithm, pin.Algorithm)
	}
	name := tlsaName(hostname, port)
	return &ZoneRecord{
		Name: name,
		Line: fmt.Sprintf("%s IN TLSA %d %d %d %s", name, usage, SelectorSPKI, matching, hex.EncodeToString(pin.Digest)),
	}, nil
}

func validateName(hostname string) error {
	if hostname == "" || len(hostname) > 253 || strings.ContainsAny(hostname, "\x00 /") {
		return ErrInvalidHostname
	}
	return nil
}

// tlsaName returns the owner name "_<port>._tcp.<hostname>." per RFC 6698
// Section 3.
func tlsaName(hostname string, port uint16) string {
	if !strings.HasSuffix(hostname, ".") {
		hostname += "."
	}
	return fmt.Sprintf("_%d._tcp.%s", port, hostname)
}
