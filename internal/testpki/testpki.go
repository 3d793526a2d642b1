// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package testpki generates throwaway certificate hierarchies for tests.
package testpki

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-trustpin/pkg/spkipin"
)

var serial atomic.Int64

// CA is a certificate authority able to issue intermediates and leaves.
type CA struct {
	Cert *x509.Certificate
	Key  *ecdsa.PrivateKey
}

// Leaf is an end-entity certificate and its key.
type Leaf struct {
	Cert *x509.Certificate
	Key  *ecdsa.PrivateKey
}

func newKey(t testing.TB) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func issue(t testing.TB, tmpl, parent *x509.Certificate, pub *ecdsa.PublicKey, signer *ecdsa.PrivateKey) *x509.Certificate {
	t.Helper()
	tmpl.SerialNumber = big.NewInt(serial.Add(1))
	der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, pub, signer)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func caTemplate(cn string) *x509.Certificate {
	return &x509.Certificate{
		Subject:               pkix.Name{CommonName: cn, Organization: []string{"Test Org"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
}

// NewRoot creates a self-signed root CA.
func NewRoot(t testing.TB, cn string) *CA {
	t.Helper()
	key := newKey(t)
	tmpl := caTemplate(cn)
	return &CA{Cert: issue(t, tmpl, tmpl, &key.PublicKey, key), Key: key}
}

// NewIntermediate issues a subordinate CA.
func (ca *CA) NewIntermediate(t testing.TB, cn string) *CA {
	t.Helper()
	key := newKey(t)
	return &CA{Cert: issue(t, caTemplate(cn), ca.Cert, &key.PublicKey, ca.Key), Key: key}
}

// NewLeaf issues a server certificate valid for dnsNames, currently valid.
func (ca *CA) NewLeaf(t testing.TB, dnsNames ...string) *Leaf {
	t.Helper()
	return ca.NewLeafValidity(t, time.Now().Add(-time.Hour), time.Now().Add(24*time.Hour), dnsNames...)
}

// NewLeafValidity issues a server certificate with an explicit validity period.
func (ca *CA) NewLeafValidity(t testing.TB, notBefore, notAfter time.Time, dnsNames ...string) *Leaf {
	t.Helper()
	key := newKey(t)
	cn := ""
	if len(dnsNames) > 0 {
		cn = dnsNames[0]
	}
	tmpl := &x509.Certificate{
		Subject:     pkix.Name{CommonName: cn},
		DNSNames:    dnsNames,
		NotBefore:   notBefore,
		NotAfter:    notAfter,
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	return &Leaf{Cert: issue(t, tmpl, ca.Cert, &key.PublicKey, ca.Key), Key: key}
}

// TLSCertificate returns the leaf as a tls.Certificate that serves the
// given intermediates after the leaf.
func (l *Leaf) TLSCertificate(intermediates ...*x509.Certificate) tls.Certificate {
	chain := [][]byte{l.Cert.Raw}
	for _, c := range intermediates {
		chain = append(chain, c.Raw)
	}
	return tls.Certificate{Certificate: chain, PrivateKey: l.Key, Leaf: l.Cert}
}

// Pool returns a cert pool containing certs.
func Pool(certs ...*x509.Certificate) *x509.CertPool {
	pool := x509.NewCertPool()
	for _, c := range certs {
		pool.AddCert(c)
	}
	return pool
}

// Pin returns the SHA-256 SPKI pin of cert.
func Pin(t testing.TB, cert *x509.Certificate) spkipin.Pin {
	t.Helper()
	pin, err := spkipin.ComputePin(cert, spkipin.SHA256)
	require.NoError(t, err)
	return pin
}

// PEM encodes certs as a PEM bundle.
func PEM(certs ...*x509.Certificate) []byte {
	var out []byte
	for _, c := range certs {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.Raw})...)
	}
	return out
}
