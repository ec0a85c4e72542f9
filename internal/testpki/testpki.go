// Package testpki generates throwaway trust material for tests: CSCAs,
// DSCs, CRLs, and complete security objects signed the way ePassport
// issuers sign them. Everything is built in-process with fresh keys, so
// tests never depend on fixture files.
package testpki

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"
)

// Authority is a self-signed CSCA with its private key.
type Authority struct {
	Certificate *x509.Certificate
	DER         []byte
	Key         *ecdsa.PrivateKey
}

// Credential is an end-entity certificate (a DSC) with its private key.
type Credential struct {
	Certificate *x509.Certificate
	DER         []byte
	Key         crypto.Signer
}

// NewCSCA creates a self-signed country signing CA for the given alpha-2
// country code.
func NewCSCA(country, commonName string, notBefore, notAfter time.Time) *Authority {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic(err)
	}
	template := &x509.Certificate{
		SerialNumber: randomSerial(),
		Subject: pkix.Name{
			Country:      []string{country},
			Organization: []string{"Test Government"},
			CommonName:   commonName,
		},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		panic(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		panic(err)
	}
	return &Authority{Certificate: cert, DER: der, Key: key}
}

// IssueDSC issues an ECDSA document signer certificate under this CSCA.
func (a *Authority) IssueDSC(commonName string, notBefore, notAfter time.Time) *Credential {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic(err)
	}
	return a.issue(commonName, notBefore, notAfter, key)
}

// IssueRSADSC issues an RSA-keyed document signer certificate, matching the
// legacy issuers that still sign SODs with PKCS#1 v1.5.
func (a *Authority) IssueRSADSC(commonName string, notBefore, notAfter time.Time) *Credential {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return a.issue(commonName, notBefore, notAfter, key)
}

func (a *Authority) issue(commonName string, notBefore, notAfter time.Time, key crypto.Signer) *Credential {
	template := &x509.Certificate{
		SerialNumber: randomSerial(),
		Subject: pkix.Name{
			Country:    a.Certificate.Subject.Country,
			CommonName: commonName,
		},
		NotBefore: notBefore,
		NotAfter:  notAfter,
		KeyUsage:  x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, a.Certificate, key.Public(), a.Key)
	if err != nil {
		panic(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		panic(err)
	}
	return &Credential{Certificate: cert, DER: der, Key: key}
}

// SignCRL issues a CRL under this CSCA revoking the given serial numbers.
func (a *Authority) SignCRL(revokedSerials []*big.Int, thisUpdate, nextUpdate time.Time) []byte {
	entries := make([]x509.RevocationListEntry, 0, len(revokedSerials))
	for _, serial := range revokedSerials {
		entries = append(entries, x509.RevocationListEntry{
			SerialNumber:   serial,
			RevocationTime: thisUpdate,
		})
	}
	template := &x509.RevocationList{
		Number:                    randomSerial(),
		ThisUpdate:                thisUpdate,
		NextUpdate:                nextUpdate,
		RevokedCertificateEntries: entries,
	}
	der, err := x509.CreateRevocationList(rand.Reader, template, a.Certificate, a.Key)
	if err != nil {
		panic(err)
	}
	return der
}

func randomSerial() *big.Int {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
	if err != nil {
		panic(err)
	}
	// Keep serials positive and non-zero.
	return serial.Add(serial, big.NewInt(1))
}

// TD3MRZ renders a minimal two-line TD-3 machine readable zone wrapped in a
// DG1 template (tag 61 containing tag 5F1F).
func TD3MRZ(alpha3, documentNumber string) []byte {
	line1 := pad44("P<" + alpha3)
	line2 := pad44(padTo(documentNumber, 9))
	mrz := []byte(line1 + line2)

	inner := append([]byte{0x5F, 0x1F, byte(len(mrz))}, mrz...)
	return append([]byte{0x61, byte(len(inner))}, inner...)
}

func pad44(s string) string { return padTo(s, 44) }

func padTo(s string, n int) string {
	for len(s) < n {
		s += "<"
	}
	if len(s) > n {
		panic(fmt.Sprintf("testpki: %q longer than %d", s, n))
	}
	return s
}
