package sod

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"
	"strings"
)

// ErrSignature indicates the SOD signature did not verify under the DSC key.
var ErrSignature = errors.New("sod signature verification failed")

// VerifySignature checks the signer-info signature against the DSC public
// key. The DSC is the only trust anchor here; chain validation happens
// separately in the chain validator.
//
// With signed attributes present (the normal case), RFC 5652 §5.4 applies:
// the messageDigest attribute must match the digest of the encapsulated
// content, and the signature covers the DER of the attribute set re-tagged
// as SET OF.
func (s *SecurityObject) VerifySignature(dsc *x509.Certificate) error {
	if dsc == nil {
		return fmt.Errorf("%w: no signer certificate", ErrSignature)
	}
	h, err := HashFor(s.DigestAlgorithm)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignature, err)
	}

	hasher := h.New()
	hasher.Write(s.EncapContent)
	contentDigest := hasher.Sum(nil)

	signedMessageDigest := contentDigest
	if len(s.signer.SignedAttrs.FullBytes) > 0 {
		expected, err := s.messageDigestAttr()
		if err != nil {
			return err
		}
		if !bytes.Equal(expected, contentDigest) {
			return fmt.Errorf("%w: messageDigest attribute does not match encapsulated content", ErrSignature)
		}

		// The signature covers the attributes DER with the implicit [0] tag
		// replaced by the universal SET OF tag.
		attrs := make([]byte, len(s.signer.SignedAttrs.FullBytes))
		copy(attrs, s.signer.SignedAttrs.FullBytes)
		attrs[0] = 0x31

		hasher = h.New()
		hasher.Write(attrs)
		signedMessageDigest = hasher.Sum(nil)
	}

	switch {
	case strings.HasSuffix(s.SignatureAlgorithm, "withRSA"):
		pub, ok := dsc.PublicKey.(*rsa.PublicKey)
		if !ok {
			return fmt.Errorf("%w: %s signature but DSC key is %T", ErrSignature, s.SignatureAlgorithm, dsc.PublicKey)
		}
		if err := rsa.VerifyPKCS1v15(pub, h, signedMessageDigest, s.signer.Signature); err != nil {
			return fmt.Errorf("%w: %v", ErrSignature, err)
		}
	case strings.HasSuffix(s.SignatureAlgorithm, "withECDSA"):
		pub, ok := dsc.PublicKey.(*ecdsa.PublicKey)
		if !ok {
			return fmt.Errorf("%w: %s signature but DSC key is %T", ErrSignature, s.SignatureAlgorithm, dsc.PublicKey)
		}
		if !ecdsa.VerifyASN1(pub, signedMessageDigest, s.signer.Signature) {
			return fmt.Errorf("%w: ECDSA verification failed", ErrSignature)
		}
	default:
		return fmt.Errorf("%w: unsupported signature algorithm %s", ErrSignature, s.SignatureAlgorithm)
	}
	return nil
}

// messageDigestAttr extracts the signed messageDigest attribute value.
func (s *SecurityObject) messageDigestAttr() ([]byte, error) {
	raw := signedAttrValue(s.signer, oidAttributeMessageDigest)
	if raw == nil {
		return nil, fmt.Errorf("%w: signed attributes carry no messageDigest", ErrSignature)
	}
	var digest []byte
	if _, err := asn1.Unmarshal(raw, &digest); err != nil {
		return nil, fmt.Errorf("%w: malformed messageDigest attribute: %v", ErrSignature, err)
	}
	return digest, nil
}
