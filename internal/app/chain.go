package app

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sufield/pkdpa/internal/domain"
	"github.com/sufield/pkdpa/internal/ports"
)

// ChainValidator resolves a DSC's issuing CSCA, verifies the signature
// binding, evaluates point-in-time validity, and checks revocation.
//
// Trust decision: the single-step DSC.CheckSignatureFrom(CSCA) is
// authoritative. Window checks are evaluated separately because ICAO
// Doc 9303 point-in-time validation accepts chains the standard library
// verifier would reject as expired.
type ChainValidator struct {
	trust  ports.TrustMaterialProvider
	certs  ports.CertificateStore
	clock  func() time.Time
	logger *zap.Logger
}

// ChainValidatorOption configures a ChainValidator.
type ChainValidatorOption func(*ChainValidator)

// WithChainClock injects the time source (tests pin it).
func WithChainClock(clock func() time.Time) ChainValidatorOption {
	return func(v *ChainValidator) { v.clock = clock }
}

// WithChainLogger sets a structured logger.
func WithChainLogger(logger *zap.Logger) ChainValidatorOption {
	return func(v *ChainValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// NewChainValidator creates a validator over the given trust material
// provider. The certificate store is optional; when present, revalidation
// results are materialized through it.
func NewChainValidator(trust ports.TrustMaterialProvider, certs ports.CertificateStore, opts ...ChainValidatorOption) *ChainValidator {
	v := &ChainValidator{
		trust:  trust,
		certs:  certs,
		clock:  time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateChain runs the full chain procedure for one DSC.
// countryCode may be empty (derived from the DSC issuer DN), signingTime may
// be nil (point-in-time fields stay unset).
func (v *ChainValidator) ValidateChain(ctx context.Context, dscDER []byte, countryCode string, signingTime *time.Time) (*domain.ChainValidation, error) {
	now := v.clock()
	result := &domain.ChainValidation{
		CrlStatus:        domain.CrlNotChecked,
		ExpirationStatus: domain.ExpirationValid,
	}

	dsc, err := x509.ParseCertificate(dscDER)
	if err != nil {
		result.ValidationErrors = fmt.Sprintf("DSC does not parse: %v", err)
		return result, nil
	}

	result.DSCSubject = dsc.Subject.String()
	result.DSCIssuer = dsc.Issuer.String()
	result.DSCSerialNumber = fmt.Sprintf("%x", dsc.SerialNumber)
	result.DSCExpired = now.After(dsc.NotAfter)

	if signingTime != nil {
		st := *signingTime
		result.SigningTime = &st
		validAtSigning := !st.Before(dsc.NotBefore) && !st.After(dsc.NotAfter)
		result.ValidAtSigningTime = &validAtSigning
	}

	country := countryCode
	if country == "" {
		country = domain.DNAttribute(result.DSCIssuer, "C")
	}
	normalized, err := domain.NormalizeCountry(country)
	if err != nil {
		result.ValidationErrors = fmt.Sprintf("no usable country code for DSC issuer %s", result.DSCIssuer)
		result.ExpirationStatus = domain.ExpirationStatusFor(now, dsc.NotAfter, result.DSCExpired, false)
		result.ExpirationMessage = domain.MessageForExpirationStatus(result.ExpirationStatus)
		result.CrlMessage = domain.MessageForCrlStatus(result.CrlStatus)
		return result, nil
	}
	result.CountryCode = normalized

	csca, cscaRecord, findErr := v.resolveCSCA(ctx, dsc, result.DSCIssuer, normalized, now)
	if findErr != nil {
		return nil, findErr
	}
	if csca == nil {
		result.ValidationErrors = fmt.Sprintf("CSCA not found for issuer %s: DSC not signed by any known CSCA for %s", result.DSCIssuer, normalized)
		result.ExpirationMessage = domain.MessageForExpirationStatus(result.ExpirationStatus)
		result.CrlMessage = domain.MessageForCrlStatus(result.CrlStatus)
		v.logger.Warn("chain validation: no binding CSCA",
			zap.String("country", normalized),
			zap.String("dsc_issuer", result.DSCIssuer))
		return result, nil
	}

	result.SignatureVerified = true
	result.CSCASubject = csca.Subject.String()
	result.CSCASerialNumber = fmt.Sprintf("%x", csca.SerialNumber)
	result.CSCAExpired = now.After(csca.NotAfter)

	// RFC 5280 §6.1: a self-signed root must carry a valid self-signature.
	if domain.DNEqual(result.CSCASubject, csca.Issuer.String()) {
		if err := csca.CheckSignature(csca.SignatureAlgorithm, csca.RawTBSCertificate, csca.Signature); err != nil {
			result.SignatureVerified = false
			result.ValidationErrors = "CSCA self-signature verification failed"
			result.ExpirationMessage = domain.MessageForExpirationStatus(result.ExpirationStatus)
			result.CrlMessage = domain.MessageForCrlStatus(result.CrlStatus)
			v.logger.Error("CSCA self-signature verification failed",
				zap.String("csca_subject", result.CSCASubject))
			return result, nil
		}
	}

	result.ExpirationStatus = domain.ExpirationStatusFor(now, dsc.NotAfter, result.DSCExpired, result.CSCAExpired)
	result.ExpirationMessage = domain.MessageForExpirationStatus(result.ExpirationStatus)

	v.checkRevocation(ctx, result, dsc, csca, normalized, now)
	result.CrlMessage = domain.MessageForCrlStatus(result.CrlStatus)

	result.TrustChainPath = "DSC -> " + result.CSCASubject
	result.TrustChainDepth = 2
	result.Valid = result.SignatureVerified && !result.Revoked

	if cscaRecord != nil {
		v.logger.Debug("chain validated",
			zap.String("csca_fingerprint", cscaRecord.FingerprintSHA256),
			zap.String("country", normalized),
			zap.Bool("valid", result.Valid))
	}
	return result, nil
}

// resolveCSCA locates the binding CSCA: candidates by issuer DN first,
// widened to all CSCAs for the country, bound by signature verification.
//
// Tie-break for key rollover and link certificates: among verifying
// candidates, prefer one whose validity window contains now, then the
// latest notBefore.
func (v *ChainValidator) resolveCSCA(ctx context.Context, dsc *x509.Certificate, issuerDN, country string, now time.Time) (*x509.Certificate, *domain.Certificate, error) {
	candidates, err := v.trust.FindCscaByIssuer(ctx, issuerDN, country)
	if err != nil && !errors.Is(err, ports.ErrCertNotFound) {
		return nil, nil, fmt.Errorf("CSCA lookup failed: %w", err)
	}
	if len(candidates) == 0 {
		candidates, err = v.trust.FindAllCscasByCountry(ctx, country)
		if err != nil && !errors.Is(err, ports.ErrCertNotFound) {
			return nil, nil, fmt.Errorf("CSCA lookup failed: %w", err)
		}
	}

	var bestParsed *x509.Certificate
	var bestRecord *domain.Certificate
	for _, candidate := range candidates {
		parsed, err := candidate.Parse()
		if err != nil {
			v.logger.Warn("skipping unparseable CSCA candidate",
				zap.String("fingerprint", candidate.FingerprintSHA256))
			continue
		}
		if err := dsc.CheckSignatureFrom(parsed); err != nil {
			continue
		}
		if bestParsed == nil || preferCSCA(parsed, bestParsed, now) {
			bestParsed = parsed
			bestRecord = candidate
		}
	}
	return bestParsed, bestRecord, nil
}

// preferCSCA reports whether candidate should replace current.
func preferCSCA(candidate, current *x509.Certificate, now time.Time) bool {
	candCurrent := !now.Before(candidate.NotBefore) && !now.After(candidate.NotAfter)
	curCurrent := !now.Before(current.NotBefore) && !now.After(current.NotAfter)
	if candCurrent != curCurrent {
		return candCurrent
	}
	return candidate.NotBefore.After(current.NotBefore)
}

// checkRevocation runs the ordered CRL procedure: availability, staleness,
// parse, signature binding, then serial lookup. CRL unavailability is
// fail-open per Doc 9303 Part 11: it warns but never invalidates the chain.
func (v *ChainValidator) checkRevocation(ctx context.Context, result *domain.ChainValidation, dsc, csca *x509.Certificate, country string, now time.Time) {
	crl, err := v.trust.FindCrlByCountry(ctx, country)
	if err != nil {
		result.CrlChecked = true
		result.CrlStatus = domain.CrlUnavailable
		if !errors.Is(err, ports.ErrCrlNotFound) {
			v.logger.Warn("CRL lookup failed", zap.String("country", country), zap.Error(err))
		}
		return
	}

	result.CrlChecked = true
	thisUpdate, nextUpdate := crl.ThisUpdate, crl.NextUpdate
	result.CrlThisUpdate = &thisUpdate
	result.CrlNextUpdate = &nextUpdate

	if now.After(crl.NextUpdate) {
		result.CrlStatus = domain.CrlExpired
		return
	}

	parsed, err := crl.Parse()
	if err != nil {
		result.CrlStatus = domain.CrlInvalid
		return
	}
	if err := parsed.CheckSignatureFrom(csca); err != nil {
		result.CrlStatus = domain.CrlInvalid
		v.logger.Warn("CRL signature does not verify under binding CSCA",
			zap.String("country", country), zap.Error(err))
		return
	}

	for _, entry := range parsed.RevokedCertificateEntries {
		if domain.HexEqual(fmt.Sprintf("%x", entry.SerialNumber), fmt.Sprintf("%x", dsc.SerialNumber)) {
			result.CrlStatus = domain.CrlRevoked
			result.Revoked = true
			return
		}
	}
	result.CrlStatus = domain.CrlValid
}

// RevalidateCertificate re-evaluates one stored certificate: validity
// window, CRL status, and (for DSCs) the trust chain. The outcome is
// materialized through the certificate store.
func (v *ChainValidator) RevalidateCertificate(ctx context.Context, cert *domain.Certificate) (domain.ValidationStatus, error) {
	now := v.clock()
	status := cert.ValidationStatusAt(now)

	validation := &domain.ValidationResult{
		CertificateID:       cert.ID,
		ValidityPeriodValid: status == domain.ValidationValid,
		RevocationStatus:    domain.RevocationUnknown,
		CheckedAt:           now,
	}

	if cert.Type == domain.CertTypeDSC || cert.Type == domain.CertTypeDSCNC {
		chain, err := v.ValidateChain(ctx, cert.DER, cert.CountryCode, nil)
		if err != nil {
			return domain.ValidationError, err
		}
		validation.CscaFound = chain.CSCASubject != ""
		validation.TrustChainValid = chain.Valid
		switch chain.CrlStatus {
		case domain.CrlValid:
			validation.RevocationStatus = domain.RevocationGood
		case domain.CrlRevoked:
			validation.RevocationStatus = domain.RevocationRevoked
		}
		if chain.Revoked {
			status = domain.ValidationInvalid
		} else if !chain.Valid && status == domain.ValidationValid {
			status = domain.ValidationInvalid
		}
	} else {
		// Roots and master-list signers have no chain above them here.
		validation.CscaFound = true
		validation.TrustChainValid = status == domain.ValidationValid
	}

	if v.certs != nil {
		if err := v.certs.SaveValidationResult(ctx, validation); err != nil {
			return status, err
		}
		if err := v.certs.SetValidationStatus(ctx, cert.ID, status); err != nil {
			return status, err
		}
	}
	return status, nil
}
