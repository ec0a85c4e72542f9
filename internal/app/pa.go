package app

import (
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sufield/pkdpa/internal/domain"
	"github.com/sufield/pkdpa/internal/ports"
	"github.com/sufield/pkdpa/internal/sod"
)

// ConformanceProber checks the non-conformant branch of the directory for a
// DSC fingerprint. The directory gateway satisfies it; tests substitute a
// canned probe.
type ConformanceProber interface {
	ProbeDscConformance(ctx context.Context, country, fingerprint string) (*ports.ConformanceInfo, error)
}

// PAEngine is the Passive Authentication pipeline: parse the SOD, establish
// the trust chain, verify the SOD signature, and compare data-group hashes.
//
// The outcome is always persisted, success or failure alike, unless the
// context is cancelled before the persistence step. Verification failures,
// trust-material outages included, are reported through the result status;
// the error return is reserved for cancellation and persistence faults.
type PAEngine struct {
	certs         ports.CertificateStore
	verifications ports.VerificationStore
	validator     *ChainValidator
	prober        ConformanceProber
	audit         ports.AuditLog
	clock         func() time.Time
	logger        *zap.Logger
}

// PAEngineOption configures a PAEngine.
type PAEngineOption func(*PAEngine)

// WithPAClock injects the time source.
func WithPAClock(clock func() time.Time) PAEngineOption {
	return func(e *PAEngine) { e.clock = clock }
}

// WithPALogger sets a structured logger.
func WithPALogger(logger *zap.Logger) PAEngineOption {
	return func(e *PAEngine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithConformanceProber enables the nc-data lookup for extracted DSCs.
func WithConformanceProber(prober ConformanceProber) PAEngineOption {
	return func(e *PAEngine) { e.prober = prober }
}

// WithPAAudit attaches the audit log.
func WithPAAudit(audit ports.AuditLog) PAEngineOption {
	return func(e *PAEngine) { e.audit = audit }
}

// NewPAEngine wires the PA pipeline.
func NewPAEngine(certs ports.CertificateStore, verifications ports.VerificationStore, validator *ChainValidator, opts ...PAEngineOption) *PAEngine {
	e := &PAEngine{
		certs:         certs,
		verifications: verifications,
		validator:     validator,
		clock:         time.Now,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Verify runs full Passive Authentication for one document.
func (e *PAEngine) Verify(ctx context.Context, req ports.PARequest) (*ports.PAResult, error) {
	start := e.clock()

	sodHash := sha256.Sum256(req.SOD)
	verification := domain.PaVerification{
		DocumentNumber: req.DocumentNumber,
		CountryCode:    req.CountryCode,
		SodHash:        hex.EncodeToString(sodHash[:]),
		CrlStatus:      domain.CrlNotChecked,
		IPAddress:      req.IPAddress,
		UserAgent:      req.UserAgent,
		CreatedAt:      start,
	}

	// Step 1: parse the SOD. A malformed SOD still yields a persisted
	// verification record with status ERROR.
	secObj, err := sod.Parse(req.SOD)
	if err != nil {
		verification.Status = domain.VerificationError
		verification.ValidationErrors = fmt.Sprintf("SOD parse failed: %v", err)
		return e.finish(ctx, start, &verification, nil, nil)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 2: extract the DSC and fill in document identity, salvaging the
	// MRZ when the caller left it blank.
	dscCert, err := domain.NewCertificateFromDER(domain.CertTypeDSC, secObj.DSCCertificate, domain.SourcePAExtracted)
	if err != nil {
		verification.Status = domain.VerificationError
		verification.ValidationErrors = fmt.Sprintf("embedded DSC rejected: %v", err)
		return e.finish(ctx, start, &verification, nil, nil)
	}
	e.fillIdentity(&verification, req, dscCert)

	// Step 3: conformance probe and auto-registration of the extracted DSC.
	var conformance *ports.ConformanceInfo
	if e.prober != nil {
		conformance, err = e.prober.ProbeDscConformance(ctx, verification.CountryCode, dscCert.FingerprintSHA256)
		if err != nil {
			e.logger.Warn("nc-data conformance probe failed",
				zap.String("country", verification.CountryCode), zap.Error(err))
			conformance = nil
		}
	}
	e.registerExtractedDSC(ctx, dscCert, verification.CountryCode)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 4: trust chain. The signed signingTime attribute backs the
	// point-in-time evaluation when the caller supplied none.
	signingTime := req.SigningTime
	if signingTime == nil {
		signingTime = secObj.SigningTime
	}
	chain, err := e.validator.ValidateChain(ctx, secObj.DSCCertificate, verification.CountryCode, signingTime)
	if err != nil {
		// Trust-material outages still produce a persisted record; only
		// cancellation (caught in finish) discards.
		verification.Status = domain.VerificationError
		verification.ValidationErrors = fmt.Sprintf("chain validation failed: %v", err)
		return e.finish(ctx, start, &verification, nil, nil)
	}
	if conformance != nil && conformance.NonConformant {
		chain.DSCNonConformant = true
		chain.PkdConformanceCode = conformance.Code
		chain.PkdConformanceText = conformance.Text
	}
	copyChainFields(&verification, chain)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 5: SOD signature under the embedded DSC.
	verification.SodSignatureValid = e.verifySodSignature(secObj)

	// Step 6: data-group hash comparison.
	dgResults, dgValid := e.compareDataGroups(secObj, req.DataGroups)
	verification.DgHashesValid = dgValid

	verification.Status = domain.OverallStatus(
		verification.ChainValid,
		verification.SodSignatureValid,
		verification.DgHashesValid,
		verification.Revoked,
	)

	return e.finish(ctx, start, &verification, dgResults, chain)
}

// fillIdentity resolves document number and country: caller input first,
// then the DSC, then the DG1 MRZ.
func (e *PAEngine) fillIdentity(verification *domain.PaVerification, req ports.PARequest, dsc *domain.Certificate) {
	if verification.CountryCode == "" {
		verification.CountryCode = dsc.CountryCode
	}
	if verification.DocumentNumber != "" && verification.CountryCode != "" {
		return
	}
	dg1, ok := req.DataGroups[1]
	if !ok {
		return
	}
	mrz, err := domain.ParseDG1(dg1)
	if err != nil {
		e.logger.Debug("MRZ salvage failed", zap.Error(err))
		return
	}
	if verification.DocumentNumber == "" {
		verification.DocumentNumber = mrz.DocumentNumber
	}
	if verification.CountryCode == "" && mrz.CountryCode != "" {
		verification.CountryCode = mrz.CountryCode
	}
}

// registerExtractedDSC upserts the DSC carried inside the SOD. Failure is
// logged and tolerated: a store outage must not block verification.
func (e *PAEngine) registerExtractedDSC(ctx context.Context, dsc *domain.Certificate, country string) {
	if country != "" && dsc.CountryCode == "" {
		dsc.CountryCode = country
	}
	meta := ports.UploadMeta{
		UploadID:      uuid.NewString(),
		SourceType:    domain.SourcePAExtracted,
		SourceCountry: dsc.CountryCode,
	}
	id, duplicate, err := e.certs.Put(ctx, dsc, meta)
	if err != nil {
		e.logger.Warn("extracted DSC not registered",
			zap.String("fingerprint", dsc.FingerprintSHA256), zap.Error(err))
		return
	}
	if !duplicate {
		e.logger.Info("registered DSC extracted from SOD",
			zap.String("id", id),
			zap.String("fingerprint", dsc.FingerprintSHA256),
			zap.String("country", dsc.CountryCode))
	}
}

func (e *PAEngine) verifySodSignature(secObj *sod.SecurityObject) bool {
	dsc, err := x509.ParseCertificate(secObj.DSCCertificate)
	if err != nil {
		return false
	}
	if err := secObj.VerifySignature(dsc); err != nil {
		e.logger.Debug("SOD signature verification failed", zap.Error(err))
		return false
	}
	return true
}

// compareDataGroups digests each supplied data group with the SOD's hash
// algorithm and compares against the LDSSecurityObject. Data groups the SOD
// does not list are skipped. Valid means every produced comparison matched.
func (e *PAEngine) compareDataGroups(secObj *sod.SecurityObject, dataGroups map[int][]byte) ([]domain.DataGroupResult, bool) {
	nums := make([]int, 0, len(dataGroups))
	for n := range dataGroups {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	results := make([]domain.DataGroupResult, 0, len(nums))
	allValid := true
	for _, n := range nums {
		expected, ok := secObj.DataGroupHashes[n]
		if !ok {
			continue
		}
		actual, err := sod.Digest(secObj.HashAlgorithm, dataGroups[n])
		if err != nil {
			allValid = false
			results = append(results, domain.NewDataGroupResult(n, expected, "", secObj.HashAlgorithm, dataGroups[n]))
			continue
		}
		result := domain.NewDataGroupResult(n, expected, actual, secObj.HashAlgorithm, dataGroups[n])
		if !result.HashValid {
			allValid = false
		}
		results = append(results, result)
	}
	return results, allValid
}

// finish stamps timing, persists the verification with its data-group rows,
// records the audit entry, and shapes the result. Context cancellation before
// this point discards everything; a cancelled persist returns the error.
func (e *PAEngine) finish(ctx context.Context, start time.Time, verification *domain.PaVerification, dgResults []domain.DataGroupResult, chain *domain.ChainValidation) (*ports.PAResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	verification.ProcessingTimeMs = e.clock().Sub(start).Milliseconds()

	id, err := e.verifications.Insert(ctx, verification, dgResults)
	if err != nil {
		return nil, fmt.Errorf("persisting verification: %w", err)
	}
	verification.ID = id
	for i := range dgResults {
		dgResults[i].VerificationID = id
	}

	if e.audit != nil {
		e.audit.Record(ctx, domain.AuditEntry{
			Operation:  domain.AuditPaVerify,
			IPAddress:  verification.IPAddress,
			DurationMs: verification.ProcessingTimeMs,
			Success:    verification.Status == domain.VerificationValid,
			Metadata: map[string]any{
				"verification_id": id,
				"status":          string(verification.Status),
				"country":         verification.CountryCode,
				"data_groups":     len(dgResults),
			},
			CreatedAt: e.clock(),
		})
	}

	e.logger.Info("passive authentication completed",
		zap.String("verification_id", id),
		zap.String("status", string(verification.Status)),
		zap.String("country", verification.CountryCode),
		zap.Int64("processing_ms", verification.ProcessingTimeMs))

	result := &ports.PAResult{
		Verification: *verification,
		DataGroups:   dgResults,
	}
	if chain != nil {
		result.Chain = *chain
	}
	return result, nil
}

// copyChainFields flattens the chain outcome onto the verification record.
func copyChainFields(verification *domain.PaVerification, chain *domain.ChainValidation) {
	verification.ChainValid = chain.Valid
	verification.DSCSubject = chain.DSCSubject
	verification.DSCSerialNumber = chain.DSCSerialNumber
	verification.DSCIssuer = chain.DSCIssuer
	verification.DSCExpired = chain.DSCExpired
	verification.CSCASubject = chain.CSCASubject
	verification.CSCASerialNumber = chain.CSCASerialNumber
	verification.CSCAExpired = chain.CSCAExpired
	verification.CrlChecked = chain.CrlChecked
	verification.Revoked = chain.Revoked
	verification.CrlStatus = chain.CrlStatus
	verification.ExpirationStatus = chain.ExpirationStatus
	if chain.ValidationErrors != "" {
		verification.ValidationErrors = chain.ValidationErrors
	}
	if chain.CountryCode != "" && verification.CountryCode == "" {
		verification.CountryCode = chain.CountryCode
	}
}
