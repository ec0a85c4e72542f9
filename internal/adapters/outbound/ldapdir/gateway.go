package ldapdir

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"

	"github.com/sufield/pkdpa/internal/domain"
	"github.com/sufield/pkdpa/internal/ports"
)

const (
	attrUserCertificate = "userCertificate;binary"
	attrCRL             = "certificateRevocationList;binary"
	attrConformanceCode = "pkdConformanceCode"
	attrConformanceText = "pkdConformanceText"
)

// Gateway is the go-ldap implementation of the directory port.
type Gateway struct {
	pool   *Pool
	baseDN string
	logger *zap.Logger
}

// NewGateway wires the gateway over a pool, rooted at baseDN.
func NewGateway(pool *Pool, baseDN string, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{pool: pool, baseDN: baseDN, logger: logger}
}

func (g *Gateway) branchFor(conformant bool) string {
	if conformant {
		return "dc=data," + g.baseDN
	}
	return "dc=nc-data," + g.baseDN
}

func orgFor(kind domain.EntityKind) string {
	switch kind {
	case domain.KindCSCA:
		return "csca"
	case domain.KindMLSC:
		return "mlsc"
	case domain.KindCRL:
		return "crl"
	default:
		return "dsc"
	}
}

func (g *Gateway) CertificateDN(cert *domain.Certificate) string {
	branch := g.branchFor(cert.Conformance == domain.Conformant)
	org := orgFor(kindForType(cert.Type))
	if cert.Type == domain.CertTypeCSCA && !cert.SelfSigned {
		org = "lc"
	}
	return fmt.Sprintf("cn=%s,o=%s,c=%s,%s", cert.FingerprintSHA256, org, cert.CountryCode, branch)
}

func (g *Gateway) CRLDN(crl *domain.CRL) string {
	return fmt.Sprintf("cn=%s,o=crl,c=%s,%s", crl.FingerprintSHA256, crl.CountryCode, g.branchFor(true))
}

// EnsureParentDNs creates the c= and o= entries if absent. ALREADY_EXISTS is
// success, which also makes the call safe under concurrent callers.
func (g *Gateway) EnsureParentDNs(ctx context.Context, country string, kind domain.EntityKind, conformant bool) error {
	conn, release, err := g.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	branch := g.branchFor(conformant)
	countryDN := fmt.Sprintf("c=%s,%s", country, branch)
	countryAdd := ldap.NewAddRequest(countryDN, nil)
	countryAdd.Attribute("objectClass", []string{"top", "country"})
	countryAdd.Attribute("c", []string{country})
	if err := conn.Add(countryAdd); err != nil && !ldap.IsErrorWithCode(err, ldap.LDAPResultEntryAlreadyExists) {
		return g.wrapLdapError("adding country entry", countryDN, err)
	}

	org := orgFor(kind)
	orgDN := fmt.Sprintf("o=%s,%s", org, countryDN)
	orgAdd := ldap.NewAddRequest(orgDN, nil)
	orgAdd.Attribute("objectClass", []string{"top", "organization"})
	orgAdd.Attribute("o", []string{org})
	if err := conn.Add(orgAdd); err != nil && !ldap.IsErrorWithCode(err, ldap.LDAPResultEntryAlreadyExists) {
		return g.wrapLdapError("adding organization entry", orgDN, err)
	}
	return nil
}

func (g *Gateway) AddCertificate(ctx context.Context, cert *domain.Certificate) (string, error) {
	conn, release, err := g.pool.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	dn := g.CertificateDN(cert)
	add := ldap.NewAddRequest(dn, nil)
	add.Attribute("objectClass", []string{"top", "person", "organizationalPerson", "inetOrgPerson", "pkdDownload"})
	add.Attribute("cn", []string{cert.FingerprintSHA256})
	add.Attribute("sn", []string{cert.ID})
	add.Attribute("description", []string{fmt.Sprintf("%s %s", cert.Type, cert.SubjectDN)})
	add.Attribute(attrUserCertificate, []string{string(cert.DER)})
	if err := conn.Add(add); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultEntryAlreadyExists) {
			return dn, nil
		}
		return "", g.wrapLdapError("adding certificate entry", dn, err)
	}
	g.logger.Debug("certificate entry added", zap.String("dn", dn))
	return dn, nil
}

func (g *Gateway) AddCRL(ctx context.Context, crl *domain.CRL) (string, error) {
	conn, release, err := g.pool.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	dn := g.CRLDN(crl)
	add := ldap.NewAddRequest(dn, nil)
	add.Attribute("objectClass", []string{"top", "cRLDistributionPoint", "pkdDownload"})
	add.Attribute("cn", []string{crl.FingerprintSHA256})
	add.Attribute(attrCRL, []string{string(crl.DER)})
	if err := conn.Add(add); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultEntryAlreadyExists) {
			return dn, nil
		}
		return "", g.wrapLdapError("adding crl entry", dn, err)
	}
	g.logger.Debug("crl entry added", zap.String("dn", dn))
	return dn, nil
}

func (g *Gateway) Exists(ctx context.Context, dn string) (bool, error) {
	conn, release, err := g.pool.Acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	req := ldap.NewSearchRequest(dn, ldap.ScopeBaseObject, ldap.NeverDerefAliases,
		1, 0, false, "(objectClass=*)", []string{"1.1"}, nil)
	result, err := conn.Search(req)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return false, nil
		}
		return false, g.wrapLdapError("base search", dn, err)
	}
	return len(result.Entries) > 0, nil
}

// CountByKind subtree-counts both branches, attributing each entry by the
// first o= in its DN (lc counts as CSCA, dsc under nc-data as DSC_NC).
func (g *Gateway) CountByKind(ctx context.Context) (map[domain.EntityKind]int, map[domain.EntityKind]map[string]int, error) {
	conn, release, err := g.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	totals := map[domain.EntityKind]int{}
	perCountry := map[domain.EntityKind]map[string]int{}
	for _, conformant := range []bool{true, false} {
		branch := g.branchFor(conformant)
		req := ldap.NewSearchRequest(branch, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases,
			0, 0, false, "(objectClass=pkdDownload)", []string{"1.1"}, nil)
		result, err := conn.Search(req)
		if err != nil {
			if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
				continue
			}
			return nil, nil, g.wrapLdapError("subtree count", branch, err)
		}
		for _, entry := range result.Entries {
			kind := kindFromDN(entry.DN, conformant)
			country := countryFromDN(entry.DN)
			totals[kind]++
			if perCountry[kind] == nil {
				perCountry[kind] = map[string]int{}
			}
			perCountry[kind][country]++
		}
	}
	return totals, perCountry, nil
}

func (g *Gateway) ProbeDscConformance(ctx context.Context, country, fingerprint string) (*ports.ConformanceInfo, error) {
	conn, release, err := g.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	dn := fmt.Sprintf("cn=%s,o=dsc,c=%s,%s", fingerprint, country, g.branchFor(false))
	req := ldap.NewSearchRequest(dn, ldap.ScopeBaseObject, ldap.NeverDerefAliases,
		1, 0, false, "(objectClass=*)", []string{attrConformanceCode, attrConformanceText}, nil)
	result, err := conn.Search(req)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return &ports.ConformanceInfo{}, nil
		}
		return nil, g.wrapLdapError("conformance probe", dn, err)
	}
	if len(result.Entries) == 0 {
		return &ports.ConformanceInfo{}, nil
	}
	entry := result.Entries[0]
	return &ports.ConformanceInfo{
		NonConformant: true,
		Code:          entry.GetAttributeValue(attrConformanceCode),
		Text:          entry.GetAttributeValue(attrConformanceText),
	}, nil
}

// FindCscaByIssuer scans o=csca and o=lc for the country and keeps the
// entries whose subject DN matches the issuer, format-independently.
func (g *Gateway) FindCscaByIssuer(ctx context.Context, issuerDN, country string) ([]*domain.Certificate, error) {
	all, err := g.FindAllCscasByCountry(ctx, country)
	if err != nil {
		return nil, err
	}
	var out []*domain.Certificate
	for _, cert := range all {
		if domain.DNEqual(cert.SubjectDN, issuerDN) {
			out = append(out, cert)
		}
	}
	return out, nil
}

func (g *Gateway) FindAllCscasByCountry(ctx context.Context, country string) ([]*domain.Certificate, error) {
	conn, release, err := g.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var out []*domain.Certificate
	for _, org := range []string{"csca", "lc"} {
		base := fmt.Sprintf("o=%s,c=%s,%s", org, country, g.branchFor(true))
		req := ldap.NewSearchRequest(base, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases,
			0, 0, false, "(objectClass=pkdDownload)", []string{attrUserCertificate}, nil)
		result, err := conn.Search(req)
		if err != nil {
			if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
				continue
			}
			return nil, g.wrapLdapError("csca search", base, err)
		}
		for _, entry := range result.Entries {
			der := entry.GetRawAttributeValue(attrUserCertificate)
			if len(der) == 0 {
				continue
			}
			cert, err := domain.NewCertificateFromDER(domain.CertTypeCSCA, der, domain.SourceUpload)
			if err != nil {
				g.logger.Warn("directory entry holds unparseable certificate",
					zap.String("dn", entry.DN), zap.Error(err))
				continue
			}
			out = append(out, cert)
		}
	}
	return out, nil
}

func (g *Gateway) FindCrlByCountry(ctx context.Context, country string) (*domain.CRL, error) {
	conn, release, err := g.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	base := fmt.Sprintf("o=crl,c=%s,%s", country, g.branchFor(true))
	req := ldap.NewSearchRequest(base, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases,
		0, 0, false, "(objectClass=cRLDistributionPoint)", []string{attrCRL}, nil)
	result, err := conn.Search(req)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return nil, fmt.Errorf("%w: %s", ports.ErrCrlNotFound, country)
		}
		return nil, g.wrapLdapError("crl search", base, err)
	}

	var freshest *domain.CRL
	for _, entry := range result.Entries {
		der := entry.GetRawAttributeValue(attrCRL)
		if len(der) == 0 {
			continue
		}
		crl, err := domain.NewCRLFromDER(der)
		if err != nil {
			g.logger.Warn("directory entry holds unparseable crl",
				zap.String("dn", entry.DN), zap.Error(err))
			continue
		}
		if freshest == nil || crl.ThisUpdate.After(freshest.ThisUpdate) {
			freshest = crl
		}
	}
	if freshest == nil {
		return nil, fmt.Errorf("%w: %s", ports.ErrCrlNotFound, country)
	}
	return freshest, nil
}

func (g *Gateway) wrapLdapError(op, dn string, err error) error {
	if ldap.IsErrorWithCode(err, ldap.LDAPResultObjectClassViolation) ||
		ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidAttributeSyntax) ||
		ldap.IsErrorWithCode(err, ldap.LDAPResultUndefinedAttributeType) {
		return fmt.Errorf("%w: %s %s: %v", ports.ErrLdapSchema, op, dn, err)
	}
	return fmt.Errorf("%w: %s %s: %v", ports.ErrLdapUnreachable, op, dn, err)
}

func kindForType(certType domain.CertificateType) domain.EntityKind {
	switch certType {
	case domain.CertTypeCSCA:
		return domain.KindCSCA
	case domain.CertTypeMLSC:
		return domain.KindMLSC
	case domain.CertTypeDSCNC:
		return domain.KindDSCNC
	default:
		return domain.KindDSC
	}
}

// kindFromDN attributes a directory entry by its first o= component.
func kindFromDN(dn string, conformant bool) domain.EntityKind {
	switch firstRDNValue(dn, "o") {
	case "csca", "lc":
		return domain.KindCSCA
	case "mlsc":
		return domain.KindMLSC
	case "crl":
		return domain.KindCRL
	default:
		if conformant {
			return domain.KindDSC
		}
		return domain.KindDSCNC
	}
}

func countryFromDN(dn string) string {
	return firstRDNValue(dn, "c")
}

func firstRDNValue(dn, attr string) string {
	prefix := attr + "="
	for _, part := range strings.Split(dn, ",") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(strings.ToLower(part), prefix) {
			return part[len(prefix):]
		}
	}
	return ""
}

var _ ports.DirectoryGateway = (*Gateway)(nil)
