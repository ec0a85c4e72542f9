package inmemory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sufield/pkdpa/internal/domain"
	"github.com/sufield/pkdpa/internal/ports"
)

// Directory is the in-memory directory gateway: a DN-keyed entry tree with
// the same fixed data/nc-data layout the LDAP adapter maintains.
type Directory struct {
	baseDN string

	mu      sync.RWMutex
	parents map[string]bool
	certs   map[string]*domain.Certificate
	crls    map[string]*domain.CRL
	// nonConformant maps "country/fingerprint" to probe details seeded by
	// tests or the dev-mode loader.
	nonConformant map[string]ports.ConformanceInfo
}

// NewDirectory creates an empty directory rooted at baseDN.
func NewDirectory(baseDN string) *Directory {
	return &Directory{
		baseDN:        baseDN,
		parents:       map[string]bool{},
		certs:         map[string]*domain.Certificate{},
		crls:          map[string]*domain.CRL{},
		nonConformant: map[string]ports.ConformanceInfo{},
	}
}

// branchFor returns dc=data or dc=nc-data.
func (d *Directory) branchFor(conformant bool) string {
	if conformant {
		return "dc=data," + d.baseDN
	}
	return "dc=nc-data," + d.baseDN
}

// orgFor maps an entity kind to its o= component. CSCA link certificates are
// placed under o=lc by CertificateDN, not here.
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

func (d *Directory) EnsureParentDNs(ctx context.Context, country string, kind domain.EntityKind, conformant bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	branch := d.branchFor(conformant)
	d.parents[fmt.Sprintf("c=%s,%s", country, branch)] = true
	d.parents[fmt.Sprintf("o=%s,c=%s,%s", orgFor(kind), country, branch)] = true
	return nil
}

func (d *Directory) CertificateDN(cert *domain.Certificate) string {
	branch := d.branchFor(cert.Conformance == domain.Conformant)
	org := orgFor(kindOf(cert.Type))
	if cert.Type == domain.CertTypeCSCA && !cert.SelfSigned {
		org = "lc"
	}
	return fmt.Sprintf("cn=%s,o=%s,c=%s,%s", cert.FingerprintSHA256, org, cert.CountryCode, branch)
}

func (d *Directory) CRLDN(crl *domain.CRL) string {
	return fmt.Sprintf("cn=%s,o=crl,c=%s,%s", crl.FingerprintSHA256, crl.CountryCode, d.branchFor(true))
}

func (d *Directory) AddCertificate(ctx context.Context, cert *domain.Certificate) (string, error) {
	dn := d.CertificateDN(cert)
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.certs[dn]; ok {
		return dn, nil // ALREADY_EXISTS is success
	}
	copied := *cert
	d.certs[dn] = &copied
	return dn, nil
}

func (d *Directory) AddCRL(ctx context.Context, crl *domain.CRL) (string, error) {
	dn := d.CRLDN(crl)
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.crls[dn]; ok {
		return dn, nil
	}
	copied := *crl
	d.crls[dn] = &copied
	return dn, nil
}

func (d *Directory) Exists(ctx context.Context, dn string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.parents[dn] {
		return true, nil
	}
	if _, ok := d.certs[dn]; ok {
		return true, nil
	}
	_, ok := d.crls[dn]
	return ok, nil
}

func (d *Directory) CountByKind(ctx context.Context) (map[domain.EntityKind]int, map[domain.EntityKind]map[string]int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	totals := map[domain.EntityKind]int{}
	perCountry := map[domain.EntityKind]map[string]int{}
	bump := func(kind domain.EntityKind, country string) {
		totals[kind]++
		if perCountry[kind] == nil {
			perCountry[kind] = map[string]int{}
		}
		perCountry[kind][country]++
	}
	for dn := range d.certs {
		bump(kindFromDN(dn), countryFromDN(dn))
	}
	for dn := range d.crls {
		bump(domain.KindCRL, countryFromDN(dn))
	}
	return totals, perCountry, nil
}

func (d *Directory) ProbeDscConformance(ctx context.Context, country, fingerprint string) (*ports.ConformanceInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	info, ok := d.nonConformant[country+"/"+fingerprint]
	if !ok {
		return &ports.ConformanceInfo{}, nil
	}
	copied := info
	copied.NonConformant = true
	return &copied, nil
}

// SeedNonConformant registers a fingerprint in the nc-data branch with the
// given conformance detail.
func (d *Directory) SeedNonConformant(country, fingerprint, code, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nonConformant[country+"/"+fingerprint] = ports.ConformanceInfo{Code: code, Text: text}
}

func (d *Directory) FindCscaByIssuer(ctx context.Context, issuerDN, country string) ([]*domain.Certificate, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*domain.Certificate
	for dn, cert := range d.certs {
		if countryFromDN(dn) != country {
			continue
		}
		org := firstOrg(dn)
		if org != "csca" && org != "lc" {
			continue
		}
		if domain.DNEqual(cert.SubjectDN, issuerDN) {
			copied := *cert
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (d *Directory) FindAllCscasByCountry(ctx context.Context, country string) ([]*domain.Certificate, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*domain.Certificate
	for dn, cert := range d.certs {
		if countryFromDN(dn) != country {
			continue
		}
		org := firstOrg(dn)
		if org != "csca" && org != "lc" {
			continue
		}
		copied := *cert
		out = append(out, &copied)
	}
	return out, nil
}

func (d *Directory) FindCrlByCountry(ctx context.Context, country string) (*domain.CRL, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var freshest *domain.CRL
	for dn, crl := range d.crls {
		if countryFromDN(dn) != country {
			continue
		}
		if freshest == nil || crl.ThisUpdate.After(freshest.ThisUpdate) {
			freshest = crl
		}
	}
	if freshest == nil {
		return nil, fmt.Errorf("%w: %s", ports.ErrCrlNotFound, country)
	}
	copied := *freshest
	return &copied, nil
}

// firstOrg extracts the value of the first o= component in a DN.
func firstOrg(dn string) string {
	for _, part := range strings.Split(dn, ",") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "o=") {
			return part[2:]
		}
	}
	return ""
}

// countryFromDN extracts the value of the first c= component in a DN.
func countryFromDN(dn string) string {
	for _, part := range strings.Split(dn, ",") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "c=") {
			return part[2:]
		}
	}
	return ""
}

// kindFromDN attributes an entry by its first o= component; lc counts as CSCA.
func kindFromDN(dn string) domain.EntityKind {
	switch firstOrg(dn) {
	case "csca", "lc":
		return domain.KindCSCA
	case "mlsc":
		return domain.KindMLSC
	case "crl":
		return domain.KindCRL
	default:
		if strings.Contains(dn, "dc=nc-data") {
			return domain.KindDSCNC
		}
		return domain.KindDSC
	}
}
