package domain

import "time"

// DuplicateSighting is one append-only provenance record: upload U saw the
// DER already stored under certificate C. The first upload of a fingerprint
// is recorded on the certificate itself (FirstUploadID); sightings never
// overwrite it.
type DuplicateSighting struct {
	ID             string
	CertificateID  string
	UploadID       string
	SourceType     SourceType
	SourceCountry  string
	SourceEntryDN  string
	SourceFileName string
	DetectedAt     time.Time
}
