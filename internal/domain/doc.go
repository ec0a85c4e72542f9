// Package domain holds the entities and pure logic of the PKD / Passive
// Authentication core: certificates, CRLs, verification results, sync and
// reconciliation records, DN normalization, and the ICAO message catalog.
//
// Design rules (mirrored across the codebase):
//   - Entities are validated at construction and treated as immutable.
//   - No I/O and no logging in this package; adapters own both.
//   - Failures are sentinel errors wrapped with %w, checked via errors.Is.
//   - DER bytes are the unit of exchange between layers; parsed x509 objects
//     never cross a package boundary (each flow re-parses its own copy).
package domain
