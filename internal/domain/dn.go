package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Distinguished names arrive in at least two textual formats depending on
// which tool produced them:
//
//	oneline:  /C=KR/O=Government/OU=PKD/CN=CSCA Korea
//	RFC 2253: CN=CSCA Korea,OU=PKD,O=Government,C=KR
//
// Every DN comparison in the system goes through NormalizeDN / DNEqual; no
// caller compares DNs by raw string equality.

// canonical attribute order for normalized output. Attributes outside this
// list are appended in sorted order so normalization stays deterministic.
var dnAttributeOrder = []string{"C", "O", "OU", "CN", "SERIALNUMBER"}

// dnAttributeAliases maps alternate spellings onto the canonical key.
var dnAttributeAliases = map[string]string{
	"EMAILADDRESS":         "E",
	"EMAIL":                "E",
	"S":                    "ST",
	"SERIAL":               "SERIALNUMBER",
	"2.5.4.5":              "SERIALNUMBER",
	"OID.2.5.4.5":          "SERIALNUMBER",
	"1.2.840.113549.1.9.1": "E",
}

// ParseDN splits a DN string of either format into attribute components.
// Keys are uppercased; values keep their case (comparison lowercases later).
// Multi-valued attributes keep the first occurrence, matching how the LDAP
// directory renders PKD entries.
func ParseDN(dn string) (map[string]string, error) {
	s := strings.TrimSpace(dn)
	if s == "" {
		return nil, fmt.Errorf("%w: empty DN", ErrInvalidDN)
	}

	var parts []string
	if strings.HasPrefix(s, "/") {
		parts = splitUnescaped(s[1:], '/')
	} else {
		parts = splitUnescaped(s, ',')
	}

	attrs := make(map[string]string, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.Index(part, "=")
		if eq <= 0 {
			return nil, fmt.Errorf("%w: component %q has no key=value form", ErrInvalidDN, part)
		}
		key := strings.ToUpper(strings.TrimSpace(part[:eq]))
		if alias, ok := dnAttributeAliases[key]; ok {
			key = alias
		}
		value := unescapeDNValue(strings.TrimSpace(part[eq+1:]))
		if _, exists := attrs[key]; !exists {
			attrs[key] = value
		}
	}
	if len(attrs) == 0 {
		return nil, fmt.Errorf("%w: no components in %q", ErrInvalidDN, dn)
	}
	return attrs, nil
}

// NormalizeDN renders a DN in canonical comparison form: component keys in
// fixed order (C, O, OU, CN, serialNumber, then the rest sorted), lowercased
// keys and values, joined with commas. Both input formats normalize to the
// same string. Unparseable input falls back to a lowercased, trimmed copy so
// normalization never fails mid-comparison.
func NormalizeDN(dn string) string {
	attrs, err := ParseDN(dn)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(dn))
	}

	ordered := make([]string, 0, len(attrs))
	seen := make(map[string]bool, len(attrs))
	for _, key := range dnAttributeOrder {
		if v, ok := attrs[key]; ok {
			ordered = append(ordered, strings.ToLower(key)+"="+strings.ToLower(v))
			seen[key] = true
		}
	}

	rest := make([]string, 0, len(attrs))
	for key, v := range attrs {
		if !seen[key] {
			rest = append(rest, strings.ToLower(key)+"="+strings.ToLower(v))
		}
	}
	sort.Strings(rest)

	return strings.Join(append(ordered, rest...), ",")
}

// DNEqual reports whether two DN strings denote the same name regardless of
// their source format.
func DNEqual(a, b string) bool {
	return NormalizeDN(a) == NormalizeDN(b)
}

// DNAttribute extracts a single attribute value (by canonical key, e.g. "C")
// from a DN in either format. Returns "" when absent or unparseable.
func DNAttribute(dn, key string) string {
	attrs, err := ParseDN(dn)
	if err != nil {
		return ""
	}
	return attrs[strings.ToUpper(key)]
}

// splitUnescaped splits on sep, honoring backslash escapes.
func splitUnescaped(s string, sep byte) []string {
	var parts []string
	var cur strings.Builder
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			cur.WriteByte('\\')
			cur.WriteByte(c)
			escaped = false
		case c == '\\':
			escaped = true
		case c == sep:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if escaped {
		cur.WriteByte('\\')
	}
	parts = append(parts, cur.String())
	return parts
}

// unescapeDNValue removes backslash escapes from an RFC 2253 value.
func unescapeDNValue(v string) string {
	if !strings.Contains(v, "\\") {
		return v
	}
	var out strings.Builder
	escaped := false
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case escaped:
			out.WriteByte(c)
			escaped = false
		case c == '\\':
			escaped = true
		default:
			out.WriteByte(c)
		}
	}
	return out.String()
}
