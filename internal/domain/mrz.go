package domain

import (
	"fmt"
	"strings"
)

// DG1 salvage: when a caller supplies DG1 but no document number or country,
// the machine readable zone inside it is the fallback source for both.
//
// DG1 wraps the MRZ in an ICAO template: tag 0x61 containing tag 0x5F1F with
// the raw MRZ characters. Only the TD-3 layout (two lines of 44 characters,
// passports) is salvaged; shorter layouts carry no full document number in a
// form this service needs.

const td3Length = 88

// MRZInfo is the subset of MRZ fields the PA engine salvages.
type MRZInfo struct {
	DocumentNumber string
	CountryAlpha3  string
	CountryCode    string // ISO 3166-1 alpha-2, empty if the alpha-3 code is unknown
}

// ParseDG1 locates the 5F1F data object in a DG1 blob, decodes its BER
// length (short and long form), and extracts the document number and issuing
// state from a TD-3 MRZ.
func ParseDG1(dg1 []byte) (*MRZInfo, error) {
	mrz, err := findMRZ(dg1)
	if err != nil {
		return nil, err
	}
	if len(mrz) < td3Length {
		return nil, fmt.Errorf("%w: MRZ is %d chars, TD-3 needs %d", ErrInvalidMRZ, len(mrz), td3Length)
	}

	line1 := mrz[:44]
	line2 := mrz[44:88]

	// Line 1 positions 2-4: issuing state alpha-3, '<' padded.
	alpha3 := strings.ReplaceAll(string(line1[2:5]), "<", "")
	// Line 2 positions 0-8: document number, '<' padded.
	docNumber := strings.ReplaceAll(string(line2[0:9]), "<", "")

	info := &MRZInfo{
		DocumentNumber: docNumber,
		CountryAlpha3:  alpha3,
	}
	if alpha2, err := Alpha3ToAlpha2(alpha3); err == nil {
		info.CountryCode = alpha2
	}
	return info, nil
}

// findMRZ scans for the 5F1F tag and returns its value bytes.
// Every length decode is validated against the remaining buffer.
func findMRZ(data []byte) ([]byte, error) {
	for i := 0; i+1 < len(data); i++ {
		if data[i] != 0x5F || data[i+1] != 0x1F {
			continue
		}
		length, consumed, err := decodeBERLength(data[i+2:])
		if err != nil {
			return nil, err
		}
		start := i + 2 + consumed
		end := start + length
		if end > len(data) {
			return nil, fmt.Errorf("%w: 5F1F length %d overruns buffer", ErrInvalidMRZ, length)
		}
		return data[start:end], nil
	}
	return nil, fmt.Errorf("%w: no 5F1F data object found", ErrInvalidMRZ)
}

// decodeBERLength decodes a BER length octet sequence, returning the length
// and the number of octets consumed. Long form supports up to 3 length
// octets, which covers any data group this service will see.
func decodeBERLength(data []byte) (length, consumed int, err error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("%w: truncated length", ErrInvalidMRZ)
	}
	first := data[0]
	if first < 0x80 {
		return int(first), 1, nil
	}
	numOctets := int(first & 0x7F)
	if numOctets == 0 || numOctets > 3 {
		return 0, 0, fmt.Errorf("%w: unsupported length form 0x%02X", ErrInvalidMRZ, first)
	}
	if len(data) < 1+numOctets {
		return 0, 0, fmt.Errorf("%w: truncated long-form length", ErrInvalidMRZ)
	}
	for i := 1; i <= numOctets; i++ {
		length = length<<8 | int(data[i])
	}
	return length, 1 + numOctets, nil
}
