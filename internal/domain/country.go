package domain

import (
	"fmt"
	"strings"
)

// alpha3ToAlpha2 maps ICAO Doc 9303 issuing-state codes (alpha-3, as found in
// the MRZ) to ISO 3166-1 alpha-2 codes used by the PKD directory layout.
// Includes the ICAO special codes (D for Germany, plus organization codes
// mapped to themselves where no alpha-2 exists).
var alpha3ToAlpha2 = map[string]string{
	"AFG": "AF", "ALB": "AL", "DZA": "DZ", "AND": "AD", "AGO": "AO",
	"ARG": "AR", "ARM": "AM", "AUS": "AU", "AUT": "AT", "AZE": "AZ",
	"BHS": "BS", "BHR": "BH", "BGD": "BD", "BRB": "BB", "BLR": "BY",
	"BEL": "BE", "BLZ": "BZ", "BEN": "BJ", "BTN": "BT", "BOL": "BO",
	"BIH": "BA", "BWA": "BW", "BRA": "BR", "BRN": "BN", "BGR": "BG",
	"BFA": "BF", "BDI": "BI", "KHM": "KH", "CMR": "CM", "CAN": "CA",
	"CPV": "CV", "CAF": "CF", "TCD": "TD", "CHL": "CL", "CHN": "CN",
	"COL": "CO", "COM": "KM", "COG": "CG", "COD": "CD", "CRI": "CR",
	"CIV": "CI", "HRV": "HR", "CUB": "CU", "CYP": "CY", "CZE": "CZ",
	"DNK": "DK", "DJI": "DJ", "DMA": "DM", "DOM": "DO", "ECU": "EC",
	"EGY": "EG", "SLV": "SV", "GNQ": "GQ", "ERI": "ER", "EST": "EE",
	"SWZ": "SZ", "ETH": "ET", "FJI": "FJ", "FIN": "FI", "FRA": "FR",
	"GAB": "GA", "GMB": "GM", "GEO": "GE", "DEU": "DE", "GHA": "GH",
	"GRC": "GR", "GRD": "GD", "GTM": "GT", "GIN": "GN", "GNB": "GW",
	"GUY": "GY", "HTI": "HT", "HND": "HN", "HKG": "HK", "HUN": "HU",
	"ISL": "IS", "IND": "IN", "IDN": "ID", "IRN": "IR", "IRQ": "IQ",
	"IRL": "IE", "ISR": "IL", "ITA": "IT", "JAM": "JM", "JPN": "JP",
	"JOR": "JO", "KAZ": "KZ", "KEN": "KE", "KIR": "KI", "PRK": "KP",
	"KOR": "KR", "KWT": "KW", "KGZ": "KG", "LAO": "LA", "LVA": "LV",
	"LBN": "LB", "LSO": "LS", "LBR": "LR", "LBY": "LY", "LIE": "LI",
	"LTU": "LT", "LUX": "LU", "MAC": "MO", "MDG": "MG", "MWI": "MW",
	"MYS": "MY", "MDV": "MV", "MLI": "ML", "MLT": "MT", "MHL": "MH",
	"MRT": "MR", "MUS": "MU", "MEX": "MX", "FSM": "FM", "MDA": "MD",
	"MCO": "MC", "MNG": "MN", "MNE": "ME", "MAR": "MA", "MOZ": "MZ",
	"MMR": "MM", "NAM": "NA", "NRU": "NR", "NPL": "NP", "NLD": "NL",
	"NZL": "NZ", "NIC": "NI", "NER": "NE", "NGA": "NG", "MKD": "MK",
	"NOR": "NO", "OMN": "OM", "PAK": "PK", "PLW": "PW", "PAN": "PA",
	"PNG": "PG", "PRY": "PY", "PER": "PE", "PHL": "PH", "POL": "PL",
	"PRT": "PT", "QAT": "QA", "ROU": "RO", "RUS": "RU", "RWA": "RW",
	"KNA": "KN", "LCA": "LC", "VCT": "VC", "WSM": "WS", "SMR": "SM",
	"STP": "ST", "SAU": "SA", "SEN": "SN", "SRB": "RS", "SYC": "SC",
	"SLE": "SL", "SGP": "SG", "SVK": "SK", "SVN": "SI", "SLB": "SB",
	"SOM": "SO", "ZAF": "ZA", "SSD": "SS", "ESP": "ES", "LKA": "LK",
	"SDN": "SD", "SUR": "SR", "SWE": "SE", "CHE": "CH", "SYR": "SY",
	"TWN": "TW", "TJK": "TJ", "TZA": "TZ", "THA": "TH", "TLS": "TL",
	"TGO": "TG", "TON": "TO", "TTO": "TT", "TUN": "TN", "TUR": "TR",
	"TKM": "TM", "TUV": "TV", "UGA": "UG", "UKR": "UA", "ARE": "AE",
	"GBR": "GB", "USA": "US", "URY": "UY", "UZB": "UZ", "VUT": "VU",
	"VAT": "VA", "VEN": "VE", "VNM": "VN", "YEM": "YE", "ZMB": "ZM",
	"ZWE": "ZW",
	// ICAO special codes
	"D":   "DE", // Germany uses "D<<" in the MRZ
	"UNO": "UN", // United Nations laissez-passer
	"XOM": "XO", // Sovereign Military Order of Malta
}

// Alpha3ToAlpha2 converts an ICAO alpha-3 issuing-state code (as found in
// the MRZ, '<' padding already removed) to ISO 3166-1 alpha-2.
func Alpha3ToAlpha2(alpha3 string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(alpha3))
	if a2, ok := alpha3ToAlpha2[code]; ok {
		return a2, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCountry, alpha3)
}

// NormalizeCountry validates and uppercases an alpha-2 country code.
func NormalizeCountry(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if len(c) != 2 {
		return "", fmt.Errorf("%w: %q is not ISO 3166-1 alpha-2", ErrUnknownCountry, code)
	}
	for i := 0; i < 2; i++ {
		if c[i] < 'A' || c[i] > 'Z' {
			return "", fmt.Errorf("%w: %q is not ISO 3166-1 alpha-2", ErrUnknownCountry, code)
		}
	}
	return c, nil
}
