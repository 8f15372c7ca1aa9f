package models

import "sort"

// Countries maps the ISO 3166-1 alpha-2 codes accepted by the pollution API to
// the display names the allowlist API expects.
var Countries = map[string]string{
	"AT": "Austria",
	"BE": "Belgium",
	"CZ": "Czechia",
	"DE": "Germany",
	"DK": "Denmark",
	"ES": "Spain",
	"FI": "Finland",
	"FR": "France",
	"GB": "United Kingdom",
	"GR": "Greece",
	"HU": "Hungary",
	"IE": "Ireland",
	"IT": "Italy",
	"NL": "Netherlands",
	"NO": "Norway",
	"PL": "Poland",
	"PT": "Portugal",
	"RO": "Romania",
	"SE": "Sweden",
	"SK": "Slovakia",
}

// CountryName resolves a country code to its display name.
func CountryName(code string) (string, bool) {
	name, ok := Countries[code]
	return name, ok
}

// CountryCodes returns the supported codes in sorted order.
func CountryCodes() []string {
	codes := make([]string, 0, len(Countries))
	for code := range Countries {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
