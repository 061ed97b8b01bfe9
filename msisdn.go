package smsverify

import (
	"fmt"
	"regexp"

	"github.com/ttacon/libphonenumber"
)

var isNumbersOnly = regexp.MustCompile(`^[0-9]*$`)

// NormalizeMobile strips everything but digits from n and returns it in international
// form (country code + national number) for the first country it is valid in.
// "" is returned when the number is not valid for any of the countries.
func NormalizeMobile(n string, countries []string) string {
	n = numbersOnly(n)
	if n == "" {
		return ""
	}
	return addCountryCode(n, countries)
}

func numbersOnly(t string) string {
	// Fast check to avoid creating a new string
	if isNumbersOnly.MatchString(t) {
		return t
	}
	// Reserve some static space for common string lengths
	cleanedSpace := [40]byte{}
	cleaned := cleanedSpace[:0]
	for _, c := range t {
		if c >= '0' && c <= '9' {
			// We know that 'c' is a single-byte character, so this type cast is safe
			cleaned = append(cleaned, byte(c))
		}
	}
	return string(cleaned)
}

// addCountryCode finds the first country for which t is a valid number.
// More prevalent countries must be placed first in the country slice.
func addCountryCode(t string, countries []string) string {
	for _, c := range countries {
		mn, err := libphonenumber.Parse(t, c)
		if err != nil {
			continue
		}
		if libphonenumber.IsValidNumberForRegion(mn, c) {
			return fmt.Sprintf("%v%v", mn.GetCountryCode(), mn.GetNationalNumber())
		}
	}
	return ""
}
