package httpapi

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

var phoneRegions = []string{
	"BR",
	"US",
}

// NormalizePhone returns the E.164 form of phone, or "" when the number
// cannot be parsed as a valid number in any supported region. Duplicate
// detection keys on the normalized form, so "+55 11 99999-0000" and
// "11999990000" collapse to the same client.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}
	for _, region := range phoneRegions {
		parsed, err := phonenumbers.Parse(phone, region)
		if err != nil {
			continue
		}
		if !phonenumbers.IsValidNumber(parsed) {
			continue
		}
		return phonenumbers.Format(parsed, phonenumbers.E164)
	}
	return ""
}
