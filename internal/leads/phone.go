package leads

import (
	"regexp"
	"strings"
)

var (
	localPhoneRe     = regexp.MustCompile(`^0\d{9}$`)
	bareCountryRe    = regexp.MustCompile(`^380\d{9}$`)
	canonicalPhoneRe = regexp.MustCompile(`^\+380\d{9}$`)
)

// NormalizePhone strips everything but digits and '+' and rewrites local
// numbers to the +380 form. The second value reports whether the result
// looks plausible.
func NormalizePhone(raw string) (string, bool) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	phone := b.String()
	if phone == "" {
		return "", true
	}

	switch {
	case localPhoneRe.MatchString(phone):
		phone = "+38" + phone
	case bareCountryRe.MatchString(phone):
		phone = "+" + phone
	}

	plausible := canonicalPhoneRe.MatchString(phone) || len(phone) >= 10
	return phone, plausible
}
