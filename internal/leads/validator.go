package leads

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/publicsuffix"
)

// Quality score adjustments.
const (
	baseQualityScore = 50

	penaltyBlockedDomain  = 50
	penaltyTestEmail      = 20
	bonusBusinessEmail    = 15
	bonusPhone            = 20
	penaltySuspiciousName = 30
	penaltyRepeatedChars  = 20
	bonusMessage          = 15
	bonusLongMessage      = 10
	longMessageThreshold  = 100
	penaltyMessageLinks   = 10
	penaltyHoneypot       = 100
	penaltyFastSubmit     = 30
	minHumanFormSeconds   = 3
	minNameLength         = 2
)

// Validation messages. Errors reject a submission, warnings are stored with it.
const (
	MsgEmailRequired   = "Email is required"
	MsgEmailInvalid    = "Invalid email format"
	MsgEmailDisposable = "Temporary email addresses are not accepted"
	MsgEmailTest       = "Email looks like a test address"
	MsgPhoneSuspicious = "Phone number may be invalid"
	MsgNameRequired    = "Name is required"
	MsgNameTooShort    = "Name is too short"
	MsgNameSuspicious  = "Name looks suspicious"
	MsgNameRepeated    = "Name contains repeated characters"
	MsgMessageLinks    = "Message contains links"
	MsgConsentRequired = "Consent to personal data processing is required"
	MsgSpamDetected    = "Spam detection triggered"
	MsgTooFast         = "Form was submitted too quickly"
)

// ValidServices is the closed service enum; anything else becomes "other".
var ValidServices = []string{"smm", "seo", "advertising", "branding", "consultation", "other"}

// DefaultService is used when the submitted service is unknown.
const DefaultService = "other"

var blockedEmailDomains = map[string]struct{}{
	"tempmail.com":       {},
	"guerrillamail.com":  {},
	"10minutemail.com":   {},
	"mailinator.com":     {},
	"throwaway.email":    {},
	"temp-mail.org":      {},
	"fakeinbox.com":      {},
	"trashmail.com":      {},
	"sharklasers.com":    {},
	"guerrillamail.info": {},
	"grr.la":             {},
	"dispostable.com":    {},
	"yopmail.com":        {},
	"getairmail.com":     {},
	"mohmal.com":         {},
}

var freeEmailDomains = map[string]struct{}{
	"gmail.com":   {},
	"yahoo.com":   {},
	"hotmail.com": {},
	"outlook.com": {},
	"ukr.net":     {},
	"i.ua":        {},
	"meta.ua":     {},
}

var testEmailPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^test[@.]`),
	regexp.MustCompile(`^demo[@.]`),
	regexp.MustCompile(`^example[@.]`),
	regexp.MustCompile(`^fake[@.]`),
	regexp.MustCompile(`^asdf[@.]`),
	regexp.MustCompile(`^qwerty[@.]`),
	regexp.MustCompile(`[@.]test\.`),
	regexp.MustCompile(`[@.]example\.`),
}

var suspiciousNames = map[string]struct{}{
	"test": {}, "testing": {}, "demo": {}, "asd": {}, "asdf": {}, "qwe": {},
	"qwerty": {}, "xxx": {}, "abc": {}, "123": {}, "admin": {}, "null": {},
	"undefined": {},
}

var messageLinkRe = regexp.MustCompile(`(?i)(http|www\.|\.com|\.ru|\.ua)`)

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	Valid        bool       `json:"valid"`
	Errors       []string   `json:"errors"`
	Warnings     []string   `json:"warnings"`
	Data         Submission `json:"data"`
	QualityScore int        `json:"quality_score"`
}

// Validate normalizes a raw submission and computes its quality score.
// It has no side effects.
func Validate(raw Submission) ValidationResult {
	data := raw
	res := ValidationResult{Errors: []string{}, Warnings: []string{}}
	delta := 0

	if HoneypotTriggered(raw) {
		data = sanitizeAll(raw)
		res.Errors = append(res.Errors, MsgSpamDetected)
		res.Data = data
		res.QualityScore = clampScore(baseQualityScore - penaltyHoneypot)
		return res
	}

	// Email
	email := strings.ToLower(strings.TrimSpace(raw.Email))
	switch {
	case email == "":
		res.Errors = append(res.Errors, MsgEmailRequired)
	case !IsValidEmail(email):
		res.Errors = append(res.Errors, MsgEmailInvalid)
	default:
		domain := EmailDomain(email)
		if isBlockedDomain(domain) {
			res.Errors = append(res.Errors, MsgEmailDisposable)
			delta -= penaltyBlockedDomain
		}
		for _, re := range testEmailPatterns {
			if re.MatchString(email) {
				res.Warnings = append(res.Warnings, MsgEmailTest)
				delta -= penaltyTestEmail
				break
			}
		}
		if !isFreeDomain(domain) {
			delta += bonusBusinessEmail
		}
	}
	data.Email = email

	// Phone
	phone, plausible := NormalizePhone(raw.Phone)
	if phone != "" {
		if !plausible {
			res.Warnings = append(res.Warnings, MsgPhoneSuspicious)
		}
		delta += bonusPhone
	}
	data.Phone = phone

	// Name
	name := SanitizeText(raw.Name)
	switch {
	case name == "":
		res.Errors = append(res.Errors, MsgNameRequired)
	case utf8.RuneCountInString(name) < minNameLength:
		res.Errors = append(res.Errors, MsgNameTooShort)
	default:
		if _, ok := suspiciousNames[strings.ToLower(name)]; ok {
			res.Warnings = append(res.Warnings, MsgNameSuspicious)
			delta -= penaltySuspiciousName
		}
		if hasRepeatedRun(name, 5) {
			res.Warnings = append(res.Warnings, MsgNameRepeated)
			delta -= penaltyRepeatedChars
		}
	}
	data.Name = name

	// Message
	message := SanitizeTextarea(raw.Message)
	if message != "" {
		delta += bonusMessage
		if utf8.RuneCountInString(message) > longMessageThreshold {
			delta += bonusLongMessage
		}
		if messageLinkRe.MatchString(message) {
			res.Warnings = append(res.Warnings, MsgMessageLinks)
			delta -= penaltyMessageLinks
		}
	}
	data.Message = message

	data.Service = NormalizeService(raw.Service)

	// UTM
	source := NormalizeSource(raw.UTMSource)
	medium := NormalizeMedium(raw.UTMMedium)
	data.UTMSource = source.Value
	data.UTMMedium = medium.Value
	data.UTMCampaign = SanitizeUTMExtra(raw.UTMCampaign)
	data.UTMTerm = SanitizeUTMExtra(raw.UTMTerm)
	data.UTMContent = SanitizeUTMExtra(raw.UTMContent)
	if source.Corrected {
		res.Warnings = append(res.Warnings, source.Warning("utm_source"))
	}
	if medium.Corrected {
		res.Warnings = append(res.Warnings, medium.Warning("utm_medium"))
	}

	if !raw.Consent {
		res.Errors = append(res.Errors, MsgConsentRequired)
	}

	if raw.FormTime > 0 && raw.FormTime < minHumanFormSeconds {
		res.Warnings = append(res.Warnings, MsgTooFast)
		delta -= penaltyFastSubmit
	}

	data.PageURL = strings.TrimSpace(raw.PageURL)

	res.Valid = len(res.Errors) == 0
	res.Data = data
	res.QualityScore = clampScore(baseQualityScore + delta)
	return res
}

// HoneypotTriggered reports whether any decoy field carries a value.
func HoneypotTriggered(s Submission) bool {
	for _, v := range []string{s.Website, s.URL, s.CompanyWebsite} {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// NormalizeService maps a submitted service onto the closed enum.
func NormalizeService(raw string) string {
	service := strings.ToLower(SanitizeText(raw))
	if contains(ValidServices, service) {
		return service
	}
	return DefaultService
}

// IsValidEmail checks a bare address: no display name, a local part and a dotted domain.
func IsValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return false
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	return strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}

// EmailDomain returns the lowercased domain part of an address.
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

func isBlockedDomain(domain string) bool {
	return inDomainSet(blockedEmailDomains, domain)
}

func isFreeDomain(domain string) bool {
	return inDomainSet(freeEmailDomains, domain)
}

// inDomainSet matches the domain or its registrable parent, so
// "mx.mailinator.com" is treated like "mailinator.com".
func inDomainSet(set map[string]struct{}, domain string) bool {
	if _, ok := set[domain]; ok {
		return true
	}
	registrable, err := publicsuffix.EffectiveTLDPlusOne(domain)
	if err != nil {
		return false
	}
	_, ok := set[registrable]
	return ok
}

func hasRepeatedRun(s string, n int) bool {
	var prev rune
	run := 0
	for i, r := range s {
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run >= n {
			return true
		}
		prev = r
	}
	return false
}

func sanitizeAll(s Submission) Submission {
	s.Name = SanitizeText(s.Name)
	s.Email = strings.ToLower(strings.TrimSpace(s.Email))
	s.Message = SanitizeTextarea(s.Message)
	s.Service = NormalizeService(s.Service)
	return s
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
