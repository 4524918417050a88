package leads

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSubmission() Submission {
	return Submission{
		Name:    "Jane Doe",
		Email:   "jane@biz.com",
		Phone:   "0991234567",
		Consent: true,
	}
}

func TestValidate_ScenarioA(t *testing.T) {
	sub := validSubmission()
	sub.UTMSource = "ig"

	res := Validate(sub)

	require.True(t, res.Valid, "errors: %v", res.Errors)
	assert.Empty(t, res.Errors)
	assert.Equal(t, "+380991234567", res.Data.Phone)
	assert.Equal(t, "instagram", res.Data.UTMSource)
	assert.Contains(t, res.Warnings, "utm_source corrected: ig → instagram")
	// base 50 + business email 15 + phone 20
	assert.Equal(t, 85, res.QualityScore)
}

func TestValidate_ScenarioBHoneypot(t *testing.T) {
	sub := validSubmission()
	sub.UTMSource = "ig"
	sub.Website = "http://spam.example"

	res := Validate(sub)

	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors, MsgSpamDetected)
	assert.Equal(t, 0, res.QualityScore)
}

func TestValidate_HoneypotVariants(t *testing.T) {
	for _, mutate := range []func(*Submission){
		func(s *Submission) { s.URL = "x" },
		func(s *Submission) { s.CompanyWebsite = "x" },
	} {
		sub := validSubmission()
		mutate(&sub)
		res := Validate(sub)
		assert.False(t, res.Valid)
		assert.Equal(t, []string{MsgSpamDetected}, res.Errors)
	}
}

func TestValidate_ValidEmailsProduceNoEmailErrors(t *testing.T) {
	emails := []string{
		"jane@biz.com",
		"JANE.DOE@Company.co.uk",
		"first.last+tag@sub.domain.io",
		"olena@ukr.net",
		"person@gmail.com",
	}
	emailErrors := map[string]bool{MsgEmailRequired: true, MsgEmailInvalid: true, MsgEmailDisposable: true}

	for _, email := range emails {
		t.Run(email, func(t *testing.T) {
			sub := validSubmission()
			sub.Email = email
			res := Validate(sub)
			for _, e := range res.Errors {
				assert.False(t, emailErrors[e], "unexpected email error %q", e)
			}
			assert.Equal(t, strings.ToLower(email), res.Data.Email)
		})
	}
}

func TestValidate_EmailChecks(t *testing.T) {
	tests := []struct {
		name      string
		email     string
		wantError string
		wantWarn  string
		wantScore int
	}{
		{name: "missing", email: "", wantError: MsgEmailRequired, wantScore: 70},
		{name: "malformed", email: "not-an-email", wantError: MsgEmailInvalid, wantScore: 70},
		{name: "no dotted domain", email: "jane@localhost", wantError: MsgEmailInvalid, wantScore: 70},
		{name: "disposable", email: "bot@mailinator.com", wantError: MsgEmailDisposable, wantScore: 35},
		{name: "disposable subdomain", email: "bot@mx.yopmail.com", wantError: MsgEmailDisposable, wantScore: 35},
		{name: "test pattern", email: "test@biz.com", wantWarn: MsgEmailTest, wantScore: 65},
		{name: "example domain", email: "jane@example.com", wantWarn: MsgEmailTest, wantScore: 65},
		{name: "free mail no bonus", email: "jane@gmail.com", wantScore: 70},
		{name: "business bonus", email: "jane@biz.com", wantScore: 85},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := validSubmission()
			sub.Email = tt.email
			res := Validate(sub)
			if tt.wantError != "" {
				assert.Contains(t, res.Errors, tt.wantError)
				assert.False(t, res.Valid)
			} else {
				assert.True(t, res.Valid, "errors: %v", res.Errors)
			}
			if tt.wantWarn != "" {
				assert.Contains(t, res.Warnings, tt.wantWarn)
			}
			assert.Equal(t, tt.wantScore, res.QualityScore)
		})
	}
}

func TestValidate_PhoneNormalization(t *testing.T) {
	tests := []struct {
		raw      string
		want     string
		wantWarn bool
	}{
		{raw: "0991234567", want: "+380991234567"},
		{raw: "380991234567", want: "+380991234567"},
		{raw: "+38 (099) 123-45-67", want: "+380991234567"},
		{raw: "+1 555 010 9999", want: "+15550109999"},
		{raw: "12345", want: "12345", wantWarn: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			sub := validSubmission()
			sub.Phone = tt.raw
			res := Validate(sub)
			assert.Equal(t, tt.want, res.Data.Phone)
			if tt.wantWarn {
				assert.Contains(t, res.Warnings, MsgPhoneSuspicious)
			} else {
				assert.NotContains(t, res.Warnings, MsgPhoneSuspicious)
			}
			assert.True(t, res.Valid)
		})
	}
}

func TestValidate_PhoneOptional(t *testing.T) {
	sub := validSubmission()
	sub.Phone = ""
	res := Validate(sub)
	assert.True(t, res.Valid)
	assert.Equal(t, 65, res.QualityScore)
}

func TestValidate_NameChecks(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantError string
		wantWarns []string
	}{
		{name: "missing", input: "  ", wantError: MsgNameRequired},
		{name: "too short", input: "J", wantError: MsgNameTooShort},
		{name: "suspicious", input: "Admin", wantWarns: []string{MsgNameSuspicious}},
		{name: "repeated", input: "Jaaaaane", wantWarns: []string{MsgNameRepeated}},
		{name: "both", input: "xxxxx", wantWarns: []string{MsgNameRepeated}},
		{name: "markup stripped", input: "<b>Jane</b>"},
		{name: "cyrillic", input: "Олена"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := validSubmission()
			sub.Name = tt.input
			res := Validate(sub)
			if tt.wantError != "" {
				assert.Contains(t, res.Errors, tt.wantError)
				return
			}
			assert.True(t, res.Valid, "errors: %v", res.Errors)
			for _, w := range tt.wantWarns {
				assert.Contains(t, res.Warnings, w)
			}
			assert.NotContains(t, res.Data.Name, "<")
		})
	}
}

func TestValidate_MessageScoring(t *testing.T) {
	sub := validSubmission()
	sub.Message = "We need a rebrand"
	assert.Equal(t, 100, Validate(sub).QualityScore)

	sub.Phone = ""
	sub.Email = "jane@gmail.com"
	sub.Message = strings.Repeat("a", 101)
	// 50 + message 15 + long 10
	assert.Equal(t, 75, Validate(sub).QualityScore)

	sub.Message = "see www.spam.ru"
	res := Validate(sub)
	assert.Contains(t, res.Warnings, MsgMessageLinks)
	// 50 + message 15 - links 10
	assert.Equal(t, 55, res.QualityScore)
}

func TestValidate_ServiceFallback(t *testing.T) {
	sub := validSubmission()
	sub.Service = "SEO"
	assert.Equal(t, "seo", Validate(sub).Data.Service)

	sub.Service = "crypto"
	assert.Equal(t, DefaultService, Validate(sub).Data.Service)

	sub.Service = ""
	assert.Equal(t, DefaultService, Validate(sub).Data.Service)
}

func TestValidate_ConsentRequired(t *testing.T) {
	sub := validSubmission()
	sub.Consent = false
	res := Validate(sub)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors, MsgConsentRequired)
}

func TestValidate_FastSubmission(t *testing.T) {
	sub := validSubmission()
	sub.FormTime = 2
	res := Validate(sub)
	assert.True(t, res.Valid)
	assert.Contains(t, res.Warnings, MsgTooFast)
	assert.Equal(t, 55, res.QualityScore)

	sub.FormTime = 3
	assert.NotContains(t, Validate(sub).Warnings, MsgTooFast)

	sub.FormTime = 0
	assert.NotContains(t, Validate(sub).Warnings, MsgTooFast)
}

func TestValidate_ScoreAlwaysClamped(t *testing.T) {
	worst := Submission{
		Name:      "xxxxx",
		Email:     "test@mailinator.com",
		Message:   "http://spam",
		FormTime:  1,
		UTMSource: "whatever",
	}
	res := Validate(worst)
	assert.GreaterOrEqual(t, res.QualityScore, 0)
	assert.LessOrEqual(t, res.QualityScore, 100)

	best := validSubmission()
	best.Message = strings.Repeat("long detailed brief ", 10)
	res = Validate(best)
	assert.Equal(t, 100, res.QualityScore)
}

func TestValidate_IsPure(t *testing.T) {
	sub := validSubmission()
	sub.UTMSource = " FB "
	first := Validate(sub)
	second := Validate(sub)
	assert.Equal(t, first, second)
	assert.Equal(t, " FB ", sub.UTMSource)
}
