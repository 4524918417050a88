package leads

import (
	"fmt"
	"strings"
)

// Fallbacks used when a UTM value cannot be resolved against the whitelist.
const (
	FallbackSource = "direct"
	FallbackMedium = "unknown"
)

// ValidSources is the closed utm_source whitelist, in match priority order.
var ValidSources = []string{
	"google", "facebook", "instagram", "linkedin", "telegram", "email",
	"direct", "referral", "viber", "youtube", "tiktok", "zapier",
}

// ValidMediums is the closed utm_medium whitelist, in match priority order.
var ValidMediums = []string{
	"cpc", "cpm", "organic", "social", "post", "story", "reel", "bio",
	"dm", "email", "referral", "video", "display", "webhook",
}

var sourceCorrections = map[string]string{
	"insta":     "instagram",
	"ig":        "instagram",
	"fb":        "facebook",
	"ln":        "linkedin",
	"li":        "linkedin",
	"tg":        "telegram",
	"yt":        "youtube",
	"tt":        "tiktok",
	"ggl":       "google",
	"adwords":   "google",
	"googleads": "google",
}

var mediumCorrections = map[string]string{
	"paid":         "cpc",
	"ppc":          "cpc",
	"ads":          "cpc",
	"social-media": "social",
	"feed":         "post",
	"stories":      "story",
	"reels":        "reel",
	"newsletter":   "email",
	"mail":         "email",
}

// UTMResult reports how a raw UTM value was resolved.
type UTMResult struct {
	Value     string
	Original  string
	Corrected bool
}

// Warning renders the correction note recorded alongside the lead.
func (r UTMResult) Warning(param string) string {
	return fmt.Sprintf("%s corrected: %s → %s", param, r.Original, r.Value)
}

// NormalizeSource resolves a raw utm_source into the whitelist.
func NormalizeSource(raw string) UTMResult {
	return resolveUTM(raw, sourceCorrections, ValidSources, FallbackSource)
}

// NormalizeMedium resolves a raw utm_medium into the whitelist.
func NormalizeMedium(raw string) UTMResult {
	return resolveUTM(raw, mediumCorrections, ValidMediums, FallbackMedium)
}

func resolveUTM(raw string, corrections map[string]string, whitelist []string, fallback string) UTMResult {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	if cleaned == "" {
		return UTMResult{Value: fallback, Original: cleaned}
	}

	value := cleaned
	if mapped, ok := corrections[value]; ok {
		value = mapped
	}
	if !contains(whitelist, value) {
		value = closestMatch(value, whitelist, fallback)
	}

	return UTMResult{
		Value:     value,
		Original:  cleaned,
		Corrected: value != cleaned,
	}
}

// closestMatch tries a containment match in both directions before the fallback.
func closestMatch(value string, whitelist []string, fallback string) string {
	for _, candidate := range whitelist {
		if strings.Contains(value, candidate) || strings.Contains(candidate, value) {
			return candidate
		}
	}
	return fallback
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
