// Package egress guards outbound requests to less-trusted destination URLs.
package egress

import (
	"errors"
	"net/url"
	"strings"
)

// ErrNotAllowed is returned when a destination URL fails the allow-list.
var ErrNotAllowed = errors.New("egress: destination not allowed")

// AllowedDomains is the closed set of automation hosts leads may be pushed to.
var AllowedDomains = []string{
	"hooks.zapier.com",
	"hook.eu1.make.com",
	"hook.us1.make.com",
	"hook.eu2.make.com",
	"hooks.slack.com",
	"api.telegram.org",
	"script.google.com",
}

// IsAllowed reports whether raw is an https URL whose host is an allowed
// domain or a subdomain of one.
func IsAllowed(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme != "https" || u.User != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	for _, domain := range AllowedDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// Check is IsAllowed as an error.
func Check(raw string) error {
	if !IsAllowed(raw) {
		return ErrNotAllowed
	}
	return nil
}
