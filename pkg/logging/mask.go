package logging

import "strings"

// MaskEmail keeps the first character of the local part and the domain:
// "jane@biz.com" becomes "j***@biz.com".
func MaskEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		if email == "" {
			return ""
		}
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

// MaskPhone keeps the last four digits.
func MaskPhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if len(phone) <= 4 {
		if phone == "" {
			return ""
		}
		return "***"
	}
	return "***" + phone[len(phone)-4:]
}
