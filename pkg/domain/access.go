package domain

import "strings"

// Allows reports whether the record grants read access to the given email.
// Open records admit every authenticated user; otherwise the email must be
// present in the access list (case-insensitively).
func (r AccessRecord) Allows(email string) bool {
	if r.IsOpen {
		return true
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	for _, entry := range r.AccessList {
		if strings.EqualFold(strings.TrimSpace(entry), email) {
			return true
		}
	}
	return false
}
