package util

import "regexp"

const maxEmailLength = 254

// emailRegex requires a local part, an "@" and a domain ending in a dotted
// label of at least two letters. "a@b" is rejected.
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// IsValidEmail reports whether s looks like a deliverable local@domain address.
func IsValidEmail(s string) bool {
	if s == "" || len(s) > maxEmailLength {
		return false
	}
	return emailRegex.MatchString(s)
}
