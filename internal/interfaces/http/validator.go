package http

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Input validation constants
const (
	MaxBodyLength     = 10000
	MaxTagLength      = 64
	MaxListNameLength = 100
	MaxBulkRecipients = 500
	MinPasswordLength = 6
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidEmail checks the rough shape of an email address.
func ValidEmail(s string) bool {
	return s != "" && len(s) <= 255 && emailPattern.MatchString(s)
}

// SanitizeString removes null bytes and invalid UTF-8
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")

	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for _, r := range s {
			if r != utf8.RuneError {
				v = append(v, r)
			}
		}
		s = string(v)
	}
	return s
}

// ValidateLength checks if string is within bounds
func ValidateLength(s string, min, max int) bool {
	l := len(s)
	return l >= min && l <= max
}
