// Package msisdn normalises Kenyan mobile numbers to the 2547XXXXXXXX /
// 2541XXXXXXXX form the M-Pesa API and the transaction store key on.
package msisdn

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

var ErrInvalid = errors.New("invalid Kenyan mobile number")

var canonical = regexp.MustCompile(`^254[17]\d{8}$`)

// Normalize accepts 0XXXXXXXXX, 254XXXXXXXXX and +254XXXXXXXXX with any
// whitespace, and returns the 12-digit canonical form. A bare 9-digit
// subscriber number is rejected.
func Normalize(raw string) (string, error) {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)

	switch {
	case strings.HasPrefix(s, "+254"):
		s = s[1:]
	case strings.HasPrefix(s, "254"):
	case strings.HasPrefix(s, "0") && len(s) == 10:
		s = "254" + s[1:]
	default:
		return "", ErrInvalid
	}

	if !canonical.MatchString(s) {
		return "", ErrInvalid
	}
	return s, nil
}

// Valid reports whether s is already in canonical form.
func Valid(s string) bool { return canonical.MatchString(s) }
