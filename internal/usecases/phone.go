package usecases

import (
	"strings"

	"github.com/elmyly/whaty/internal/entities"
)

const minPhoneDigits = 8

// Phone is a normalized recipient identifier in canonical international form.
type Phone struct {
	Digits  string // canonical digit string, no prefix
	Display string // "+"-prefixed display form
}

// NormalizePhone turns free-form user input into canonical international
// format. A leading "00" is an international prefix and is dropped. A single
// leading "0" is treated as a trunk prefix and stripped only when more than
// 8 digits remain afterwards; the heuristic is lossy for short national
// numbers but kept as-is.
func NormalizePhone(raw string) (Phone, error) {
	var sb strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	digits := sb.String()

	if strings.HasPrefix(digits, "00") {
		digits = digits[2:]
	} else if strings.HasPrefix(digits, "0") && len(digits)-1 > minPhoneDigits {
		digits = digits[1:]
	}

	if len(digits) < minPhoneDigits {
		return Phone{}, entities.ErrInvalidPhone
	}
	return Phone{Digits: digits, Display: "+" + digits}, nil
}
