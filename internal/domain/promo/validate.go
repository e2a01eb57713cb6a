package promo

import (
	"strings"
	"unicode/utf8"

	"github.com/xenking/kart-orders/internal/domain/apperr"
)

// ValidateCode checks that code is usable as a promo code. Codes are
// case-sensitive and stored exactly as given.
func ValidateCode(code string) error {
	switch {
	case code == "":
		return apperr.Validation("code", "must not be empty")
	case utf8.RuneCountInString(code) > MaxCodeLen:
		return apperr.Validation("code", "must be at most 20 characters")
	case strings.TrimSpace(code) != code:
		return apperr.Validation("code", "must not have surrounding whitespace")
	}
	return nil
}

// ValidatePercent checks that percent is within [MinPercent, MaxPercent].
func ValidatePercent(percent int) error {
	if percent < MinPercent || percent > MaxPercent {
		return apperr.Validation("discount_percent", "must be between 1 and 100")
	}
	return nil
}
