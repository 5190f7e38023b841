package domain

import "strings"

var cnpjWeightsFirst = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
var cnpjWeightsSecond = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}

// NormalizeCNPJ strips formatting punctuation and returns the bare digit
// string. Non-digit characters other than the usual separators invalidate
// the input by leaving the length wrong.
func NormalizeCNPJ(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidCNPJ reports whether the normalized subject is a well-formed CNPJ:
// 14 digits, not a single repeated digit, with correct check digits.
func ValidCNPJ(digits string) bool {
	if len(digits) != 14 {
		return false
	}
	same := true
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			same = false
			break
		}
	}
	if same {
		return false
	}
	if int(digits[12]-'0') != cnpjCheckDigit(digits[:12], cnpjWeightsFirst) {
		return false
	}
	return int(digits[13]-'0') == cnpjCheckDigit(digits[:13], cnpjWeightsSecond)
}

func cnpjCheckDigit(digits string, weights []int) int {
	sum := 0
	for i, w := range weights {
		sum += int(digits[i]-'0') * w
	}
	rest := sum % 11
	if rest < 2 {
		return 0
	}
	return 11 - rest
}
