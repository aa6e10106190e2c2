package label

import (
	"fmt"
	"strings"

	"github.com/freshtrace/freshtrace-backend/internal/fulfillment/domain"
)

// GS1 Application Identifiers used on the label. Fixed-length AIs come first
// in the concatenated payload; the variable-length lot AI is terminal so it
// needs no FNC1 separator.
const (
	aiGTIN    = "01"
	aiPackDat = "15"
	aiLot     = "10"
)

const gtinLength = 14

// NormalizeGTIN validates a GTIN and returns its 14-digit zero-padded form.
// Spaces and hyphens are stripped first; the remaining string must be 8, 12,
// 13 or 14 digits with a valid mod-10 check digit.
func NormalizeGTIN(gtin string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, gtin)

	if cleaned == "" {
		return "", domain.InvalidGTIN(gtin, "empty after normalization")
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return "", domain.InvalidGTIN(gtin, "contains non-digit characters")
		}
	}
	switch len(cleaned) {
	case 8, 12, 13, 14:
	default:
		return "", domain.InvalidGTIN(gtin, fmt.Sprintf("length %d, want 8, 12, 13 or 14 digits", len(cleaned)))
	}
	if !validCheckDigit(cleaned) {
		return "", domain.InvalidGTIN(gtin, "check digit mismatch")
	}

	return strings.Repeat("0", gtinLength-len(cleaned)) + cleaned, nil
}

// validCheckDigit verifies the GS1 mod-10 check digit: weights of 3 and 1
// alternate from the right, starting with 3 on the digit next to the check
// digit.
func validCheckDigit(digits string) bool {
	sum := 0
	weight := 3
	for i := len(digits) - 2; i >= 0; i-- {
		sum += int(digits[i]-'0') * weight
		if weight == 3 {
			weight = 1
		} else {
			weight = 3
		}
	}
	check := (10 - sum%10) % 10
	return check == int(digits[len(digits)-1]-'0')
}

// gs1Concat builds the machine payload and the parenthesized human-readable
// mirror from the ordered field list.
func gs1Concat(fields []domain.GS1Field) (payload, humanReadable string) {
	var machine, human strings.Builder
	for _, f := range fields {
		machine.WriteString(f.AI)
		machine.WriteString(f.Value)
		human.WriteString("(")
		human.WriteString(f.AI)
		human.WriteString(")")
		human.WriteString(f.Value)
	}
	return machine.String(), human.String()
}
