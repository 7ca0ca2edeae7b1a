/**
 * @description
 * Mobile-money USSD code generation. This is advisory text shown to the
 * end user so they can dial the transfer on their handset; it is not a
 * payment-gateway call and nothing verifies the transfer happened — the
 * settlement protocol's two-party confirmation does that.
 */
package momo

import (
	"errors"
	"fmt"
	"strings"
)

// Operator identifies a supported mobile-money network.
type Operator string

const (
	OperatorMTN    Operator = "mtn"
	OperatorOrange Operator = "orange"
)

var (
	// ErrUnknownOperator is returned for operators without a dial template.
	ErrUnknownOperator = errors.New("unknown mobile money operator")
	// ErrInvalidPhone is returned when the recipient number is not dialable.
	ErrInvalidPhone = errors.New("invalid recipient phone number")
	// ErrInvalidAmount is returned for non-positive amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// DialCode builds the USSD string a customer dials to send `amount` XAF to
// `phone` on the given network.
func DialCode(operator Operator, phone string, amount int64) (string, error) {
	if amount <= 0 {
		return "", ErrInvalidAmount
	}

	digits := normalizePhone(phone)
	if len(digits) != 9 {
		return "", ErrInvalidPhone
	}

	switch operator {
	case OperatorMTN:
		return fmt.Sprintf("*126*1*%s*%d#", digits, amount), nil
	case OperatorOrange:
		return fmt.Sprintf("#150*1*%s*%d#", digits, amount), nil
	default:
		return "", ErrUnknownOperator
	}
}

// normalizePhone strips spacing and the +237 country prefix, leaving the
// 9-digit local number.
func normalizePhone(phone string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, phone)
	cleaned = strings.TrimPrefix(cleaned, "+237")
	// A bare 237 prefix is only the country code when the full 12-digit
	// form was given; a 9-digit local number may itself start with 237.
	if len(cleaned) == 12 {
		cleaned = strings.TrimPrefix(cleaned, "237")
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return cleaned
}
