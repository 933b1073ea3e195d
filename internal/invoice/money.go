// internal/invoice/money.go

package invoice

import (
	"strings"

	"github.com/shopspring/decimal"

	domainErr "github.com/Kyver-Studios/Kyver-Invoices/internal/domain/errors"
)

// MaxAmountMinor is the largest amount a single checkout can carry
// (Stripe caps card payments at 99,999,999 minor units).
const MaxAmountMinor int64 = 99_999_999

// Currencies without a minor unit. Everything else uses two decimals.
var zeroDecimalCurrencies = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true,
	"KMF": true, "KRW": true, "MGA": true, "PYG": true, "RWF": true,
	"UGX": true, "VND": true, "VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

// NormalizeCurrency upper-cases and validates an ISO 4217 code.
func NormalizeCurrency(raw string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(raw))
	if len(c) != 3 {
		return "", domainErr.Invalid("currency must be a 3 letter code, got %q", raw)
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return "", domainErr.Invalid("currency must be a 3 letter code, got %q", raw)
		}
	}
	return c, nil
}

func minorDigits(currency string) int32 {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return 0
	}
	return 2
}

// ParseAmount turns user input such as "12.50" into minor units.
func ParseAmount(raw string, currency string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, domainErr.Invalid("amount %q is not a number", raw)
	}
	if !d.IsPositive() {
		return 0, domainErr.Invalid("amount must be greater than zero")
	}
	digits := minorDigits(currency)
	minor := d.Shift(digits)
	if !minor.IsInteger() {
		return 0, domainErr.Invalid("%s amounts allow at most %d decimal places", strings.ToUpper(currency), digits)
	}
	if minor.GreaterThan(decimal.NewFromInt(MaxAmountMinor)) {
		return 0, domainErr.Invalid("amount is too large")
	}
	return minor.IntPart(), nil
}

// MajorString renders minor units as a plain decimal, e.g. 1250 USD -> "12.50".
func MajorString(minor int64, currency string) string {
	digits := minorDigits(currency)
	return decimal.New(minor, -digits).StringFixed(digits)
}

// FormatAmount renders an amount for people, e.g. "12.50 USD".
func FormatAmount(minor int64, currency string) string {
	return MajorString(minor, currency) + " " + strings.ToUpper(currency)
}
