package barcode

import (
	"fmt"
	"strings"
)

const (
	minBarcodeLength = 4
	maxBarcodeLength = 48
)

// ValidationResult is the outcome of structural barcode validation.
type ValidationResult struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors,omitempty"`
}

// ValidateBarcode checks a barcode value structurally: length, character
// set, and a GTIN-13 check digit when the value is 13 digits. It never
// touches the registry; use VerifyBarcodeIntegrity for that.
func ValidateBarcode(barcode string) ValidationResult {
	var errs []string

	if barcode == "" {
		return ValidationResult{Errors: []string{"barcode is empty"}}
	}

	if len(barcode) < minBarcodeLength {
		errs = append(errs, fmt.Sprintf("barcode shorter than %d characters", minBarcodeLength))
	}
	if len(barcode) > maxBarcodeLength {
		errs = append(errs, fmt.Sprintf("barcode longer than %d characters", maxBarcodeLength))
	}

	for _, r := range barcode {
		// CODE128 covers printable ASCII
		if r < 0x20 || r > 0x7e {
			errs = append(errs, fmt.Sprintf("barcode contains non-printable character %q", r))
			break
		}
	}

	if isAllDigits(barcode) && len(barcode) == 13 {
		if !validGTIN13CheckDigit(barcode) {
			errs = append(errs, "invalid GTIN-13 check digit")
		}
	}

	return ValidationResult{
		IsValid: len(errs) == 0,
		Errors:  errs,
	}
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	return strings.IndexFunc(s, func(r rune) bool {
		return r < '0' || r > '9'
	}) == -1
}

// validGTIN13CheckDigit validates the trailing check digit: weights
// alternate 1 and 3 over the first 12 digits, and the check digit brings
// the weighted sum up to the next multiple of ten.
func validGTIN13CheckDigit(s string) bool {
	var sum int
	for i := 0; i < 12; i++ {
		digit := int(s[i] - '0')
		if i%2 == 1 {
			digit *= 3
		}
		sum += digit
	}

	check := (10 - sum%10) % 10
	return check == int(s[12]-'0')
}
