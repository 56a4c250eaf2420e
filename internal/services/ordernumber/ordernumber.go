package ordernumber

import (
	"fmt"
	"strings"

	"github.com/ShiraazMoollatjie/goluhn"
)

const (
	prefix      = "ORD"
	digitLength = 14
)

// Generate produces a fresh order number: a fixed prefix followed by a
// random Luhn-valid digit string. Uniqueness is enforced by the storage
// layer, callers retry on conflict.
func Generate() string {
	return prefix + goluhn.Generate(digitLength)
}

// Validate checks the shape of an externally supplied order number.
func Validate(orderNumber string) error {
	if !strings.HasPrefix(orderNumber, prefix) {
		return fmt.Errorf("order number %q has no %s prefix", orderNumber, prefix)
	}

	digits := strings.TrimPrefix(orderNumber, prefix)
	if len(digits) == 0 {
		return fmt.Errorf("order number %q has no digits", orderNumber)
	}

	if err := goluhn.Validate(digits); err != nil {
		return fmt.Errorf("order number %q is not valid: %w", orderNumber, err)
	}

	return nil
}
