package models

import (
	"math"
	"regexp"

	"github.com/xelth-com/colocacion/internal/errs"
)

var (
	barcodePattern  = regexp.MustCompile(`^[0-9]{13,14}$`)
	locationPattern = regexp.MustCompile(`^[A-Z][0-9]{2}[0-5]$`)
)

// ValidateBarcode checks the EAN-13 / GTIN-14 shape (13–14 digits)
func ValidateBarcode(barcode string) error {
	if !barcodePattern.MatchString(barcode) {
		return errs.Validation("invalid barcode %q: expected 13 or 14 digits", barcode)
	}
	return nil
}

// ValidateLocation checks aisle letter, two-digit block, level 0–5 (e.g. "B215")
func ValidateLocation(location string) error {
	if !locationPattern.MatchString(location) {
		return errs.Validation("invalid location %q: expected letter, two digits and level 0-5", location)
	}
	return nil
}

// ValidateStock rejects negative, non-finite, or over-precise quantities
func ValidateStock(stock float64) error {
	if math.IsNaN(stock) || math.IsInf(stock, 0) {
		return errs.Validation("invalid stock: not a number")
	}
	if stock < 0 {
		return errs.Validation("invalid stock %v: must be >= 0", stock)
	}
	if math.Abs(RoundStock(stock)-stock) > 1e-9 {
		return errs.Validation("invalid stock %v: at most 3 decimals", stock)
	}
	return nil
}
