// Package points converts raw usage units into the points currency that
// quota enforcement is denominated in.
package points

import (
	"errors"
	"fmt"
)

// Unit is a recognized usage unit. The set is closed on purpose: an unknown
// unit is a caller programming error, never a zero-cost conversion.
type Unit string

const (
	UnitSeconds    Unit = "seconds"
	UnitCharacters Unit = "characters"
	UnitImages     Unit = "images"
	UnitMinutes    Unit = "minutes"
)

// ErrUnrecognizedUnit is returned when a unit is not in the conversion table.
var ErrUnrecognizedUnit = errors.New("unrecognized usage unit")

// conversionTable maps each unit to its per-unit point cost.
var conversionTable = map[Unit]float64{
	UnitSeconds:    1.0,
	UnitCharacters: 0.1,
	UnitImages:     10.0,
	UnitMinutes:    60.0,
}

// Convert returns the points cost of count units. It is pure and safe to call
// outside any transaction.
func Convert(unit Unit, count int64) (float64, error) {
	perUnit, ok := conversionTable[unit]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnrecognizedUnit, unit)
	}
	return perUnit * float64(count), nil
}

// Recognized reports whether unit is in the conversion table.
func Recognized(unit Unit) bool {
	_, ok := conversionTable[unit]
	return ok
}
