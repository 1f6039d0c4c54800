// Package units converts between atomic stock units and boxes.
package units

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidFactor is returned when units per box is not positive
	ErrInvalidFactor = errors.New("units per box must be positive")
	// ErrOverflow is returned when a box count does not fit in int64 units
	ErrOverflow = errors.New("box quantity too large")
)

// UnitsToBoxes returns the number of whole boxes in units.
func UnitsToBoxes(units, unitsPerBox int64) int64 {
	if unitsPerBox <= 0 || units <= 0 {
		return 0
	}
	return units / unitsPerBox
}

// BoxesToUnits returns the atomic units in boxes. Products outside int64 are
// rejected rather than wrapped.
func BoxesToUnits(boxes, unitsPerBox int64) (int64, error) {
	if unitsPerBox <= 0 {
		return 0, ErrInvalidFactor
	}
	if boxes > math.MaxInt64/unitsPerBox || boxes < math.MinInt64/unitsPerBox {
		return 0, ErrOverflow
	}
	return boxes * unitsPerBox, nil
}

// DerivationSource names the quantity field the operator edited by hand
type DerivationSource string

const (
	SourceNone DerivationSource = ""
	FromUnits  DerivationSource = "units"
	FromBoxes  DerivationSource = "boxes"
)

// Valid reports whether s is a known source.
func (s DerivationSource) Valid() bool {
	return s == SourceNone || s == FromUnits || s == FromBoxes
}

// StockFields are the two operator-facing quantity fields of a stock definition
type StockFields struct {
	Units int64 `json:"units"`
	Boxes int64 `json:"boxes"`
}

// Reconcile re-derives whichever field is not source from the other. With no
// source both values are returned unchanged. Calling it again after the factor
// changes re-derives from the same source.
func Reconcile(f StockFields, unitsPerBox int64, source DerivationSource) (StockFields, error) {
	if unitsPerBox <= 0 {
		return f, ErrInvalidFactor
	}
	switch source {
	case FromUnits:
		f.Boxes = UnitsToBoxes(f.Units, unitsPerBox)
	case FromBoxes:
		n, err := BoxesToUnits(f.Boxes, unitsPerBox)
		if err != nil {
			return f, err
		}
		f.Units = n
	}
	return f, nil
}

// UnitPrice derives the price of a single unit from a per-box price.
func UnitPrice(boxPrice decimal.Decimal, unitsPerBox int64) decimal.Decimal {
	if unitsPerBox <= 1 {
		return boxPrice
	}
	return boxPrice.Div(decimal.NewFromInt(unitsPerBox))
}
