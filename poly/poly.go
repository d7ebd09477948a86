// Package poly implements column-major trace polynomials over the Goldilocks field.
//
// A trace is represented as a slice of [Values], one per column,
// all of the same length. The length is called the degree of the trace.
package poly

import (
	"github.com/consensys/gnark-crypto/field/goldilocks"
)

// Values is a polynomial in evaluation form: one field element per row.
type Values struct {
	Coeffs []goldilocks.Element
}

// NewValues creates a new Values with the given number of rows, all zero.
func NewValues(n int) Values {
	return Values{Coeffs: make([]goldilocks.Element, n)}
}

// From creates a Values from a slice of field elements.
// The slice is used directly, without copying.
func From(coeffs []goldilocks.Element) Values {
	return Values{Coeffs: coeffs}
}

// FromUint64 creates a Values from a slice of uint64.
func FromUint64(coeffs []uint64) Values {
	v := NewValues(len(coeffs))
	for i, c := range coeffs {
		v.Coeffs[i].SetUint64(c)
	}
	return v
}

// Len returns the number of rows.
func (v Values) Len() int {
	return len(v.Coeffs)
}

// Copy returns a deep copy of v.
func (v Values) Copy() Values {
	coeffs := make([]goldilocks.Element, len(v.Coeffs))
	copy(coeffs, v.Coeffs)
	return Values{Coeffs: coeffs}
}

// Equal returns whether v and w have the same length and values.
func (v Values) Equal(w Values) bool {
	if len(v.Coeffs) != len(w.Coeffs) {
		return false
	}
	for i := range v.Coeffs {
		if !v.Coeffs[i].Equal(&w.Coeffs[i]) {
			return false
		}
	}
	return true
}

// Degree returns the number of rows of a column-major trace.
// Panics if the trace has no columns.
func Degree(trace []Values) int {
	if len(trace) == 0 {
		panic("empty trace")
	}
	return trace[0].Len()
}
