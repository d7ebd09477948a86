package poly

import (
	"github.com/consensys/gnark-crypto/field/goldilocks"
)

// BatchInvert inverts every element of v in place.
// All elements must be nonzero; zero inputs make the batch trick silently
// corrupt neighboring entries, so callers substitute a nonzero placeholder
// for masked rows and clear them afterwards.
func BatchInvert(v []goldilocks.Element) {
	inv := goldilocks.BatchInvert(v)
	copy(v, inv)
}

// AddInPlace adds w to v element-wise.
// Panics if the lengths differ.
func AddInPlace(v, w []goldilocks.Element) {
	if len(v) != len(w) {
		panic("length mismatch")
	}
	for i := range v {
		v[i].Add(&v[i], &w[i])
	}
}

// Sum returns the sum of all elements of v.
func Sum(v []goldilocks.Element) goldilocks.Element {
	var s goldilocks.Element
	for i := range v {
		s.Add(&s, &v[i])
	}
	return s
}

// RowSum returns, for each row, the sum of the given columns at that row.
// Panics if the columns have different lengths.
func RowSum(cols []Values) Values {
	if len(cols) == 0 {
		panic("empty column set")
	}
	n := cols[0].Len()
	out := NewValues(n)
	for _, col := range cols {
		if col.Len() != n {
			panic("length mismatch")
		}
		AddInPlace(out.Coeffs, col.Coeffs)
	}
	return out
}
