package poly_test

import (
	"testing"

	"github.com/consensys/gnark-crypto/field/goldilocks"
	"github.com/stretchr/testify/assert"

	"github.com/zeroproofs/multistark/poly"
)

func TestBatchInvert(t *testing.T) {
	v := make([]goldilocks.Element, 16)
	want := make([]goldilocks.Element, 16)
	for i := range v {
		v[i].SetUint64(uint64(i + 3))
		want[i].Inverse(&v[i])
	}

	poly.BatchInvert(v)

	for i := range v {
		assert.True(t, v[i].Equal(&want[i]))
	}
}

func TestRowSum(t *testing.T) {
	a := poly.FromUint64([]uint64{1, 2, 3})
	b := poly.FromUint64([]uint64{10, 20, 30})

	sum := poly.RowSum([]poly.Values{a, b})

	assert.True(t, sum.Equal(poly.FromUint64([]uint64{11, 22, 33})))
	assert.Panics(t, func() { poly.RowSum([]poly.Values{a, poly.NewValues(2)}) })
}

func TestSum(t *testing.T) {
	v := poly.FromUint64([]uint64{5, 7, 11})
	var want goldilocks.Element
	want.SetUint64(23)
	got := poly.Sum(v.Coeffs)
	assert.True(t, got.Equal(&want))
}
