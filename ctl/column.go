// Package ctl implements cross-table lookups: randomized multiset equality
// arguments between the traces of several STARK tables, proved with helper
// columns and running partial-sum polynomials, and checked both natively and
// inside recursive verification circuits.
package ctl

import (
	"fmt"

	"github.com/consensys/gnark-crypto/field/goldilocks"

	"github.com/zeroproofs/multistark/circuit"
	"github.com/zeroproofs/multistark/poly"
)

// ColumnTerm is one coefficient in a column linear combination.
type ColumnTerm struct {
	Index int
	Coeff goldilocks.Element
}

// Column is an affine combination of trace cells: terms over the current
// row, terms over the next row, and a constant. There is no row after the
// last one, so next-row terms evaluate to zero there.
type Column struct {
	Linear     []ColumnTerm
	NextLinear []ColumnTerm
	Constant   goldilocks.Element
}

// SingleColumn selects trace column i on the current row.
func SingleColumn(i int) Column {
	return Column{Linear: []ColumnTerm{{Index: i, Coeff: goldilocks.One()}}}
}

// SingleNextColumn selects trace column i on the next row.
func SingleNextColumn(i int) Column {
	return Column{NextLinear: []ColumnTerm{{Index: i, Coeff: goldilocks.One()}}}
}

// SingleColumns selects each of the given trace columns on the current row.
func SingleColumns(is ...int) []Column {
	cs := make([]Column, len(is))
	for j, i := range is {
		cs[j] = SingleColumn(i)
	}
	return cs
}

// LinearCombination builds a column from current-row terms. Every term must
// reference a distinct trace column.
func LinearCombination(terms ...ColumnTerm) Column {
	assertDistinctColumns(terms)
	return Column{Linear: terms}
}

// LinearCombinationWithConstant builds a column from current-row terms plus
// a constant.
func LinearCombinationWithConstant(constant goldilocks.Element, terms ...ColumnTerm) Column {
	assertDistinctColumns(terms)
	return Column{Linear: terms, Constant: constant}
}

func assertDistinctColumns(terms []ColumnTerm) {
	seen := make(map[int]struct{}, len(terms))
	for _, t := range terms {
		if _, ok := seen[t.Index]; ok {
			panic(fmt.Sprintf("ctl: duplicate column %d in linear combination", t.Index))
		}
		seen[t.Index] = struct{}{}
	}
}

// ConstantColumn is a column evaluating to v on every row.
func ConstantColumn(v goldilocks.Element) Column {
	return Column{Constant: v}
}

// EvalTable evaluates the column on one trace row.
func (c Column) EvalTable(trace []poly.Values, row int) goldilocks.Element {
	acc := c.Constant
	for _, t := range c.Linear {
		var term goldilocks.Element
		term.Mul(&t.Coeff, &trace[t.Index].Coeffs[row])
		acc.Add(&acc, &term)
	}
	if next := row + 1; next < trace[0].Len() {
		for _, t := range c.NextLinear {
			var term goldilocks.Element
			term.Mul(&t.Coeff, &trace[t.Index].Coeffs[next])
			acc.Add(&acc, &term)
		}
	}
	return acc
}

// Eval evaluates the column on opened local and next row values.
func (c Column) Eval(local, next []goldilocks.Element) goldilocks.Element {
	acc := c.Constant
	for _, t := range c.Linear {
		var term goldilocks.Element
		term.Mul(&t.Coeff, &local[t.Index])
		acc.Add(&acc, &term)
	}
	for _, t := range c.NextLinear {
		var term goldilocks.Element
		term.Mul(&t.Coeff, &next[t.Index])
		acc.Add(&acc, &term)
	}
	return acc
}

// EvalCircuit evaluates the column over opened value wires. It mirrors Eval
// term for term.
func (c Column) EvalCircuit(b *circuit.Builder, local, next []circuit.Target) circuit.Target {
	acc := b.Constant(c.Constant)
	for _, t := range c.Linear {
		acc = b.ConstMulAdd(t.Coeff, local[t.Index], acc)
	}
	for _, t := range c.NextLinear {
		acc = b.ConstMulAdd(t.Coeff, next[t.Index], acc)
	}
	return acc
}

// Filter selects the trace rows participating in a lookup. It evaluates to
// the sum of its column products and single columns and must come out to 0
// or 1 on every row; a nil *Filter selects every row.
type Filter struct {
	Products  [][2]Column
	Constants []Column
}

// NewFilter builds a filter from degree-two products and degree-one columns.
func NewFilter(products [][2]Column, constants []Column) *Filter {
	return &Filter{Products: products, Constants: constants}
}

// ColumnFilter builds a filter from a single selector column.
func ColumnFilter(c Column) *Filter {
	return &Filter{Constants: []Column{c}}
}

// EvalTable evaluates the filter on one trace row. A nil filter is one.
func (f *Filter) EvalTable(trace []poly.Values, row int) goldilocks.Element {
	if f == nil {
		return goldilocks.One()
	}
	var acc goldilocks.Element
	for _, p := range f.Products {
		a := p[0].EvalTable(trace, row)
		c := p[1].EvalTable(trace, row)
		a.Mul(&a, &c)
		acc.Add(&acc, &a)
	}
	for _, c := range f.Constants {
		v := c.EvalTable(trace, row)
		acc.Add(&acc, &v)
	}
	return acc
}

// Eval evaluates the filter on opened local and next row values.
func (f *Filter) Eval(local, next []goldilocks.Element) goldilocks.Element {
	if f == nil {
		return goldilocks.One()
	}
	var acc goldilocks.Element
	for _, p := range f.Products {
		a := p[0].Eval(local, next)
		c := p[1].Eval(local, next)
		a.Mul(&a, &c)
		acc.Add(&acc, &a)
	}
	for _, c := range f.Constants {
		v := c.Eval(local, next)
		acc.Add(&acc, &v)
	}
	return acc
}

// EvalCircuit evaluates the filter over opened value wires.
func (f *Filter) EvalCircuit(b *circuit.Builder, local, next []circuit.Target) circuit.Target {
	if f == nil {
		return b.One()
	}
	acc := b.Zero()
	for _, p := range f.Products {
		a := p[0].EvalCircuit(b, local, next)
		c := p[1].EvalCircuit(b, local, next)
		acc = b.Add(acc, b.Mul(a, c))
	}
	for _, c := range f.Constants {
		acc = b.Add(acc, c.EvalCircuit(b, local, next))
	}
	return acc
}
