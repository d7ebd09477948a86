package ctl

import (
	"fmt"

	"github.com/consensys/gnark-crypto/field/goldilocks"

	"github.com/zeroproofs/multistark/poly"
)

// CtlZData is the auxiliary data of one table for one lookup instance under
// one challenge: its helper columns, its partial-sum polynomial, and the
// column/filter pairs they were built from.
type CtlZData struct {
	HelperColumns []poly.Values
	Z             poly.Values
	Challenge     GrandProductChallenge
	Columns       [][]Column
	Filters       []*Filter
}

// CtlData is all auxiliary lookup data of one table, in lookup-instance
// order.
type CtlData struct {
	ZsColumns []CtlZData
}

// Len returns the number of lookup instances touching this table.
func (d *CtlData) Len() int { return len(d.ZsColumns) }

// NumHelperColumns returns the total helper column count across instances.
func (d *CtlData) NumHelperColumns() int {
	n := 0
	for i := range d.ZsColumns {
		n += len(d.ZsColumns[i].HelperColumns)
	}
	return n
}

// HelperPolys returns every helper column in instance order.
func (d *CtlData) HelperPolys() []poly.Values {
	out := make([]poly.Values, 0, d.NumHelperColumns())
	for i := range d.ZsColumns {
		out = append(out, d.ZsColumns[i].HelperColumns...)
	}
	return out
}

// ZPolys returns every partial-sum polynomial in instance order.
func (d *CtlData) ZPolys() []poly.Values {
	out := make([]poly.Values, 0, len(d.ZsColumns))
	for i := range d.ZsColumns {
		out = append(out, d.ZsColumns[i].Z)
	}
	return out
}

// AuxPolys returns the table's full auxiliary trace: all helper columns,
// then all partial-sum polynomials. Provers commit to exactly this layout
// and verifiers index openings against it.
func (d *CtlData) AuxPolys() []poly.Values {
	out := d.HelperPolys()
	return append(out, d.ZPolys()...)
}

// GetCtlData builds the auxiliary lookup data of every table. traces is
// indexed by TableID. For each lookup and each challenge, every looking
// table group and then the looked table contributes one CtlZData to its
// table, in that fixed order; verification walks the same order.
func GetCtlData(traces [][]poly.Values, ctls []*CrossTableLookup, set GrandProductChallengeSet, constraintDegree int) []CtlData {
	data := make([]CtlData, len(traces))
	for _, c := range ctls {
		groups := c.lookingGroups()
		for _, challenge := range set.Challenges {
			for _, g := range groups {
				zd := partialSums(traces[g.table], g.pairs, challenge, constraintDegree)
				data[g.table].ZsColumns = append(data[g.table].ZsColumns, zd)
			}
			looked := []colFilter{{columns: c.LookedTable.Columns, filter: c.LookedTable.Filter}}
			zd := partialSums(traces[c.LookedTable.Table], looked, challenge, constraintDegree)
			data[c.LookedTable.Table].ZsColumns = append(data[c.LookedTable.Table].ZsColumns, zd)
		}
	}
	return data
}

// partialSums builds the helper columns and the partial-sum polynomial for
// one table's appearances in one lookup instance.
//
// Each appearance k contributes a term column
//
//	t_k[r] = filter_k(r) / combine_k(r)
//
// where combine_k folds the appearance's columns under the challenge. With
// more than two appearances the terms are folded into helper columns, one
// per chunk of constraintDegree-1 appearances. The partial sums run upside
// down: Z[last] is the last row's term sum, Z[i] = Z[i+1] + sum of terms at
// row i, so Z[0] carries the grand total.
func partialSums(trace []poly.Values, pairs []colFilter, challenge GrandProductChallenge, constraintDegree int) CtlZData {
	if constraintDegree < 2 || constraintDegree > 3 {
		panic(fmt.Sprintf("ctl: unsupported constraint degree %d", constraintDegree))
	}
	degree := trace[0].Len()
	terms := make([][]goldilocks.Element, len(pairs))
	for k, p := range pairs {
		terms[k] = termColumn(trace, p, challenge, degree)
	}

	var helpers []poly.Values
	if len(pairs) > 2 {
		chunk := constraintDegree - 1
		for lo := 0; lo < len(pairs); lo += chunk {
			hi := lo + chunk
			if hi > len(pairs) {
				hi = len(pairs)
			}
			h := make([]goldilocks.Element, degree)
			for _, t := range terms[lo:hi] {
				for r := range h {
					h[r].Add(&h[r], &t[r])
				}
			}
			helpers = append(helpers, poly.From(h))
		}
	}

	z := make([]goldilocks.Element, degree)
	for r := degree - 1; r >= 0; r-- {
		var rowSum goldilocks.Element
		for _, t := range terms {
			rowSum.Add(&rowSum, &t[r])
		}
		if r == degree-1 {
			z[r] = rowSum
		} else {
			z[r].Add(&z[r+1], &rowSum)
		}
	}

	zd := CtlZData{
		HelperColumns: helpers,
		Z:             poly.From(z),
		Challenge:     challenge,
	}
	for _, p := range pairs {
		zd.Columns = append(zd.Columns, p.columns)
		zd.Filters = append(zd.Filters, p.filter)
	}
	return zd
}

// termColumn computes filter/combine for every row of one appearance. Rows
// the filter excludes would make the inversion batch see an arbitrary
// combined value, so those entries are replaced by one before inverting and
// zeroed by the filter product afterwards. Filters must evaluate to 0 or 1
// on every row; a row appearing more than once is expressed by repeating it,
// not by a larger filter value.
func termColumn(trace []poly.Values, p colFilter, challenge GrandProductChallenge, degree int) []goldilocks.Element {
	combined := make([]goldilocks.Element, degree)
	filters := make([]goldilocks.Element, degree)
	evals := make([]goldilocks.Element, len(p.columns))
	one := goldilocks.One()
	for r := 0; r < degree; r++ {
		filters[r] = p.filter.EvalTable(trace, r)
		if filters[r].IsZero() {
			combined[r] = one
			continue
		}
		if !filters[r].IsOne() {
			panic(fmt.Sprintf("ctl: non-binary filter value %s at row %d", filters[r].String(), r))
		}
		for i, col := range p.columns {
			evals[i] = col.EvalTable(trace, r)
		}
		combined[r] = challenge.Combine(evals)
	}
	poly.BatchInvert(combined)
	for r := range combined {
		combined[r].Mul(&combined[r], &filters[r])
	}
	return combined
}
