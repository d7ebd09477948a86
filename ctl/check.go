package ctl

import (
	"fmt"

	"github.com/consensys/gnark-crypto/field/goldilocks"
)

// ConstraintConsumer receives constraint evaluations at one point of a
// table's domain. Implementations decide how a violated constraint
// surfaces; the three methods scope a constraint to every row, to all rows
// but the last, or to the last row only.
type ConstraintConsumer interface {
	Constraint(v goldilocks.Element)
	ConstraintTransition(v goldilocks.Element)
	ConstraintLastRow(v goldilocks.Element)
}

// CtlCheckVars is the verifier-side view of one lookup instance on one
// table: the opened helper and partial-sum values plus the instance
// description needed to recompute the combined terms.
type CtlCheckVars struct {
	HelperColumns []goldilocks.Element
	LocalZ        goldilocks.Element
	NextZ         goldilocks.Element
	Challenge     GrandProductChallenge
	Columns       [][]Column
	Filters       []*Filter
}

// CheckVarsFromOpenings rebuilds every table's CtlCheckVars from its opened
// auxiliary values. auxLocal and auxNext are indexed by table and hold the
// aux trace openings at the query row and its successor, laid out as
// CtlData.AuxPolys commits them: all helper columns first, then all
// partial-sum columns, both in lookup-instance order.
func CheckVarsFromOpenings(
	ctls []*CrossTableLookup,
	auxLocal, auxNext [][]goldilocks.Element,
	set GrandProductChallengeSet,
	constraintDegree int,
) ([][]CtlCheckVars, error) {
	numTables := len(auxLocal)
	totalHelpers := make([]int, numTables)
	helpersByCtl := NumHelperColumnsByTable(ctls, numTables, constraintDegree)
	for i := range ctls {
		for t := 0; t < numTables; t++ {
			totalHelpers[t] += helpersByCtl[i][t] * len(set.Challenges)
		}
	}

	vars := make([][]CtlCheckVars, numTables)
	helperIdx := make([]int, numTables)
	zIdx := make([]int, numTables)

	add := func(table TableID, pairs []colFilter, challenge GrandProductChallenge) error {
		nh := helperCount(len(pairs), constraintDegree)
		hi := helperIdx[table]
		zi := totalHelpers[table] + zIdx[table]
		if zi >= len(auxLocal[table]) || zi >= len(auxNext[table]) {
			return fmt.Errorf("ctl: table %d: aux opening too short for partial-sum column %d", table, zi)
		}
		if hi+nh > totalHelpers[table] {
			return fmt.Errorf("ctl: table %d: helper openings exhausted", table)
		}
		v := CtlCheckVars{
			HelperColumns: auxLocal[table][hi : hi+nh],
			LocalZ:        auxLocal[table][zi],
			NextZ:         auxNext[table][zi],
			Challenge:     challenge,
		}
		for _, p := range pairs {
			v.Columns = append(v.Columns, p.columns)
			v.Filters = append(v.Filters, p.filter)
		}
		vars[table] = append(vars[table], v)
		helperIdx[table] += nh
		zIdx[table]++
		return nil
	}

	for _, c := range ctls {
		groups := c.lookingGroups()
		for _, challenge := range set.Challenges {
			for _, g := range groups {
				if err := add(g.table, g.pairs, challenge); err != nil {
					return nil, err
				}
			}
			looked := []colFilter{{columns: c.LookedTable.Columns, filter: c.LookedTable.Filter}}
			if err := add(c.LookedTable.Table, looked, challenge); err != nil {
				return nil, err
			}
		}
	}
	return vars, nil
}

// EvalHelperColumns checks the helper column identities of one lookup
// instance at an evaluation point. For a chunk of two appearances with
// combined values c0, c1, filters f0, f1 and helper h the identity is
//
//	c0*c1*h - f0*c1 - f1*c0 = 0
//
// and for a chunk of one it degenerates to c0*h - f0 = 0. Both hold on every
// row.
func EvalHelperColumns(
	vars *CtlCheckVars,
	local, next []goldilocks.Element,
	constraintDegree int,
	consumer ConstraintConsumer,
) {
	if len(vars.HelperColumns) == 0 {
		return
	}
	chunk := constraintDegree - 1
	for j := 0; j*chunk < len(vars.Columns); j++ {
		lo := j * chunk
		hi := lo + chunk
		if hi > len(vars.Columns) {
			hi = len(vars.Columns)
		}
		h := vars.HelperColumns[j]
		switch hi - lo {
		case 2:
			c0 := vars.Challenge.Combine(evalColumns(vars.Columns[lo], local, next))
			c1 := vars.Challenge.Combine(evalColumns(vars.Columns[lo+1], local, next))
			f0 := vars.Filters[lo].Eval(local, next)
			f1 := vars.Filters[lo+1].Eval(local, next)
			// c0*c1*h - f0*c1 - f1*c0
			var acc, t goldilocks.Element
			acc.Mul(&c0, &c1)
			acc.Mul(&acc, &h)
			t.Mul(&f0, &c1)
			acc.Sub(&acc, &t)
			t.Mul(&f1, &c0)
			acc.Sub(&acc, &t)
			consumer.Constraint(acc)
		case 1:
			c0 := vars.Challenge.Combine(evalColumns(vars.Columns[lo], local, next))
			f0 := vars.Filters[lo].Eval(local, next)
			var acc goldilocks.Element
			acc.Mul(&c0, &h)
			acc.Sub(&acc, &f0)
			consumer.Constraint(acc)
		default:
			panic(fmt.Sprintf("ctl: unsupported chunk size %d", hi-lo))
		}
	}
}

// EvalCrossTableLookupChecks checks every lookup instance of one table at an
// evaluation point: the helper identities and the partial-sum recurrence.
// With helpers, the sum h of the helper values must satisfy z = h on the
// last row and z_local - z_next = h elsewhere. Without helpers the filtered
// inverse terms are folded into the recurrence directly, multiplied through
// by the combined values to stay polynomial.
func EvalCrossTableLookupChecks(
	tableVars []CtlCheckVars,
	local, next []goldilocks.Element,
	constraintDegree int,
	consumer ConstraintConsumer,
) {
	for i := range tableVars {
		vars := &tableVars[i]
		EvalHelperColumns(vars, local, next, constraintDegree, consumer)

		var zDiff goldilocks.Element
		zDiff.Sub(&vars.LocalZ, &vars.NextZ)

		if len(vars.HelperColumns) > 0 {
			var h goldilocks.Element
			for k := range vars.HelperColumns {
				h.Add(&h, &vars.HelperColumns[k])
			}
			var last, trans goldilocks.Element
			last.Sub(&vars.LocalZ, &h)
			trans.Sub(&zDiff, &h)
			consumer.ConstraintLastRow(last)
			consumer.ConstraintTransition(trans)
		} else if len(vars.Columns) == 2 {
			c0 := vars.Challenge.Combine(evalColumns(vars.Columns[0], local, next))
			c1 := vars.Challenge.Combine(evalColumns(vars.Columns[1], local, next))
			f0 := vars.Filters[0].Eval(local, next)
			f1 := vars.Filters[1].Eval(local, next)
			// c0*c1*z - f0*c1 - f1*c0, with z the boundary or difference.
			var prod, rhs, t goldilocks.Element
			prod.Mul(&c0, &c1)
			rhs.Mul(&f0, &c1)
			t.Mul(&f1, &c0)
			rhs.Add(&rhs, &t)
			var last, trans goldilocks.Element
			last.Mul(&prod, &vars.LocalZ)
			last.Sub(&last, &rhs)
			trans.Mul(&prod, &zDiff)
			trans.Sub(&trans, &rhs)
			consumer.ConstraintLastRow(last)
			consumer.ConstraintTransition(trans)
		} else {
			c0 := vars.Challenge.Combine(evalColumns(vars.Columns[0], local, next))
			f0 := vars.Filters[0].Eval(local, next)
			var last, trans goldilocks.Element
			last.Mul(&c0, &vars.LocalZ)
			last.Sub(&last, &f0)
			trans.Mul(&c0, &zDiff)
			trans.Sub(&trans, &f0)
			consumer.ConstraintLastRow(last)
			consumer.ConstraintTransition(trans)
		}
	}
}

func evalColumns(cols []Column, local, next []goldilocks.Element) []goldilocks.Element {
	out := make([]goldilocks.Element, len(cols))
	for i, c := range cols {
		out[i] = c.Eval(local, next)
	}
	return out
}
